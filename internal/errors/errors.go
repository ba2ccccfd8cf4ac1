// SPDX-License-Identifier: AGPL-3.0-only
package errors

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap with %w so callers can classify with errors.Is.
var (
	// ErrProvider marks a model backend call that failed or returned
	// unparseable data. Fatal to the current turn; never retried here.
	ErrProvider = errors.New("provider error")

	// ErrConfiguration marks a missing credential or unknown provider kind.
	// Fatal at construction time.
	ErrConfiguration = errors.New("configuration error")
)

// NotFound creates a formatted "not found" error
func NotFound(resource, id string) error {
	return fmt.Errorf("resource not found: %s with ID %s", resource, id)
}

// AlreadyExists creates a formatted "already exists" error
func AlreadyExists(resource, id string) error {
	return fmt.Errorf("resource already exists: %s with ID %s", resource, id)
}

// InvalidInput creates a formatted "invalid input" error
func InvalidInput(reason string) error {
	return fmt.Errorf("invalid input: %s", reason)
}

// Internal creates a formatted "internal error" error
func Internal(err error) error {
	return fmt.Errorf("internal error: %v", err)
}

// Provider wraps a backend failure so it can be classified with IsProvider.
func Provider(err error) error {
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

// Configuration creates a construction-time configuration error.
func Configuration(reason string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, reason)
}

// IsProvider reports whether err is (or wraps) a provider error.
func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

// IsConfiguration reports whether err is (or wraps) a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
