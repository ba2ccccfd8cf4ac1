// SPDX-License-Identifier: AGPL-3.0-only
package tools

import "encoding/json"

// Every dispatch produces a JSON result string, never an error: tool
// failures are data the model can read and self-correct from.

// successResult serializes a success payload. Extra fields are merged next
// to the success flag.
func successResult(fields map[string]interface{}) string {
	payload := map[string]interface{}{"success": true}
	for k, v := range fields {
		payload[k] = v
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return `{"success":false,"error":"failed to serialize result"}`
	}
	return string(out)
}

// errorResult serializes a failure payload.
func errorResult(message string) string {
	out, err := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   message,
	})
	if err != nil {
		return `{"success":false,"error":"failed to serialize result"}`
	}
	return string(out)
}
