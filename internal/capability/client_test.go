// SPDX-License-Identifier: AGPL-3.0-only
package capability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/balibots/balijarbas/internal/config"
	"github.com/balibots/balijarbas/internal/logging"
)

func TestConnectUnconfigured(t *testing.T) {
	client, err := Connect(context.Background(), &config.CapabilityConfig{},
		"test", logging.New(logging.Options{Level: logging.Error}))
	if err != nil {
		t.Fatalf("Expected no error without a configured backend: %v", err)
	}
	if client != nil {
		t.Fatal("Expected a nil client without a configured backend")
	}
}

func TestBearerTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer header, got %q", got)
		}
	}))
	defer server.Close()

	client := &http.Client{Transport: &bearerTransport{token: "secret"}}
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	// The original request must not be mutated.
	if req.Header.Get("Authorization") != "" {
		t.Error("Expected the header injected on a clone, not the original")
	}
}

func TestSchemaToMap(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"text"},
	}
	params, err := schemaToMap(schema)
	if err != nil {
		t.Fatalf("schemaToMap failed: %v", err)
	}
	props, _ := params["properties"].(map[string]interface{})
	if props["text"] == nil {
		t.Error("Expected the declared property carried through")
	}
	if props["reason"] != nil {
		t.Error("Expected no placeholder when properties exist")
	}
}

func TestSchemaToMapEmptyObject(t *testing.T) {
	for _, schema := range []interface{}{nil, map[string]interface{}{"type": "object"}} {
		params, err := schemaToMap(schema)
		if err != nil {
			t.Fatalf("schemaToMap failed: %v", err)
		}
		props, _ := params["properties"].(map[string]interface{})
		if props["reason"] == nil {
			t.Error("Expected a placeholder property for an empty object schema")
		}
	}
}
