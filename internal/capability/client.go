// SPDX-License-Identifier: AGPL-3.0-only

// Package capability connects to the capability-execution backend: an MCP
// server performing real-world messaging-platform actions on the agent's
// behalf. The backend's action set is opaque; the only contractually
// required action is the send-message acknowledgement used for history
// bookkeeping.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/balibots/balijarbas/internal/config"
	"github.com/balibots/balijarbas/internal/llm"
	"github.com/balibots/balijarbas/internal/logging"
)

// SendMessageTool is the designated send/acknowledge action scanned for
// during turn finalization.
const SendMessageTool = "send_message"

// Client is a connected capability server session.
type Client struct {
	session *mcp.ClientSession
	tools   []llm.ToolDecl
	logger  *logging.Logger
}

// bearerTransport injects an Authorization header on every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// Connect dials the configured capability server and discovers its tools.
// Returns nil without error when no server is configured; the catalog then
// simply carries no capability tools.
func Connect(ctx context.Context, cfg *config.CapabilityConfig, version string, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}

	var tp mcp.Transport
	switch {
	case cfg.Command != "":
		tp = &mcp.CommandTransport{Command: exec.Command(cfg.Command, cfg.Args...)}
	case cfg.Endpoint != "":
		sse := &mcp.SSEClientTransport{Endpoint: cfg.Endpoint}
		if cfg.BearerToken != "" {
			sse.HTTPClient = &http.Client{Transport: &bearerTransport{token: cfg.BearerToken}}
		}
		tp = sse
	default:
		return nil, nil
	}

	cli := mcp.NewClient(&mcp.Implementation{Name: "balijarbas", Version: version}, nil)
	session, err := cli.Connect(ctx, tp, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to capability server: %w", err)
	}

	resp, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("list capability tools: %w", err)
	}

	auth := "none"
	if cfg.BearerToken != "" {
		auth = "bearer"
	}

	var tools []llm.ToolDecl
	for _, tl := range resp.Tools {
		params, err := schemaToMap(tl.InputSchema)
		if err != nil {
			logger.Warnf("Skipping capability tool %s: %v", tl.Name, err)
			continue
		}
		tools = append(tools, llm.ToolDecl{
			Kind:        llm.KindCapability,
			Name:        tl.Name,
			Description: tl.Description,
			Parameters:  params,
			Endpoint:    cfg.Endpoint,
			Auth:        auth,
		})
	}

	logger.Infof("Capability server %q exposed %d tools", cfg.Label, len(tools))
	return &Client{session: session, tools: tools, logger: logger}, nil
}

// Tools returns the discovered tool declarations.
func (c *Client) Tools() []llm.ToolDecl {
	return c.tools
}

// Call invokes a capability tool and flattens its response content into a
// single JSON string.
func (c *Client) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", err
	}
	out, _ := json.Marshal(res.Content)
	return string(out), nil
}

// Close tears down the server session.
func (c *Client) Close() error {
	return c.session.Close()
}

// schemaToMap converts a discovered input schema into the JSON-schema map the
// provider adapters expect. Empty object schemas get a placeholder property
// because some backends reject property-less function schemas.
func schemaToMap(schema interface{}) (map[string]interface{}, error) {
	params := map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	if schema != nil {
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("marshal input schema: %w", err)
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("unmarshal input schema: %w", err)
		}
	}

	if params["type"] == "object" {
		props, _ := params["properties"].(map[string]interface{})
		if len(props) == 0 {
			params["properties"] = map[string]interface{}{
				"reason": map[string]interface{}{
					"type":        "string",
					"description": "Why the tool is being called",
				},
			}
		}
	}
	return params, nil
}
