// SPDX-License-Identifier: AGPL-3.0-only

// Package llm normalizes heterogeneous model backends into one canonical
// conversation and tool protocol. Adapters translate canonical turns and
// tool declarations into a backend's native request shape and parse the
// native response back into canonical form.
package llm

import "context"

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolKind distinguishes the tool declaration variants in the catalog.
type ToolKind int

const (
	// KindFunction is a locally handled tool described by a JSON schema.
	KindFunction ToolKind = iota

	// KindCapability is a tool surfaced by the capability-execution backend.
	KindCapability

	// KindWebSearch is the web search tool.
	KindWebSearch
)

// ToolDecl is a provider-agnostic declaration of a tool offered to the model.
// Declarations are static catalog entries, built once per request.
type ToolDecl struct {
	Kind        ToolKind
	Name        string
	Description string

	// Parameters is a JSON-schema object (type/properties/required/...).
	Parameters map[string]interface{}

	// Strict requests strict schema adherence where the backend supports it.
	Strict bool

	// Endpoint and Auth describe the capability server backing a
	// KindCapability tool. Auth is "none" or "bearer".
	Endpoint string
	Auth     string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded argument object
	Kind      ToolKind
}

// ToolResult carries the serialized outcome of one tool call, correlated by
// the call's ID. The content is always a JSON string, even for failures.
type ToolResult struct {
	CallID  string
	Content string
}

// ImagePart references an image by URL with an optional detail hint.
type ImagePart struct {
	URL    string
	Detail string // "low", "high" or "" for backend default
}

// Part is one element of a multimodal turn: text or an image reference.
type Part struct {
	Text  string
	Image *ImagePart
}

// Turn is one canonical conversation turn. Turns are appended, never edited.
type Turn struct {
	Role    Role
	Content string

	// Parts carries multimodal content. When non-empty it takes precedence
	// over Content.
	Parts []Part

	// ToolCalls holds the model's tool-call assertions on assistant turns.
	ToolCalls []ToolCall

	// ToolCallID correlates a RoleTool turn with the call it answers.
	ToolCallID string

	// ProviderData is an opaque extension owned by the adapter that produced
	// the turn. An adapter may pack native state here so the next Complete
	// can round-trip it losslessly; other adapters must ignore it.
	ProviderData interface{}
}

// Request is one canonical completion request.
type Request struct {
	Model  string
	System string
	Turns  []Turn
	Tools  []ToolDecl
}

// Response is the canonical result of one completion.
type Response struct {
	Text      string
	ToolCalls []ToolCall

	// ProviderData is opaque native state for the adapter's own use in
	// BuildNextInput.
	ProviderData interface{}
}

// Empty reports whether the response carries neither text nor tool calls,
// which the orchestrator treats as "nothing to do".
func (r *Response) Empty() bool {
	return r.Text == "" && len(r.ToolCalls) == 0
}

// Provider abstracts a chat-completion backend so the decision loop can work
// with any LLM provider.
type Provider interface {
	// Name identifies the backend ("openai", "anthropic").
	Name() string

	// Complete sends one completion request and returns the canonical
	// response. A backend failure is returned wrapped as a provider error;
	// no retry happens here.
	Complete(ctx context.Context, req Request) (*Response, error)

	// BuildNextInput appends the model's tool-call assertions and the
	// correlated tool results to the conversation, producing the input for
	// the next Complete cycle.
	BuildNextInput(turns []Turn, resp *Response, results []ToolResult) []Turn
}
