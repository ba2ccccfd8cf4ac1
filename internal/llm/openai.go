// SPDX-License-Identifier: AGPL-3.0-only
package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/balibots/balijarbas/internal/errors"
)

// OpenAIProvider implements Provider using the OpenAI SDK.
// It supports any OpenAI-compatible endpoint (OpenAI, Ollama, vLLM, Groq,
// etc.) via a configurable base URL.
type OpenAIProvider struct {
	client *openai.Client
}

// openaiState is the opaque provider extension packed onto assistant turns.
// It carries the native response message so tool-call assertions round-trip
// losslessly instead of being re-encoded from canonical form.
type openaiState struct {
	message openai.ChatCompletionMessage
}

// NewOpenAIProvider creates a new OpenAI-backed Provider.
// If baseURL is non-empty it overrides the default API endpoint.
func NewOpenAIProvider(apiKey string, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, turn := range req.Turns {
		msgs = append(msgs, toOpenAIMessage(turn))
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Provider(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Provider(errors.InvalidInput("response contained no choices"))
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

// BuildNextInput folds the model's tool-call assertions and the correlated
// tool results into the conversation. The native response message is packed
// onto the assistant turn so the next Complete sends it back verbatim.
func (p *OpenAIProvider) BuildNextInput(turns []Turn, resp *Response, results []ToolResult) []Turn {
	next := make([]Turn, 0, len(turns)+1+len(results))
	next = append(next, turns...)

	assistant := Turn{
		Role:      RoleAssistant,
		Content:   resp.Text,
		ToolCalls: resp.ToolCalls,
	}
	if state, ok := resp.ProviderData.(*openaiState); ok {
		assistant.ProviderData = state
	}
	next = append(next, assistant)

	for _, r := range results {
		next = append(next, Turn{
			Role:       RoleTool,
			Content:    r.Content,
			ToolCallID: r.CallID,
		})
	}
	return next
}

// toOpenAITools converts canonical tool declarations to the OpenAI SDK
// representation. Capability and web-search declarations are offered as
// function tools; execution is routed locally by the dispatcher.
func toOpenAITools(tools []ToolDecl) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		fn := shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  shared.FunctionParameters(t.Parameters),
		}
		if t.Strict {
			fn.Strict = openai.Bool(true)
		}
		out[i] = openai.ChatCompletionToolParam{Function: fn}
	}
	return out
}

// toOpenAIMessage converts a canonical turn to an OpenAI SDK message union.
// An assistant turn carrying packed native state is unpacked and echoed back
// unchanged; everything else is built from canonical fields.
func toOpenAIMessage(turn Turn) openai.ChatCompletionMessageParamUnion {
	switch turn.Role {
	case RoleTool:
		return openai.ToolMessage(turn.Content, turn.ToolCallID)
	case RoleSystem:
		return openai.SystemMessage(turn.Content)
	case RoleUser:
		if len(turn.Parts) > 0 {
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(turn.Parts))
			for _, part := range turn.Parts {
				if part.Image != nil {
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL:    part.Image.URL,
						Detail: part.Image.Detail,
					}))
				} else {
					parts = append(parts, openai.TextContentPart(part.Text))
				}
			}
			return openai.UserMessage(parts)
		}
		return openai.UserMessage(turn.Content)
	default: // RoleAssistant
		if state, ok := turn.ProviderData.(*openaiState); ok {
			return state.message.ToParam()
		}
		asst := openai.ChatCompletionAssistantMessageParam{}
		if turn.Content != "" {
			asst.Content.OfString = openai.String(turn.Content)
		}
		if len(turn.ToolCalls) > 0 {
			asst.ToolCalls = make([]openai.ChatCompletionMessageToolCallParam, len(turn.ToolCalls))
			for i, tc := range turn.ToolCalls {
				asst.ToolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	}
}

// fromOpenAIMessage converts an OpenAI SDK response message to the canonical
// Response, keeping the native message as opaque state.
func fromOpenAIMessage(m openai.ChatCompletionMessage) *Response {
	resp := &Response{
		Text:         m.Content,
		ProviderData: &openaiState{message: m},
	}
	if len(m.ToolCalls) > 0 {
		resp.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			resp.ToolCalls[i] = ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}
	}
	return resp
}
