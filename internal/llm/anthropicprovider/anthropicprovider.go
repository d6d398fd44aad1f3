// Package anthropicprovider adapts github.com/anthropics/anthropic-sdk-go to
// the llm.Provider contract. Anthropic has no embeddings endpoint, so this
// provider does not implement embedding.Model — llm.AsEmbeddingModel returns
// nil for it, and an agent configured with only this provider runs with
// vector search silently disabled.
//
// StreamCompletion drives Anthropic's ContentBlockStart/Delta/Stop streaming
// switch, and since the Messages API has no native structured-output format,
// a schema-constrained request is simulated by forcing a single synthetic
// tool call whose arguments are the schema-shaped object.
package anthropicprovider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/redeven/agentcore/internal/agenterr"
	"github.com/redeven/agentcore/internal/llm"
)

const defaultMaxOutputTokens = 4096

// objectResultToolName is the synthetic tool this provider forces a call to
// when CompletionRequest.Schema is set. Anthropic's Messages API has no
// json_schema response format, so structured output is simulated by forcing
// a single tool whose input schema is the requested object schema; the
// forced call's arguments become CompletionResult.Text, matching what the
// OpenAI adapter returns for the same request.
const objectResultToolName = "emit_structured_result"

// Provider adapts an Anthropic client to llm.Provider.
type Provider struct {
	client anthropic.Client
}

// New builds a Provider. baseURL is optional, for Anthropic-compatible
// gateways.
func New(apiKey, baseURL string) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropicprovider: missing api key")
	}
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &Provider{client: anthropic.NewClient(opts...)}, nil
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest, onEvent func(llm.StreamEvent)) (llm.CompletionResult, error) {
	if p == nil {
		return llm.CompletionResult{}, errors.New("anthropicprovider: nil provider")
	}
	if strings.TrimSpace(req.Model) == "" {
		return llm.CompletionResult{}, agenterr.NewInvalidArgument("anthropicprovider.StreamCompletion", "missing model")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(defaultMaxOutputTokens),
		Messages:  buildMessages(req.Messages),
		Tools:     buildTools(req.Tools),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = int64(req.MaxOutputTokens)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: strings.TrimSpace(req.System)}}
	}
	if len(req.Schema) > 0 {
		tool := objectResultTool(req.Schema)
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &tool})
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: objectResultToolName}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}
	var textBuf, reasoningBuf strings.Builder

	type partialCall struct {
		id      string
		name    string
		argsRaw strings.Builder
		ended   bool
	}
	partials := map[int64]*partialCall{}

	emitEnd := func(pc *partialCall, raw string) {
		if pc == nil || pc.ended {
			return
		}
		pc.ended = true
		onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventToolCallEnd, ToolCall: &llm.PartialToolCall{ID: pc.id, Name: pc.name, ArgumentsJSON: raw}})
	}

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return llm.CompletionResult{}, agenterr.WrapProvider("anthropicprovider.StreamCompletion", err)
		}
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if strings.TrimSpace(variant.ContentBlock.Type) != "tool_use" {
				continue
			}
			pc := &partialCall{id: strings.TrimSpace(variant.ContentBlock.ID), name: strings.TrimSpace(variant.ContentBlock.Name)}
			partials[variant.Index] = pc
			onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventToolCallStart, ToolCall: &llm.PartialToolCall{ID: pc.id, Name: pc.name}})

		case anthropic.ContentBlockDeltaEvent:
			switch delta := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				textBuf.WriteString(delta.Text)
				onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventTextDelta, TextDelta: delta.Text})
			case anthropic.InputJSONDelta:
				pc := partials[variant.Index]
				if pc == nil || delta.PartialJSON == "" {
					continue
				}
				pc.argsRaw.WriteString(delta.PartialJSON)
				onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventToolCallDelta, ToolCall: &llm.PartialToolCall{ID: pc.id, Name: pc.name, ArgumentsJSON: pc.argsRaw.String()}})
			case anthropic.ThinkingDelta:
				if delta.Thinking == "" {
					continue
				}
				reasoningBuf.WriteString(delta.Thinking)
				onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventReasoningDelta, TextDelta: delta.Thinking})
			}

		case anthropic.ContentBlockStopEvent:
			pc := partials[variant.Index]
			if pc == nil {
				continue
			}
			emitEnd(pc, pc.argsRaw.String())
		}
	}
	if err := stream.Err(); err != nil {
		return llm.CompletionResult{}, agenterr.WrapProvider("anthropicprovider.StreamCompletion", err)
	}

	result := llm.CompletionResult{
		FinishReason: mapStopReason(msg.StopReason),
		Text:         strings.TrimSpace(textBuf.String()),
		Reasoning:    strings.TrimSpace(reasoningBuf.String()),
		Usage: llm.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, pc := range partials {
		if pc.id == "" {
			continue
		}
		if len(req.Schema) > 0 && pc.name == objectResultToolName {
			result.Text = pc.argsRaw.String()
			result.FinishReason = "stop"
			continue
		}
		result.ToolCalls = append(result.ToolCalls, llm.ToolCallResult{ID: pc.id, Name: pc.name, ArgumentsJSON: pc.argsRaw.String()})
	}
	onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventUsage, Usage: &result.Usage})
	onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventFinish, FinishReason: result.FinishReason})
	return result, nil
}

func onStreamEvent(onEvent func(llm.StreamEvent), ev llm.StreamEvent) {
	if onEvent != nil {
		onEvent(ev)
	}
}

func buildTools(defs []llm.ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			continue
		}
		param := toolInputSchema(def.Name, def.Description, def.InputSchema)
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

// objectResultTool builds the synthetic forced tool StreamCompletion uses to
// simulate schema-constrained generation (see objectResultToolName).
func objectResultTool(rawSchema json.RawMessage) anthropic.ToolParam {
	return toolInputSchema(objectResultToolName, "Return the final result matching the required schema.", rawSchema)
}

func toolInputSchema(name, description string, rawSchema json.RawMessage) anthropic.ToolParam {
	schema := map[string]any{}
	if len(rawSchema) > 0 {
		_ = json.Unmarshal(rawSchema, &schema)
	}
	properties, _ := schema["properties"].(map[string]any)
	var required []string
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}
	return anthropic.ToolParam{
		Name:        name,
		Description: anthropic.String(description),
		InputSchema: anthropic.ToolInputSchemaParam{Type: "object", Properties: properties, Required: required},
	}
}

func buildMessages(msgs []llm.ProviderMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs)+1)
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "tool":
			if m.ToolCallID == "" {
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, strings.TrimSpace(string(m.ToolResult)), false)))
		case "assistant":
			if m.ToolCallID != "" {
				args := map[string]any{}
				_ = json.Unmarshal(m.ToolArgs, &args)
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewToolUseBlock(m.ToolCallID, args, m.ToolName)))
				continue
			}
			if strings.TrimSpace(m.Text) == "" {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		default:
			if strings.TrimSpace(m.Text) == "" {
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	if len(out) == 0 {
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock("Continue.")))
	}
	return out
}

func mapStopReason(reason anthropic.StopReason) string {
	switch strings.ToLower(strings.TrimSpace(string(reason))) {
	case "tool_use":
		return "tool_calls"
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "refusal":
		return "content_filter"
	default:
		return "unknown"
	}
}
