// Package openaiprovider adapts github.com/openai/openai-go's Responses API
// to the llm.Provider contract, and also implements embedding.Model: OpenAI
// is the one provider in this module with a real embeddings endpoint.
//
// StreamCompletion drives the Responses API's streaming-event switch over
// response.output_text.delta / response.output_item.added /
// response.function_call_arguments.delta/done / response.completed.
package openaiprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/redeven/agentcore/internal/agenterr"
	"github.com/redeven/agentcore/internal/llm"
)

const defaultMaxOutputTokens = 4096

// EmbeddingModelID is the fixed embedding model this provider uses. Made a
// constant rather than configurable because its dimension (1536) is baked
// into every stored embedding.Embedding that references it.
const EmbeddingModelID = "text-embedding-3-small"
const embeddingDimension = 1536

// Provider adapts an OpenAI client to llm.Provider and embedding.Model.
type Provider struct {
	client openai.Client
}

// New builds a Provider. baseURL is optional, for OpenAI-compatible gateways.
func New(apiKey, baseURL string) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openaiprovider: missing api key")
	}
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &Provider{client: openai.NewClient(opts...)}, nil
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest, onEvent func(llm.StreamEvent)) (llm.CompletionResult, error) {
	if p == nil {
		return llm.CompletionResult{}, errors.New("openaiprovider: nil provider")
	}
	if strings.TrimSpace(req.Model) == "" {
		return llm.CompletionResult{}, agenterr.NewInvalidArgument("openaiprovider.StreamCompletion", "missing model")
	}

	params := responses.ResponseNewParams{
		Model:             shared.ResponsesModel(req.Model),
		MaxOutputTokens:   openai.Int(int64(defaultMaxOutputTokens)),
		ParallelToolCalls: openai.Bool(false),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if strings.TrimSpace(req.System) != "" {
		params.Instructions = openai.String(strings.TrimSpace(req.System))
	}
	if len(req.Schema) > 0 {
		params.Text = buildTextFormat(req.Schema)
	}

	input, err := buildInput(req.Messages)
	if err != nil {
		return llm.CompletionResult{}, err
	}
	if len(input) == 0 {
		input = append(input, responses.ResponseInputItemParamOfMessage("Continue.", responses.EasyInputMessageRoleUser))
	}
	params.Input = responses.ResponseNewParamsInputUnion{OfInputItemList: input}

	if tools := buildTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	stream := p.client.Responses.NewStreaming(ctx, params)
	var textBuf strings.Builder
	var completed responses.Response
	gotCompleted := false

	type partialCall struct {
		callID      string
		name        string
		outputIndex int64
		ended       bool
		argsRaw     strings.Builder
	}
	partials := map[string]*partialCall{}

	getPartial := func(itemID string) *partialCall {
		itemID = strings.TrimSpace(itemID)
		if itemID == "" {
			return nil
		}
		pc := partials[itemID]
		if pc == nil {
			pc = &partialCall{callID: itemID, outputIndex: -1}
			partials[itemID] = pc
		}
		return pc
	}

	emitEnd := func(pc *partialCall) {
		if pc == nil || pc.ended {
			return
		}
		pc.ended = true
		onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventToolCallEnd, ToolCall: &llm.PartialToolCall{
			ID: pc.callID, Name: pc.name, ArgumentsJSON: pc.argsRaw.String(),
		}})
	}

	for stream.Next() {
		event := stream.Current()
		switch strings.TrimSpace(event.Type) {
		case "response.output_text.delta":
			delta := event.Delta.OfString
			if delta == "" {
				continue
			}
			textBuf.WriteString(delta)
			onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventTextDelta, TextDelta: delta})

		case "response.output_item.added":
			item := event.Item
			if strings.TrimSpace(item.Type) != "function_call" {
				continue
			}
			pc := getPartial(item.ID)
			pc.outputIndex = event.OutputIndex
			if cid := strings.TrimSpace(item.CallID); cid != "" {
				pc.callID = cid
			}
			pc.name = strings.TrimSpace(item.Name)
			onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventToolCallStart, ToolCall: &llm.PartialToolCall{ID: pc.callID, Name: pc.name}})
			if raw := strings.TrimSpace(item.Arguments); raw != "" {
				pc.argsRaw.WriteString(raw)
			}

		case "response.function_call_arguments.delta":
			pc := getPartial(event.ItemID)
			if pc == nil || event.Delta.OfString == "" {
				continue
			}
			pc.argsRaw.WriteString(event.Delta.OfString)
			onStreamEvent(onEvent, llm.StreamEvent{Type: llm.EventToolCallDelta, ToolCall: &llm.PartialToolCall{ID: pc.callID, Name: pc.name, ArgumentsJSON: pc.argsRaw.String()}})

		case "response.function_call_arguments.done":
			pc := getPartial(event.ItemID)
			if raw := strings.TrimSpace(event.Arguments); raw != "" {
				pc.argsRaw.Reset()
				pc.argsRaw.WriteString(raw)
			}
			emitEnd(pc)

		case "response.output_item.done":
			item := event.Item
			if strings.TrimSpace(item.Type) != "function_call" {
				continue
			}
			pc := getPartial(item.ID)
			emitEnd(pc)

		case "response.completed":
			completed = event.Response
			gotCompleted = true
		}
	}
	if err := stream.Err(); err != nil {
		return llm.CompletionResult{}, agenterr.WrapProvider("openaiprovider.StreamCompletion", err)
	}
	if !gotCompleted {
		return llm.CompletionResult{}, agenterr.WrapProvider("openaiprovider.StreamCompletion", errors.New("missing response.completed event"))
	}

	result := llm.CompletionResult{
		FinishReason: mapStatus(completed.Status),
		Text:         strings.TrimSpace(textBuf.String()),
		Usage: llm.Usage{
			InputTokens:     completed.Usage.InputTokens,
			OutputTokens:    completed.Usage.OutputTokens,
			ReasoningTokens: completed.Usage.OutputTokensDetails.ReasoningTokens,
		},
	}

	type ordered struct {
		idx  int64
		call llm.ToolCallResult
	}
	var calls []ordered
	for _, pc := range partials {
		if !pc.ended || pc.callID == "" {
			continue
		}
		calls = append(calls, ordered{idx: pc.outputIndex, call: llm.ToolCallResult{ID: pc.callID, Name: pc.name, ArgumentsJSON: pc.argsRaw.String()}})
	}
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].idx < calls[j].idx })
	for _, c := range calls {
		result.ToolCalls = append(result.ToolCalls, c.call)
	}
	if len(result.ToolCalls) > 0 {
		result.FinishReason = "tool_calls"
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

// buildTextFormat constrains a response to a single schema-shaped JSON
// object via the Responses API's json_schema text format, the structured
// counterpart to the plain-text/json_object cases callers drive themselves.
func buildTextFormat(rawSchema json.RawMessage) responses.ResponseTextConfigParam {
	schema := map[string]any{}
	_ = json.Unmarshal(rawSchema, &schema)
	name, _ := schema["title"].(string)
	if strings.TrimSpace(name) == "" {
		name = "object_result"
	}
	return responses.ResponseTextConfigParam{
		Format: responses.ResponseFormatTextConfigUnionParam{
			OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
				Name:   name,
				Schema: schema,
				Strict: openai.Bool(true),
			},
		},
	}
}

func buildTools(defs []llm.ToolDef) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			continue
		}
		schema := map[string]any{}
		if len(def.InputSchema) > 0 {
			_ = json.Unmarshal(def.InputSchema, &schema)
		}
		out = append(out, responses.ToolParamOfFunction(def.Name, schema, true))
	}
	return out
}

func buildInput(msgs []llm.ProviderMessage) (responses.ResponseInputParam, error) {
	items := make(responses.ResponseInputParam, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "tool":
			if m.ToolCallID == "" {
				continue
			}
			output := strings.TrimSpace(string(m.ToolResult))
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(m.ToolCallID, output))
		case "assistant":
			if m.ToolCallID != "" {
				args := strings.TrimSpace(string(m.ToolArgs))
				if args == "" {
					args = "{}"
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(args, m.ToolCallID, m.ToolName))
				continue
			}
			if strings.TrimSpace(m.Text) == "" {
				continue
			}
			content := responses.ResponseOutputMessageContentUnionParam{
				OfOutputText: &responses.ResponseOutputTextParam{Text: m.Text, Annotations: []responses.ResponseOutputTextAnnotationUnionParam{}},
			}
			items = append(items, responses.ResponseInputItemParamOfOutputMessage(
				[]responses.ResponseOutputMessageContentUnionParam{content}, fmt.Sprintf("msg_hist%d", len(items)+1), responses.ResponseOutputMessageStatusCompleted))
		default: // user, unspecified roles go in as plain user turns
			if strings.TrimSpace(m.Text) == "" {
				continue
			}
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Text, responses.EasyInputMessageRoleUser))
		}
	}
	return items, nil
}

func mapStatus(status responses.ResponseStatus) string {
	switch strings.ToLower(strings.TrimSpace(string(status))) {
	case "completed":
		return "stop"
	case "incomplete":
		return "length"
	case "failed", "cancelled":
		return "error"
	default:
		return "unknown"
	}
}

// EmbedBatch, Dimension, and ModelID implement embedding.Model, letting this
// Provider double as the embedding backend for an OpenAI-configured agent.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p == nil {
		return nil, errors.New("openaiprovider: nil provider")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: EmbeddingModelID,
	})
	if err != nil {
		return nil, agenterr.WrapProvider("openaiprovider.EmbedBatch", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *Provider) Dimension() int { return embeddingDimension }

func (p *Provider) ModelID() string { return EmbeddingModelID }
