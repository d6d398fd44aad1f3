// Package llm defines the provider-neutral chat-completion contract the
// orchestrator drives: a request in, a stream of typed events out, mirroring
// the shape of the storage backend contract in internal/store. Concrete
// adapters live in internal/llm/openaiprovider and
// internal/llm/anthropicprovider.
package llm

import (
	"context"
	"encoding/json"

	"github.com/tidwall/sjson"

	"github.com/redeven/agentcore/internal/embedding"
)

// ToolDef is a tool exposed to the provider for the duration of one call.
type ToolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// EventType is the normalized kind of one StreamEvent.
type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventReasoningDelta EventType = "reasoning_delta"
	EventToolCallStart  EventType = "tool_call_start"
	EventToolCallDelta  EventType = "tool_call_delta"
	EventToolCallEnd    EventType = "tool_call_end"
	EventUsage          EventType = "usage"
	EventFinish         EventType = "finish"
)

// PartialToolCall accumulates across EventToolCallStart/Delta/End events; by
// EventToolCallEnd, ArgumentsJSON is the complete argument payload.
type PartialToolCall struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// Usage is per-step token accounting, reused verbatim as the orchestrator's
// UsageEvent payload.
type Usage struct {
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
}

// StreamEvent is one unit emitted while a completion streams.
type StreamEvent struct {
	Type         EventType
	TextDelta    string
	ToolCall     *PartialToolCall
	Usage        *Usage
	FinishReason string
}

// MarshalJSON renders a StreamEvent as a discriminated-union wire event, one
// field at a time via sjson, the way casualjim-bubo's provider/stream_event.go
// builds its own streaming envelopes. Lets a host forward chunks over SSE or
// a websocket without round-tripping through a second struct.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	b := []byte(`{}`)
	var err error
	if b, err = sjson.SetBytes(b, "type", string(e.Type)); err != nil {
		return nil, err
	}
	if e.TextDelta != "" {
		if b, err = sjson.SetBytes(b, "textDelta", e.TextDelta); err != nil {
			return nil, err
		}
	}
	if e.ToolCall != nil {
		if b, err = sjson.SetBytes(b, "toolCall.id", e.ToolCall.ID); err != nil {
			return nil, err
		}
		if b, err = sjson.SetBytes(b, "toolCall.name", e.ToolCall.Name); err != nil {
			return nil, err
		}
		if e.ToolCall.ArgumentsJSON != "" {
			if b, err = sjson.SetRawBytes(b, "toolCall.argumentsJson", []byte(e.ToolCall.ArgumentsJSON)); err != nil {
				return nil, err
			}
		}
	}
	if e.Usage != nil {
		if b, err = sjson.SetBytes(b, "usage.inputTokens", e.Usage.InputTokens); err != nil {
			return nil, err
		}
		if b, err = sjson.SetBytes(b, "usage.outputTokens", e.Usage.OutputTokens); err != nil {
			return nil, err
		}
		if b, err = sjson.SetBytes(b, "usage.reasoningTokens", e.Usage.ReasoningTokens); err != nil {
			return nil, err
		}
	}
	if e.FinishReason != "" {
		if b, err = sjson.SetBytes(b, "finishReason", e.FinishReason); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ProviderMessage is one entry of the wire-level conversation sent to the
// provider. Built from messages.CoreMessage by each adapter, since OpenAI and
// Anthropic disagree on how tool calls/results are framed on the wire.
type ProviderMessage struct {
	Role       string
	Text       string
	ToolCallID string
	ToolName   string
	ToolArgs   json.RawMessage
	ToolResult json.RawMessage
}

// CompletionRequest is the argument record for StreamCompletion.
type CompletionRequest struct {
	Model           string
	System          string
	Messages        []ProviderMessage
	Tools           []ToolDef
	MaxOutputTokens int
	Temperature     *float64
	MaxSteps        int
	// MaxRetries is advisory: the orchestrator does not implement its own
	// retry loop. Adapters that support provider-side retries may use it;
	// neither bundled adapter currently does.
	MaxRetries int
	// Schema, when non-empty, constrains the completion to a single
	// schema-shaped JSON response instead of free-form text or tool calls.
	// OpenAI wires this into the Responses API's json_schema text format;
	// Anthropic, which has no such format, forces a single synthetic tool
	// call whose arguments are the schema-shaped object and surfaces its
	// arguments back through CompletionResult.Text so callers never need to
	// know which path produced it.
	Schema json.RawMessage
}

// ToolCallResult is one completed tool call as returned to the caller once a
// completion finishes.
type ToolCallResult struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// CompletionResult is the outcome of one StreamCompletion call.
type CompletionResult struct {
	Text         string
	Reasoning    string
	ToolCalls    []ToolCallResult
	FinishReason string
	Usage        Usage
}

// Provider is the normalized runtime adapter contract every supported LLM
// backend implements.
type Provider interface {
	StreamCompletion(ctx context.Context, req CompletionRequest, onEvent func(StreamEvent)) (CompletionResult, error)
}

// AsEmbeddingModel returns p's embedding capability if it has one. A provider
// implements embedding.Model by exposing EmbedBatch/Dimension/ModelID
// directly; Anthropic does not, so this returns nil for it and
// embedding.Generate degrades gracefully by skipping embedding entirely.
func AsEmbeddingModel(p Provider) embedding.Model {
	if m, ok := p.(embedding.Model); ok {
		return m
	}
	return nil
}
