package llm

import (
	"context"
	"encoding/json"
	"testing"
)

type plainProvider struct{}

func (plainProvider) StreamCompletion(ctx context.Context, req CompletionRequest, onEvent func(StreamEvent)) (CompletionResult, error) {
	return CompletionResult{}, nil
}

type embeddingProvider struct {
	plainProvider
}

func (embeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (embeddingProvider) Dimension() int  { return 1536 }
func (embeddingProvider) ModelID() string { return "fake-embed" }

func TestAsEmbeddingModelNilForPlainProvider(t *testing.T) {
	if m := AsEmbeddingModel(plainProvider{}); m != nil {
		t.Fatalf("expected nil embedding model for a provider without embeddings, got %+v", m)
	}
}

func TestAsEmbeddingModelPresentForEmbeddingProvider(t *testing.T) {
	m := AsEmbeddingModel(embeddingProvider{})
	if m == nil {
		t.Fatal("expected a non-nil embedding model")
	}
	if m.ModelID() != "fake-embed" || m.Dimension() != 1536 {
		t.Fatalf("unexpected embedding model: %+v", m)
	}
}

func TestStreamEventMarshalJSONTextDelta(t *testing.T) {
	b, err := json.Marshal(StreamEvent{Type: EventTextDelta, TextDelta: "hi"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["type"] != string(EventTextDelta) || out["textDelta"] != "hi" {
		t.Fatalf("unexpected wire event: %s", b)
	}
	if _, ok := out["toolCall"]; ok {
		t.Fatalf("expected no toolCall field for a text delta, got %s", b)
	}
}

func TestStreamEventMarshalJSONToolCall(t *testing.T) {
	ev := StreamEvent{
		Type:     EventToolCallEnd,
		ToolCall: &PartialToolCall{ID: "c1", Name: "lookup", ArgumentsJSON: `{"q":"x"}`},
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		Type     string `json:"type"`
		ToolCall struct {
			ID            string          `json:"id"`
			Name          string          `json:"name"`
			ArgumentsJSON json.RawMessage `json:"argumentsJson"`
		} `json:"toolCall"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ToolCall.ID != "c1" || out.ToolCall.Name != "lookup" || string(out.ToolCall.ArgumentsJSON) != `{"q":"x"}` {
		t.Fatalf("unexpected wire event: %s", b)
	}
}

func TestStreamEventMarshalJSONUsage(t *testing.T) {
	ev := StreamEvent{Type: EventUsage, Usage: &Usage{InputTokens: 1, OutputTokens: 2, ReasoningTokens: 3}}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		Usage struct {
			InputTokens     int64 `json:"inputTokens"`
			OutputTokens    int64 `json:"outputTokens"`
			ReasoningTokens int64 `json:"reasoningTokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Usage.InputTokens != 1 || out.Usage.OutputTokens != 2 || out.Usage.ReasoningTokens != 3 {
		t.Fatalf("unexpected wire event: %s", b)
	}
}
