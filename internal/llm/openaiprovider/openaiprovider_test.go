package openaiprovider

import (
	"testing"

	"github.com/openai/openai-go/responses"

	"github.com/redeven/agentcore/internal/llm"
)

func TestNewRejectsEmptyAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected an error for an empty api key")
	}
}

func TestNewAcceptsAPIKey(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a non-nil provider")
	}
	if p.Dimension() != embeddingDimension || p.ModelID() != EmbeddingModelID {
		t.Fatalf("unexpected embedding identity: dim=%d model=%s", p.Dimension(), p.ModelID())
	}
}

func TestBuildInputSkipsEmptyText(t *testing.T) {
	items, err := buildInput([]llm.ProviderMessage{
		{Role: "user", Text: ""},
		{Role: "user", Text: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected exactly one item, got %d", len(items))
	}
}

func TestBuildInputToolCallAndResult(t *testing.T) {
	items, err := buildInput([]llm.ProviderMessage{
		{Role: "assistant", ToolCallID: "c1", ToolName: "lookup", ToolArgs: []byte(`{"q":"x"}`)},
		{Role: "tool", ToolCallID: "c1", ToolResult: []byte(`{"ok":true}`)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected a function-call item and a function-call-output item, got %d", len(items))
	}
}

func TestBuildInputToolWithoutCallIDDropped(t *testing.T) {
	items, err := buildInput([]llm.ProviderMessage{{Role: "tool", ToolResult: []byte(`{}`)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected a tool message with no call id to be dropped, got %d items", len(items))
	}
}

func TestBuildToolsSkipsUnnamed(t *testing.T) {
	tools := buildTools([]llm.ToolDef{
		{Name: "", InputSchema: nil},
		{Name: "lookup", InputSchema: []byte(`{"type":"object"}`)},
	})
	if len(tools) != 1 {
		t.Fatalf("expected exactly one tool, got %d", len(tools))
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[responses.ResponseStatus]string{
		"completed":  "stop",
		"incomplete": "length",
		"failed":     "error",
		"cancelled":  "error",
		"in_progress": "unknown",
	}
	for in, want := range cases {
		if got := mapStatus(in); got != want {
			t.Errorf("mapStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
