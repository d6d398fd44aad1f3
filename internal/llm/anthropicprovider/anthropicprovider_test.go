package anthropicprovider

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

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
}

func TestBuildMessagesFallsBackWhenEmpty(t *testing.T) {
	out := buildMessages(nil)
	if len(out) != 1 {
		t.Fatalf("expected a single fallback continue message, got %d", len(out))
	}
}

func TestBuildMessagesToolCallAndResult(t *testing.T) {
	out := buildMessages([]llm.ProviderMessage{
		{Role: "assistant", ToolCallID: "c1", ToolName: "lookup", ToolArgs: []byte(`{"q":"x"}`)},
		{Role: "tool", ToolCallID: "c1", ToolResult: []byte(`{"ok":true}`)},
	})
	if len(out) != 2 {
		t.Fatalf("expected a tool-use message and a tool-result message, got %d", len(out))
	}
}

func TestBuildMessagesToolWithoutCallIDDropped(t *testing.T) {
	out := buildMessages([]llm.ProviderMessage{{Role: "tool", ToolResult: []byte(`{}`)}})
	if len(out) != 1 {
		t.Fatalf("expected the dropped tool message to fall back to the continue message, got %d", len(out))
	}
}

func TestBuildToolsExtractsSchema(t *testing.T) {
	tools := buildTools([]llm.ToolDef{
		{Name: "lookup", Description: "look things up", InputSchema: []byte(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)},
	})
	if len(tools) != 1 {
		t.Fatalf("expected exactly one tool, got %d", len(tools))
	}
	tool := tools[0].OfTool
	if tool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "q" {
		t.Fatalf("expected required field q to be carried through, got %+v", tool.InputSchema.Required)
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[anthropic.StopReason]string{
		"tool_use":      "tool_calls",
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"max_tokens":    "length",
		"refusal":       "content_filter",
		"pause_turn":    "unknown",
	}
	for in, want := range cases {
		if got := mapStopReason(in); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}
