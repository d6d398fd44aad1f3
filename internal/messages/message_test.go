package messages

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCoreMessageText(t *testing.T) {
	m := CoreMessage{Role: RoleAssistant, Content: []Part{
		{Type: PartReasoning, Reasoning: "thinking"},
		{Type: PartText, Text: "hello "},
		{Type: PartText, Text: "world"},
	}}
	if got := m.Text(); got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestCoreMessageTextToolIsEmpty(t *testing.T) {
	m := CoreMessage{Role: RoleTool, Content: []Part{{Type: PartToolResult, Result: []byte(`{}`)}}}
	if got := m.Text(); got != "" {
		t.Fatalf("expected empty text for a tool message, got %q", got)
	}
}

func TestIsTool(t *testing.T) {
	cases := []struct {
		name string
		m    CoreMessage
		want bool
	}{
		{"tool role", CoreMessage{Role: RoleTool}, true},
		{"assistant with tool call", CoreMessage{Role: RoleAssistant, Content: []Part{{Type: PartToolCall, ToolCallID: "c1"}}}, true},
		{"assistant text only", CoreMessage{Role: RoleAssistant, Content: []Part{{Type: PartText, Text: "hi"}}}, false},
		{"user", CoreMessage{Role: RoleUser, Content: []Part{{Type: PartText, Text: "hi"}}}, false},
	}
	for _, c := range cases {
		if got := c.m.IsTool(); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestToolCallAndResultIDs(t *testing.T) {
	m := CoreMessage{Role: RoleAssistant, Content: []Part{
		{Type: PartToolCall, ToolCallID: "c1"},
		{Type: PartText, Text: "ignored"},
		{Type: PartToolCall, ToolCallID: "c2"},
	}}
	ids := m.ToolCallIDs()
	if len(ids) != 2 || ids[0] != "c1" || ids[1] != "c2" {
		t.Fatalf("unexpected call ids: %v", ids)
	}

	result := CoreMessage{Role: RoleTool, Content: []Part{{Type: PartToolResult, ToolCallID: "c1"}}}
	resultIDs := result.ToolResultIDs()
	if len(resultIDs) != 1 || resultIDs[0] != "c1" {
		t.Fatalf("unexpected result ids: %v", resultIDs)
	}
}

func TestPromptOrMessagesToCoreMessagesPrompt(t *testing.T) {
	got, err := PromptOrMessagesToCoreMessages(PromptInput{Prompt: "hi there"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Role != RoleUser || got[0].Text() != "hi there" {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

func TestPromptOrMessagesToCoreMessagesMessages(t *testing.T) {
	in := []CoreMessage{{Role: RoleUser, Content: []Part{{Type: PartText, Text: "a"}}}}
	got, err := PromptOrMessagesToCoreMessages(PromptInput{Messages: in})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	// Mutating the return value must not alias the caller's slice.
	got[0].Content[0].Text = "mutated"
	if in[0].Content[0].Text != "a" {
		t.Fatal("PromptOrMessagesToCoreMessages must not alias the input slice")
	}
}

func TestPromptOrMessagesToCoreMessagesConflict(t *testing.T) {
	_, err := PromptOrMessagesToCoreMessages(PromptInput{
		Prompt:   "hi",
		Messages: []CoreMessage{{Role: RoleUser}},
	})
	if !errors.Is(err, ErrConflictingInput) {
		t.Fatalf("expected ErrConflictingInput, got %v", err)
	}
}

func TestPromptOrMessagesToCoreMessagesEmpty(t *testing.T) {
	got, err := PromptOrMessagesToCoreMessages(PromptInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %+v", got)
	}
}

func TestSerializeDeserializeMessageRoundTrip(t *testing.T) {
	m := CoreMessage{Role: RoleAssistant, Content: []Part{
		{Type: PartText, Text: "hi"},
		{Type: PartToolCall, ToolCallID: "c1", ToolName: "lookup", Args: json.RawMessage(`{"q":"x"}`)},
	}}
	wire, err := SerializeMessage(m)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := DeserializeMessage(wire)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.Role != m.Role || len(got.Content) != len(m.Content) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, m)
	}
}

func TestDeserializeMessageMissingRole(t *testing.T) {
	_, err := DeserializeMessage([]byte(`{"content":[]}`))
	if err == nil {
		t.Fatal("expected an error for a missing role")
	}
}
