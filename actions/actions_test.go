package actions

import (
	"context"
	"testing"

	"github.com/redeven/agentcore/agent"
	"github.com/redeven/agentcore/internal/contextretrieval"
	"github.com/redeven/agentcore/internal/llm"
	"github.com/redeven/agentcore/internal/messages"
	"github.com/redeven/agentcore/internal/store"
	"github.com/redeven/agentcore/internal/store/memstore"
)

type fakeProvider struct {
	text string
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest, onEvent func(llm.StreamEvent)) (llm.CompletionResult, error) {
	return llm.CompletionResult{Text: f.text, FinishReason: "stop"}, nil
}

func newTestAgent(t *testing.T, text string) (*agent.Agent, store.Backend) {
	t.Helper()
	backend := memstore.New()
	retriever := contextretrieval.New(backend, nil)
	a := agent.New(agent.Agent{
		Name:         "test-agent",
		ProviderName: "fake",
		Chat:         &fakeProvider{text: text},
		ChatModel:    "fake-model",
		Backend:      backend,
		Retriever:    retriever,
	})
	return a, backend
}

func TestCreateThreadMutation(t *testing.T) {
	backend := memstore.New()
	create := CreateThreadMutation(backend)

	th, err := create(context.Background(), CreateThreadArgs{UserID: "u1", Title: "hi"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if th.ID == "" || th.UserID != "u1" || th.Title != "hi" {
		t.Fatalf("unexpected thread: %+v", th)
	}
}

func TestSaveMessagesMutation(t *testing.T) {
	backend := memstore.New()
	th, err := backend.CreateThread(context.Background(), store.CreateThreadInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	save := SaveMessagesMutation(backend)
	res, err := save(context.Background(), SaveMessagesArgs{
		ThreadID: th.ID,
		UserID:   "u1",
		Messages: []messages.CoreMessage{{Role: messages.RoleUser, Content: []messages.Part{{Type: messages.PartText, Text: "hi"}}}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(res.MessageIDs) != 1 {
		t.Fatalf("expected 1 saved message id, got %d", len(res.MessageIDs))
	}
}

func TestAsTextAction(t *testing.T) {
	a, backend := newTestAgent(t, "hello from action")
	th, err := backend.CreateThread(context.Background(), store.CreateThreadInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	action := AsTextAction(a, TextActionOverrides{})
	text, err := action(context.Background(), TextActionArgs{UserID: "u1", ThreadID: th.ID, Prompt: "hi"})
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if text != "hello from action" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestAsTextActionAppliesSaveOverrides(t *testing.T) {
	a, backend := newTestAgent(t, "ok")
	th, err := backend.CreateThread(context.Background(), store.CreateThreadInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	saveOutput := false
	action := AsTextAction(a, TextActionOverrides{
		SaveOptions: &TextActionSaveOptions{SaveOutputMessages: &saveOutput},
	})
	if _, err := action(context.Background(), TextActionArgs{UserID: "u1", ThreadID: th.ID, Prompt: "hi"}); err != nil {
		t.Fatalf("action: %v", err)
	}

	page, err := backend.ListMessagesByThreadID(context.Background(), store.ListMessagesInput{ThreadID: th.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, m := range page.Page {
		if m.Message.Role == messages.RoleAssistant {
			t.Fatalf("expected no assistant output to be saved when SaveOutputMessages is false, found %+v", m)
		}
	}
}

func TestAsObjectAction(t *testing.T) {
	a, backend := newTestAgent(t, `{"ok":true}`)
	th, err := backend.CreateThread(context.Background(), store.CreateThreadInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}

	action := AsObjectAction(a, TextActionOverrides{})
	result, err := action(context.Background(), TextActionArgs{UserID: "u1", ThreadID: th.ID, Prompt: "give me json"})
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if string(result.Object) != `{"ok":true}` {
		t.Fatalf("unexpected object: %s", result.Object)
	}
}
