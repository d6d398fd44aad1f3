package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/redeven/agentcore/internal/embedding"
	"github.com/redeven/agentcore/internal/messages"
	"github.com/redeven/agentcore/internal/store"
)

func userMsg(text string) messages.CoreMessage {
	return messages.CoreMessage{Role: messages.RoleUser, Content: []messages.Part{{Type: messages.PartText, Text: text}}}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("   "); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestCreateThreadAndAddMessages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	th, err := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1", Title: "hello"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.ID == "" {
		t.Fatal("expected generated thread id")
	}

	res, err := s.AddMessages(ctx, store.AddMessagesInput{
		ThreadID: th.ID,
		UserID:   "u1",
		Messages: []messages.CoreMessage{userMsg("hi there")},
	})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}
	if len(res.MessageIDs) != 1 {
		t.Fatalf("expected 1 message id, got %d", len(res.MessageIDs))
	}

	page, err := s.ListMessagesByThreadID(ctx, store.ListMessagesInput{ThreadID: th.ID})
	if err != nil {
		t.Fatalf("ListMessagesByThreadID: %v", err)
	}
	if len(page.Page) != 1 || page.Page[0].Message.Text() != "hi there" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if !page.IsDone {
		t.Fatal("expected IsDone for a single-page result")
	}
}

func TestOrderingAcrossPromptsAndSteps(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	r1, err := s.AddMessages(ctx, store.AddMessagesInput{ThreadID: th.ID, Messages: []messages.CoreMessage{userMsg("first")}})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}
	promptID := r1.LastMessageID

	assistant := messages.CoreMessage{Role: messages.RoleAssistant, Content: []messages.Part{{Type: messages.PartText, Text: "reply"}}}
	if err := s.AddStep(ctx, store.AddStepInput{
		ThreadID:        th.ID,
		PromptMessageID: promptID,
		Step:            store.StepRecord{NewMessages: []messages.CoreMessage{assistant}},
	}); err != nil {
		t.Fatalf("AddStep: %v", err)
	}

	r2, err := s.AddMessages(ctx, store.AddMessagesInput{ThreadID: th.ID, Messages: []messages.CoreMessage{userMsg("second")}})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}

	page, err := s.ListMessagesByThreadID(ctx, store.ListMessagesInput{ThreadID: th.ID})
	if err != nil {
		t.Fatalf("ListMessagesByThreadID: %v", err)
	}
	if len(page.Page) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(page.Page))
	}
	if page.Page[1].Order != page.Page[0].Order {
		t.Fatalf("step reply should share order with its prompt")
	}
	if page.Page[1].StepOrder <= page.Page[0].StepOrder {
		t.Fatalf("step reply should have a higher StepOrder than its prompt")
	}
	if page.Page[2].ID != r2.LastMessageID {
		t.Fatalf("expected second prompt last in order")
	}
	if page.Page[2].Order <= page.Page[1].Order {
		t.Fatalf("second prompt should get a new, larger order group")
	}
}

func TestFailPendingStepsSupersedesOlderPending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	r1, err := s.AddMessages(ctx, store.AddMessagesInput{
		ThreadID: th.ID,
		Messages: []messages.CoreMessage{userMsg("abandoned")},
		Pending:  true,
	})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}

	if _, err := s.AddMessages(ctx, store.AddMessagesInput{
		ThreadID:         th.ID,
		Messages:         []messages.CoreMessage{userMsg("retry")},
		Pending:          true,
		FailPendingSteps: true,
	}); err != nil {
		t.Fatalf("AddMessages: %v", err)
	}

	page, err := s.ListMessagesByThreadID(ctx, store.ListMessagesInput{ThreadID: th.ID})
	if err != nil {
		t.Fatalf("ListMessagesByThreadID: %v", err)
	}
	var abandoned store.MessageDoc
	for _, m := range page.Page {
		if m.ID == r1.LastMessageID {
			abandoned = m
		}
	}
	if abandoned.Status != store.StatusFailed {
		t.Fatalf("expected abandoned pending message to be failed, got %s", abandoned.Status)
	}
}

func TestCommitAndRollbackMessage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	res, err := s.AddMessages(ctx, store.AddMessagesInput{
		ThreadID: th.ID,
		Messages: []messages.CoreMessage{userMsg("x"), userMsg("y")},
		Pending:  true,
	})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}

	if err := s.CommitMessage(ctx, res.MessageIDs[0]); err != nil {
		t.Fatalf("CommitMessage: %v", err)
	}
	if err := s.RollbackMessage(ctx, res.MessageIDs[1], "provider timed out"); err != nil {
		t.Fatalf("RollbackMessage: %v", err)
	}

	page, err := s.ListMessagesByThreadID(ctx, store.ListMessagesInput{ThreadID: th.ID})
	if err != nil {
		t.Fatalf("ListMessagesByThreadID: %v", err)
	}
	byID := map[string]store.MessageDoc{}
	for _, m := range page.Page {
		byID[m.ID] = m
	}
	if byID[res.MessageIDs[0]].Status != store.StatusSuccess {
		t.Fatalf("expected committed message to be success")
	}
	if byID[res.MessageIDs[1]].Status != store.StatusFailed {
		t.Fatalf("expected rolled-back message to be failed")
	}
	if byID[res.MessageIDs[1]].Error != "provider timed out" {
		t.Fatalf("expected rollback error to be recorded")
	}
}

func TestRollbackIsNoOpWhenNotPending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	res, err := s.AddMessages(ctx, store.AddMessagesInput{ThreadID: th.ID, Messages: []messages.CoreMessage{userMsg("x")}})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}
	if err := s.RollbackMessage(ctx, res.MessageIDs[0], "too late"); err != nil {
		t.Fatalf("RollbackMessage: %v", err)
	}

	page, err := s.ListMessagesByThreadID(ctx, store.ListMessagesInput{ThreadID: th.ID})
	if err != nil {
		t.Fatalf("ListMessagesByThreadID: %v", err)
	}
	if page.Page[0].Status != store.StatusSuccess {
		t.Fatalf("expected rollback to be a no-op on a message that was never pending, got %s", page.Page[0].Status)
	}
}

func TestExcludeToolMessages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	toolMsg := messages.CoreMessage{Role: messages.RoleTool, Content: []messages.Part{{Type: messages.PartToolResult, ToolCallID: "c1", Result: []byte("42")}}}
	if _, err := s.AddMessages(ctx, store.AddMessagesInput{ThreadID: th.ID, Messages: []messages.CoreMessage{userMsg("q"), toolMsg}}); err != nil {
		t.Fatalf("AddMessages: %v", err)
	}

	page, err := s.ListMessagesByThreadID(ctx, store.ListMessagesInput{ThreadID: th.ID, ExcludeToolMessages: true})
	if err != nil {
		t.Fatalf("ListMessagesByThreadID: %v", err)
	}
	if len(page.Page) != 1 {
		t.Fatalf("expected tool message to be excluded, got %d messages", len(page.Page))
	}
}

func TestListMessagesUpToAndIncludingMessageID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	r1, err := s.AddMessages(ctx, store.AddMessagesInput{ThreadID: th.ID, Messages: []messages.CoreMessage{userMsg("first")}})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}
	if _, err := s.AddMessages(ctx, store.AddMessagesInput{ThreadID: th.ID, Messages: []messages.CoreMessage{userMsg("second")}}); err != nil {
		t.Fatalf("AddMessages: %v", err)
	}

	page, err := s.ListMessagesByThreadID(ctx, store.ListMessagesInput{ThreadID: th.ID, UpToAndIncludingMessageID: r1.LastMessageID})
	if err != nil {
		t.Fatalf("ListMessagesByThreadID: %v", err)
	}
	if len(page.Page) != 1 || page.Page[0].ID != r1.LastMessageID {
		t.Fatalf("expected cutoff to exclude the later prompt, got %+v", page.Page)
	}
}

func TestSearchMessagesRequiresTextOrVector(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	_, err := s.SearchMessages(ctx, store.SearchMessagesInput{ThreadID: th.ID})
	if err == nil {
		t.Fatal("expected error for empty search query")
	}
}

func TestSearchMessagesTextAndVector(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	res, err := s.AddMessages(ctx, store.AddMessagesInput{
		ThreadID: th.ID,
		Messages: []messages.CoreMessage{userMsg("the quick brown fox"), userMsg("completely unrelated")},
		Embeddings: &embedding.Embedding{
			Vectors:   [][]float32{{1, 0, 0}, {0, 1, 0}},
			Dimension: 3,
			Model:     "test-embed",
		},
	})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}

	hits, err := s.SearchMessages(ctx, store.SearchMessagesInput{
		ThreadID:   th.ID,
		Text:       "quick brown",
		TextSearch: true,
		Limit:      5,
	})
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != res.MessageIDs[0] {
		t.Fatalf("expected text search to find only the fox message, got %+v", hits)
	}

	vecHits, err := s.SearchMessages(ctx, store.SearchMessagesInput{
		ThreadID:     th.ID,
		Vector:       []float32{1, 0, 0},
		VectorSearch: true,
		Limit:        5,
	})
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(vecHits) == 0 || vecHits[0].ID != res.MessageIDs[0] {
		t.Fatalf("expected vector search to rank the matching vector first, got %+v", vecHits)
	}
}

func TestSearchMessagesExpandsMessageRange(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	res, err := s.AddMessages(ctx, store.AddMessagesInput{
		ThreadID: th.ID,
		Messages: []messages.CoreMessage{userMsg("before"), userMsg("the quick brown fox"), userMsg("after")},
	})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}

	hits, err := s.SearchMessages(ctx, store.SearchMessagesInput{
		ThreadID:     th.ID,
		Text:         "quick brown",
		TextSearch:   true,
		MessageRange: store.MessageRange{Before: 1, After: 1},
		Limit:        5,
	})
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected the match plus one message on either side, got %d: %+v", len(hits), hits)
	}
	if hits[0].ID != res.MessageIDs[0] || hits[2].ID != res.MessageIDs[2] {
		t.Fatalf("expected the window to be ordered around the match, got %+v", hits)
	}
}

func TestFailStalePending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	th, _ := s.CreateThread(ctx, store.CreateThreadInput{UserID: "u1"})

	res, err := s.AddMessages(ctx, store.AddMessagesInput{ThreadID: th.ID, Messages: []messages.CoreMessage{userMsg("stuck")}, Pending: true})
	if err != nil {
		t.Fatalf("AddMessages: %v", err)
	}

	future := time.Now().Add(time.Minute)
	n, err := s.FailStalePending(ctx, th.ID, future)
	if err != nil {
		t.Fatalf("FailStalePending: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 message failed, got %d", n)
	}

	page, err := s.ListMessagesByThreadID(ctx, store.ListMessagesInput{ThreadID: th.ID})
	if err != nil {
		t.Fatalf("ListMessagesByThreadID: %v", err)
	}
	if page.Page[0].ID != res.MessageIDs[0] || page.Page[0].Status != store.StatusFailed {
		t.Fatalf("expected stale pending message to be failed: %+v", page.Page[0])
	}
}
