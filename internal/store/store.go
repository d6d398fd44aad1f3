// Package store defines the storage backend contract: the mutations and
// queries the orchestration core needs from a linearizable, key-indexed
// message store. It intentionally says nothing about physical layout — two
// implementations live alongside it, internal/store/memstore (in-memory,
// used by tests) and internal/store/sqlitestore (durable, SQLite-backed).
package store

import (
	"context"
	"time"

	"github.com/redeven/agentcore/internal/embedding"
	"github.com/redeven/agentcore/internal/messages"
)

// Status is the lifecycle state of a MessageDoc.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Thread is the durable record created by CreateThread; the core never
// deletes it.
type Thread struct {
	ID        string
	UserID    string
	Title     string
	Summary   string
	CreatedAt time.Time
}

// MessageDoc is the durable record of one CoreMessage within a thread. Order
// groups all messages belonging to a single prompt->response transaction;
// StepOrder orders messages within that group. Together (Order, StepOrder)
// form the thread's strict total order.
type MessageDoc struct {
	ID        string
	ThreadID  string
	UserID    string
	AgentName string
	Order     int64
	StepOrder int64
	Status    Status
	Message   messages.CoreMessage
	Tool      bool
	// Provider and Model attribute a message produced by AddStep to the
	// adapter/model that generated it; empty for user/system messages written
	// through AddMessages, which have no provider of their own.
	Provider    string
	Model       string
	EmbeddingID string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateThreadInput is the argument record for CreateThread.
type CreateThreadInput struct {
	UserID  string
	Title   string
	Summary string
}

// PaginationOpts bounds a ListMessagesByThreadId call. Cursor is opaque and
// returned from a previous call's Page; a zero value starts from the
// beginning (or end, depending on Order).
type PaginationOpts struct {
	NumItems int
	Cursor   string
}

// ListMessagesInput is the argument record for ListMessagesByThreadId.
type ListMessagesInput struct {
	ThreadID                 string
	ExcludeToolMessages      bool
	Pagination               PaginationOpts
	UpToAndIncludingMessageID string
	Order                    string // "asc" | "desc"
	Statuses                 []Status
}

// ListMessagesPage is the result of ListMessagesByThreadId.
type ListMessagesPage struct {
	Page           []MessageDoc
	ContinueCursor string
	IsDone         bool
}

// MessageRange widens a search hit window: Before/After messages around each
// hit are also included in the result, applied after Limit (so result count
// may grow well past Limit).
type MessageRange struct {
	Before int
	After  int
}

// SearchMessagesInput is the argument record for SearchMessages. Vector is
// nil when only text search is requested.
type SearchMessagesInput struct {
	UserID          string
	ThreadID        string
	BeforeMessageID string
	Text            string
	Limit           int
	MessageRange    MessageRange
	Vector          []float32
	VectorModel     string
	TextSearch      bool
	VectorSearch    bool
	// SearchOtherThreads scans every thread owned by UserID instead of just
	// ThreadID. Requires action-scope capability; enforced by the caller
	// (internal/contextretrieval), not by the store.
	SearchOtherThreads bool
}

// AddMessagesInput is the argument record for AddMessages.
type AddMessagesInput struct {
	ThreadID         string
	UserID           string
	AgentName        string
	PromptMessageID  string
	Embeddings       *embedding.Embedding
	Messages         []messages.CoreMessage
	Pending          bool
	FailPendingSteps bool
}

// AddMessagesResult is the result of AddMessages.
type AddMessagesResult struct {
	LastMessageID string
	MessageIDs    []string
}

// StepRecord groups a serialized provider step with the new messages it
// produced and their embeddings, persisted as a single mutation.
type StepRecord struct {
	Step         messages.Step
	NewMessages  []messages.CoreMessage
	Embeddings   *embedding.Embedding
}

// AddStepInput is the argument record for AddStep.
type AddStepInput struct {
	ThreadID        string
	UserID          string
	PromptMessageID string
	Step            StepRecord
	Model           string
	Provider        string
}

// Backend is the storage contract every mutation/query the orchestration
// core needs boils down to. Every method is a single mutation or query from
// the host's perspective; partial failure must leave the thread in a legal
// state.
type Backend interface {
	CreateThread(ctx context.Context, in CreateThreadInput) (Thread, error)
	ListMessagesByThreadID(ctx context.Context, in ListMessagesInput) (ListMessagesPage, error)
	SearchMessages(ctx context.Context, in SearchMessagesInput) ([]MessageDoc, error)
	AddMessages(ctx context.Context, in AddMessagesInput) (AddMessagesResult, error)
	AddStep(ctx context.Context, in AddStepInput) error
	CommitMessage(ctx context.Context, messageID string) error
	RollbackMessage(ctx context.Context, messageID string, errMsg string) error

	// FailStalePending is a supplemental maintenance operation that lets a
	// host proactively fail pending prompts abandoned before the next
	// generation call would have swept them via FailPendingSteps=true.
	FailStalePending(ctx context.Context, threadID string, before time.Time) (int, error)
}
