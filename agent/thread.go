package agent

import (
	"context"

	"github.com/redeven/agentcore/internal/llm"
)

// Thread is the Thread Facade (C7): a value that pins userId/threadId so
// callers working against one conversation don't repeat them on every call.
// It holds no other state or cache — every call still goes through the full
// preamble/invocation/postamble cycle on the underlying Agent.
type Thread struct {
	agent    *Agent
	userID   string
	threadID string
}

// NewThread returns a Thread pinned to userID/threadID against agent.
func (a *Agent) NewThread(userID, threadID string) Thread {
	return Thread{agent: a, userID: userID, threadID: threadID}
}

// ThreadID returns the thread this facade is pinned to.
func (t Thread) ThreadID() string { return t.threadID }

// UserID returns the user this facade is pinned to.
func (t Thread) UserID() string { return t.userID }

func (t Thread) pin(in GenerateTextInput) GenerateTextInput {
	in.UserID = t.userID
	in.ThreadID = t.threadID
	return in
}

func (t Thread) pinObject(in GenerateObjectInput) GenerateObjectInput {
	in.UserID = t.userID
	in.ThreadID = t.threadID
	return in
}

// GenerateText delegates to the underlying Agent with userId/threadId
// pre-applied.
func (t Thread) GenerateText(ctx context.Context, in GenerateTextInput) (GenerateTextResult, error) {
	return t.agent.GenerateText(ctx, t.pin(in))
}

// StreamText delegates to the underlying Agent with userId/threadId
// pre-applied.
func (t Thread) StreamText(ctx context.Context, in GenerateTextInput, onChunk func(llm.StreamEvent)) (GenerateTextResult, error) {
	return t.agent.StreamText(ctx, t.pin(in), onChunk)
}

// GenerateObject delegates to the underlying Agent with userId/threadId
// pre-applied.
func (t Thread) GenerateObject(ctx context.Context, in GenerateObjectInput) (GenerateObjectResult, error) {
	return t.agent.GenerateObject(ctx, t.pinObject(in))
}

// StreamObject delegates to the underlying Agent with userId/threadId
// pre-applied.
func (t Thread) StreamObject(ctx context.Context, in GenerateObjectInput, onChunk func(llm.StreamEvent)) (GenerateObjectResult, error) {
	return t.agent.StreamObject(ctx, t.pinObject(in), onChunk)
}
