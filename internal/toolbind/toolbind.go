// Package toolbind selects the one tool set that applies to a call
// (call-site, thread-default, or agent-default, in that priority order,
// never merged) and wraps each tool that declared itself ctx-accepting with
// the call's host context — user id, thread id, the prompt's message id —
// without ever routing that state through the LLM provider's own
// tool-execution path.
package toolbind

import (
	"context"
	"encoding/json"

	"github.com/redeven/agentcore/internal/agenterr"
)

// HostContext is the call-site state a ctx-accepting tool needs but that
// must never pass through the provider's tool-call arguments.
type HostContext struct {
	UserID    string
	ThreadID  string
	MessageID string
}

// ExecuteFunc is a tool's implementation. hostCtx is nil for plain tools; a
// ctx-accepting tool is only ever called with a non-nil hostCtx, since
// BoundTool.Invoke fails with MisuseError when none was bound.
type ExecuteFunc func(ctx context.Context, args json.RawMessage, hostCtx *HostContext) (json.RawMessage, error)

// Tool is one callable the orchestrator can expose to the provider.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage

	// CtxAccepting flags that Execute's hostCtx parameter is meaningful; a
	// plain tool ignores it and works identically whether it is nil or not.
	CtxAccepting bool
	Execute      ExecuteFunc
}

// BoundTool is a Tool after binding: for a ctx-accepting tool, HostCtx is the
// snapshot taken at bind time. It is a separate, shallow-cloned value so
// rebinding the same Tool set against two different calls never shares state.
type BoundTool struct {
	Tool
	hostCtx *HostContext
}

// Invoke runs the bound tool. A ctx-accepting tool invoked with no bound
// host context fails with MisuseError rather than silently calling Execute
// with a nil hostCtx.
func (b BoundTool) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	if b.CtxAccepting && b.hostCtx == nil {
		return nil, agenterr.NewMisuseError(b.Name, "ctx-accepting tool invoked with no bound host context")
	}
	return b.Execute(ctx, args, b.hostCtx)
}

// Select picks the one tool set a call actually uses: call-site tools if
// non-nil, else thread-default tools, else agent-default tools. Sources are
// never merged; only the highest-priority non-nil source is used.
func Select(callSite, threadDefault, agentDefault []Tool) []Tool {
	if callSite != nil {
		return callSite
	}
	if threadDefault != nil {
		return threadDefault
	}
	return agentDefault
}

// Bind wraps the selected tool set for one call. Plain tools pass through
// unmodified (their BoundTool simply carries a nil hostCtx); ctx-accepting
// tools are shallow-cloned with hostCtx attached.
func Bind(tools []Tool, hostCtx HostContext) []BoundTool {
	out := make([]BoundTool, len(tools))
	for i, t := range tools {
		bt := BoundTool{Tool: t}
		if t.CtxAccepting {
			hc := hostCtx
			bt.hostCtx = &hc
		}
		out[i] = bt
	}
	return out
}

// Lookup finds a bound tool by name, for dispatching a provider-emitted tool
// call.
func Lookup(bound []BoundTool, name string) (BoundTool, bool) {
	for _, b := range bound {
		if b.Name == name {
			return b, true
		}
	}
	return BoundTool{}, false
}
