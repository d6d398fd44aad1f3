package toolbind

import (
	"context"
	"encoding/json"
	"testing"
)

func echoTool(name string, ctxAccepting bool) Tool {
	return Tool{
		Name:         name,
		CtxAccepting: ctxAccepting,
		Execute: func(_ context.Context, args json.RawMessage, hostCtx *HostContext) (json.RawMessage, error) {
			if hostCtx == nil {
				return []byte(`"no-ctx"`), nil
			}
			return json.Marshal(hostCtx.ThreadID)
		},
	}
}

func TestSelectPriority(t *testing.T) {
	callSite := []Tool{echoTool("call", false)}
	threadDefault := []Tool{echoTool("thread", false)}
	agentDefault := []Tool{echoTool("agent", false)}

	if got := Select(callSite, threadDefault, agentDefault); got[0].Name != "call" {
		t.Fatalf("expected call-site tools to win, got %q", got[0].Name)
	}
	if got := Select(nil, threadDefault, agentDefault); got[0].Name != "thread" {
		t.Fatalf("expected thread-default tools to win when call-site is nil, got %q", got[0].Name)
	}
	if got := Select(nil, nil, agentDefault); got[0].Name != "agent" {
		t.Fatalf("expected agent-default tools as the final fallback, got %q", got[0].Name)
	}
}

func TestBindPlainToolIgnoresHostContext(t *testing.T) {
	bound := Bind([]Tool{echoTool("plain", false)}, HostContext{ThreadID: "t1"})
	out, err := bound[0].Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(out) != `"no-ctx"` {
		t.Fatalf("expected plain tool to receive a nil hostCtx, got %s", out)
	}
}

func TestBindCtxAcceptingToolReceivesHostContext(t *testing.T) {
	bound := Bind([]Tool{echoTool("ctx", true)}, HostContext{ThreadID: "t1", UserID: "u1", MessageID: "m1"})
	out, err := bound[0].Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(out) != `"t1"` {
		t.Fatalf("expected ctx-accepting tool to see the bound thread id, got %s", out)
	}
}

func TestInvokeCtxAcceptingWithoutBindingFails(t *testing.T) {
	tool := echoTool("ctx", true)
	unbound := BoundTool{Tool: tool}
	if _, err := unbound.Invoke(context.Background(), nil); err == nil {
		t.Fatal("expected MisuseError when a ctx-accepting tool has no bound host context")
	}
}

func TestLookup(t *testing.T) {
	bound := Bind([]Tool{echoTool("a", false), echoTool("b", false)}, HostContext{})
	if _, ok := Lookup(bound, "b"); !ok {
		t.Fatal("expected to find tool b")
	}
	if _, ok := Lookup(bound, "missing"); ok {
		t.Fatal("expected missing tool to not be found")
	}
}
