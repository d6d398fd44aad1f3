package agent

import (
	"github.com/redeven/agentcore/internal/llm"
	"github.com/redeven/agentcore/internal/messages"
	"github.com/redeven/agentcore/internal/toolbind"
)

// toProviderMessages flattens CoreMessages into the wire-level entries each
// llm.Provider adapter expects: a multi-part assistant message with several
// tool-call parts becomes one ProviderMessage per tool call (plus one for its
// text, if any), since neither OpenAI's Responses API nor Anthropic's
// Messages API accept more than one function call per wire entry.
func toProviderMessages(msgs []messages.CoreMessage) []llm.ProviderMessage {
	var out []llm.ProviderMessage
	for _, m := range msgs {
		switch m.Role {
		case messages.RoleSystem:
			out = append(out, llm.ProviderMessage{Role: "system", Text: m.Text()})
		case messages.RoleUser:
			out = append(out, llm.ProviderMessage{Role: "user", Text: m.Text()})
		case messages.RoleAssistant:
			if text := textOnly(m); text != "" {
				out = append(out, llm.ProviderMessage{Role: "assistant", Text: text})
			}
			for _, p := range m.Content {
				if p.Type == messages.PartToolCall {
					out = append(out, llm.ProviderMessage{
						Role: "assistant", ToolCallID: p.ToolCallID, ToolName: p.ToolName, ToolArgs: p.Args,
					})
				}
			}
		case messages.RoleTool:
			for _, p := range m.Content {
				if p.Type == messages.PartToolResult {
					out = append(out, llm.ProviderMessage{
						Role: "tool", ToolCallID: p.ToolCallID, ToolName: p.ToolName, ToolResult: p.Result,
					})
				}
			}
		}
	}
	return out
}

func textOnly(m messages.CoreMessage) string {
	var out string
	for _, p := range m.Content {
		if p.Type == messages.PartText {
			out += p.Text
		}
	}
	return out
}

func toolDefsFromBound(bound []toolbind.BoundTool) []llm.ToolDef {
	out := make([]llm.ToolDef, len(bound))
	for i, b := range bound {
		out[i] = llm.ToolDef{Name: b.Name, Description: b.Description, InputSchema: b.InputSchema}
	}
	return out
}
