package messages

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// SerializeMessage converts a CoreMessage into its on-wire JSON form. The
// wire form is exactly the JSON encoding of CoreMessage; the function exists
// (rather than calling json.Marshal at call sites) so every caller goes
// through one place that can be changed without touching the rest of the
// mapper, matching the round-trip property tested in message_test.go (P4).
func SerializeMessage(m CoreMessage) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	return b, nil
}

// DeserializeMessage parses a wire-form message back into a CoreMessage.
// It peeks at the "role" field with gjson before the full unmarshal so a
// payload missing a role fails with a precise error instead of silently
// defaulting to the zero Role.
func DeserializeMessage(wire []byte) (CoreMessage, error) {
	role := gjson.GetBytes(wire, "role")
	if !role.Exists() || role.String() == "" {
		return CoreMessage{}, fmt.Errorf("deserialize message: missing role")
	}
	var m CoreMessage
	if err := json.Unmarshal(wire, &m); err != nil {
		return CoreMessage{}, fmt.Errorf("deserialize message: %w", err)
	}
	return m, nil
}

// SerializeNewMessagesInStep emits the CoreMessages a completed Step
// produced — never the prompt that triggered it. An assistant message
// carrying text and/or tool-calls comes first (when either is present),
// followed by one tool message per tool result.
func SerializeNewMessagesInStep(step Step, provider, model string) []CoreMessage {
	var out []CoreMessage

	var assistantParts []Part
	if step.Reasoning != "" {
		assistantParts = append(assistantParts, Part{Type: PartReasoning, Reasoning: step.Reasoning})
	}
	if step.Text != "" {
		assistantParts = append(assistantParts, Part{Type: PartText, Text: step.Text})
	}
	for _, tc := range step.ToolCalls {
		assistantParts = append(assistantParts, Part{
			Type:       PartToolCall,
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Args:       tc.Arguments,
		})
	}
	assistantParts = append(assistantParts, step.Sources...)
	assistantParts = append(assistantParts, step.Files...)

	if len(assistantParts) > 0 {
		out = append(out, CoreMessage{Role: RoleAssistant, Content: assistantParts})
	}

	if len(step.ToolResults) > 0 {
		var toolParts []Part
		for _, tr := range step.ToolResults {
			toolParts = append(toolParts, Part{
				Type:       PartToolResult,
				ToolCallID: tr.ToolCallID,
				ToolName:   tr.ToolName,
				Result:     tr.Result,
			})
		}
		out = append(out, CoreMessage{Role: RoleTool, Content: toolParts})
	}

	_ = provider
	_ = model
	return out
}

// SerializeObjectResult synthesizes a fake Step from a non-streaming
// generateObject result, so it can persist through the same saveStep path
// used for generateText steps. It intentionally fabricates FinishReason
// "stop" with no logprobs; downstream consumers that expect real step
// metadata will observe synthesized values.
func SerializeObjectResult(objectJSON []byte, usage StepUsage) Step {
	return Step{
		Text:         string(objectJSON),
		FinishReason: "stop",
		Usage:        usage,
	}
}

// UIPartState is the lifecycle of a tool-invocation part as rendered in a UI
// message: "call" while awaiting a result, "result" once one arrives.
type UIPartState string

const (
	UIStateCall   UIPartState = "call"
	UIStateResult UIPartState = "result"
)

// UIPart is one rendered element of a collapsed UI message.
type UIPart struct {
	Type       PartType    `json:"type"`
	Text       string      `json:"text,omitempty"`
	Reasoning  string      `json:"reasoning,omitempty"`
	SourceID   string      `json:"sourceId,omitempty"`
	SourceURL  string      `json:"sourceUrl,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	ToolCallID string      `json:"toolCallId,omitempty"`
	ToolName   string      `json:"toolName,omitempty"`
	Args       []byte      `json:"args,omitempty"`
	Result     []byte      `json:"result,omitempty"`
	State      UIPartState `json:"state,omitempty"`
	StepStart  bool        `json:"stepStart,omitempty"`
}

// UIMessage is a single assistant turn collapsed from a run of consecutive
// assistant/tool MessageDocs, ready for display.
type UIMessage struct {
	Role  Role     `json:"role"`
	Parts []UIPart `json:"parts"`
}

// UIDoc is the minimal subset of a stored MessageDoc ToUIMessages needs: the
// message content only. It carries no status, so callers filter non-success
// rows out before calling this function.
type UIDoc struct {
	Message CoreMessage
}

// ToUIMessages collapses a run of consecutive assistant/tool documents into
// UI messages. Non-assistant/tool docs (system, user) each become their own
// single-part UI message. A tool-result part without a matching earlier
// tool-call in the same run is still appended, in UIStateResult, with the
// caller-supplied warn callback invoked so the omission can be logged rather
// than silently dropped.
func ToUIMessages(docs []UIDoc, warn func(toolCallID string)) []UIMessage {
	var out []UIMessage
	var current *UIMessage
	var pendingCalls map[string]int // toolCallId -> index of its UIPart within current.Parts

	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
			pendingCalls = nil
		}
	}

	startRun := func() {
		current = &UIMessage{Role: RoleAssistant}
		pendingCalls = make(map[string]int)
		current.Parts = append(current.Parts, UIPart{Type: "step-start", StepStart: true})
	}

	for _, d := range docs {
		m := d.Message
		if m.Role != RoleAssistant && m.Role != RoleTool {
			flush()
			out = append(out, UIMessage{
				Role:  m.Role,
				Parts: []UIPart{{Type: PartText, Text: m.Text()}},
			})
			continue
		}

		if current == nil {
			startRun()
		}

		for _, p := range m.Content {
			switch p.Type {
			case PartText:
				current.Parts = append(current.Parts, UIPart{Type: PartText, Text: p.Text})
			case PartReasoning:
				current.Parts = append(current.Parts, UIPart{Type: PartReasoning, Reasoning: p.Reasoning})
			case PartSource:
				current.Parts = append(current.Parts, UIPart{Type: PartSource, SourceID: p.SourceID, SourceURL: p.SourceURL})
			case PartFile:
				current.Parts = append(current.Parts, UIPart{Type: PartFile, FileName: p.FileName})
			case PartToolCall:
				current.Parts = append(current.Parts, UIPart{
					Type: PartToolCall, ToolCallID: p.ToolCallID, ToolName: p.ToolName,
					Args: p.Args, State: UIStateCall,
				})
				pendingCalls[p.ToolCallID] = len(current.Parts) - 1
			case PartToolResult:
				if idx, ok := pendingCalls[p.ToolCallID]; ok {
					current.Parts[idx].State = UIStateResult
					current.Parts[idx].Result = p.Result
					delete(pendingCalls, p.ToolCallID)
					continue
				}
				if warn != nil {
					warn(p.ToolCallID)
				}
				current.Parts = append(current.Parts, UIPart{
					Type: PartToolCall, ToolCallID: p.ToolCallID, ToolName: p.ToolName,
					Result: p.Result, State: UIStateResult,
				})
			}
		}
	}
	flush()
	return out
}
