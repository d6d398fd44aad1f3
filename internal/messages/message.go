// Package messages implements the Message Mapper: the role-tagged CoreMessage
// variant, its lossless wire form, and the helpers that split a completed LLM
// step into new messages and collapse stored messages into UI-ready parts.
package messages

import "time"

// Role is the role tag of a CoreMessage. Matching is exhaustive by switching
// on this field rather than comparing role strings scattered across callers.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType tags the kind of content carried by a Part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
	PartReasoning  PartType = "reasoning"
	PartSource     PartType = "source"
	PartFile       PartType = "file"
)

// Part is one element of a multi-part message content list. Only the fields
// relevant to Type are populated; the cyclic relationship between a tool-call
// and its tool-result is expressed purely through the shared ToolCallID
// string, never through a pointer back to the call.
type Part struct {
	Type PartType `json:"type"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartToolCall
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Args       []byte `json:"args,omitempty"` // raw JSON object

	// PartToolResult (also uses ToolCallID/ToolName above)
	Result []byte `json:"result,omitempty"` // raw JSON value

	// PartReasoning
	Reasoning string `json:"reasoning,omitempty"`

	// PartSource
	SourceID  string `json:"sourceId,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`

	// PartFile
	FileName string `json:"fileName,omitempty"`
	FileMime string `json:"fileMime,omitempty"`
	FileData []byte `json:"fileData,omitempty"`
}

// CoreMessage is the provider-facing message shape. Content is always a
// slice of Parts: a plain-text user/system message is represented as a
// single PartText element rather than as a bare string, so the mapper never
// needs a second code path for "string content" vs "part-list content".
type CoreMessage struct {
	Role    Role   `json:"role"`
	Content []Part `json:"content"`
}

// Text extracts the concatenation of all PartText parts (reasoning, tool-call
// and other parts are not included; tool messages return "" since they carry
// no prose). Used by C2 (embedding) and
// C3 (search query construction).
func (m CoreMessage) Text() string {
	if m.Role == RoleTool {
		return ""
	}
	var out string
	for _, p := range m.Content {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// IsTool reports whether the message is a tool-result message or an
// assistant message carrying at least one tool-call part, matching spec
// invariant "tool is true iff role==tool or assistant content has a
// tool-call".
func (m CoreMessage) IsTool() bool {
	if m.Role == RoleTool {
		return true
	}
	if m.Role != RoleAssistant {
		return false
	}
	for _, p := range m.Content {
		if p.Type == PartToolCall {
			return true
		}
	}
	return false
}

// ToolCallIDs returns the toolCallId of every tool-call part in an assistant
// message, in order, used by the orphan filter (C3) to know which ids an
// assistant message has announced.
func (m CoreMessage) ToolCallIDs() []string {
	var out []string
	for _, p := range m.Content {
		if p.Type == PartToolCall {
			out = append(out, p.ToolCallID)
		}
	}
	return out
}

// ToolResultIDs returns the toolCallId of every tool-result part in a tool
// message, used by the context retriever's orphan filter to check each
// result against previously announced call ids.
func (m CoreMessage) ToolResultIDs() []string {
	var out []string
	for _, p := range m.Content {
		if p.Type == PartToolResult {
			out = append(out, p.ToolCallID)
		}
	}
	return out
}

// PromptInput is the argument union for PromptOrMessagesToCoreMessages: at
// most one of Prompt or Messages may be set. The system prompt is resolved
// and carried separately, on CompletionRequest.System, since both bundled
// providers expose a dedicated system channel rather than a leading
// in-conversation message.
type PromptInput struct {
	Prompt   string
	Messages []CoreMessage
}

// ErrConflictingInput is returned by PromptOrMessagesToCoreMessages when both
// Prompt and Messages are supplied.
var ErrConflictingInput = conflictErr{}

type conflictErr struct{}

func (conflictErr) Error() string { return "both prompt and messages were supplied" }

// PromptOrMessagesToCoreMessages converts a PromptInput into a CoreMessage
// slice. It fails if both Prompt and Messages are set; if neither is set it
// returns an empty slice — the caller must then supply a promptMessageId to
// resolve history instead.
func PromptOrMessagesToCoreMessages(in PromptInput) ([]CoreMessage, error) {
	hasPrompt := in.Prompt != ""
	hasMessages := len(in.Messages) > 0
	if hasPrompt && hasMessages {
		return nil, ErrConflictingInput
	}
	if hasPrompt {
		return []CoreMessage{
			{Role: RoleUser, Content: []Part{{Type: PartText, Text: in.Prompt}}},
		}, nil
	}
	if hasMessages {
		out := make([]CoreMessage, len(in.Messages))
		for i, m := range in.Messages {
			out[i] = CoreMessage{Role: m.Role, Content: append([]Part(nil), m.Content...)}
		}
		return out, nil
	}
	return []CoreMessage{}, nil
}

// ToolCallData is one function call requested by the model inside a single
// assistant turn.
type ToolCallData struct {
	ID        string
	Name      string
	Arguments []byte // raw JSON object
}

// StepUsage carries the token accounting for one completed provider step.
type StepUsage struct {
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
}

// Step is one iteration of the LLM loop: assistant text and/or tool calls,
// any tool results gathered in response, and the usage reported for the
// step. FinishReason carries the provider adapter's normalized reason (e.g.
// "stop", "tool_calls", "length").
type Step struct {
	Text         string
	Reasoning    string
	ToolCalls    []ToolCallData
	ToolResults  []ToolResult
	Sources      []Part
	Files        []Part
	FinishReason string
	Usage        StepUsage
	Timestamp    time.Time
}

// ToolResult is the outcome of executing one ToolCallData.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	Result     []byte // raw JSON value
}
