// Package agent implements the orchestrator and the thread facade built on
// top of it: the preamble/invocation/postamble loop that turns a prompt into
// a persisted, tool-using conversation against a configured LLM provider and
// storage backend.
//
// One provider call is made per step; any tool calls a step emits are
// executed and replayed into the next call, repeating until a step produces
// no further tool calls.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/redeven/agentcore/internal/agenterr"
	"github.com/redeven/agentcore/internal/contextretrieval"
	"github.com/redeven/agentcore/internal/embedding"
	"github.com/redeven/agentcore/internal/llm"
	"github.com/redeven/agentcore/internal/messages"
	"github.com/redeven/agentcore/internal/store"
	"github.com/redeven/agentcore/internal/toolbind"
)

const defaultMaxSteps = 24

// UsageEvent is fired per step when the provider reported usage.
type UsageEvent struct {
	ThreadID  string
	MessageID string
	Provider  string
	Model     string
	Usage     messages.StepUsage
}

// UsageHandler receives one UsageEvent per provider step.
type UsageHandler func(ctx context.Context, ev UsageEvent)

// StorageDefaults mirrors config.StorageDefaults without importing
// internal/config, so this package has no dependency on the YAML file
// format — only on the three booleans the preamble/postamble actually read.
type StorageDefaults struct {
	SaveAnyInputMessages *bool
	SaveAllInputMessages *bool
	SaveOutputMessages   *bool
}

func resolveBool(callSite, agentDefault *bool, fallback bool) bool {
	if callSite != nil {
		return *callSite
	}
	if agentDefault != nil {
		return *agentDefault
	}
	return fallback
}

// Agent is the configured orchestrator: one LLM provider, one storage
// backend, one context retriever, and the defaults every call falls back to.
type Agent struct {
	Name         string
	ProviderName string
	Chat         llm.Provider
	EmbedModel   embedding.Model
	ChatModel    string
	Instructions string
	MaxRetries   int

	Backend   store.Backend
	Retriever *contextretrieval.Retriever

	// Tools is the agent-default tool set, lowest priority in toolbind.Select.
	Tools []toolbind.Tool

	ContextDefaults contextretrieval.Options
	StorageDefaults StorageDefaults

	UsageHandler UsageHandler
	Logger       *slog.Logger
}

// New builds an Agent. A nil Logger falls back to slog.Default().
func New(a Agent) *Agent {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = 2
	}
	return &a
}

// GenerateTextInput is the argument record shared by GenerateText and
// StreamText.
type GenerateTextInput struct {
	UserID          string
	ThreadID        string
	Prompt          string
	Messages        []messages.CoreMessage
	PromptMessageID string

	System     *string
	Model      *string
	MaxRetries *int
	MaxSteps   int

	// Tools is the call-site tool set, highest priority in toolbind.Select.
	Tools []toolbind.Tool
	// ThreadTools is the thread-default tool set, used if Tools is nil.
	ThreadTools []toolbind.Tool

	ContextOptions *contextretrieval.Options
	ThreadContext  *contextretrieval.Options

	SaveAnyInputMessages *bool
	SaveAllInputMessages *bool
	SaveOutputMessages   *bool

	ActionScopeGranted bool
}

// GenerateTextResult is the outcome of GenerateText/StreamText.
type GenerateTextResult struct {
	MessageID    string
	Text         string
	FinishReason string
	Steps        []messages.Step
	Usage        messages.StepUsage
}

// preambleResult is the resolved argument set a generation call runs with,
// after defaults, context, and any pending input save have been applied.
type preambleResult struct {
	model      string
	system     string
	maxRetries int
	messages   []messages.CoreMessage
	messageID  string
	bound      []toolbind.BoundTool
}

// preamble merges call-site options over agent defaults, resolves the input
// messages, fetches context, and optionally saves the input as a pending
// message before the provider is ever called.
func (a *Agent) preamble(ctx context.Context, in GenerateTextInput) (preambleResult, error) {
	if in.PromptMessageID != "" && (in.Prompt != "" || len(in.Messages) > 0) {
		return preambleResult{}, agenterr.NewInvalidArgument("agent.preamble", "promptMessageId cannot be combined with prompt or messages")
	}

	inputMessages, err := messages.PromptOrMessagesToCoreMessages(messages.PromptInput{Prompt: in.Prompt, Messages: in.Messages})
	if err != nil {
		return preambleResult{}, agenterr.NewInvalidArgument("agent.preamble", err.Error())
	}

	contextOpts := a.ContextDefaults
	if in.ThreadContext != nil {
		contextOpts = *in.ThreadContext
	}
	if in.ContextOptions != nil {
		contextOpts = *in.ContextOptions
	}

	var embedModel embedding.Model
	if contextOpts.Search.VectorSearch {
		embedModel = a.EmbedModel
	}

	ctxResult, err := a.Retriever.Retrieve(ctx, contextretrieval.Input{
		UserID:                    in.UserID,
		ThreadID:                  in.ThreadID,
		Messages:                  inputMessages,
		UpToAndIncludingMessageID: in.PromptMessageID,
		Options:                   contextOpts,
		EmbedModel:                embedModel,
		ActionScopeGranted:        in.ActionScopeGranted,
	})
	if err != nil {
		return preambleResult{}, err
	}
	contextMessages := make([]messages.CoreMessage, len(ctxResult.Messages))
	for i, d := range ctxResult.Messages {
		contextMessages[i] = d.Message
	}

	messageID := in.PromptMessageID
	saveAny := resolveBool(in.SaveAnyInputMessages, a.StorageDefaults.SaveAnyInputMessages, true)
	if in.ThreadID != "" && len(inputMessages) > 0 && saveAny {
		saveAll := resolveBool(in.SaveAllInputMessages, a.StorageDefaults.SaveAllInputMessages, false)
		toSave := inputMessages
		if !saveAll {
			toSave = inputMessages[len(inputMessages)-1:]
		}
		emb, err := embedding.Generate(ctx, a.EmbedModel, toSave)
		if err != nil {
			return preambleResult{}, err
		}
		res, err := a.Backend.AddMessages(ctx, store.AddMessagesInput{
			ThreadID:         in.ThreadID,
			UserID:           in.UserID,
			AgentName:        a.Name,
			Embeddings:       emb,
			Messages:         toSave,
			Pending:          true,
			FailPendingSteps: true,
		})
		if err != nil {
			return preambleResult{}, agenterr.WrapStorage("agent.preamble", err)
		}
		messageID = res.LastMessageID
	}

	model := a.ChatModel
	if in.Model != nil {
		model = *in.Model
	}
	system := a.Instructions
	if in.System != nil {
		system = *in.System
	}
	maxRetries := a.MaxRetries
	if in.MaxRetries != nil {
		maxRetries = *in.MaxRetries
	}

	tools := toolbind.Select(in.Tools, in.ThreadTools, a.Tools)
	bound := toolbind.Bind(tools, toolbind.HostContext{UserID: in.UserID, ThreadID: in.ThreadID, MessageID: messageID})

	allMessages := append(append([]messages.CoreMessage{}, contextMessages...), inputMessages...)

	return preambleResult{
		model:      model,
		system:     system,
		maxRetries: maxRetries,
		messages:   allMessages,
		messageID:  messageID,
		bound:      bound,
	}, nil
}

func stepTimestamp() time.Time { return time.Now() }
