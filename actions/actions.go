// Package actions implements the Action/Mutation Adapters (C8): thin
// factory functions that wrap an Agent into host-registerable endpoints for
// workflow systems that dispatch by name rather than by calling Go methods
// directly. They add no logic beyond option merging — every adapter
// delegates straight to the agent or its storage backend.
package actions

import (
	"context"

	"github.com/redeven/agentcore/agent"
	"github.com/redeven/agentcore/internal/contextretrieval"
	"github.com/redeven/agentcore/internal/messages"
	"github.com/redeven/agentcore/internal/store"
)

// CreateThreadArgs is the argument record for a createThreadMutation
// endpoint.
type CreateThreadArgs struct {
	UserID  string
	Title   string
	Summary string
}

// CreateThreadMutation returns a host-registerable endpoint that creates a
// new thread against backend, a thin wrapper over store.Backend.CreateThread.
func CreateThreadMutation(backend store.Backend) func(context.Context, CreateThreadArgs) (store.Thread, error) {
	return func(ctx context.Context, args CreateThreadArgs) (store.Thread, error) {
		return backend.CreateThread(ctx, store.CreateThreadInput{
			UserID:  args.UserID,
			Title:   args.Title,
			Summary: args.Summary,
		})
	}
}

// SaveMessagesArgs is the argument record for an asSaveMessagesMutation
// endpoint.
type SaveMessagesArgs struct {
	UserID    string
	ThreadID  string
	AgentName string
	Messages  []messages.CoreMessage
	Pending   bool
}

// SaveMessagesMutation returns a host-registerable endpoint that appends
// messages to a thread without going through the full generate cycle, a
// thin wrapper over store.Backend.AddMessages.
func SaveMessagesMutation(backend store.Backend) func(context.Context, SaveMessagesArgs) (store.AddMessagesResult, error) {
	return func(ctx context.Context, args SaveMessagesArgs) (store.AddMessagesResult, error) {
		return backend.AddMessages(ctx, store.AddMessagesInput{
			ThreadID:  args.ThreadID,
			UserID:    args.UserID,
			AgentName: args.AgentName,
			Messages:  args.Messages,
			Pending:   args.Pending,
		})
	}
}

// TextActionOverrides is the call-site option set asTextAction accepts,
// merged over the agent's own defaults by the preamble exactly as any other
// GenerateText call would.
type TextActionOverrides struct {
	MaxSteps       int
	ContextOptions *contextretrieval.Options
	SaveOptions    *TextActionSaveOptions
}

// TextActionSaveOptions is the storage-option subset asTextAction/asObjectAction
// expose to a host dispatch table.
type TextActionSaveOptions struct {
	SaveAnyInputMessages *bool
	SaveAllInputMessages *bool
	SaveOutputMessages   *bool
}

// TextActionArgs is the per-call argument record a registered text action
// receives.
type TextActionArgs struct {
	UserID          string
	ThreadID        string
	Prompt          string
	Messages        []messages.CoreMessage
	PromptMessageID string
}

// AsTextAction returns a host-registerable endpoint that runs the agent's
// GenerateText with overrides pre-applied, returning only the generated
// text.
func AsTextAction(a *agent.Agent, overrides TextActionOverrides) func(context.Context, TextActionArgs) (string, error) {
	return func(ctx context.Context, args TextActionArgs) (string, error) {
		in := agent.GenerateTextInput{
			UserID:          args.UserID,
			ThreadID:        args.ThreadID,
			Prompt:          args.Prompt,
			Messages:        args.Messages,
			PromptMessageID: args.PromptMessageID,
			MaxSteps:        overrides.MaxSteps,
			ContextOptions:  overrides.ContextOptions,
		}
		if overrides.SaveOptions != nil {
			in.SaveAnyInputMessages = overrides.SaveOptions.SaveAnyInputMessages
			in.SaveAllInputMessages = overrides.SaveOptions.SaveAllInputMessages
			in.SaveOutputMessages = overrides.SaveOptions.SaveOutputMessages
		}
		result, err := a.GenerateText(ctx, in)
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}
}

// ObjectActionResult is the return shape AsObjectAction produces: just the
// generated object.
type ObjectActionResult struct {
	Object []byte
}

// AsObjectAction returns a host-registerable endpoint that runs the agent's
// GenerateObject with overrides pre-applied.
func AsObjectAction(a *agent.Agent, overrides TextActionOverrides) func(context.Context, TextActionArgs) (ObjectActionResult, error) {
	return func(ctx context.Context, args TextActionArgs) (ObjectActionResult, error) {
		in := agent.GenerateObjectInput{
			UserID:          args.UserID,
			ThreadID:        args.ThreadID,
			Prompt:          args.Prompt,
			Messages:        args.Messages,
			PromptMessageID: args.PromptMessageID,
			ContextOptions:  overrides.ContextOptions,
		}
		if overrides.SaveOptions != nil {
			in.SaveAnyInputMessages = overrides.SaveOptions.SaveAnyInputMessages
			in.SaveAllInputMessages = overrides.SaveOptions.SaveAllInputMessages
			in.SaveOutputMessages = overrides.SaveOptions.SaveOutputMessages
		}
		result, err := a.GenerateObject(ctx, in)
		if err != nil {
			return ObjectActionResult{}, err
		}
		return ObjectActionResult{Object: result.Object}, nil
	}
}
