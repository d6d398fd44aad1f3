package agent

import (
	"context"
	"encoding/json"

	"github.com/redeven/agentcore/internal/agenterr"
	"github.com/redeven/agentcore/internal/agentlog"
	"github.com/redeven/agentcore/internal/contextretrieval"
	"github.com/redeven/agentcore/internal/embedding"
	"github.com/redeven/agentcore/internal/llm"
	"github.com/redeven/agentcore/internal/messages"
	"github.com/redeven/agentcore/internal/store"
)

// stepFinisher builds the closure runStepLoop calls after every step: persist
// the step (embedding its new messages first) when the call has a thread and
// a saved prompt message, and fire the usage handler.
// Shared by GenerateText/StreamText/GenerateObject/StreamObject so the
// persistence path never drifts between the streaming and non-streaming
// forms.
func (a *Agent) stepFinisher(in GenerateTextInput, messageID string) func(context.Context, messages.Step, []messages.CoreMessage) error {
	saveOutput := resolveBool(in.SaveOutputMessages, a.StorageDefaults.SaveOutputMessages, true)
	return func(ctx context.Context, step messages.Step, newMsgs []messages.CoreMessage) error {
		if saveOutput && in.ThreadID != "" && messageID != "" {
			emb, err := embedding.Generate(ctx, a.EmbedModel, newMsgs)
			if err != nil {
				return err
			}
			if err := a.Backend.AddStep(ctx, store.AddStepInput{
				ThreadID:        in.ThreadID,
				UserID:          in.UserID,
				PromptMessageID: messageID,
				Step: store.StepRecord{
					Step:        step,
					NewMessages: newMsgs,
					Embeddings:  emb,
				},
				Model:    a.ChatModel,
				Provider: a.ProviderName,
			}); err != nil {
				return agenterr.WrapStorage("agent.stepFinisher", err)
			}
			providerAttrs := agentlog.Provider(a.ProviderName, a.ChatModel)
			a.Logger.Debug("step persisted", agentlog.Thread(in.ThreadID), providerAttrs[0], providerAttrs[1])
		}

		if a.UsageHandler != nil {
			a.UsageHandler(ctx, UsageEvent{
				ThreadID:  in.ThreadID,
				MessageID: messageID,
				Provider:  a.ProviderName,
				Model:     a.ChatModel,
				Usage:     step.Usage,
			})
			a.Logger.Debug("step usage", agentlog.Message(messageID),
				agentlog.Usage(step.Usage.InputTokens, step.Usage.OutputTokens, step.Usage.ReasoningTokens))
		}
		return nil
	}
}

// finish runs the postamble: commit the saved prompt on success, roll it
// back with the failing error on any exception raised after it was saved.
// messageID is empty when nothing was persisted (no threadId, or
// SaveAnyInputMessages was false), in which case there is nothing to commit
// or roll back.
func (a *Agent) finish(ctx context.Context, messageID string, runErr error) error {
	if messageID == "" {
		return runErr
	}
	if runErr != nil {
		if rbErr := a.Backend.RollbackMessage(ctx, messageID, runErr.Error()); rbErr != nil {
			a.Logger.Error("rollback failed", agentlog.Message(messageID), agentlog.Error(rbErr))
		}
		return runErr
	}
	if err := a.Backend.CommitMessage(ctx, messageID); err != nil {
		return agenterr.WrapStorage("agent.finish", err)
	}
	return nil
}

func sumUsage(steps []messages.Step) messages.StepUsage {
	var u messages.StepUsage
	for _, s := range steps {
		u.InputTokens += s.Usage.InputTokens
		u.OutputTokens += s.Usage.OutputTokens
		u.ReasoningTokens += s.Usage.ReasoningTokens
	}
	return u
}

func lastText(steps []messages.Step) (string, string) {
	if len(steps) == 0 {
		return "", ""
	}
	last := steps[len(steps)-1]
	return last.Text, last.FinishReason
}

// GenerateText runs the full preamble/invocation/postamble cycle to
// completion and returns the final result.
func (a *Agent) GenerateText(ctx context.Context, in GenerateTextInput) (GenerateTextResult, error) {
	return a.generateText(ctx, in, nil)
}

// StreamText is GenerateText with an additional onChunk callback invoked for
// every provider StreamEvent as it arrives, across every step.
func (a *Agent) StreamText(ctx context.Context, in GenerateTextInput, onChunk func(llm.StreamEvent)) (GenerateTextResult, error) {
	return a.generateText(ctx, in, onChunk)
}

func (a *Agent) generateText(ctx context.Context, in GenerateTextInput, onChunk func(llm.StreamEvent)) (GenerateTextResult, error) {
	pre, err := a.preamble(ctx, in)
	if err != nil {
		return GenerateTextResult{}, err
	}

	steps, runErr := a.runStepLoop(ctx, stepLoopInput{
		model:        pre.model,
		system:       pre.system,
		bound:        pre.bound,
		messages:     pre.messages,
		maxSteps:     in.MaxSteps,
		maxRetries:   pre.maxRetries,
		providerName: a.ProviderName,
		onChunk:      onChunk,
		onStepFinish: a.stepFinisher(in, pre.messageID),
	})

	if err := a.finish(ctx, pre.messageID, runErr); err != nil {
		return GenerateTextResult{MessageID: pre.messageID, Steps: steps}, err
	}

	text, finishReason := lastText(steps)
	return GenerateTextResult{
		MessageID:    pre.messageID,
		Text:         text,
		FinishReason: finishReason,
		Steps:        steps,
		Usage:        sumUsage(steps),
	}, nil
}

// validateObjectShape is the last line of defense behind the provider-level
// schema constraint each adapter applies (OpenAI's json_schema text format,
// Anthropic's forced tool call): confirm the model actually returned valid
// JSON shaped the way the schema's top-level "type"/"required" say it should
// be. No JSON Schema validator ships anywhere in this module's dependency
// set, so this checks structure rather than full schema conformance
// (formats, enums, nested constraints) — enough to catch a provider that
// ignored the constraint and emitted prose or the wrong shape.
func validateObjectShape(object, rawSchema json.RawMessage) error {
	var value any
	if err := json.Unmarshal(object, &value); err != nil {
		return agenterr.NewInvalidArgument("agent.validateObjectShape", "provider did not return valid JSON: "+err.Error())
	}

	var schema struct {
		Type     string   `json:"type"`
		Required []string `json:"required"`
	}
	if len(rawSchema) == 0 {
		return nil
	}
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return nil
	}

	switch schema.Type {
	case "object", "":
		obj, ok := value.(map[string]any)
		if !ok {
			return agenterr.NewInvalidArgument("agent.validateObjectShape", "expected a JSON object")
		}
		for _, key := range schema.Required {
			if _, ok := obj[key]; !ok {
				return agenterr.NewInvalidArgument("agent.validateObjectShape", "missing required field "+key)
			}
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return agenterr.NewInvalidArgument("agent.validateObjectShape", "expected a JSON array")
		}
	}
	return nil
}

// GenerateObjectInput is the argument record for GenerateObject/StreamObject.
// Unlike GenerateText, object generation never loops on tool calls — it is a
// single provider call constrained to one schema-shaped response.
type GenerateObjectInput struct {
	UserID          string
	ThreadID        string
	Prompt          string
	Messages        []messages.CoreMessage
	PromptMessageID string

	System     *string
	Model      *string
	MaxRetries *int

	Schema json.RawMessage

	ContextOptions *contextretrieval.Options
	ThreadContext  *contextretrieval.Options

	SaveAnyInputMessages *bool
	SaveAllInputMessages *bool
	SaveOutputMessages   *bool

	ActionScopeGranted bool
}

// GenerateObjectResult is the outcome of GenerateObject/StreamObject.
type GenerateObjectResult struct {
	MessageID string
	Object    json.RawMessage
	Usage     messages.StepUsage
}

// GenerateObject runs the preamble, makes one schema-constrained provider
// call, and persists the result through the same saveStep path GenerateText
// uses, via messages.SerializeObjectResult.
func (a *Agent) GenerateObject(ctx context.Context, in GenerateObjectInput) (GenerateObjectResult, error) {
	return a.generateObject(ctx, in, nil)
}

// StreamObject streams the same single schema-constrained call GenerateObject
// makes, forwarding every StreamEvent to onChunk as it arrives.
func (a *Agent) StreamObject(ctx context.Context, in GenerateObjectInput, onChunk func(llm.StreamEvent)) (GenerateObjectResult, error) {
	return a.generateObject(ctx, in, onChunk)
}

func (a *Agent) generateObject(ctx context.Context, in GenerateObjectInput, onChunk func(llm.StreamEvent)) (GenerateObjectResult, error) {
	textIn := GenerateTextInput{
		UserID:               in.UserID,
		ThreadID:             in.ThreadID,
		Prompt:               in.Prompt,
		Messages:             in.Messages,
		PromptMessageID:      in.PromptMessageID,
		System:               in.System,
		Model:                in.Model,
		MaxRetries:           in.MaxRetries,
		MaxSteps:             1,
		ContextOptions:       in.ContextOptions,
		ThreadContext:        in.ThreadContext,
		SaveAnyInputMessages: in.SaveAnyInputMessages,
		SaveAllInputMessages: in.SaveAllInputMessages,
		SaveOutputMessages:   in.SaveOutputMessages,
		ActionScopeGranted:   in.ActionScopeGranted,
	}

	pre, err := a.preamble(ctx, textIn)
	if err != nil {
		return GenerateObjectResult{}, err
	}

	req := llm.CompletionRequest{
		Model:      pre.model,
		System:     pre.system,
		Messages:   toProviderMessages(pre.messages),
		Schema:     in.Schema,
		MaxRetries: pre.maxRetries,
	}
	result, runErr := a.Chat.StreamCompletion(ctx, req, onChunk)
	if runErr != nil {
		runErr = agenterr.WrapProvider("agent.generateObject", runErr)
	}

	var objectJSON json.RawMessage
	if runErr == nil {
		objectJSON = json.RawMessage(result.Text)
		if len(in.Schema) > 0 {
			if verr := validateObjectShape(objectJSON, in.Schema); verr != nil {
				runErr = agenterr.WrapProvider("agent.generateObject", verr)
			}
		}
	}
	if runErr == nil {
		usage := messages.StepUsage{
			InputTokens:     result.Usage.InputTokens,
			OutputTokens:    result.Usage.OutputTokens,
			ReasoningTokens: result.Usage.ReasoningTokens,
		}
		step := messages.SerializeObjectResult(objectJSON, usage)
		newMsgs := messages.SerializeNewMessagesInStep(step, a.ProviderName, pre.model)
		runErr = a.stepFinisher(textIn, pre.messageID)(ctx, step, newMsgs)
	}

	if err := a.finish(ctx, pre.messageID, runErr); err != nil {
		return GenerateObjectResult{MessageID: pre.messageID}, err
	}

	return GenerateObjectResult{
		MessageID: pre.messageID,
		Object:    objectJSON,
		Usage: messages.StepUsage{
			InputTokens:     result.Usage.InputTokens,
			OutputTokens:    result.Usage.OutputTokens,
			ReasoningTokens: result.Usage.ReasoningTokens,
		},
	}, nil
}
