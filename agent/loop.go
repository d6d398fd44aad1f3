package agent

import (
	"context"
	"encoding/json"

	"github.com/redeven/agentcore/internal/agenterr"
	"github.com/redeven/agentcore/internal/agentlog"
	"github.com/redeven/agentcore/internal/llm"
	"github.com/redeven/agentcore/internal/messages"
	"github.com/redeven/agentcore/internal/toolbind"
)

// stepLoopInput is everything runStepLoop needs to drive one multi-step
// provider call to completion.
type stepLoopInput struct {
	model      string
	system     string
	bound      []toolbind.BoundTool
	messages   []messages.CoreMessage
	maxSteps   int
	maxRetries int

	providerName string
	onChunk      func(llm.StreamEvent)
	onStepFinish func(ctx context.Context, step messages.Step, newMessages []messages.CoreMessage) error
}

// runStepLoop drives the provider until a step produces no further tool
// calls or maxSteps is exhausted, executing tool calls in between steps and
// folding their results back into the conversation.
func (a *Agent) runStepLoop(ctx context.Context, in stepLoopInput) ([]messages.Step, error) {
	maxSteps := in.maxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	toolDefs := toolDefsFromBound(in.bound)
	convo := append([]messages.CoreMessage{}, in.messages...)
	var steps []messages.Step

	for i := 0; i < maxSteps; i++ {
		req := llm.CompletionRequest{
			Model:      in.model,
			System:     in.system,
			Messages:   toProviderMessages(convo),
			Tools:      toolDefs,
			MaxRetries: in.maxRetries,
		}
		result, err := a.Chat.StreamCompletion(ctx, req, in.onChunk)
		if err != nil {
			return steps, agenterr.WrapProvider("agent.runStepLoop", err)
		}

		step := messages.Step{
			Text:         result.Text,
			Reasoning:    result.Reasoning,
			FinishReason: result.FinishReason,
			Usage: messages.StepUsage{
				InputTokens:     result.Usage.InputTokens,
				OutputTokens:    result.Usage.OutputTokens,
				ReasoningTokens: result.Usage.ReasoningTokens,
			},
			Timestamp: stepTimestamp(),
		}
		for _, tc := range result.ToolCalls {
			step.ToolCalls = append(step.ToolCalls, messages.ToolCallData{ID: tc.ID, Name: tc.Name, Arguments: []byte(tc.ArgumentsJSON)})
		}

		for _, tc := range step.ToolCalls {
			out, err := invokeTool(ctx, in.bound, tc)
			if err != nil {
				a.Logger.Error("tool invocation failed", agentlog.Tool(tc.Name), agentlog.Error(err))
				out, _ = json.Marshal(map[string]string{"error": err.Error()})
			}
			step.ToolResults = append(step.ToolResults, messages.ToolResult{ToolCallID: tc.ID, ToolName: tc.Name, Result: out})
		}

		newMsgs := messages.SerializeNewMessagesInStep(step, in.providerName, in.model)

		if in.onStepFinish != nil {
			if err := in.onStepFinish(ctx, step, newMsgs); err != nil {
				return append(steps, step), err
			}
		}

		steps = append(steps, step)
		convo = append(convo, newMsgs...)

		if len(step.ToolCalls) == 0 {
			break
		}
	}

	return steps, nil
}

func invokeTool(ctx context.Context, bound []toolbind.BoundTool, tc messages.ToolCallData) (json.RawMessage, error) {
	bt, ok := toolbind.Lookup(bound, tc.Name)
	if !ok {
		return nil, agenterr.NewMisuseError(tc.Name, "no tool registered with this name")
	}
	return bt.Invoke(ctx, tc.Arguments)
}
