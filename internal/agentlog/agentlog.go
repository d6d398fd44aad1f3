// Package agentlog provides small slog.Attr helpers used across the
// orchestration core so log lines for threads, messages, tools, providers,
// and usage share a consistent key set.
package agentlog

import "log/slog"

// Error returns a slog.Attr representing err under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Thread returns a slog.Attr identifying a thread.
func Thread(threadID string) slog.Attr {
	return slog.String("thread_id", threadID)
}

// Message returns a slog.Attr identifying a message.
func Message(messageID string) slog.Attr {
	return slog.String("message_id", messageID)
}

// Tool returns a slog.Attr identifying a tool by name.
func Tool(name string) slog.Attr {
	return slog.String("tool", name)
}

// Provider returns a slog.Attr pair identifying the provider and model used
// for one completion call.
func Provider(provider, model string) []slog.Attr {
	return []slog.Attr{slog.String("provider", provider), slog.String("model", model)}
}

// Usage returns a slog.Group summarizing token usage for one step.
func Usage(input, output, reasoning int64) slog.Attr {
	return slog.Group("usage",
		slog.Int64("input_tokens", input),
		slog.Int64("output_tokens", output),
		slog.Int64("reasoning_tokens", reasoning),
	)
}
