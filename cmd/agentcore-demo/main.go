// Command agentcore-demo exercises the Thread facade end-to-end against the
// in-memory storage backend and the OpenAI provider.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/redeven/agentcore/agent"
	"github.com/redeven/agentcore/internal/config"
	"github.com/redeven/agentcore/internal/contextretrieval"
	"github.com/redeven/agentcore/internal/llm"
	"github.com/redeven/agentcore/internal/llm/openaiprovider"
	"github.com/redeven/agentcore/internal/store"
	"github.com/redeven/agentcore/internal/store/memstore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "chat":
		chatCmd(os.Args[2:])
	case "version":
		fmt.Println("agentcore-demo dev")
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `agentcore-demo

Usage:
  agentcore-demo chat [flags]
  agentcore-demo version

Commands:
  chat      Send one prompt through a fresh thread and print the reply.
  version   Print build information.

`)
}

func chatCmd(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	prompt := fs.String("prompt", "Say hello in one sentence.", "Prompt to send")
	model := fs.String("model", "gpt-4.1-mini", "Chat model name (ignored with -config)")
	userID := fs.String("user", "demo-user", "User id to scope the thread to")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	configPath := fs.String("config", "", "Path to a YAML config file; when set, -model is ignored and the named agent's provider/defaults are used instead")
	agentName := fs.String("agent", "demo", "Agent name to look up in -config")
	_ = fs.Parse(args)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	var a *agent.Agent
	var backend *memstore.Store

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		built, err := buildAgentFromConfig(cfg, *agentName, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build agent from config: %v\n", err)
			os.Exit(1)
		}
		a = built
		backend = built.Backend.(*memstore.Store)
	} else {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			fmt.Fprintln(os.Stderr, "OPENAI_API_KEY must be set")
			os.Exit(1)
		}

		provider, err := openaiprovider.New(apiKey, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init provider: %v\n", err)
			os.Exit(1)
		}

		backend = memstore.New()
		retriever := contextretrieval.New(backend, func(messageID string) {
			logger.Warn("dropped orphan tool message", "message_id", messageID)
		})

		a = agent.New(agent.Agent{
			Name:         "demo",
			ProviderName: "openai",
			Chat:         provider,
			EmbedModel:   llm.AsEmbeddingModel(provider),
			ChatModel:    *model,
			Instructions: "You are a concise, helpful assistant.",
			Backend:      backend,
			Retriever:    retriever,
			Logger:       logger,
		})
	}

	ctx := context.Background()
	th, err := backend.CreateThread(ctx, store.CreateThreadInput{UserID: *userID, Title: "demo chat"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create thread: %v\n", err)
		os.Exit(1)
	}

	thread := a.NewThread(*userID, th.ID)
	result, err := thread.GenerateText(ctx, agent.GenerateTextInput{Prompt: *prompt})
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(result.Text)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
