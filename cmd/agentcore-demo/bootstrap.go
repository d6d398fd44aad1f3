package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/redeven/agentcore/agent"
	"github.com/redeven/agentcore/internal/agentlog"
	"github.com/redeven/agentcore/internal/config"
	"github.com/redeven/agentcore/internal/contextretrieval"
	"github.com/redeven/agentcore/internal/llm"
	"github.com/redeven/agentcore/internal/llm/anthropicprovider"
	"github.com/redeven/agentcore/internal/llm/openaiprovider"
	"github.com/redeven/agentcore/internal/store/memstore"
)

// buildAgentFromConfig resolves agentName in cfg, constructs the matching
// provider adapter, and wires an *agent.Agent with the agent's configured
// defaults, resolving provider config first and then layering the agent's
// own defaults on top.
func buildAgentFromConfig(cfg *config.Config, agentName string, logger *slog.Logger) (*agent.Agent, error) {
	agentCfg, ok := cfg.Agent(agentName)
	if !ok {
		return nil, fmt.Errorf("no agent named %q in config", agentName)
	}
	providerCfg, ok := cfg.Provider(agentCfg.Provider)
	if !ok {
		return nil, fmt.Errorf("agent %q references unknown provider %q", agentName, agentCfg.Provider)
	}

	apiKey := os.Getenv(providerCfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %q (provider %q's api_key_env) is not set", providerCfg.APIKeyEnv, providerCfg.Name)
	}

	var chat llm.Provider
	switch providerCfg.Type {
	case "openai":
		p, err := openaiprovider.New(apiKey, providerCfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("init openai provider %q: %w", providerCfg.Name, err)
		}
		chat = p
	case "anthropic":
		p, err := anthropicprovider.New(apiKey, providerCfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("init anthropic provider %q: %w", providerCfg.Name, err)
		}
		chat = p
	default:
		return nil, fmt.Errorf("provider %q has unknown type %q", providerCfg.Name, providerCfg.Type)
	}

	backend := memstore.New()
	retriever := contextretrieval.New(backend, func(messageID string) {
		logger.Warn("dropped orphan tool message", agentlog.Message(messageID))
	})

	maxRetries := agentCfg.Defaults.MaxRetries

	return agent.New(agent.Agent{
		Name:         agentCfg.Name,
		ProviderName: providerCfg.Name,
		Chat:         chat,
		EmbedModel:   llm.AsEmbeddingModel(chat),
		ChatModel:    providerCfg.Model,
		Instructions: agentCfg.Defaults.Instructions,
		MaxRetries:   maxRetries,
		Backend:      backend,
		Retriever:    retriever,
		ContextDefaults: contextretrieval.Options{
			RecentMessages:      agentCfg.Defaults.Context.RecentMessages,
			ExcludeToolMessages: agentCfg.Defaults.Context.ExcludeToolMessages,
			IncludeToolCalls:    agentCfg.Defaults.Context.IncludeToolCalls,
			Search: contextretrieval.SearchOptions{
				TextSearch:         agentCfg.Defaults.Context.Search.TextSearch,
				VectorSearch:       agentCfg.Defaults.Context.Search.VectorSearch,
				Limit:              agentCfg.Defaults.Context.Search.Limit,
				MessageRangeBefore: agentCfg.Defaults.Context.Search.MessageRangeBefore,
				MessageRangeAfter:  agentCfg.Defaults.Context.Search.MessageRangeAfter,
				SearchOtherThreads: agentCfg.Defaults.Context.Search.SearchOtherThreads,
			},
		},
		StorageDefaults: agent.StorageDefaults{
			SaveAnyInputMessages: agentCfg.Defaults.Storage.SaveAnyInputMessages,
			SaveAllInputMessages: agentCfg.Defaults.Storage.SaveAllInputMessages,
			SaveOutputMessages:   agentCfg.Defaults.Storage.SaveOutputMessages,
		},
		Logger: logger,
	}), nil
}
