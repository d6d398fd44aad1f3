// Package config loads the YAML-backed runtime configuration for an agent:
// which provider/model to chat with, retry budgets, and the default context
// and storage options every call falls back to when it supplies none of its
// own.
//
// Notes:
//   - Secrets (provider API keys) are read from environment variables named
//     in ProviderConfig.APIKeyEnv, never stored in the YAML file itself.
//   - Field names are snake_case.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderConfig names one configured LLM backend.
type ProviderConfig struct {
	// Name is this provider's local identifier, referenced by
	// AgentConfig.Provider.
	Name string `yaml:"name"`

	// Type selects the adapter: "openai" or "anthropic".
	Type string `yaml:"type"`

	// Model is the chat model id passed to the provider on every call.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the provider's API
	// key. Never populated from the file itself.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the default endpoint, for OpenAI-compatible or
	// Anthropic-compatible gateways.
	BaseURL string `yaml:"base_url,omitempty"`
}

// SearchDefaults is the shallow-mergeable search half of ContextDefaults.
type SearchDefaults struct {
	TextSearch         bool `yaml:"text_search,omitempty"`
	VectorSearch       bool `yaml:"vector_search,omitempty"`
	Limit              int  `yaml:"limit,omitempty"`
	MessageRangeBefore int  `yaml:"message_range_before,omitempty"`
	MessageRangeAfter  int  `yaml:"message_range_after,omitempty"`
	SearchOtherThreads bool `yaml:"search_other_threads,omitempty"`
}

// ContextDefaults is the recency+search half of an AgentDefaults or
// ThreadDefaults record.
type ContextDefaults struct {
	RecentMessages      *int           `yaml:"recent_messages,omitempty"`
	ExcludeToolMessages *bool          `yaml:"exclude_tool_messages,omitempty"`
	IncludeToolCalls    *bool          `yaml:"include_tool_calls,omitempty"`
	Search              SearchDefaults `yaml:"search,omitempty"`
}

// StorageDefaults is the persistence half of an AgentDefaults or
// ThreadDefaults record.
type StorageDefaults struct {
	SaveAnyInputMessages *bool `yaml:"save_any_input_messages,omitempty"`
	SaveAllInputMessages *bool `yaml:"save_all_input_messages,omitempty"`
	SaveOutputMessages   *bool `yaml:"save_output_messages,omitempty"`
}

// AgentDefaults is the agent-wide fallback record. Resolution is a
// deterministic precedence list, not class inheritance: callers resolve
// options by walking call-site -> ThreadDefaults -> AgentDefaults and taking
// the first non-nil value at each field, never merging partial records from
// different levels together.
type AgentDefaults struct {
	Chat         string          `yaml:"chat"`
	Instructions string          `yaml:"instructions,omitempty"`
	MaxRetries   int             `yaml:"max_retries,omitempty"`
	Context      ContextDefaults `yaml:"context,omitempty"`
	Storage      StorageDefaults `yaml:"storage,omitempty"`
}

// ThreadDefaults is the thread-level fallback record, one precedence step
// above AgentDefaults and one below the call site.
type ThreadDefaults struct {
	Context ContextDefaults `yaml:"context,omitempty"`
	Storage StorageDefaults `yaml:"storage,omitempty"`
}

// AgentConfig is one agent's full configuration.
type AgentConfig struct {
	Name     string        `yaml:"name"`
	Provider string        `yaml:"provider"`
	Defaults AgentDefaults `yaml:"defaults"`
}

// Config is the top-level configuration file: the provider registry plus
// every configured agent.
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
	Agents    []AgentConfig    `yaml:"agents"`
}

// Load reads and parses the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Provider looks up a configured provider by name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Agent looks up a configured agent by name.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}

