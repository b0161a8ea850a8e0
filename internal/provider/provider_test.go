package provider

import (
	"context"
	"testing"

	"github.com/zslzxy/toolmesh/internal/config"
)

func TestNewChatModel_NoProvider(t *testing.T) {
	cfg := config.DefaultConfig()

	_, err := NewChatModel(context.Background(), cfg)
	if err == nil {
		t.Error("expected error when no provider configured")
	}
}

func TestProviderFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  providerName
	}{
		{model: "openai/gpt-4o", want: providerOpenAI},
		{model: "anthropic/claude-sonnet-4-5", want: providerClaude},
		{model: "claude/claude-3-5-sonnet", want: providerClaude},
		{model: "deepseek/deepseek-chat", want: providerDeepSeek},
		{model: "ollama/llama3.1", want: providerOllama},
		{model: "unknown/model", want: ""},
		{model: "no-prefix-model", want: ""},
	}

	for _, tt := range tests {
		if got := providerFromModel(tt.model); got != tt.want {
			t.Fatalf("providerFromModel(%q)=%q want %q", tt.model, got, tt.want)
		}
	}
}

func TestResolveProvider_PrefersModelMappedProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Model = "openai/gpt-4o"
	cfg.Providers.OpenRouter.APIKey = "openrouter-key"
	cfg.Providers.OpenAI.APIKey = "openai-key"

	got, p, err := resolveProvider(cfg)
	if err != nil {
		t.Fatalf("resolveProvider returned error: %v", err)
	}
	if got != providerOpenAI || p.APIKey != "openai-key" {
		t.Fatalf("expected provider %q, got %q", providerOpenAI, got)
	}
}

func TestResolveProvider_FallbackOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Model = "no-prefix-model"
	cfg.Providers.Ollama.BaseURL = "http://ollama:11434"
	cfg.Providers.DeepSeek.APIKey = "deepseek-key"

	got, _, err := resolveProvider(cfg)
	if err != nil {
		t.Fatalf("resolveProvider returned error: %v", err)
	}
	if got != providerDeepSeek {
		t.Fatalf("expected provider %q, got %q", providerDeepSeek, got)
	}
}

func TestResolveProvider_OllamaNeedsBaseURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Model = "ollama/llama3.1"
	cfg.Providers.Ollama.APIKey = "ignored"

	if _, _, err := resolveProvider(cfg); err == nil {
		t.Fatal("expected error when ollama has no base_url")
	}
}

func TestModelID(t *testing.T) {
	tests := []struct {
		provider providerName
		model    string
		want     string
	}{
		{providerOpenAI, "openai/gpt-4o", "gpt-4o"},
		{providerOpenRouter, "anthropic/claude-sonnet-4-5", "anthropic/claude-sonnet-4-5"},
		{providerOpenRouter, "openrouter/meta/llama", "meta/llama"},
		{providerDeepSeek, "deepseek-chat", "deepseek-chat"},
	}
	for _, tt := range tests {
		if got := modelID(tt.provider, tt.model); got != tt.want {
			t.Fatalf("modelID(%q, %q)=%q want %q", tt.provider, tt.model, got, tt.want)
		}
	}
}

func TestNewChatModel_BuildsConfiguredProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Model = "deepseek/deepseek-chat"
	cfg.Providers.DeepSeek.APIKey = "deepseek-key"

	m, err := NewChatModel(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewChatModel error: %v", err)
	}
	if m == nil {
		t.Fatal("expected model instance")
	}
}
