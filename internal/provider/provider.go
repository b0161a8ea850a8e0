package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/zslzxy/toolmesh/internal/config"
)

type providerName string

const (
	providerOpenRouter providerName = "openrouter"
	providerClaude     providerName = "claude"
	providerOpenAI     providerName = "openai"
	providerDeepSeek   providerName = "deepseek"
	providerOllama     providerName = "ollama"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	deepSeekBaseURL   = "https://api.deepseek.com/v1"
	ollamaBaseURL     = "http://localhost:11434"
)

// fallbackOrder is used when the model name carries no provider prefix.
var fallbackOrder = []providerName{
	providerOpenRouter,
	providerClaude,
	providerOpenAI,
	providerDeepSeek,
	providerOllama,
}

// NewChatModel creates a streaming chat model based on configuration.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	name, p, err := resolveProvider(cfg)
	if err != nil {
		return nil, err
	}
	a := cfg.Agent
	a.Model = modelID(name, a.Model)

	switch name {
	case providerClaude:
		return newClaudeModel(ctx, p, a)
	case providerOllama:
		return newOllamaModel(ctx, p, a)
	case providerOpenRouter:
		return newOpenAICompatibleModel(ctx, p, a, openRouterBaseURL)
	case providerDeepSeek:
		return newOpenAICompatibleModel(ctx, p, a, deepSeekBaseURL)
	default:
		return newOpenAICompatibleModel(ctx, p, a, "")
	}
}

// resolveProvider picks the provider named by the model prefix when it is
// configured, otherwise the first configured provider in fallback order.
func resolveProvider(cfg *config.Config) (providerName, config.ProviderConfig, error) {
	if name := providerFromModel(cfg.Agent.Model); name != "" {
		if p := providerConfig(cfg, name); isConfigured(name, p) {
			return name, p, nil
		}
	}
	for _, name := range fallbackOrder {
		if p := providerConfig(cfg, name); isConfigured(name, p) {
			return name, p, nil
		}
	}
	return "", config.ProviderConfig{}, fmt.Errorf("no provider configured: set api_key for at least one provider")
}

func providerFromModel(modelName string) providerName {
	prefix, _, ok := strings.Cut(strings.TrimSpace(modelName), "/")
	if !ok {
		return ""
	}
	switch strings.ToLower(prefix) {
	case "openrouter":
		return providerOpenRouter
	case "anthropic", "claude":
		return providerClaude
	case "openai":
		return providerOpenAI
	case "deepseek":
		return providerDeepSeek
	case "ollama":
		return providerOllama
	default:
		return ""
	}
}

// modelID strips the routing prefix except for OpenRouter, whose model ids
// are themselves vendor-qualified.
func modelID(name providerName, modelName string) string {
	modelName = strings.TrimSpace(modelName)
	if name == providerOpenRouter {
		return strings.TrimPrefix(modelName, "openrouter/")
	}
	if providerFromModel(modelName) != "" {
		_, rest, _ := strings.Cut(modelName, "/")
		return rest
	}
	return modelName
}

func providerConfig(cfg *config.Config, name providerName) config.ProviderConfig {
	p := cfg.Providers
	switch name {
	case providerOpenRouter:
		return p.OpenRouter
	case providerClaude:
		return p.Claude
	case providerOpenAI:
		return p.OpenAI
	case providerDeepSeek:
		return p.DeepSeek
	case providerOllama:
		return p.Ollama
	default:
		return config.ProviderConfig{}
	}
}

func isConfigured(name providerName, p config.ProviderConfig) bool {
	if name == providerOllama {
		return strings.TrimSpace(p.BaseURL) != ""
	}
	return strings.TrimSpace(p.APIKey) != ""
}

func newOpenAICompatibleModel(ctx context.Context, p config.ProviderConfig, a config.AgentConfig, defaultBaseURL string) (model.BaseChatModel, error) {
	cfg := &openai.ChatModelConfig{
		Model:       a.Model,
		APIKey:      p.APIKey,
		BaseURL:     defaultBaseURL,
		Temperature: toFloat32Ptr(a.Temperature),
		MaxTokens:   toIntPtr(a.MaxTokens),
	}
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
	}
	return openai.NewChatModel(ctx, cfg)
}

func newClaudeModel(ctx context.Context, p config.ProviderConfig, a config.AgentConfig) (model.BaseChatModel, error) {
	cfg := &claude.Config{
		APIKey:      p.APIKey,
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		Temperature: toFloat32Ptr(a.Temperature),
	}
	if p.BaseURL != "" {
		baseURL := p.BaseURL
		cfg.BaseURL = &baseURL
	}
	return claude.NewChatModel(ctx, cfg)
}

func newOllamaModel(ctx context.Context, p config.ProviderConfig, a config.AgentConfig) (model.BaseChatModel, error) {
	baseURL := strings.TrimSpace(p.BaseURL)
	if baseURL == "" {
		baseURL = ollamaBaseURL
	}
	return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   a.Model,
	})
}

func toFloat32Ptr(f float64) *float32 {
	v := float32(f)
	return &v
}

func toIntPtr(i int) *int {
	return &i
}
