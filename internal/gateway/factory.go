package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/components/model"

	"smart-ats/internal/config"
)

var errMissingAPIKey = errors.New("API key is not set")

// NewFromConfig 按配置注册四个提供方。托管服务缺少 API Key 时仍会注册，
// 调用时返回 ErrProviderNotConfigured。
func NewFromConfig(cfg config.ProvidersConfig, opts ...Option) *Gateway {
	ollama := cfg.Ollama
	openai := cfg.OpenAI
	gemini := cfg.Gemini
	claude := cfg.Claude

	base := []Option{
		WithBackend(ProviderOllama, BackendConfig{
			MaxAttempts: ollama.MaxRetries,
			QPM:         ollama.QPM,
			Factory: func(_ context.Context, modelName string) (model.BaseChatModel, error) {
				return NewOllamaChatModel(ollama.BaseURL, modelName, seconds(ollama.TimeoutSeconds)), nil
			},
		}),
		WithBackend(ProviderOpenAI, BackendConfig{
			MaxAttempts: openai.MaxRetries,
			QPM:         openai.QPM,
			Factory: func(_ context.Context, modelName string) (model.BaseChatModel, error) {
				if openai.APIKey == "" {
					return nil, errMissingAPIKey
				}
				return NewOpenAIChatModel(openai.APIKey, modelName, openai.BaseURL, openai.Temperature, seconds(openai.TimeoutSeconds))
			},
		}),
		WithBackend(ProviderGemini, BackendConfig{
			MaxAttempts: gemini.MaxRetries,
			QPM:         gemini.QPM,
			Factory: func(ctx context.Context, modelName string) (model.BaseChatModel, error) {
				if gemini.APIKey == "" {
					return nil, errMissingAPIKey
				}
				return NewGeminiChatModel(context.WithoutCancel(ctx), gemini.APIKey, modelName, seconds(gemini.TimeoutSeconds))
			},
		}),
		WithBackend(ProviderClaude, BackendConfig{
			MaxAttempts: claude.MaxRetries,
			QPM:         claude.QPM,
			Factory: func(_ context.Context, modelName string) (model.BaseChatModel, error) {
				if claude.APIKey == "" {
					return nil, errMissingAPIKey
				}
				return NewClaudeChatModel(claude.APIKey, modelName, claude.MaxTokens, seconds(claude.TimeoutSeconds))
			},
		}),
		WithCatalog(CatalogFromConfig(cfg)),
	}
	return New(append(base, opts...)...)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
