package gateway

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"smart-ats/internal/config"
)

// Catalog 用于状态查询和模型校验的提供方信息
type Catalog struct {
	OllamaURL  string
	HTTPClient *http.Client
	// Hosted 托管服务的模型目录；Configured 表示是否配置了 API Key
	Hosted map[Provider]HostedEntry
}

// HostedEntry 托管服务的配置状态
type HostedEntry struct {
	Configured bool
	Models     []string
}

// CatalogFromConfig 从提供方配置构造目录
func CatalogFromConfig(cfg config.ProvidersConfig) Catalog {
	return Catalog{
		OllamaURL: cfg.Ollama.BaseURL,
		Hosted: map[Provider]HostedEntry{
			ProviderGemini: {Configured: cfg.Gemini.APIKey != "", Models: cfg.Gemini.Models},
			ProviderOpenAI: {Configured: cfg.OpenAI.APIKey != "", Models: cfg.OpenAI.Models},
			ProviderClaude: {Configured: cfg.Claude.APIKey != "", Models: cfg.Claude.Models},
		},
	}
}

// WithCatalog 设置模型目录
func WithCatalog(c Catalog) Option {
	return func(g *Gateway) {
		g.catalog = c
	}
}

// ProviderStatus 单个提供方的可用状态
type ProviderStatus struct {
	Available bool     `json:"available"`
	Models    []string `json:"models"`
}

// ModelStatus 返回所有提供方的可用状态。Ollama 通过 /api/tags 实时探测，
// 探测失败时视为不可用。
func (g *Gateway) ModelStatus(ctx context.Context) map[Provider]ProviderStatus {
	status := make(map[Provider]ProviderStatus, len(Providers))

	ollama := ProviderStatus{Models: []string{}}
	if g.catalog.OllamaURL != "" {
		names, err := ListOllamaModels(ctx, g.catalog.HTTPClient, g.catalog.OllamaURL)
		if err != nil {
			g.logger.Debug().Err(err).Str("url", g.catalog.OllamaURL).Msg("Ollama 不可用")
		} else if len(names) > 0 {
			ollama = ProviderStatus{Available: true, Models: names}
		}
	}
	status[ProviderOllama] = ollama

	for _, p := range []Provider{ProviderGemini, ProviderOpenAI, ProviderClaude} {
		entry := g.catalog.Hosted[p]
		models := entry.Models
		if models == nil {
			models = []string{}
		}
		status[p] = ProviderStatus{Available: entry.Configured, Models: models}
	}
	return status
}

// ValidateModel 校验托管服务的模型是否在目录中；Ollama 的模型名不做限制
func (g *Gateway) ValidateModel(p Provider, modelName string) error {
	if _, ok := g.backends[p]; !ok {
		return newUnknownProviderError(string(p))
	}
	if modelName == "" {
		return &ProviderError{Provider: p, Op: "validate", BaseErr: ErrProviderNotConfigured, Detail: "model is required"}
	}
	if p == ProviderOllama {
		return nil
	}
	entry, ok := g.catalog.Hosted[p]
	if !ok || len(entry.Models) == 0 {
		return nil
	}
	if !slices.Contains(entry.Models, modelName) {
		return &ProviderError{
			Provider: p,
			Model:    modelName,
			Op:       "validate",
			BaseErr:  ErrProviderNotConfigured,
			Detail:   fmt.Sprintf("Unknown model '%s' for provider %s", modelName, p),
		}
	}
	return nil
}
