// Package gateway 为多个LLM提供方提供统一的 "发送提示词，获取文本" 能力，
// 并负责重试、退避、限流和调用审计。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"smart-ats/internal/logger"
	"smart-ats/internal/tracing"
)

var tracer = otel.Tracer("smart-ats/gateway")

// Provider 模型提供方
type Provider string

const (
	ProviderOllama Provider = "Ollama"
	ProviderGemini Provider = "Gemini"
	ProviderOpenAI Provider = "OpenAI"
	ProviderClaude Provider = "Claude"
)

// Providers 所有已知提供方，顺序固定
var Providers = []Provider{ProviderOllama, ProviderGemini, ProviderOpenAI, ProviderClaude}

// ParseProvider 不区分大小写地解析提供方名称
func ParseProvider(name string) (Provider, error) {
	trimmed := strings.TrimSpace(name)
	for _, p := range Providers {
		if strings.EqualFold(string(p), trimmed) {
			return p, nil
		}
	}
	return "", newUnknownProviderError(name)
}

// Sender 是流水线各阶段依赖的最小能力
type Sender interface {
	Send(ctx context.Context, prompt string, provider Provider, modelName string) (string, error)
}

// ChatModelFactory 按模型名构造一个聊天模型
type ChatModelFactory func(ctx context.Context, modelName string) (model.BaseChatModel, error)

// BackendConfig 单个提供方的注册信息
type BackendConfig struct {
	Factory     ChatModelFactory
	MaxAttempts int
	QPM         int
}

type backend struct {
	factory     ChatModelFactory
	maxAttempts int
	limiter     *TokenBucket

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

func (b *backend) chatModel(ctx context.Context, modelName string) (model.BaseChatModel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.models[modelName]; ok {
		return m, nil
	}
	m, err := b.factory(ctx, modelName)
	if err != nil {
		return nil, err
	}
	b.models[modelName] = m
	return m, nil
}

// SleepFunc 在退避期间等待，ctx 取消时提前返回
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Gateway 统一的模型调用入口
type Gateway struct {
	backends map[Provider]*backend
	catalog  Catalog
	recorder CallRecorder
	logger   *zerolog.Logger
	sleep    SleepFunc
	backoff  func(attempt int) time.Duration
	tracer   trace.Tracer
}

// Option 网关配置选项
type Option func(*Gateway)

// WithBackend 注册或替换一个提供方
func WithBackend(p Provider, cfg BackendConfig) Option {
	return func(g *Gateway) {
		g.register(p, cfg)
	}
}

// WithRecorder 设置调用审计记录器
func WithRecorder(r CallRecorder) Option {
	return func(g *Gateway) {
		g.recorder = r
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger.OrNop(l)
	}
}

// WithSleep 替换退避等待函数，测试中用于跳过真实等待
func WithSleep(s SleepFunc) Option {
	return func(g *Gateway) {
		g.sleep = s
	}
}

// New 创建一个没有任何后端的网关，通过 WithBackend 注册提供方
func New(opts ...Option) *Gateway {
	g := &Gateway{
		backends: make(map[Provider]*backend),
		recorder: noopRecorder{},
		logger:   logger.OrNop(nil),
		sleep:    sleepContext,
		backoff:  ExponentialBackoff,
		tracer:   tracer,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) register(p Provider, cfg BackendConfig) {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var limiter *TokenBucket
	if cfg.QPM > 0 {
		limiter = NewTokenBucket(cfg.QPM, cfg.QPM/2)
	}
	g.backends[p] = &backend{
		factory:     cfg.Factory,
		maxAttempts: attempts,
		limiter:     limiter,
		models:      make(map[string]model.BaseChatModel),
	}
}

// ExponentialBackoff 第 attempt 次失败后的等待时长：2^attempt 秒
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// MaxAttempts 返回提供方的最大尝试次数，未注册时为0
func (g *Gateway) MaxAttempts(p Provider) int {
	if b, ok := g.backends[p]; ok {
		return b.maxAttempts
	}
	return 0
}

// Send 向指定提供方发送提示词并返回去除首尾空白的文本
func (g *Gateway) Send(ctx context.Context, prompt string, provider Provider, modelName string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "Gateway.Send", trace.WithAttributes(
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", modelName),
		attribute.Int("llm.prompt_chars", len(prompt)),
		attribute.String("llm.prompt", tracing.SafePrompt(prompt)),
	))
	defer span.End()

	b, ok := g.backends[provider]
	if !ok {
		err := newUnknownProviderError(string(provider))
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return "", err
	}

	chat, err := b.chatModel(ctx, modelName)
	if err != nil {
		perr := newNotConfiguredError(provider, modelName, err)
		tracing.RecordError(span, perr, tracing.ErrorTypeValidation)
		return "", perr
	}

	started := time.Now()
	record := CallRecord{
		ID:          newCallID(),
		Provider:    string(provider),
		Model:       modelName,
		PromptChars: len([]rune(prompt)),
		StartedAt:   started,
	}

	messages := []*schema.Message{schema.UserMessage(prompt)}
	var lastErr error
	attempt := 0
	for ; attempt < b.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := g.backoff(attempt - 1)
			g.logger.Warn().
				Str("provider", string(provider)).
				Str("model", modelName).
				Int("attempt", attempt+1).
				Dur("backoff", wait).
				Err(lastErr).
				Msg("模型调用失败，退避后重试")
			if err := g.sleep(ctx, wait); err != nil {
				lastErr = err
				break
			}
		}

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		resp, genErr := chat.Generate(ctx, messages)
		if genErr == nil {
			text := ""
			if resp != nil {
				text = strings.TrimSpace(resp.Content)
			}
			record.Attempts = attempt + 1
			record.Latency = time.Since(started)
			record.Success = true
			record.ResponseChars = len([]rune(text))
			g.recorder.RecordCall(ctx, record)
			span.SetAttributes(
				attribute.Int("llm.attempts", attempt+1),
				attribute.Int("llm.response_chars", record.ResponseChars),
				attribute.String("llm.response", tracing.SafeAttributeValue("llm.response", text, tracing.DefaultMaxLength)),
			)
			g.logger.Debug().
				Str("provider", string(provider)).
				Str("model", modelName).
				Int("attempts", attempt+1).
				Dur("latency", record.Latency).
				Msg("模型调用成功")
			return text, nil
		}

		lastErr = genErr
		if !isRetryable(ctx, genErr) {
			attempt++
			break
		}
	}

	perr := &ProviderError{
		Provider: provider,
		Model:    modelName,
		Op:       "send",
		Attempts: attempt,
		BaseErr:  ErrTransport,
		Detail:   terminalMessage(provider, lastErr),
		cause:    lastErr,
	}
	record.Attempts = attempt
	record.Latency = time.Since(started)
	record.ErrorKind = errorKind(lastErr)
	g.recorder.RecordCall(ctx, record)
	tracing.RecordLLMError(span, perr, string(provider), modelName, attempt)
	g.logger.Error().
		Str("provider", string(provider)).
		Str("model", modelName).
		Int("attempts", attempt).
		Err(lastErr).
		Msg("模型调用最终失败")
	return "", perr
}

// isRetryable 连接失败与调用方取消不重试，其余错误均可重试
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, ErrProviderUnreachable) && !errors.Is(err, ErrProviderNotConfigured)
}

func terminalMessage(p Provider, err error) string {
	var be *backendError
	if errors.As(err, &be) && be.msg != "" {
		return be.msg
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s API call timed out: %v", p, err)
	}
	return fmt.Sprintf("%s API call failed: %v", p, err)
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProviderUnreachable):
		return "unreachable"
	case errors.Is(err, ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrProviderStatus):
		return "status"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}

func newCallID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Must(uuid.NewV4()).String()
	}
	return id.String()
}
