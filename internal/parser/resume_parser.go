package parser

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"smart-ats/internal/gateway"
	"smart-ats/internal/logger"
	"smart-ats/internal/tracing"
	"smart-ats/internal/types"
)

var tracer = otel.Tracer("smart-ats/parser")

// ResumeParser 通过一次模型调用把简历文本转换为 ParsedResume
type ResumeParser struct {
	sender gateway.Sender
	logger *zerolog.Logger
}

// StageOption 配置各个 LLM 阶段
type StageOption func(*stageOptions)

type stageOptions struct {
	logger *zerolog.Logger
}

// WithStageLogger 设置阶段日志记录器
func WithStageLogger(l *zerolog.Logger) StageOption {
	return func(o *stageOptions) {
		o.logger = l
	}
}

func applyStageOptions(opts []StageOption) stageOptions {
	var o stageOptions
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logger.OrNop(o.logger)
	return o
}

// NewResumeParser 创建简历解析器
func NewResumeParser(sender gateway.Sender, opts ...StageOption) *ResumeParser {
	o := applyStageOptions(opts)
	return &ResumeParser{sender: sender, logger: o.logger}
}

// Parse 提取结构化简历。缺失字段取空值，null 数组变为空数组。
// 格式错误直接返回 *ParseError，不在本层重试。
func (p *ResumeParser) Parse(ctx context.Context, text string, provider gateway.Provider, modelName string) (*types.ParsedResume, error) {
	ctx, span := tracer.Start(ctx, "ResumeParser.Parse")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", modelName),
		attribute.Int("resume.text_length", len(text)),
	)

	response, err := p.sender.Send(ctx, BuildParsePrompt(text), provider, modelName)
	if err != nil {
		return nil, err
	}

	var raw resumeResponse
	if err := decodeLLMJSON(response, &raw); err != nil {
		perr := newParseError(StageParse, response, err)
		tracing.RecordError(span, perr, tracing.ErrorTypeParse)
		p.logger.Warn().Str("detail", perr.Detail()).Msg("简历结构化解析失败")
		return nil, perr
	}
	parsed := raw.toResume()

	span.SetAttributes(
		attribute.Int("resume.skills_count", len(parsed.Skills)),
		attribute.Int("resume.experience_count", len(parsed.Experience)),
	)
	p.logger.Debug().
		Str("name", tracing.MaskPII(parsed.Name)).
		Int("skills", len(parsed.Skills)).
		Int("experience", len(parsed.Experience)).
		Msg("简历解析完成")
	return parsed, nil
}
