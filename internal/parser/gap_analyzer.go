package parser

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"smart-ats/internal/gateway"
	"smart-ats/internal/types"
)

// GapAnalyzer 比较结构化简历与 JD，结果仅作参考
type GapAnalyzer struct {
	sender gateway.Sender
	logger *zerolog.Logger
}

// NewGapAnalyzer 创建差距分析器
func NewGapAnalyzer(sender gateway.Sender, opts ...StageOption) *GapAnalyzer {
	o := applyStageOptions(opts)
	return &GapAnalyzer{sender: sender, logger: o.logger}
}

// Analyze 执行差距分析。模型输出无法解析时返回全空结果且 error 为 nil；
// 网关错误照常返回。
func (a *GapAnalyzer) Analyze(ctx context.Context, resume *types.ParsedResume, jobDescription, jobPosition string, provider gateway.Provider, modelName string) (*types.GapAnalysis, error) {
	ctx, span := tracer.Start(ctx, "GapAnalyzer.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", modelName),
		attribute.String("job.position", jobPosition),
	)

	response, err := a.sender.Send(ctx, BuildGapPrompt(resume, jobDescription, jobPosition), provider, modelName)
	if err != nil {
		return nil, err
	}

	var raw gapResponse
	if err := decodeLLMJSON(response, &raw); err != nil {
		a.logger.Warn().Err(err).Msg("差距分析结果无法解析，使用空结果")
		span.SetAttributes(attribute.Bool("gap.degraded", true))
		return types.NewEmptyGapAnalysis(), nil
	}
	gap := raw.toGap()

	span.SetAttributes(
		attribute.Int("gap.missing_count", len(gap.MissingKeywords)),
		attribute.Int("gap.matched_count", len(gap.MatchedSkills)),
	)
	return gap, nil
}
