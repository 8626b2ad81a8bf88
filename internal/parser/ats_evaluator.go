package parser

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"smart-ats/internal/gateway"
	"smart-ats/internal/tracing"
	"smart-ats/internal/types"
)

// ATSEvaluator 按 ATS 的视角给简历与 JD 的匹配度打分
type ATSEvaluator struct {
	sender gateway.Sender
	logger *zerolog.Logger
}

// NewATSEvaluator 创建 ATS 评估器
func NewATSEvaluator(sender gateway.Sender, opts ...StageOption) *ATSEvaluator {
	o := applyStageOptions(opts)
	return &ATSEvaluator{sender: sender, logger: o.logger}
}

// atsResponse 模型返回的原始结构，字段类型宽松
type atsResponse struct {
	JDMatch         flexText    `json:"JD Match"`
	MissingKeywords flexStrings `json:"MissingKeywords"`
	KeyStrength     flexText    `json:"KeyStrength"`
	Recommendations flexText    `json:"Recommendations"`
	ProfileSummary  flexText    `json:"Profile Summary"`
	ExperienceMatch flexText    `json:"ExperienceMatch"`
	SkillsMatch     flexText    `json:"SkillsMatch"`
	EducationMatch  flexText    `json:"EducationMatch"`
}

// Evaluate 执行 ATS 评估，百分比字段统一为 "NN%"
func (e *ATSEvaluator) Evaluate(ctx context.Context, cvText, jobDescription, jobPosition string, provider gateway.Provider, modelName string) (*types.ATSAnalysis, error) {
	ctx, span := tracer.Start(ctx, "ATSEvaluator.Evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", modelName),
		attribute.String("job.position", jobPosition),
	)

	response, err := e.sender.Send(ctx, BuildATSPrompt(cvText, jobDescription, jobPosition), provider, modelName)
	if err != nil {
		return nil, err
	}

	var raw atsResponse
	if err := decodeLLMJSON(response, &raw); err != nil {
		perr := newParseError(StageATS, response, err)
		tracing.RecordError(span, perr, tracing.ErrorTypeParse)
		e.logger.Warn().Str("detail", perr.Detail()).Msg("ATS评估结果解析失败")
		return nil, perr
	}

	analysis := &types.ATSAnalysis{
		JDMatch:         NormalizePercent(string(raw.JDMatch)),
		MissingKeywords: []string(raw.MissingKeywords),
		KeyStrength:     string(raw.KeyStrength),
		Recommendations: string(raw.Recommendations),
		ProfileSummary:  string(raw.ProfileSummary),
		ExperienceMatch: NormalizePercent(string(raw.ExperienceMatch)),
		SkillsMatch:     NormalizePercent(string(raw.SkillsMatch)),
		EducationMatch:  NormalizePercent(string(raw.EducationMatch)),
	}
	if analysis.MissingKeywords == nil {
		analysis.MissingKeywords = []string{}
	}
	span.SetAttributes(attribute.String("ats.jd_match", analysis.JDMatch))
	return analysis, nil
}

var percentRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// NormalizePercent 把 "85"、"85 %"、"0.85"、"85.4%" 等写法统一为 "85%"。
// 没有数字时原样返回。
func NormalizePercent(value string) string {
	s := strings.TrimSpace(value)
	m := percentRe.FindString(s)
	if m == "" {
		return s
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return s
	}
	if f > 0 && f <= 1 && strings.Contains(m, ".") && !strings.Contains(s, "%") {
		f *= 100
	}
	f = math.Max(0, math.Min(100, f))
	return fmt.Sprintf("%d%%", int(math.Round(f)))
}
