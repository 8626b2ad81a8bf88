package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"smart-ats/internal/gateway"
	"smart-ats/internal/types"
)

// Reconstructor 在严格模式下按 JD 重写简历：只允许改写、重排、强调或删减，不允许引入新事实
type Reconstructor struct {
	sender gateway.Sender
	logger *zerolog.Logger
}

// NewReconstructor 创建重构器
func NewReconstructor(sender gateway.Sender, opts ...StageOption) *Reconstructor {
	o := applyStageOptions(opts)
	return &Reconstructor{sender: sender, logger: o.logger}
}

// Reconstruct 使用已有的差距分析执行一次重构调用
func (r *Reconstructor) Reconstruct(ctx context.Context, resume *types.ParsedResume, jobDescription, jobPosition string, gap *types.GapAnalysis, provider gateway.Provider, modelName string) (string, error) {
	ctx, span := tracer.Start(ctx, "Reconstructor.Reconstruct")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", modelName),
		attribute.Bool("gap.available", !gap.IsEmpty()),
	)

	prompt := BuildReconstructPrompt(resume, jobDescription, jobPosition, gap)
	response, err := r.sender.Send(ctx, prompt, provider, modelName)
	if err != nil {
		return "", err
	}

	text, found := PostProcess(response)
	if !found {
		r.logger.Warn().Msg("重构结果中未找到 HEADER 标记，按原样返回")
	}
	span.SetAttributes(
		attribute.Bool("reconstruct.header_found", found),
		attribute.Int("reconstruct.length", len(text)),
	)
	return text, nil
}

// ReconstructFast 用一次模型调用同时完成差距分析和重构。
// 差距部分无法解析时返回空分析，重构文本照常返回；网关错误直接返回。
func (r *Reconstructor) ReconstructFast(ctx context.Context, resume *types.ParsedResume, jobDescription, jobPosition string, provider gateway.Provider, modelName string) (*types.GapAnalysis, string, error) {
	ctx, span := tracer.Start(ctx, "Reconstructor.ReconstructFast")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", modelName),
	)

	response, err := r.sender.Send(ctx, BuildFastReconstructPrompt(resume, jobDescription, jobPosition), provider, modelName)
	if err != nil {
		return nil, "", err
	}

	gap, text, found := splitFastResponse(response)
	if !found {
		r.logger.Warn().Msg("合并输出中未找到 HEADER 标记，按原样返回")
	}
	if gap.IsEmpty() {
		r.logger.Warn().Msg("合并输出中的差距分析为空或无法解析，使用空结果")
	}
	span.SetAttributes(
		attribute.Bool("reconstruct.header_found", found),
		attribute.Bool("gap.available", !gap.IsEmpty()),
		attribute.Int("reconstruct.length", len(text)),
	)
	return gap, text, nil
}

// splitFastResponse 以 HEADER 标记为界拆分合并输出：之前是差距分析 JSON，之后是简历文本
func splitFastResponse(response string) (gap *types.GapAnalysis, text string, found bool) {
	gap = types.NewEmptyGapAnalysis()
	loc := headerMarkerRe.FindStringIndex(response)
	if loc == nil {
		text, found = PostProcess(response)
		return gap, text, found
	}

	var raw gapResponse
	if err := decodeLLMJSON(response[:loc[0]], &raw); err == nil {
		gap = raw.toGap()
	}
	text, found = PostProcess(response[loc[0]:])
	return gap, text, found
}

var headerMarkerRe = regexp.MustCompile(`(?im)^[ \t]*===[ \t]*HEADER[ \t]*===`)

// PostProcess 去掉代码块标记并丢弃 HEADER 标记之前的说明文字。
// 找不到标记时返回清理后的原文，found 为 false。
func PostProcess(response string) (text string, found bool) {
	text = stripCodeFence(response)
	loc := headerMarkerRe.FindStringIndex(text)
	if loc == nil {
		return text, false
	}
	return strings.TrimSpace(text[loc[0]:]), true
}

// Validate 检查重构结果是否保留了身份信息和技能章节，警告不影响结果交付
func Validate(original *types.ParsedResume, text string) types.ValidationResult {
	if original == nil {
		original = &types.ParsedResume{}
	}
	result := types.ValidationResult{
		Valid:                   true,
		Warnings:                []string{},
		OriginalName:            original.Name,
		OriginalEmail:           original.Email,
		OriginalSkillsCount:     len(original.Skills),
		OriginalExperienceCount: len(original.Experience),
	}

	lower := strings.ToLower(text)
	if original.Name != "" && !strings.Contains(lower, strings.ToLower(original.Name)) {
		result.Warnings = append(result.Warnings, "Original name may not be present in output")
	}
	if original.Email != "" && !strings.Contains(lower, strings.ToLower(original.Email)) {
		result.Warnings = append(result.Warnings, "Original email may not be present in output")
	}
	if !strings.Contains(lower, "skills") {
		result.Warnings = append(result.Warnings, "Skills section may be missing")
	}
	result.Valid = len(result.Warnings) == 0
	return result
}

var sectionMarkerRe = regexp.MustCompile(`^===\s*(.+?)\s*===$`)

// SplitSections 把模板文本切分为有序的章节。标记之前的内容归入 UNKNOWN 章节。
func SplitSections(text string) []types.ResumeSection {
	var sections []types.ResumeSection
	var current *types.ResumeSection

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if m := sectionMarkerRe.FindStringSubmatch(line); m != nil {
			title := strings.ToUpper(m[1])
			sections = append(sections, types.ResumeSection{
				Type:  sectionTypeOf(title),
				Title: title,
				Lines: []string{},
			})
			current = &sections[len(sections)-1]
			continue
		}
		if current == nil {
			sections = append(sections, types.ResumeSection{
				Type:  types.SectionUnknown,
				Title: "",
				Lines: []string{},
			})
			current = &sections[len(sections)-1]
		}
		current.Lines = append(current.Lines, line)
	}
	if sections == nil {
		return []types.ResumeSection{}
	}
	return sections
}

func sectionTypeOf(title string) types.SectionType {
	for _, s := range types.TemplateSections {
		if string(s) == title {
			return s
		}
	}
	return types.SectionUnknown
}

// TemplateInfo 描述重构输出使用的模板
type TemplateInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Sections    []string          `json:"sections"`
	Markers     []string          `json:"markers"`
	Formatting  map[string]string `json:"formatting"`
	Policy      string            `json:"policy"`
}

// DefaultTemplateInfo 返回默认模板信息
func DefaultTemplateInfo() TemplateInfo {
	markers := make([]string, len(types.TemplateSections))
	for i, s := range types.TemplateSections {
		markers[i] = s.Marker()
	}
	return TemplateInfo{
		Name:        "Professional Clean Template",
		Description: "Clean and professional resume template with clear sections",
		Sections: []string{
			"Header (Name & Contact)",
			"Professional Summary",
			"Skills",
			"Professional Experience",
			"Projects",
			"Education",
			"Certifications",
			"Languages",
		},
		Markers: markers,
		Formatting: map[string]string{
			"output":          "plain text",
			"section_headers": "=== SECTION ===",
			"bullets":         "•",
			"separator":       " | ",
		},
		Policy: "strict: content is rephrased, reordered, emphasized or dropped, never invented",
	}
}
