package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"smart-ats/internal/constants"
	"smart-ats/internal/gateway"
	"smart-ats/internal/logger"
	"smart-ats/internal/parser"
	"smart-ats/internal/processor"
	"smart-ats/internal/storage"
	"smart-ats/internal/types"
)

var reconstructMode = pflag.String("mode", constants.ModeFast, "重构模式: fast 或 full")

// jobDescription 读取 --jd 或 --jd-file
func jobDescription() (string, error) {
	jd := *jdText
	if *jdFile != "" {
		data, err := os.ReadFile(*jdFile)
		if err != nil {
			return "", fmt.Errorf("读取职位描述文件失败: %w", err)
		}
		jd = string(data)
	}
	if strings.TrimSpace(jd) == "" {
		return "", fmt.Errorf("必须提供职位描述，使用 --jd 或 --jd-file 参数")
	}
	return jd, nil
}

func selectedModel() (gateway.Provider, string, error) {
	p, err := gateway.ParseProvider(*provider)
	if err != nil {
		return "", "", err
	}
	if *modelName == "" {
		return "", "", fmt.Errorf("必须提供模型名称，使用 --model 参数")
	}
	return p, *modelName, nil
}

func (e *env) parseResume(ctx context.Context) (*types.ParsedResume, error) {
	p, m, err := selectedModel()
	if err != nil {
		return nil, err
	}
	_, text, err := e.extractText(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Printf("使用 %s/%s 解析简历...\n", p, m)
	resume, err := parser.NewResumeParser(e.gateway, parser.WithStageLogger(logger.Component("parser"))).Parse(ctx, text, p, m)
	if err != nil {
		return nil, fmt.Errorf("解析简历失败: %w", err)
	}
	return resume, nil
}

// 处理解析命令
func (e *env) handleParse(ctx context.Context) error {
	resume, err := e.parseResume(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("解析完成: %s，技能 %d 项，工作经历 %d 段\n", resume.Name, len(resume.Skills), len(resume.Experience))
	return emit(resume)
}

// 处理差距分析命令
func (e *env) handleGap(ctx context.Context) error {
	jd, err := jobDescription()
	if err != nil {
		return err
	}
	resume, err := e.parseResume(ctx)
	if err != nil {
		return err
	}
	p, m, _ := selectedModel()

	fmt.Println("分析差距...")
	gap, err := parser.NewGapAnalyzer(e.gateway, parser.WithStageLogger(logger.Component("parser"))).
		Analyze(ctx, resume, jd, *jobPosition, p, m)
	if err != nil {
		return fmt.Errorf("差距分析失败: %w", err)
	}
	return emit(gap)
}

// service 使用内存会话缓存的简历服务，单次命令内不需要预热
func (e *env) service() *processor.ResumeService {
	return processor.NewResumeService(e.gateway, e.extractor,
		storage.NewMemorySessionCache(e.cfg.CacheTTL()),
		processor.WithAllowedExtensions(e.cfg.Upload.AllowedExtensions),
		processor.WithPipelineTimeout(e.cfg.PipelineTimeout()),
		processor.WithServiceLogger(logger.Component("service")),
	)
}

// 处理重构命令
func (e *env) handleReconstruct(ctx context.Context) error {
	jd, err := jobDescription()
	if err != nil {
		return err
	}
	f, err := e.loadFile()
	if err != nil {
		return err
	}

	fmt.Printf("重构简历 (%s 模式): %s\n", *reconstructMode, f.Path)
	res, err := e.service().Reconstruct(ctx, processor.ReconstructRequest{
		FileName:       f.Name,
		FileBytes:      f.Bytes,
		JobDescription: jd,
		JobPosition:    *jobPosition,
		Provider:       *provider,
		Model:          *modelName,
		Mode:           *reconstructMode,
	})
	if err != nil {
		return err
	}

	fmt.Printf("校验结果: valid=%t，警告 %d 条\n", res.Validation.Valid, len(res.Validation.Warnings))
	for _, w := range res.Validation.Warnings {
		fmt.Printf("  - %s\n", w)
	}
	if *outFormat == "json" {
		return emit(res)
	}
	if *saveFile == "" {
		fmt.Printf("建议文件名: %s\n", res.DownloadName())
	}
	return emitText(res.ReconstructedText)
}

// 处理 ATS 评估命令
func (e *env) handleAnalyze(ctx context.Context) error {
	jd, err := jobDescription()
	if err != nil {
		return err
	}
	f, err := e.loadFile()
	if err != nil {
		return err
	}

	fmt.Printf("ATS 评估: %s\n", f.Path)
	res, err := e.service().Analyze(ctx, processor.AnalyzeRequest{
		FileName:       f.Name,
		FileBytes:      f.Bytes,
		JobDescription: jd,
		JobPosition:    *jobPosition,
		Provider:       *provider,
		Model:          *modelName,
	})
	if err != nil {
		return err
	}

	a := res.Analysis
	fmt.Printf("JD 匹配度: %s\n", a.JDMatch)
	fmt.Printf("缺失关键词: %s\n", strings.Join(a.MissingKeywords, ", "))
	return emit(a)
}
