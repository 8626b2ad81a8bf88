package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"smart-ats/internal/constants"
	"smart-ats/internal/gateway"
	"smart-ats/internal/logger"
	"smart-ats/internal/parser"
	"smart-ats/internal/storage"
	"smart-ats/internal/tracing"
	"smart-ats/internal/types"
)

var tracer = otel.Tracer("smart-ats/processor")

// AnalyzeRequest ATS 评估请求
type AnalyzeRequest struct {
	FileName       string
	FileBytes      []byte
	JobDescription string
	JobPosition    string
	Provider       string
	Model          string
}

// AnalysisResult ATS 评估结果及可复用的会话 ID
type AnalysisResult struct {
	Analysis  *types.ATSAnalysis
	SessionID string
	// Warming 表示预热任务是否已提交
	Warming bool
}

// ReconstructRequest 简历重构请求。SessionID 可选，Mode 为空时使用默认模式。
type ReconstructRequest struct {
	FileName       string
	FileBytes      []byte
	JobDescription string
	JobPosition    string
	Provider       string
	Model          string
	SessionID      string
	Mode           string
}

// ReconstructionResult 重构输出
type ReconstructionResult struct {
	ReconstructedText string                 `json:"reconstructed_text"`
	Validation        types.ValidationResult `json:"validation"`
	GapAnalysis       *types.GapAnalysis     `json:"gap_analysis"`
	ParsedResume      *types.ParsedResume    `json:"-"`
	Sections          []types.ResumeSection  `json:"sections"`
	SessionID         string                 `json:"session_id"`
	CacheHit          bool                   `json:"cache_hit"`
	Mode              string                 `json:"mode"`
}

// DownloadName 返回下载文件名，例如 Jane_Doe_reconstructed.txt
func (r *ReconstructionResult) DownloadName() string {
	name := "resume"
	if r.ParsedResume != nil {
		if n := strings.Join(strings.Fields(r.ParsedResume.Name), "_"); n != "" {
			name = n
		}
	}
	name = strings.Map(func(c rune) rune {
		switch c {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return c
	}, name)
	return name + constants.ReconstructedSuffix
}

// ResumeService 把文本提取、各模型阶段和会话缓存串成完整流水线
type ResumeService struct {
	extractor     parser.TextExtractor
	parser        ResumeParsing
	evaluator     *parser.ATSEvaluator
	gapAnalyzer   *parser.GapAnalyzer
	reconstructor *parser.Reconstructor
	sessions      storage.SessionStore
	warmer        WarmSubmitter

	allowedExtensions []string
	pipelineTimeout   time.Duration
	defaultMode       string
	logger            *zerolog.Logger
}

// ServiceOption 服务选项
type ServiceOption func(*ResumeService)

// WithWarmer 设置预热任务接收方，未设置时不做预热
func WithWarmer(w WarmSubmitter) ServiceOption {
	return func(s *ResumeService) {
		s.warmer = w
	}
}

// WithPipelineTimeout 设置整个多阶段流水线的超时，0 表示不限制
func WithPipelineTimeout(d time.Duration) ServiceOption {
	return func(s *ResumeService) {
		s.pipelineTimeout = d
	}
}

// WithAllowedExtensions 设置允许上传的扩展名
func WithAllowedExtensions(exts []string) ServiceOption {
	return func(s *ResumeService) {
		s.allowedExtensions = exts
	}
}

// WithDefaultMode 设置默认重构模式
func WithDefaultMode(mode string) ServiceOption {
	return func(s *ResumeService) {
		if mode != "" {
			s.defaultMode = mode
		}
	}
}

// WithResumeParser 替换结构化解析阶段
func WithResumeParser(p ResumeParsing) ServiceOption {
	return func(s *ResumeService) {
		s.parser = p
	}
}

// WithServiceLogger 设置日志记录器
func WithServiceLogger(l *zerolog.Logger) ServiceOption {
	return func(s *ResumeService) {
		s.logger = l
	}
}

// NewResumeService 创建简历服务。所有模型阶段共用同一个 sender。
func NewResumeService(sender gateway.Sender, extractor parser.TextExtractor, sessions storage.SessionStore, opts ...ServiceOption) *ResumeService {
	s := &ResumeService{
		extractor:   extractor,
		sessions:    sessions,
		defaultMode: constants.ModeFast,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNop(s.logger)

	stageOpt := parser.WithStageLogger(s.logger)
	if s.parser == nil {
		s.parser = parser.NewResumeParser(sender, stageOpt)
	}
	s.evaluator = parser.NewATSEvaluator(sender, stageOpt)
	s.gapAnalyzer = parser.NewGapAnalyzer(sender, stageOpt)
	s.reconstructor = parser.NewReconstructor(sender, stageOpt)
	return s
}

// Sessions 返回会话缓存
func (s *ResumeService) Sessions() storage.SessionStore {
	return s.sessions
}

// Analyze 提取文本并执行 ATS 评估，返回评估结果和会话 ID，同时在后台预热会话缓存
func (s *ResumeService) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	const op = "analyze"
	fileType, provider, err := s.validate(op, req.FileName, req.FileBytes, req.JobDescription, req.Provider, req.Model)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withPipelineTimeout(ctx)
	defer cancel()
	ctx, span := tracer.Start(ctx, "ResumeService.Analyze", trace.WithAttributes(
		attribute.String("file.type", string(fileType)),
		attribute.Int("file.size", len(req.FileBytes)),
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", req.Model),
	))
	defer span.End()

	start := time.Now()
	text, err := s.extract(ctx, op, req.FileBytes, fileType, req.FileName)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExtract)
		return nil, err
	}

	analysis, err := s.evaluator.Evaluate(ctx, text, req.JobDescription, req.JobPosition, provider, req.Model)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}
	analysis.Filename = req.FileName
	analysis.FileType = string(fileType)

	sessionID := storage.Fingerprint(req.FileBytes, req.JobDescription)
	warming := s.submitWarm(ctx, storage.WarmTaskMessage{
		SessionID:      sessionID,
		CVText:         text,
		FileBytes:      req.FileBytes,
		JobDescription: req.JobDescription,
		JobPosition:    req.JobPosition,
		Provider:       string(provider),
		Model:          req.Model,
	})
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.Bool("warm.submitted", warming))

	s.logger.Info().
		Str("session_id", sessionID).
		Str("provider", string(provider)).
		Str("model", req.Model).
		Str("jd_match", analysis.JDMatch).
		Dur("duration", time.Since(start)).
		Msg("ATS评估完成")
	return &AnalysisResult{Analysis: analysis, SessionID: sessionID, Warming: warming}, nil
}

// Reconstruct 按 JD 重构简历。优先复用会话缓存中的解析结果，未命中时提取并解析后写入缓存。
func (s *ResumeService) Reconstruct(ctx context.Context, req ReconstructRequest) (*ReconstructionResult, error) {
	const op = "reconstruct"
	fileType, provider, err := s.validate(op, req.FileName, req.FileBytes, req.JobDescription, req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = s.defaultMode
	}
	if mode != constants.ModeFast && mode != constants.ModeFull {
		return nil, &InputError{Op: op, Field: "mode", BaseErr: ErrInvalidField, Detail: fmt.Sprintf("Invalid mode %q, expected fast or full", mode)}
	}

	ctx, cancel := s.withPipelineTimeout(ctx)
	defer cancel()
	ctx, span := tracer.Start(ctx, "ResumeService.Reconstruct", trace.WithAttributes(
		attribute.String("file.type", string(fileType)),
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", req.Model),
		attribute.String("reconstruct.mode", mode),
	))
	defer span.End()

	start := time.Now()
	session, sessionID, cacheHit, err := s.loadSession(ctx, op, req, fileType, provider)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.Bool("cache.hit", cacheHit))

	resume := session.ParsedResume
	var (
		gap  *types.GapAnalysis
		text string
	)
	if mode == constants.ModeFast {
		gap, text, err = s.reconstructor.ReconstructFast(ctx, resume, req.JobDescription, req.JobPosition, provider, req.Model)
	} else {
		gap, text, err = s.reconstructFull(ctx, resume, req.JobDescription, req.JobPosition, provider, req.Model)
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}

	validation := parser.Validate(resume, text)
	if !validation.Valid {
		s.logger.Warn().Strs("warnings", validation.Warnings).Str("session_id", sessionID).Msg("重构结果校验未通过")
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Bool("cache_hit", cacheHit).
		Str("mode", mode).
		Int("length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("简历重构完成")

	return &ReconstructionResult{
		ReconstructedText: text,
		Validation:        validation,
		GapAnalysis:       gap.Normalize(),
		ParsedResume:      resume,
		Sections:          parser.SplitSections(text),
		SessionID:         sessionID,
		CacheHit:          cacheHit,
		Mode:              mode,
	}, nil
}

// reconstructFull 差距分析作为独立阶段执行，失败时降级为空分析，重构照常进行
func (s *ResumeService) reconstructFull(ctx context.Context, resume *types.ParsedResume, jobDescription, jobPosition string, provider gateway.Provider, modelName string) (*types.GapAnalysis, string, error) {
	gap, err := s.gapAnalyzer.Analyze(ctx, resume, jobDescription, jobPosition, provider, modelName)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", err
		}
		s.logger.Warn().Err(err).Msg("差距分析失败，使用空分析继续重构")
		gap = types.NewEmptyGapAnalysis()
	}
	text, err := s.reconstructor.Reconstruct(ctx, resume, jobDescription, jobPosition, gap, provider, modelName)
	if err != nil {
		return gap, "", err
	}
	return gap, text, nil
}

// loadSession 先按调用方提供的会话 ID 查缓存，再按指纹查；都未命中时提取、解析并写入缓存
func (s *ResumeService) loadSession(ctx context.Context, op string, req ReconstructRequest, fileType parser.FileType, provider gateway.Provider) (*types.CachedSession, string, bool, error) {
	derived := storage.Fingerprint(req.FileBytes, req.JobDescription)
	for _, id := range []string{req.SessionID, derived} {
		if id == "" {
			continue
		}
		if cached, ok := s.sessions.Get(ctx, id); ok && cached.ParsedResume != nil {
			s.logger.Debug().Str("session_id", id).Msg("命中会话缓存，跳过解析")
			return cached, id, true, nil
		}
	}
	if req.SessionID != "" && req.SessionID != derived {
		s.logger.Debug().Str("session_id", req.SessionID).Msg("会话ID未命中缓存，使用文件指纹")
	}

	text, err := s.extract(ctx, op, req.FileBytes, fileType, req.FileName)
	if err != nil {
		return nil, "", false, err
	}
	resume, err := s.parser.Parse(ctx, text, provider, req.Model)
	if err != nil {
		return nil, "", false, err
	}
	if err := s.sessions.Store(ctx, derived, text, resume, req.FileBytes, req.JobDescription, req.JobPosition); err != nil {
		s.logger.Warn().Err(err).Str("session_id", derived).Msg("写入会话缓存失败")
	}
	return &types.CachedSession{
		CVText:         text,
		ParsedResume:   resume,
		CreatedAt:      time.Now(),
		JobDescription: req.JobDescription,
		JobPosition:    req.JobPosition,
	}, derived, false, nil
}

func (s *ResumeService) validate(op, filename string, data []byte, jobDescription, providerName, modelName string) (parser.FileType, gateway.Provider, error) {
	if len(data) == 0 {
		return "", "", newMissingFieldError(op, "file")
	}
	fileType, err := parser.DetectFileType(filename, s.allowedExtensions)
	if err != nil {
		return "", "", newUnsupportedFileError(op, filename, err)
	}
	if strings.TrimSpace(jobDescription) == "" {
		return "", "", newMissingFieldError(op, "job_description")
	}
	if strings.TrimSpace(modelName) == "" {
		return "", "", newMissingFieldError(op, "model")
	}
	provider, err := gateway.ParseProvider(providerName)
	if err != nil {
		return "", "", err
	}
	return fileType, provider, nil
}

func (s *ResumeService) extract(ctx context.Context, op string, data []byte, fileType parser.FileType, filename string) (string, error) {
	text, err := s.extractor.Extract(ctx, data, fileType, filename)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedFileType) {
			return "", newUnsupportedFileError(op, filename, err)
		}
		s.logger.Warn().Err(err).Str("file", filename).Msg("文本提取失败")
		return "", newEmptyTextError(op, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", newEmptyTextError(op, nil)
	}
	s.logger.Debug().Str("file", filename).Str("preview", tracing.SafeResumeContent(text)).Msg("文本提取完成")
	return text, nil
}

func (s *ResumeService) submitWarm(ctx context.Context, task storage.WarmTaskMessage) bool {
	if s.warmer == nil {
		return false
	}
	if _, ok := s.sessions.Get(ctx, task.SessionID); ok {
		return false
	}
	return s.warmer.Submit(task)
}

func (s *ResumeService) withPipelineTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.pipelineTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.pipelineTimeout)
}
