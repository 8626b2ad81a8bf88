package handler

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"smart-ats/internal/gateway"
	"smart-ats/internal/logger"
	"smart-ats/internal/parser"
	"smart-ats/internal/processor"
	"smart-ats/internal/types"
)

// ModelCatalog 模型可用性查询与校验
type ModelCatalog interface {
	ModelStatus(ctx context.Context) map[gateway.Provider]gateway.ProviderStatus
	ValidateModel(p gateway.Provider, modelName string) error
}

// ResumeHandler 处理 ATS 评估与简历重构请求
type ResumeHandler struct {
	service        *processor.ResumeService
	models         ModelCatalog
	maxUploadBytes int64
	logger         *zerolog.Logger
}

// NewResumeHandler 创建一个新的简历处理器，maxUploadBytes<=0 表示不限制
func NewResumeHandler(service *processor.ResumeService, models ModelCatalog, maxUploadBytes int64, l *zerolog.Logger) *ResumeHandler {
	return &ResumeHandler{
		service:        service,
		models:         models,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.OrNop(l),
	}
}

// AnalysisResponse ATS 评估响应，评估字段平铺在顶层
type AnalysisResponse struct {
	*types.ATSAnalysis
	SessionID string `json:"session_id"`
}

// ResumeSummary 预览接口返回的解析结果摘要
type ResumeSummary struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	SkillsCount     int    `json:"skills_count"`
	ExperienceCount int    `json:"experience_count"`
	ProjectsCount   int    `json:"projects_count"`
	EducationCount  int    `json:"education_count"`
}

// PreviewResponse 重构预览响应
type PreviewResponse struct {
	Success bool `json:"success"`
	*processor.ReconstructionResult
	ParsedResumeSummary ResumeSummary `json:"parsed_resume_summary"`
}

// uploadForm multipart 表单中的公共字段
type uploadForm struct {
	FileName       string
	FileBytes      []byte
	JobDescription string
	JobPosition    string
	Provider       string
	Model          string
	SessionID      string
	Mode           string
}

// HandleAnalysis ATS 评估
// POST /api/analysis
func (h *ResumeHandler) HandleAnalysis(ctx context.Context, c *app.RequestContext) {
	form, ok := h.readForm(ctx, c)
	if !ok {
		return
	}

	res, err := h.service.Analyze(ctx, processor.AnalyzeRequest{
		FileName:       form.FileName,
		FileBytes:      form.FileBytes,
		JobDescription: form.JobDescription,
		JobPosition:    form.JobPosition,
		Provider:       form.Provider,
		Model:          form.Model,
	})
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, AnalysisResponse{ATSAnalysis: res.Analysis, SessionID: res.SessionID})
}

// HandleReconstruct 返回重构后的纯文本简历附件
// POST /api/reconstruct
func (h *ResumeHandler) HandleReconstruct(ctx context.Context, c *app.RequestContext) {
	res, ok := h.reconstruct(ctx, c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.DownloadName()))
	c.Header("X-Session-ID", res.SessionID)
	c.Header("X-Cache-Hit", strconv.FormatBool(res.CacheHit))
	c.Header("X-Validation-Valid", strconv.FormatBool(res.Validation.Valid))
	c.Data(consts.StatusOK, "text/plain; charset=utf-8", []byte(res.ReconstructedText))
}

// HandleReconstructPreview 以 JSON 返回重构结果、校验信息和差距分析
// POST /api/reconstruct/preview
func (h *ResumeHandler) HandleReconstructPreview(ctx context.Context, c *app.RequestContext) {
	res, ok := h.reconstruct(ctx, c)
	if !ok {
		return
	}
	c.JSON(consts.StatusOK, PreviewResponse{
		Success:              true,
		ReconstructionResult: res,
		ParsedResumeSummary:  summarize(res.ParsedResume),
	})
}

// HandleTemplate 返回重构模板说明
// GET /api/reconstruct/template
func (h *ResumeHandler) HandleTemplate(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"success": true, "template": parser.DefaultTemplateInfo()})
}

// HandleModels 返回各提供方的可用状态
// GET /api/models
func (h *ResumeHandler) HandleModels(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, h.models.ModelStatus(ctx))
}

func (h *ResumeHandler) reconstruct(ctx context.Context, c *app.RequestContext) (*processor.ReconstructionResult, bool) {
	form, ok := h.readForm(ctx, c)
	if !ok {
		return nil, false
	}
	res, err := h.service.Reconstruct(ctx, processor.ReconstructRequest{
		FileName:       form.FileName,
		FileBytes:      form.FileBytes,
		JobDescription: form.JobDescription,
		JobPosition:    form.JobPosition,
		Provider:       form.Provider,
		Model:          form.Model,
		SessionID:      form.SessionID,
		Mode:           form.Mode,
	})
	if err != nil {
		writeError(ctx, c, err)
		return nil, false
	}
	return res, true
}

// readForm 读取上传文件和表单字段，并在调用模型前校验托管服务的模型名
func (h *ResumeHandler) readForm(ctx context.Context, c *app.RequestContext) (*uploadForm, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeBadRequest(c, "Missing required field: file")
		return nil, false
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		c.JSON(consts.StatusRequestEntityTooLarge, utils.H{
			"success": false,
			"error":   fmt.Sprintf("File too large. Maximum size is %d MB.", h.maxUploadBytes/(1024*1024)),
		})
		return nil, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		writeError(ctx, c, fmt.Errorf("打开上传文件失败: %w", err))
		return nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(ctx, c, fmt.Errorf("读取上传文件失败: %w", err))
		return nil, false
	}

	form := &uploadForm{
		FileName:       fileHeader.Filename,
		FileBytes:      data,
		JobDescription: c.PostForm("job_description"),
		JobPosition:    strings.TrimSpace(c.PostForm("job_position")),
		Provider:       strings.TrimSpace(c.PostForm("provider")),
		Model:          strings.TrimSpace(c.PostForm("model")),
		SessionID:      strings.TrimSpace(c.PostForm("session_id")),
		Mode:           strings.ToLower(strings.TrimSpace(c.PostForm("mode"))),
	}

	if form.Model != "" {
		if p, err := gateway.ParseProvider(form.Provider); err == nil {
			if err := h.models.ValidateModel(p, form.Model); err != nil {
				writeError(ctx, c, err)
				return nil, false
			}
		}
	}

	h.logger.Debug().
		Str("file", form.FileName).
		Int("size", len(form.FileBytes)).
		Str("provider", form.Provider).
		Str("model", form.Model).
		Bool("has_session", form.SessionID != "").
		Msg("收到上传请求")
	return form, true
}

func summarize(r *types.ParsedResume) ResumeSummary {
	if r == nil {
		return ResumeSummary{}
	}
	return ResumeSummary{
		Name:            r.Name,
		Email:           r.Email,
		SkillsCount:     len(r.Skills),
		ExperienceCount: len(r.Experience),
		ProjectsCount:   len(r.Projects),
		EducationCount:  len(r.Education),
	}
}
