package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"smart-ats/internal/storage"
)

// BackendReporter 报告可选外部依赖的连接状态
type BackendReporter interface {
	Backends(ctx context.Context) map[string]bool
}

// SystemHandler 存活与健康检查
type SystemHandler struct {
	version  string
	sessions storage.SessionStore
	backends BackendReporter
	// pending 返回排队中的预热任务数，可为空
	pending func() int
}

// NewSystemHandler 创建系统处理器，backends 与 pending 可为 nil
func NewSystemHandler(version string, sessions storage.SessionStore, backends BackendReporter, pending func() int) *SystemHandler {
	return &SystemHandler{version: version, sessions: sessions, backends: backends, pending: pending}
}

// HandleRoot GET /
func (h *SystemHandler) HandleRoot(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"message": "Smart ATS API is running",
		"version": h.version,
	})
}

// HandleHealth GET /api/health
func (h *SystemHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	backends := map[string]bool{}
	if h.backends != nil {
		backends = h.backends.Backends(ctx)
	}
	body := utils.H{
		"status":     "healthy",
		"version":    h.version,
		"cache_size": h.sessions.Len(),
		"backends":   backends,
	}
	if h.pending != nil {
		body["warm_queue"] = h.pending()
	}
	c.JSON(consts.StatusOK, body)
}
