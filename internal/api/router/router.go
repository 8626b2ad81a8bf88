package router

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/cors"
	"github.com/hertz-contrib/keyauth"

	"smart-ats/internal/api/handler"
	"smart-ats/internal/config"
)

// APIKeyHeader 认证请求头
const APIKeyHeader = "X-API-Key"

// 不需要认证的路径
var publicPaths = map[string]bool{
	"/":           true,
	"/api/health": true,
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg config.ServerConfig, auth config.AuthConfig, resumeHandler *handler.ResumeHandler, systemHandler *handler.SystemHandler) {
	h.Use(accessLog())
	if len(cfg.AllowedOrigins) > 0 {
		h.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", APIKeyHeader},
			ExposeHeaders:    []string{"Content-Disposition", "X-Session-ID", "X-Cache-Hit", "X-Validation-Valid"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if auth.Enabled {
		h.Use(APIKeyAuth(auth.APIKeys))
	}

	h.GET("/", systemHandler.HandleRoot)

	api := h.Group("/api")
	api.GET("/health", systemHandler.HandleHealth)
	api.GET("/models", resumeHandler.HandleModels)
	api.POST("/analysis", resumeHandler.HandleAnalysis)
	api.POST("/reconstruct", resumeHandler.HandleReconstruct)
	api.POST("/reconstruct/preview", resumeHandler.HandleReconstructPreview)
	api.GET("/reconstruct/template", resumeHandler.HandleTemplate)
}

// APIKeyAuth 校验 X-API-Key 请求头，存活与健康检查路径除外
func APIKeyAuth(keys []string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+APIKeyHeader, ""),
		keyauth.WithFilter(func(_ context.Context, c *app.RequestContext) bool {
			return publicPaths[string(c.Path())]
		}),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			for _, k := range keys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, nil
		}),
		keyauth.WithErrorHandler(func(_ context.Context, c *app.RequestContext, _ error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"success": false, "error": "Invalid or missing API key"})
		}),
	)
}

func accessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		hlog.CtxInfof(ctx, "%s %s -> %d (%s)", c.Method(), c.Path(), c.Response.StatusCode(), time.Since(start))
	}
}
