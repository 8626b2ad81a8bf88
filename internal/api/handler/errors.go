package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/trace"

	"smart-ats/internal/gateway"
	"smart-ats/internal/logger"
	"smart-ats/internal/parser"
	"smart-ats/internal/processor"
	"smart-ats/internal/tracing"
)

// statusFor 把流水线错误映射为 HTTP 状态码
func statusFor(err error) int {
	var (
		inputErr    *processor.InputError
		providerErr *gateway.ProviderError
	)
	switch {
	case errors.As(err, &inputErr):
		return consts.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, gateway.ErrProviderTimeout):
		return consts.StatusGatewayTimeout
	case gateway.IsClientError(err):
		return consts.StatusBadRequest
	case errors.As(err, &providerErr), errors.Is(err, parser.ErrFormat):
		return consts.StatusBadGateway
	default:
		return consts.StatusInternalServerError
	}
}

// writeError 以 {"success": false, "error": ...} 返回错误
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := statusFor(err)
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)

	message := err.Error()
	if status == consts.StatusInternalServerError {
		logger.Ctx(ctx).Error().Err(err).Str("path", string(c.Path())).Msg("请求处理失败")
		message = "Internal server error"
	} else {
		logger.Ctx(ctx).Warn().Err(err).Int("status", status).Str("path", string(c.Path())).Msg("请求处理失败")
	}
	c.JSON(status, utils.H{"success": false, "error": message})
}

func writeBadRequest(c *app.RequestContext, message string) {
	c.JSON(consts.StatusBadRequest, utils.H{"success": false, "error": message})
}
