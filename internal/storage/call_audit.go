package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"smart-ats/internal/gateway"
	"smart-ats/internal/logger"
	"smart-ats/internal/storage/models"
)

const auditWriteTimeout = 3 * time.Second

// CallAuditRepository 把网关调用记录写入 MySQL，实现 gateway.CallRecorder
type CallAuditRepository struct {
	mysql  *MySQL
	logger *zerolog.Logger
}

// NewCallAuditRepository 创建审计仓库
func NewCallAuditRepository(m *MySQL, l *zerolog.Logger) *CallAuditRepository {
	return &CallAuditRepository{mysql: m, logger: logger.OrNop(l)}
}

// RecordCall 写入失败只记录日志，不影响调用结果
func (r *CallAuditRepository) RecordCall(ctx context.Context, rec gateway.CallRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	row := toCallRecordModel(rec, auditLabels(ctx))
	if err := r.mysql.DB().WithContext(ctx).Create(row).Error; err != nil {
		r.logger.Warn().Err(err).Str("call_id", rec.ID).Msg("写入LLM调用审计失败")
	}
}

// Stats 按提供方和模型聚合 since 之后的调用
func (r *CallAuditRepository) Stats(ctx context.Context, since time.Time) ([]models.ProviderCallStats, error) {
	var stats []models.ProviderCallStats
	err := r.mysql.DB().WithContext(ctx).
		Model(&models.LLMCallRecord{}).
		Select("provider, model, COUNT(*) AS calls, SUM(CASE WHEN success THEN 0 ELSE 1 END) AS failures, AVG(latency_ms) AS avg_latency_ms").
		Where("started_at >= ?", since).
		Group("provider, model").
		Order("calls DESC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("查询调用统计失败: %w", err)
	}
	return stats, nil
}

func toCallRecordModel(rec gateway.CallRecord, labels datatypes.JSON) *models.LLMCallRecord {
	return &models.LLMCallRecord{
		CallID:        rec.ID,
		Provider:      rec.Provider,
		Model:         rec.Model,
		Attempts:      rec.Attempts,
		LatencyMS:     rec.Latency.Milliseconds(),
		Success:       rec.Success,
		ErrorKind:     rec.ErrorKind,
		PromptChars:   rec.PromptChars,
		ResponseChars: rec.ResponseChars,
		Labels:        labels,
		StartedAt:     rec.StartedAt,
	}
}

// auditLabels 记录 trace_id，便于从审计记录跳转到链路
func auditLabels(ctx context.Context) datatypes.JSON {
	labels := map[string]string{}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		labels["trace_id"] = sc.TraceID().String()
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

var _ gateway.CallRecorder = (*CallAuditRepository)(nil)
