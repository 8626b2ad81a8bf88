package models

import (
	"time"

	"gorm.io/datatypes"
)

// LLMCallRecord 一次网关调用的审计记录，不保存提示词和响应正文
type LLMCallRecord struct {
	CallID        string         `gorm:"type:char(36);primaryKey"`
	Provider      string         `gorm:"type:varchar(32);not null;index:idx_llm_calls_provider_model"`
	Model         string         `gorm:"type:varchar(128);not null;index:idx_llm_calls_provider_model"`
	Attempts      int            `gorm:"not null"`
	LatencyMS     int64          `gorm:"not null"`
	Success       bool           `gorm:"not null;index:idx_llm_calls_success"`
	ErrorKind     string         `gorm:"type:varchar(32)"`
	PromptChars   int            `gorm:"not null"`
	ResponseChars int            `gorm:"not null"`
	Labels        datatypes.JSON `gorm:"type:json"`
	StartedAt     time.Time      `gorm:"type:datetime(6);not null;index:idx_llm_calls_started_at"`
	CreatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (LLMCallRecord) TableName() string {
	return "llm_call_records"
}

// ProviderCallStats 按提供方和模型聚合的调用统计
type ProviderCallStats struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Calls        int64   `json:"calls"`
	Failures     int64   `json:"failures"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}
