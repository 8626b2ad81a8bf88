package gateway

import (
	"context"
	"time"
)

// CallRecord 一次 Send 调用的审计信息，不包含提示词和响应正文
type CallRecord struct {
	ID            string
	Provider      string
	Model         string
	Attempts      int
	Latency       time.Duration
	Success       bool
	ErrorKind     string
	PromptChars   int
	ResponseChars int
	StartedAt     time.Time
}

// CallRecorder 接收调用审计记录。实现不得阻塞太久，也不应返回错误影响调用结果。
type CallRecorder interface {
	RecordCall(ctx context.Context, rec CallRecord)
}

type noopRecorder struct{}

func (noopRecorder) RecordCall(context.Context, CallRecord) {}

// RecorderFunc 函数适配器
type RecorderFunc func(ctx context.Context, rec CallRecord)

// RecordCall 实现 CallRecorder
func (f RecorderFunc) RecordCall(ctx context.Context, rec CallRecord) { f(ctx, rec) }
