package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"smart-ats/internal/config"
	"smart-ats/internal/logger"
	"smart-ats/internal/storage"
	"smart-ats/internal/tracing"
)

const warmPublishTimeout = 5 * time.Second

// AMQPWarmTransport 通过 RabbitMQ 分发预热任务，多个副本共享同一个 Redis 缓存时使用。
// 发布失败时退回本地预热器。消费端复用 CacheWarmer.Process。
type AMQPWarmTransport struct {
	mq         storage.MessageQueue
	warmer     *CacheWarmer
	exchange   string
	queue      string
	routingKey string
	prefetch   int
	logger     *zerolog.Logger
	tracer     trace.Tracer
}

var _ WarmSubmitter = (*AMQPWarmTransport)(nil)

// NewAMQPWarmTransport 声明 exchange、队列与绑定
func NewAMQPWarmTransport(mq storage.MessageQueue, cfg config.RabbitMQConfig, warmer *CacheWarmer, l *zerolog.Logger) (*AMQPWarmTransport, error) {
	t := &AMQPWarmTransport{
		mq:         mq,
		warmer:     warmer,
		exchange:   cfg.WarmExchange,
		queue:      cfg.WarmQueue,
		routingKey: cfg.WarmRouting,
		prefetch:   cfg.PrefetchCount,
		logger:     logger.OrNop(l),
		tracer:     tracer,
	}
	if t.prefetch <= 0 {
		t.prefetch = 1
	}
	if err := mq.EnsureExchange(t.exchange, "direct", true); err != nil {
		return nil, fmt.Errorf("声明预热exchange失败: %w", err)
	}
	if err := mq.EnsureQueue(t.queue, true); err != nil {
		return nil, fmt.Errorf("声明预热队列失败: %w", err)
	}
	if err := mq.BindQueue(t.queue, t.exchange, t.routingKey); err != nil {
		return nil, fmt.Errorf("绑定预热队列失败: %w", err)
	}
	return t, nil
}

// Submit 在后台发布任务，立即返回
func (t *AMQPWarmTransport) Submit(task storage.WarmTaskMessage) bool {
	if task.TaskID == "" {
		task.TaskID = newTaskID()
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now()
	}
	go t.publish(task)
	return true
}

func (t *AMQPWarmTransport) publish(task storage.WarmTaskMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), warmPublishTimeout)
	defer cancel()
	if err := t.mq.PublishJSON(ctx, t.exchange, t.routingKey, task, true); err != nil {
		t.logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("发布预热任务失败，改为本地执行")
		t.warmer.Submit(task)
		return
	}
	t.logger.Debug().Str("task_id", task.TaskID).Str("session_id", task.SessionID).Msg("预热任务已发布")
}

// Start 启动消费者，ctx 取消时停止
func (t *AMQPWarmTransport) Start(ctx context.Context) error {
	return t.mq.StartConsumer(ctx, t.queue, t.prefetch, t.handleDelivery)
}

// handleDelivery 格式错误的消息被拒绝；执行失败只记录日志并确认，不重新投递
func (t *AMQPWarmTransport) handleDelivery(ctx context.Context, body []byte) bool {
	ctx, span := t.tracer.Start(ctx, "AMQPWarmTransport.handleDelivery", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", t.queue),
			attribute.Int("messaging.message.body.size", len(body)),
		))
	defer span.End()

	var task storage.WarmTaskMessage
	if err := json.Unmarshal(body, &task); err != nil {
		t.logger.Error().Err(err).Int("size", len(body)).Msg("无法解析预热任务消息")
		tracing.RecordRabbitMQNack(span, "unknown", err.Error())
		return false
	}
	span.SetAttributes(attribute.String("messaging.message_id", task.TaskID))
	if err := t.warmer.Process(ctx, task); err != nil {
		t.logger.Warn().Err(err).Str("task_id", task.TaskID).Str("session_id", task.SessionID).Msg("缓存预热失败，已丢弃")
	}
	return true
}
