package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"smart-ats/internal/constants"
	"smart-ats/internal/gateway"
	"smart-ats/internal/logger"
	"smart-ats/internal/storage"
	"smart-ats/internal/tracing"
	"smart-ats/internal/types"
)

const (
	defaultWarmWorkers     = 2
	defaultWarmQueueSize   = 64
	defaultWarmTaskTimeout = 10 * time.Minute
)

// ResumeParsing 预热任务和流水线需要的解析能力
type ResumeParsing interface {
	Parse(ctx context.Context, text string, provider gateway.Provider, modelName string) (*types.ParsedResume, error)
}

// WarmLocker 跨副本的预热去重锁，*storage.Redis 实现了该接口
type WarmLocker interface {
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}

// WarmSubmitter 接收缓存预热任务。Submit 永不阻塞调用方，返回是否被接收。
type WarmSubmitter interface {
	Submit(task storage.WarmTaskMessage) bool
}

// CacheWarmer 有界的后台预热工作池：解析简历并写入会话缓存。
// 任务失败只记录日志，不会影响触发它的请求。
type CacheWarmer struct {
	parser    ResumeParsing
	sessions  storage.SessionStore
	locker    WarmLocker
	workers   int
	queueSize int
	timeout   time.Duration

	tasks  chan storage.WarmTaskMessage
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	logger *zerolog.Logger
}

var _ WarmSubmitter = (*CacheWarmer)(nil)

// WarmerOption 预热器选项
type WarmerOption func(*CacheWarmer)

// WithWorkers 设置工作协程数
func WithWorkers(n int) WarmerOption {
	return func(w *CacheWarmer) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithQueueSize 设置队列容量
func WithQueueSize(n int) WarmerOption {
	return func(w *CacheWarmer) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithTaskTimeout 设置单个任务的超时
func WithTaskTimeout(d time.Duration) WarmerOption {
	return func(w *CacheWarmer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithWarmLocker 设置跨副本去重锁
func WithWarmLocker(l WarmLocker) WarmerOption {
	return func(w *CacheWarmer) {
		w.locker = l
	}
}

// WithWarmerLogger 设置日志记录器
func WithWarmerLogger(l *zerolog.Logger) WarmerOption {
	return func(w *CacheWarmer) {
		w.logger = l
	}
}

// NewCacheWarmer 创建并启动预热工作池
func NewCacheWarmer(p ResumeParsing, sessions storage.SessionStore, opts ...WarmerOption) *CacheWarmer {
	w := &CacheWarmer{
		parser:    p,
		sessions:  sessions,
		workers:   defaultWarmWorkers,
		queueSize: defaultWarmQueueSize,
		timeout:   defaultWarmTaskTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logger.OrNop(w.logger)
	w.tasks = make(chan storage.WarmTaskMessage, w.queueSize)

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
	w.logger.Info().Int("workers", w.workers).Int("queue_size", w.queueSize).Dur("task_timeout", w.timeout).Msg("缓存预热工作池已启动")
	return w
}

// Submit 非阻塞地提交任务，队列已满或已关闭时丢弃并返回 false
func (w *CacheWarmer) Submit(task storage.WarmTaskMessage) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn().Str("session_id", task.SessionID).Msg("预热器已关闭，丢弃任务")
		return false
	}
	if task.TaskID == "" {
		task.TaskID = newTaskID()
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now()
	}

	select {
	case w.tasks <- task:
		w.logger.Debug().Str("task_id", task.TaskID).Str("session_id", task.SessionID).Msg("预热任务已入队")
		return true
	default:
		w.logger.Warn().Str("task_id", task.TaskID).Str("session_id", task.SessionID).Msg("预热队列已满，丢弃任务")
		return false
	}
}

// Pending 返回排队中的任务数
func (w *CacheWarmer) Pending() int {
	return len(w.tasks)
}

// Close 停止接收任务，并等待已入队的任务执行完
func (w *CacheWarmer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.tasks)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info().Msg("缓存预热工作池已停止")
}

func (w *CacheWarmer) run(worker int) {
	defer w.wg.Done()
	for task := range w.tasks {
		w.handle(worker, task)
	}
}

func (w *CacheWarmer) handle(worker int, task storage.WarmTaskMessage) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Int("worker", worker).Str("task_id", task.TaskID).Msg("预热任务发生panic")
		}
	}()
	if err := w.Process(context.Background(), task); err != nil {
		w.logger.Warn().Err(err).Int("worker", worker).Str("task_id", task.TaskID).Str("session_id", task.SessionID).Msg("缓存预热失败，已丢弃")
	}
}

// Process 同步执行一个预热任务。任务使用独立的超时，不受 ctx 取消的影响。
func (w *CacheWarmer) Process(ctx context.Context, task storage.WarmTaskMessage) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "CacheWarmer.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("warm.task_id", task.TaskID),
		attribute.String("session.id", task.SessionID),
		attribute.String("llm.provider", task.Provider),
		attribute.String("llm.model", task.Model),
	)

	if _, ok := w.sessions.Get(ctx, task.SessionID); ok {
		span.SetAttributes(attribute.Bool("warm.skipped", true))
		w.logger.Debug().Str("session_id", task.SessionID).Msg("会话已缓存，跳过预热")
		return nil
	}

	provider, err := gateway.ParseProvider(task.Provider)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}

	if w.locker != nil {
		lockKey := fmt.Sprintf(constants.KeyWarmLock, task.SessionID)
		lockValue, err := w.locker.AcquireLock(ctx, lockKey, w.timeout)
		switch {
		case err != nil:
			w.logger.Warn().Err(err).Str("session_id", task.SessionID).Msg("获取预热锁失败，继续执行")
		case lockValue == "":
			span.SetAttributes(attribute.Bool("warm.skipped", true))
			w.logger.Debug().Str("session_id", task.SessionID).Msg("其他副本正在预热该会话")
			return nil
		default:
			defer func() {
				if _, err := w.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, lockValue); err != nil {
					w.logger.Warn().Err(err).Str("lock_key", lockKey).Msg("释放预热锁失败")
				}
			}()
		}
	}

	start := time.Now()
	resume, err := w.parser.Parse(ctx, task.CVText, provider, task.Model)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return fmt.Errorf("解析简历失败: %w", err)
	}
	if err := w.sessions.Store(ctx, task.SessionID, task.CVText, resume, task.FileBytes, task.JobDescription, task.JobPosition); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeCache)
		return fmt.Errorf("写入会话缓存失败: %w", err)
	}

	w.logger.Info().
		Str("task_id", task.TaskID).
		Str("session_id", task.SessionID).
		Dur("duration", time.Since(start)).
		Dur("queued", start.Sub(task.SubmittedAt)).
		Msg("会话缓存预热完成")
	return nil
}

func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Must(uuid.NewV4()).String()
	}
	return id.String()
}
