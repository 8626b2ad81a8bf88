package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"smart-ats/internal/config"
	"smart-ats/internal/constants"
	"smart-ats/internal/logger"
	"smart-ats/internal/tracing"
	"smart-ats/internal/types"
)

// ErrNotFound key 不存在
var ErrNotFound = redis.Nil

var redisTracer = otel.Tracer("smart-ats/storage/redis")

// Redis 封装 go-redis 客户端
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedis 创建 Redis 连接并挂载 OpenTelemetry 钩子
func NewRedis(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close 关闭连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) startSpan(ctx context.Context, name, operation, key string) (context.Context, trace.Span) {
	ctx, span := redisTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", operation),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
	)
	if r.config != nil {
		span.SetAttributes(
			attribute.Int("db.redis.database", r.config.DB),
			attribute.String("net.peer.name", r.config.Address),
		)
	}
	return ctx, span
}

// AcquireLock 尝试获取分布式锁，未获取时返回空字符串
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	return "", nil
}

const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// ReleaseLock 仅当锁仍由 lockValue 持有时删除
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	res, err := r.Client.Eval(ctx, releaseLockScript, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}
	released, ok := res.(int64)
	return ok && released == 1, nil
}

// RedisSessionCache 基于 Redis 的共享会话缓存，多副本共用。
// 值为 JSON，key 为 app:session:resume:{id}，服务端 TTL 由 SET EX 设置。
type RedisSessionCache struct {
	redis  *Redis
	ttl    time.Duration
	now    Clock
	logger *zerolog.Logger
}

// NewRedisSessionCache 创建 Redis 会话缓存
func NewRedisSessionCache(r *Redis, ttl time.Duration, l *zerolog.Logger) *RedisSessionCache {
	if ttl <= 0 {
		ttl = constants.SessionTTL
	}
	return &RedisSessionCache{redis: r, ttl: ttl, now: time.Now, logger: logger.OrNop(l)}
}

func sessionKey(id string) string {
	return fmt.Sprintf(constants.KeySessionResume, id)
}

// Store 实现 SessionStore，过期由 Redis 负责
func (c *RedisSessionCache) Store(ctx context.Context, id, cvText string, resume *types.ParsedResume, fileBytes []byte, jobDescription, jobPosition string) error {
	key := sessionKey(id)
	ctx, span := c.redis.startSpan(ctx, "RedisSessionCache.Store", "SET", key)
	defer span.End()

	payload, err := json.Marshal(&types.CachedSession{
		CVText:         cvText,
		ParsedResume:   resume,
		FileHash:       md5Hex(fileBytes),
		CreatedAt:      c.now(),
		JobDescription: jobDescription,
		JobPosition:    jobPosition,
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeCache)
		return fmt.Errorf("序列化会话失败: %w", err)
	}

	if err := c.redis.Client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeCache)
		return fmt.Errorf("写入会话缓存失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Get 实现 SessionStore。Redis 不可用时视为未命中。
func (c *RedisSessionCache) Get(ctx context.Context, id string) (*types.CachedSession, bool) {
	key := sessionKey(id)
	ctx, span := c.redis.startSpan(ctx, "RedisSessionCache.Get", "GET", key)
	defer span.End()

	data, err := c.redis.Client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			tracing.RecordError(span, err, tracing.ErrorTypeCache)
			c.logger.Warn().Err(err).Str("session_id", id).Msg("读取会话缓存失败，按未命中处理")
		}
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false
	}

	var entry types.CachedSession
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn().Err(err).Str("session_id", id).Msg("会话缓存内容损坏，删除")
		c.redis.Client.Del(ctx, key)
		return nil, false
	}
	if c.now().Sub(entry.CreatedAt) > c.ttl {
		c.redis.Client.Del(ctx, key)
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	return &entry, true
}

// Len 统计会话 key 数量
func (c *RedisSessionCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pattern := strings.Replace(constants.KeySessionResume, "%s", "*", 1)
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := c.redis.Client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			c.logger.Debug().Err(err).Msg("统计会话数量失败")
			return count
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count
		}
	}
}

var _ SessionStore = (*RedisSessionCache)(nil)
