package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"smart-ats/internal/constants"
	"smart-ats/internal/types"
)

// SessionStore 会话缓存：按 (文件, JD) 指纹保存已解析的简历，供后续重构跳过解析调用
type SessionStore interface {
	// Store 插入或覆盖一个会话，并顺带清理过期条目
	Store(ctx context.Context, id, cvText string, resume *types.ParsedResume, fileBytes []byte, jobDescription, jobPosition string) error
	// Get 返回未过期的会话，过期条目在查询时删除
	Get(ctx context.Context, id string) (*types.CachedSession, bool)
	// Len 返回当前条目数
	Len() int
}

// Clock 返回当前时间
type Clock func() time.Time

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint 计算会话ID: md5hex(md5hex(file) + md5hex(jd)) 的前16位
func Fingerprint(fileBytes []byte, jobDescription string) string {
	combined := md5Hex(fileBytes) + md5Hex([]byte(jobDescription))
	return md5Hex([]byte(combined))[:constants.FingerprintLength]
}

// MemorySessionCache 进程内会话缓存，读写锁保护，惰性过期
type MemorySessionCache struct {
	mu      sync.RWMutex
	entries map[string]*types.CachedSession
	ttl     time.Duration
	now     Clock
}

// MemoryCacheOption 配置内存缓存
type MemoryCacheOption func(*MemorySessionCache)

// WithClock 注入时钟
func WithClock(now Clock) MemoryCacheOption {
	return func(c *MemorySessionCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemorySessionCache 创建内存缓存，ttl<=0 时使用默认的30分钟
func NewMemorySessionCache(ttl time.Duration, opts ...MemoryCacheOption) *MemorySessionCache {
	if ttl <= 0 {
		ttl = constants.SessionTTL
	}
	c := &MemorySessionCache{
		entries: make(map[string]*types.CachedSession),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store 实现 SessionStore
func (c *MemorySessionCache) Store(_ context.Context, id, cvText string, resume *types.ParsedResume, fileBytes []byte, jobDescription, jobPosition string) error {
	now := c.now()
	entry := &types.CachedSession{
		CVText:         cvText,
		ParsedResume:   resume,
		FileHash:       md5Hex(fileBytes),
		CreatedAt:      now,
		JobDescription: jobDescription,
		JobPosition:    jobPosition,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = entry
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Get 实现 SessionStore
func (c *MemorySessionCache) Get(_ context.Context, id string) (*types.CachedSession, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := c.now()
	if !c.expired(entry, now) {
		return entry, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// 加写锁后重新检查，避免删除并发写入的新条目
	if current, ok := c.entries[id]; ok && c.expired(current, now) {
		delete(c.entries, id)
	}
	return nil, false
}

// Len 实现 SessionStore
func (c *MemorySessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemorySessionCache) expired(e *types.CachedSession, now time.Time) bool {
	return now.Sub(e.CreatedAt) > c.ttl
}

var _ SessionStore = (*MemorySessionCache)(nil)
