package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-ats/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFingerprint(t *testing.T) {
	file := []byte("%PDF-1.4 resume")
	id := Fingerprint(file, "Senior Go engineer")

	assert.Len(t, id, 16)
	assert.Equal(t, id, Fingerprint(file, "Senior Go engineer"), "相同输入应得到相同指纹")
	assert.NotEqual(t, id, Fingerprint(file, "Senior Rust engineer"))
	assert.NotEqual(t, id, Fingerprint([]byte("%PDF-1.4 other"), "Senior Go engineer"))

	combined := md5Hex(file) + md5Hex([]byte("Senior Go engineer"))
	assert.Equal(t, md5Hex([]byte(combined))[:16], id)
}

func TestMemorySessionCacheTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewMemorySessionCache(30*time.Minute, WithClock(clock.Now))
	ctx := context.Background()
	resume := &types.ParsedResume{Name: "Ada"}

	require.NoError(t, cache.Store(ctx, "s1", "cv text", resume, []byte("file"), "jd", "role"))

	got, ok := cache.Get(ctx, "s1")
	require.True(t, ok)
	assert.Equal(t, "cv text", got.CVText)
	assert.Equal(t, "Ada", got.ParsedResume.Name)
	assert.Equal(t, md5Hex([]byte("file")), got.FileHash)
	assert.Equal(t, "role", got.JobPosition)

	clock.Advance(30 * time.Minute)
	_, ok = cache.Get(ctx, "s1")
	assert.True(t, ok, "刚好等于TTL时仍然有效")

	clock.Advance(time.Second)
	_, ok = cache.Get(ctx, "s1")
	assert.False(t, ok, "超过TTL后应未命中")
	assert.Equal(t, 0, cache.Len(), "过期条目应在查询时被删除")

	_, ok = cache.Get(ctx, "s1")
	assert.False(t, ok, "过期条目不会再出现")
}

func TestMemorySessionCacheStoreSweepsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cache := NewMemorySessionCache(10*time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "old-1", "", nil, nil, "", ""))
	require.NoError(t, cache.Store(ctx, "old-2", "", nil, nil, "", ""))
	clock.Advance(11 * time.Minute)
	require.NoError(t, cache.Store(ctx, "fresh", "", nil, nil, "", ""))

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get(ctx, "fresh")
	assert.True(t, ok)
}

func TestMemorySessionCacheUpsertResetsAge(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cache := NewMemorySessionCache(10*time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "s", "v1", nil, nil, "", ""))
	clock.Advance(8 * time.Minute)
	require.NoError(t, cache.Store(ctx, "s", "v2", nil, nil, "", ""))
	clock.Advance(8 * time.Minute)

	got, ok := cache.Get(ctx, "s")
	require.True(t, ok)
	assert.Equal(t, "v2", got.CVText)
}

func TestMemorySessionCacheDefaultTTL(t *testing.T) {
	cache := NewMemorySessionCache(0)
	assert.Equal(t, 30*time.Minute, cache.ttl)
}

func TestMemorySessionCacheConcurrentAccess(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cache := NewMemorySessionCache(time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				id := string(rune('a' + (i+j)%5))
				_ = cache.Store(ctx, id, "cv", nil, nil, "", "")
				cache.Get(ctx, id)
				if j%50 == 0 {
					clock.Advance(30 * time.Second)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, cache.Len(), 5)
}
