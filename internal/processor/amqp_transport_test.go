package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"smart-ats/internal/config"
	"smart-ats/internal/storage"
)

// fakeQueue 内存版消息队列：发布的消息直接交给已注册的消费者
type fakeQueue struct {
	mu         sync.Mutex
	publishErr error
	declared   []string
	published  [][]byte
	handler    func(context.Context, []byte) bool
	acks       []bool
}

func (q *fakeQueue) PublishJSON(ctx context.Context, exchangeName, routingKey string, data any, _ bool) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.published = append(q.published, body)
	handler := q.handler
	q.mu.Unlock()
	if handler != nil {
		ack := handler(ctx, body)
		q.mu.Lock()
		q.acks = append(q.acks, ack)
		q.mu.Unlock()
	}
	return nil
}

func (q *fakeQueue) EnsureExchange(name, _ string, _ bool) error {
	q.declared = append(q.declared, "exchange:"+name)
	return nil
}

func (q *fakeQueue) EnsureQueue(name string, _ bool) error {
	q.declared = append(q.declared, "queue:"+name)
	return nil
}

func (q *fakeQueue) BindQueue(queueName, exchangeName, routingKey string) error {
	q.declared = append(q.declared, "bind:"+queueName+"->"+exchangeName+"/"+routingKey)
	return nil
}

func (q *fakeQueue) StartConsumer(_ context.Context, _ string, _ int, handler func(context.Context, []byte) bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) Acks() []bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]bool(nil), q.acks...)
}

var _ storage.MessageQueue = (*fakeQueue)(nil)

var testRabbitCfg = config.RabbitMQConfig{
	WarmExchange:  "smart_ats.events",
	WarmQueue:     "smart_ats.cache_warm",
	WarmRouting:   "cache.warm",
	PrefetchCount: 2,
}

func TestAMQPWarmTransportRoundTrip(t *testing.T) {
	p := newGatedParser()
	close(p.release)
	sessions := storage.NewMemorySessionCache(time.Minute)
	warmer := NewCacheWarmer(p, sessions)
	defer warmer.Close()

	q := &fakeQueue{}
	transport, err := NewAMQPWarmTransport(q, testRabbitCfg, warmer, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"exchange:smart_ats.events",
		"queue:smart_ats.cache_warm",
		"bind:smart_ats.cache_warm->smart_ats.events/cache.warm",
	}, q.declared)
	require.NoError(t, transport.Start(context.Background()))

	require.True(t, transport.Submit(warmTaskFor("s1")))
	require.Eventually(t, func() bool { return sessions.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	cached, ok := sessions.Get(context.Background(), "s1")
	require.True(t, ok)
	sum := md5.Sum([]byte("s1"))
	assert.Equal(t, hex.EncodeToString(sum[:]), cached.FileHash, "文件内容应随消息一起传递")
	require.Eventually(t, func() bool { return len(q.Acks()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []bool{true}, q.Acks())
}

func TestAMQPWarmTransportRejectsMalformedMessage(t *testing.T) {
	warmer := NewCacheWarmer(newGatedParser(), storage.NewMemorySessionCache(time.Minute))
	defer warmer.Close()
	transport, err := NewAMQPWarmTransport(&fakeQueue{}, testRabbitCfg, warmer, nil)
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	transport.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	assert.False(t, transport.handleDelivery(context.Background(), []byte("{oops")))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("messaging.error_type", "nack"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("messaging.message_id", "unknown"))
}

func TestAMQPWarmTransportFallsBackToLocalWarmer(t *testing.T) {
	p := newGatedParser()
	close(p.release)
	sessions := storage.NewMemorySessionCache(time.Minute)
	warmer := NewCacheWarmer(p, sessions)
	defer warmer.Close()

	transport, err := NewAMQPWarmTransport(&fakeQueue{publishErr: errors.New("channel closed")}, testRabbitCfg, warmer, nil)
	require.NoError(t, err)

	require.True(t, transport.Submit(warmTaskFor("s1")))
	require.Eventually(t, func() bool { return sessions.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}
