package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"smart-ats/internal/gateway"
)

func TestToCallRecordModel(t *testing.T) {
	started := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	row := toCallRecordModel(gateway.CallRecord{
		ID:            "0190a0b4-0000-7000-8000-000000000001",
		Provider:      "Ollama",
		Model:         "llama3",
		Attempts:      2,
		Latency:       1500 * time.Millisecond,
		Success:       false,
		ErrorKind:     "timeout",
		PromptChars:   1200,
		ResponseChars: 0,
		StartedAt:     started,
	}, nil)

	assert.Equal(t, "0190a0b4-0000-7000-8000-000000000001", row.CallID)
	assert.Equal(t, int64(1500), row.LatencyMS)
	assert.Equal(t, "timeout", row.ErrorKind)
	assert.Equal(t, 2, row.Attempts)
	assert.Equal(t, started, row.StartedAt)
	assert.Equal(t, "llm_call_records", row.TableName())
}

func TestAuditLabelsTraceID(t *testing.T) {
	var empty map[string]string
	require.NoError(t, json.Unmarshal(auditLabels(context.Background()), &empty))
	assert.Empty(t, empty)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	var labels map[string]string
	require.NoError(t, json.Unmarshal(auditLabels(ctx), &labels))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", labels["trace_id"])
}
