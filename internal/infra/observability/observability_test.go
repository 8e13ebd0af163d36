package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

func TestTracer_StartEnd_RecordsSpan(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())

	_, span := tr.Start(context.Background(), "claim", map[string]string{"tier": "130%"})
	tr.End(span, nil)

	require.Equal(t, 1, tr.SpanCount())
	got := tr.Spans(1)[0]
	assert.Equal(t, "claim", got.Operation)
	assert.Equal(t, SpanOK, got.Status)
	assert.False(t, got.EndTime.Before(got.StartTime))
	assert.Equal(t, "130%", got.Attrs["tier"])
	assert.NotEmpty(t, got.TraceID)
}

func TestTracer_End_RecordsError(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())

	_, span := tr.Start(context.Background(), "persist", nil)
	tr.End(span, errors.New("database is locked"))

	got := tr.Spans(1)[0]
	assert.Equal(t, SpanError, got.Status)
	assert.Equal(t, "database is locked", got.Attrs["error"])
}

func TestTracer_Disabled(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: false, MaxSpans: 100})
	_, span := tr.Start(context.Background(), "noop", nil)
	tr.End(span, nil)
	assert.Zero(t, tr.SpanCount())
}

func TestTracer_Nil(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.Start(context.Background(), "noop", nil)
	tr.End(span, nil)
	assert.NotNil(t, ctx)
	assert.Zero(t, tr.SpanCount())
	assert.Nil(t, tr.Spans(0))
}

func TestTracer_RingBuffer_Overflow(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: true, MaxSpans: 3})
	for i := 0; i < 5; i++ {
		_, span := tr.Start(context.Background(), "op", nil)
		tr.End(span, nil)
	}
	assert.Equal(t, 3, tr.SpanCount())
}

func TestTracer_Spans_Limit(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	for i := 0; i < 10; i++ {
		_, span := tr.Start(context.Background(), "op", nil)
		tr.End(span, nil)
	}
	assert.Len(t, tr.Spans(3), 3)
	assert.Len(t, tr.Spans(0), 10)

	tr.Reset()
	assert.Zero(t, tr.SpanCount())
}

// ─── Context Propagation ────────────────────────────────────────────────────

func TestTracer_ChildSpansShareTrace(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := WithTraceID(context.Background(), "req-abc")

	ctx, parent := tr.Start(ctx, "claim", nil)
	_, child := tr.Start(ctx, "persist", nil)
	tr.End(child, nil)
	tr.End(parent, nil)

	assert.Equal(t, "req-abc", parent.TraceID)
	assert.Equal(t, "req-abc", child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
	assert.Equal(t, "req-abc", TraceID(ctx))
}

func TestLogAttr(t *testing.T) {
	ctx := WithTraceID(context.Background(), "req-1")
	attr := LogAttr(ctx)
	assert.Equal(t, "trace_id", attr.Key)
	assert.Equal(t, "req-1", attr.Value.String())
}
