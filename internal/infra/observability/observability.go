// Package observability holds the engine's Prometheus metrics and a small
// in-memory span recorder for the claim lifecycle
// (claim → snapshot → evaluate → persist → credit).
package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Spans
// ═══════════════════════════════════════════════════════════════════════════

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Span is one timed step of a claim or evaluation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSpans int  `toml:"max_spans"` // ring buffer size
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// Tracer keeps the most recent spans in a ring buffer for inspection.
// A nil *Tracer is valid and records nothing.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// Start begins a span and returns a context carrying it, so spans started
// from the returned context become its children.
func (t *Tracer) Start(ctx context.Context, operation string, attrs map[string]string) (context.Context, *Span) {
	span := &Span{Operation: operation, StartTime: time.Now(), Attrs: attrs}
	if t == nil || !t.enabled {
		return ctx, span
	}
	span.TraceID = TraceID(ctx)
	if span.TraceID == "" {
		span.TraceID = uuid.NewString()
	}
	span.SpanID = uuid.NewString()
	span.ParentID = spanID(ctx)

	ctx = context.WithValue(ctx, traceIDKey, span.TraceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return ctx, span
}

// End completes a span and records it.
func (t *Tracer) End(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.Status = SpanOK
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans.
func (t *Tracer) Spans(limit int) []Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	out := make([]Span, limit)
	copy(out, t.spans[len(t.spans)-limit:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "gdpnet-trace-id"
	spanIDKey  contextKey = "gdpnet-span-id"
)

// WithTraceID returns a context with the given trace ID, typically the
// HTTP request ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace ID carried by ctx, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func spanID(ctx context.Context) string {
	v, _ := ctx.Value(spanIDKey).(string)
	return v
}

// LogAttr correlates a log line with the current trace.
func LogAttr(ctx context.Context) slog.Attr {
	return slog.String("trace_id", TraceID(ctx))
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Evaluation ─────────────────────────────────────────────────────────────

// EvaluationsTotal counts tier evaluations by outcome.
var EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gdpnet",
	Subsystem: "eligibility",
	Name:      "evaluations_total",
	Help:      "Total tier evaluations by tier and eligibility.",
}, []string{"tier", "eligible"})

// EvaluationDuration tracks full-report latency (snapshot + all tiers).
var EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "gdpnet",
	Subsystem: "eligibility",
	Name:      "report_duration_seconds",
	Help:      "Duration of building a user's reward report.",
	Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
})

// SnapshotSize tracks how many descendants a snapshot returned.
var SnapshotSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "gdpnet",
	Subsystem: "eligibility",
	Name:      "snapshot_nodes",
	Help:      "Number of descendants in evaluated snapshots.",
	Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
})

// ─── Claims ─────────────────────────────────────────────────────────────────

// ClaimsTotal counts claim attempts by tier and outcome.
var ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gdpnet",
	Subsystem: "claims",
	Name:      "attempts_total",
	Help:      "Claim attempts by tier and outcome (created, already_claimed, not_eligible, invalid, storage_unavailable, error).",
}, []string{"tier", "outcome"})

// ClaimDuration tracks claim latency.
var ClaimDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "gdpnet",
	Subsystem: "claims",
	Name:      "duration_seconds",
	Help:      "Duration of claim attempts.",
	Buckets:   prometheus.DefBuckets,
})

// ─── Ledger ─────────────────────────────────────────────────────────────────

// CreditsTotal counts ledger credits by source (claim, reconcile).
var CreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gdpnet",
	Subsystem: "ledger",
	Name:      "credits_total",
	Help:      "Ledger credits written, by source.",
}, []string{"source"})

// CreditFailures counts failed credit attempts.
var CreditFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gdpnet",
	Subsystem: "ledger",
	Name:      "credit_failures_total",
	Help:      "Credit attempts that failed and were left for reconciliation.",
})

// PendingCredits tracks claims awaiting a ledger credit at the last reconcile pass.
var PendingCredits = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gdpnet",
	Subsystem: "ledger",
	Name:      "pending_credits",
	Help:      "Claims without a ledger credit seen by the last reconcile pass.",
})

// ─── Storage ────────────────────────────────────────────────────────────────

// StorageErrors counts storage failures by operation and class.
var StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gdpnet",
	Subsystem: "storage",
	Name:      "errors_total",
	Help:      "Storage errors by operation and whether they were transient.",
}, []string{"op", "transient"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequestsTotal counts API requests.
var HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gdpnet",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total number of HTTP requests.",
}, []string{"method", "path", "status"})

// HTTPRequestDuration tracks API latency.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gdpnet",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "Duration of HTTP requests in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "path"})

// ─── Traces ─────────────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gdpnet",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gdpnet",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
