package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"mitostat/pkg/domain"
)

type recordingLogger struct{ calls []string }

func (c *recordingLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *recordingLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *recordingLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *recordingLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

// steppingClock advances by one second on every call.
func steppingClock(start time.Time) Clock {
	now := start
	return ClockFunc(func() time.Time {
		t := now
		now = now.Add(time.Second)
		return t
	})
}

func TestServiceObservabilityHooks(t *testing.T) {
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	log := &recordingLogger{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(log),
		WithClock(steppingClock(start)),
	)
	ctx := context.Background()

	ref, err := svc.RegisterReference(ctx, "EVA", "ACGT", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !audit.has("register_reference", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.Entity == EntitySequence && e.EntityID == ref.Sequence.ID && e.Duration == time.Second && e.StartedAt.Equal(start)
	}) {
		t.Fatalf("expected success audit entry, got %+v", audit.entries)
	}
	if !metrics.has("register_reference", true) {
		t.Fatalf("expected success metric, got %+v", metrics.calls)
	}

	_, err = svc.SequenceDistance(ctx, "EVA", "missing")
	if err == nil {
		t.Fatalf("expected missing sequence error")
	}
	if !audit.has("sequence_distance", AuditStatusError, func(e AuditEntry) bool { return strings.Contains(e.Error, "missing") }) {
		t.Fatalf("expected error audit entry, got %+v", audit.entries)
	}
	if !metrics.has("sequence_distance", false) {
		t.Fatalf("expected failure metric")
	}
	if len(tracer.started) != 2 || len(tracer.ended) != 2 || tracer.ended[1].err == nil {
		t.Fatalf("unexpected spans %+v / %+v", tracer.started, tracer.ended)
	}
	if log.calls[0] != "d:operation completed" || log.calls[len(log.calls)-1] != "e:operation failed" {
		t.Fatalf("unexpected log calls %v", log.calls)
	}
}

func TestServiceOptionsIgnoreNil(t *testing.T) {
	svc := NewInMemoryService(nil, WithLogger(nil), WithClock(nil), WithTracer(nil), WithMetricsRecorder(nil), WithAuditRecorder(nil))
	if svc.logger == nil || svc.clock == nil || svc.tracer == nil || svc.metrics == nil || svc.audit == nil {
		t.Fatalf("nil options must keep defaults")
	}
	fixed := time.Unix(123, 0).UTC()
	svc = NewInMemoryService(nil, WithClock(ClockFunc(func() time.Time { return fixed })))
	if svc.clock.Now() != fixed {
		t.Fatalf("expected clock override")
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "analyze", true, 20*time.Millisecond)
	rec.Observe(ctx, "analyze", false, time.Millisecond)
	rec.Observe(ctx, "analyze", true, time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	if got := testutil.ToFloat64(rec.results.WithLabelValues("analyze", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("analyze", "error")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	if !names["mitostat_operations_total"] || !names["mitostat_operation_duration_seconds"] {
		t.Fatalf("unexpected families %v", names)
	}
	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if _, err := NewPrometheusRecorder(nil); err != nil {
		t.Fatalf("unregistered recorder: %v", err)
	}
}

func TestJSONTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "build_consensus")
	span.End(errors.New("boom"))
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Status != "error" || entries[0].Error != "boom" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Operation != "build_consensus" {
		t.Fatalf("unexpected operation %q", decoded.Operation)
	}
	_, span = NewJSONTracer(nil).Start(context.Background(), "analyze")
	span.End(nil)
}

func TestLogAuditRecorder(t *testing.T) {
	log := &recordingLogger{}
	rec := NewLogAuditRecorder(log)
	rec.Record(context.Background(), AuditEntry{Operation: "ingest_sample", Status: AuditStatusSuccess, Entity: EntityPerson, EntityID: 3})
	rec.Record(context.Background(), AuditEntry{Operation: "ingest_sample", Status: AuditStatusError, Error: "boom"})
	if len(log.calls) != 2 || log.calls[0] != "i:audit" || log.calls[1] != "w:audit" {
		t.Fatalf("unexpected calls %v", log.calls)
	}
	NewLogAuditRecorder(nil).Record(context.Background(), AuditEntry{Operation: "noop"})
}

func TestLogrusLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.DebugLevel)
	logger := NewLogrusLogger(base)

	logger.Warn("rule warning", "rule", "alignment_length", 7, "seven", "dangling")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["msg"] != "rule warning" || line["level"] != "warning" {
		t.Fatalf("unexpected entry %v", line)
	}
	if line["rule"] != "alignment_length" || line["7"] != "seven" || line["extra"] != "dangling" {
		t.Fatalf("unexpected fields %v", line)
	}

	buf.Reset()
	logger.Debug("d")
	logger.Info("i")
	logger.Error("e", "error", domain.ErrZeroMean)
	if got := strings.Count(buf.String(), "\n"); got != 3 {
		t.Fatalf("expected 3 lines, got %d: %s", got, buf.String())
	}
	if NewLogrusLogger(nil) == nil {
		t.Fatalf("expected standard logger fallback")
	}
}
