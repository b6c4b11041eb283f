package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) snapshot() ([]capturedCounter, []capturedHistogram) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capturedCounter(nil), m.counters...), append([]capturedHistogram(nil), m.histograms...)
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capturedLog, len(*l.records))
	copy(out, *l.records)
	return out
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level == level && item.msg == message && item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

func TestServiceObservability_ResolveSuccess(t *testing.T) {
	store := newMemoryCredentialStore()
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, err := newTestService(store,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Resolve(context.Background(), ResolveRequest{SessionToken: "session-token"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	counters, histograms := metrics.snapshot()
	if !hasCounter(counters, "broker.resolve_credential.total", "success") {
		t.Fatalf("expected broker.resolve_credential.total success counter")
	}
	if !hasHistogram(histograms, "broker.resolve_credential.duration_ms", "success") {
		t.Fatalf("expected broker.resolve_credential.duration_ms histogram")
	}
	if !hasLog(logger.snapshot(), "info", "resolve_credential succeeded", "resolve_credential") {
		t.Fatalf("expected resolve_credential succeeded structured log")
	}
	for _, counter := range counters {
		if counter.name == "broker.resolve_credential.total" && counter.tags["tier"] != "session" {
			t.Fatalf("expected tier tag session, got %q", counter.tags["tier"])
		}
	}
}

func TestServiceObservability_ResolveFailureCarriesErrorCode(t *testing.T) {
	store := newMemoryCredentialStore()
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, err := newTestService(store,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Resolve(context.Background(), ResolveRequest{TenantID: "t-missing"}); err == nil {
		t.Fatalf("expected unauthorized error")
	}
	counters, _ := metrics.snapshot()
	if !hasCounter(counters, "broker.resolve_credential.total", "failure") {
		t.Fatalf("expected failure counter")
	}
	found := false
	for _, entry := range logger.snapshot() {
		if entry.level == "error" && entry.fields["error_code"] == ErrorUnauthorized {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected error log with %s error_code", ErrorUnauthorized)
	}
}

func TestObserveOperation_RedactsSecretFields(t *testing.T) {
	logger := newCaptureLogger()
	obs := observer{logger: logger, metrics: NopMetricsRecorder{}}

	obs.observeOperation(context.Background(), time.Now(), "send message", nil, map[string]any{
		"tenant_id":    "t1",
		"access_token": "EAAG-secret",
	})

	records := logger.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected one log record, got %d", len(records))
	}
	if records[0].fields["access_token"] != RedactedValue {
		t.Fatalf("expected access_token to be redacted, got %#v", records[0].fields["access_token"])
	}
	if records[0].fields["tenant_id"] != "t1" {
		t.Fatalf("expected tenant_id to remain visible")
	}
	if records[0].fields["event_type"] != "send_message" {
		t.Fatalf("expected normalized event type, got %#v", records[0].fields["event_type"])
	}
}
