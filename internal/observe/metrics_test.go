package observe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/modelmixer/pkg/mixer"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue returns the sum of the data point whose attributes include
// every key/value in want.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
outer:
	for _, dp := range sum.DataPoints {
		for _, kv := range want {
			v, ok := dp.Attributes.Value(kv.Key)
			if !ok || v != kv.Value {
				continue outer
			}
		}
		total += dp.Value
	}
	return total
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestObserveAttempt(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ObserveAttempt(ctx, mixer.Attempt{ProviderID: "p1", Kind: mixer.KindCloud, Duration: 120 * time.Millisecond})
	m.ObserveAttempt(ctx, mixer.Attempt{ProviderID: "p1", Kind: mixer.KindCloud, Probe: true, Duration: time.Millisecond})
	m.ObserveAttempt(ctx, mixer.Attempt{
		ProviderID: "p1",
		Kind:       mixer.KindCloud,
		Duration:   2 * time.Second,
		Err:        &mixer.ProviderError{ProviderID: "p1", Timeout: true},
	})
	m.ObserveAttempt(ctx, mixer.Attempt{
		ProviderID: "p2",
		Kind:       mixer.KindLocal,
		Err:        &mixer.ProviderError{ProviderID: "p2", StatusCode: 500},
	})

	rm := collect(t, reader)

	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  int64
	}{
		{"all p1", []attribute.KeyValue{attribute.String("provider", "p1")}, 3},
		{"p1 ok", []attribute.KeyValue{attribute.String("provider", "p1"), attribute.String("status", "ok")}, 2},
		{"probes", []attribute.KeyValue{attribute.String("probe", "true")}, 1},
		{"local errors", []attribute.KeyValue{attribute.String("kind", "local"), attribute.String("status", "error")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, rm, "modelmixer.provider.attempts", tt.attrs...); got != tt.want {
				t.Errorf("attempts = %d, want %d", got, tt.want)
			}
		})
	}

	if got := counterValue(t, rm, "modelmixer.provider.errors", attribute.String("reason", "timeout")); got != 1 {
		t.Errorf("timeout errors = %d, want 1", got)
	}
	if got := counterValue(t, rm, "modelmixer.provider.errors", attribute.String("reason", "http")); got != 1 {
		t.Errorf("http errors = %d, want 1", got)
	}

	met := findMetric(rm, "modelmixer.provider.attempt.duration")
	if met == nil {
		t.Fatal("attempt duration histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("attempt duration is not a histogram")
	}
	var samples uint64
	for _, dp := range hist.DataPoints {
		samples += dp.Count
	}
	if samples != 4 {
		t.Errorf("attempt duration samples = %d, want 4", samples)
	}
}

func TestObserveCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	outcomes := []mixer.CallOutcome{
		{Strategy: mixer.StrategyFailover, Attempts: 1},
		{Strategy: mixer.StrategyFailover, Attempts: 3, Err: &mixer.ExhaustedError{Attempts: 3, Err: errors.New("x")}},
		{Strategy: mixer.StrategyWeighted, Err: mixer.ErrDisabled},
		{Strategy: mixer.StrategyWeighted, Attempts: 1, Err: &mixer.ProviderError{ProviderID: "p"}},
	}
	for _, o := range outcomes {
		m.ObserveCall(ctx, o)
	}

	rm := collect(t, reader)
	for _, tc := range []struct {
		strategy, status string
		want             int64
	}{
		{"failover", "ok", 1},
		{"failover", "exhausted", 1},
		{"weighted", "config_error", 1},
		{"weighted", "provider_error", 1},
	} {
		got := counterValue(t, rm, "modelmixer.calls",
			attribute.String("strategy", tc.strategy), attribute.String("status", tc.status))
		if got != tc.want {
			t.Errorf("calls{%s,%s} = %d, want %d", tc.strategy, tc.status, got, tc.want)
		}
	}
	if findMetric(rm, "modelmixer.call.duration") == nil {
		t.Error("call duration histogram not found")
	}
}

func TestCallStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{mixer.ErrNoEnabledProviders, "config_error"},
		{fmt.Errorf("wrapped: %w", mixer.ErrDisabled), "config_error"},
		{&mixer.ExhaustedError{Attempts: 2}, "exhausted"},
		{&mixer.ProviderError{}, "provider_error"},
	}
	for _, tt := range tests {
		if got := CallStatus(tt.err); got != tt.want {
			t.Errorf("CallStatus(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestObserver_ThroughMixer(t *testing.T) {
	m, reader := newTestMetrics(t)
	mx := mixer.New(mixer.Config{}, mixer.WithObserver(m))
	t.Cleanup(mx.Close)

	_, _ = mx.Call(context.Background(), "x", nil)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "modelmixer.calls", attribute.String("status", "config_error")); got != 1 {
		t.Errorf("config_error calls = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.HTTPRequestDuration.Record(context.Background(), 0.042)

	rm := collect(t, reader)
	met := findMetric(rm, "modelmixer.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	if _, ok := met.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatal("not a histogram")
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
