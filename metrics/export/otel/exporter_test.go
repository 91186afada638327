package otel

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	goIAM "github.com/MrEthical07/goIAM"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[goIAM.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goIAM.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goIAM.MetricsSnapshot{
		Counters:   make(map[goIAM.MetricID]uint64, len(f.counters)),
		Histograms: map[goIAM.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	out.Histograms[goIAM.MetricVerifyAccessLatency] = append([]uint64(nil), f.latency...)
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T, src Source) (*sdkmetric.ManualReader, *Exporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exp, err := NewExporter(provider.Meter("goiam-test"), src)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	t.Cleanup(func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return reader, exp
}

// collect flattens every int64 point into "name|key=value" -> value.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	got := map[string]int64{}
	add := func(name string, set attribute.Set, v int64) {
		key := name
		for _, kv := range set.ToSlice() {
			key += "|" + string(kv.Key) + "=" + kv.Value.Emit()
		}
		got[key] = v
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					add(m.Name, dp.Attributes, dp.Value)
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					add(m.Name, dp.Attributes, dp.Value)
				}
			}
		}
	}
	return got
}

func TestExporterGroupsCountersByFlow(t *testing.T) {
	src := &fakeSource{
		counters: map[goIAM.MetricID]uint64{
			goIAM.MetricLoginSuccess:         3,
			goIAM.MetricLoginRateLimited:     2,
			goIAM.MetricRefreshReuseDetected: 4,
			goIAM.MetricMailDeliveryFailure:  1,
		},
		latency: []uint64{2, 1, 0, 0, 0, 0, 0, 1},
		dropped: 5,
	}
	reader, _ := newReader(t, src)
	got := collect(t, reader)

	want := map[string]int64{
		"goiam.auth.login|outcome=success":             3,
		"goiam.auth.login|outcome=rate_limited":        2,
		"goiam.auth.login|outcome=failure":             0,
		"goiam.auth.refresh|outcome=reuse":             4,
		"goiam.auth.mail|outcome=delivery_failure":     1,
		"goiam.audit.dropped":                          5,
		"goiam.verify_access.duration.bucket|le=0.005": 2,
		"goiam.verify_access.duration.bucket|le=0.01":  3,
		"goiam.verify_access.duration.bucket|le=+Inf":  4,
		"goiam.verify_access.duration.count":           4,
	}
	for key, value := range want {
		v, ok := got[key]
		if !ok {
			t.Fatalf("missing point %s in %v", key, got)
		}
		if v != value {
			t.Fatalf("%s: expected %d, got %d", key, value, v)
		}
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	if _, err := NewExporter(provider.Meter("goiam-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	var nilExp *Exporter
	if err := nilExp.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestExporterNilEngineReportsZeros(t *testing.T) {
	var engine *goIAM.Engine
	reader, _ := newReader(t, engine)
	got := collect(t, reader)
	if v, ok := got["goiam.auth.login|outcome=success"]; !ok || v != 0 {
		t.Fatalf("expected a zero login success point, got %v", got)
	}
	if got["goiam.audit.dropped"] != 0 {
		t.Fatalf("expected zero dropped, got %v", got)
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	src := &fakeSource{counters: map[goIAM.MetricID]uint64{}}
	reader, _ := newReader(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[goIAM.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
