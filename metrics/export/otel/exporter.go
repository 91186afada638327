package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/metrics/export/internaldefs"
)

// Instrument naming. Each flow is one counter named FlowPrefix+flow whose
// data points carry the OutcomeKey attribute.
const (
	FlowPrefix       = "goiam.auth."
	OutcomeKey       = "outcome"
	BucketBoundKey   = "le"
	AuditDroppedName = "goiam.audit.dropped"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on every collection. *goIAM.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() goIAM.MetricsSnapshot
	AuditDropped() uint64
}

var _ Source = (*goIAM.Engine)(nil)

type outcomePoint struct {
	id    goIAM.MetricID
	attrs metric.ObserveOption
}

type flowCounter struct {
	instrument metric.Int64ObservableCounter
	points     []outcomePoint
}

type latencyHistogram struct {
	id      goIAM.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	bounds  [internaldefs.BucketCount]metric.ObserveOption
}

// Exporter observes an engine's counters as per-flow OpenTelemetry
// instruments. Latency histograms become a cumulative gauge keyed by bucket
// bound, plus a sample count.
type Exporter struct {
	source       Source
	registration metric.Registration
	flows        []flowCounter
	latencies    []latencyHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers the instruments on meter and a single callback that
// reads one snapshot per collection.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	byFlow := make(map[string]int)
	for _, flow := range internaldefs.Flows() {
		ins, err := meter.Int64ObservableCounter(FlowPrefix+flow,
			metric.WithDescription("goIAM "+flow+" outcomes."),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("flow counter %s: %w", flow, err)
		}
		byFlow[flow] = len(e.flows)
		e.flows = append(e.flows, flowCounter{instrument: ins})
		observables = append(observables, ins)
	}
	for _, def := range internaldefs.CounterDefs {
		fc := &e.flows[byFlow[def.Flow]]
		fc.points = append(fc.points, outcomePoint{
			id:    def.ID,
			attrs: metric.WithAttributes(attribute.String(OutcomeKey, def.Outcome)),
		})
	}

	bounds := internaldefs.UpperBounds()
	for _, def := range internaldefs.HistogramDefs {
		h := latencyHistogram{id: def.ID}
		for i := range h.bounds {
			le := "+Inf"
			if i < len(bounds) {
				le = strconv.FormatFloat(bounds[i], 'f', -1, 64)
			}
			h.bounds[i] = metric.WithAttributes(attribute.String(BucketBoundKey, le))
		}

		base := "goiam." + def.Flow + ".duration"
		var err error
		h.buckets, err = meter.Int64ObservableGauge(base+".bucket",
			metric.WithDescription(def.Help+" Cumulative samples at or below each bound."),
		)
		if err != nil {
			return nil, fmt.Errorf("histogram buckets %s: %w", base, err)
		}
		h.count, err = meter.Int64ObservableGauge(base+".count",
			metric.WithDescription(def.Help+" Total samples."),
		)
		if err != nil {
			return nil, fmt.Errorf("histogram count %s: %w", base, err)
		}
		e.latencies = append(e.latencies, h)
		observables = append(observables, h.buckets, h.count)
	}

	var err error
	e.auditDropped, err = meter.Int64ObservableCounter(AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, fc := range e.flows {
		for _, p := range fc.points {
			o.ObserveInt64(fc.instrument, int64(snap.Counters[p.id]), p.attrs)
		}
	}
	for _, h := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, v := range cumulative {
			o.ObserveInt64(h.buckets, int64(v), h.bounds[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
