package docstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors recorded by an instrumented store.
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Watchers   prometheus.Gauge
}

// NewMetrics registers the store collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitqr",
			Subsystem: "docstore",
			Name:      "operations_total",
			Help:      "Document store operations by operation and result.",
		}, []string{"op", "result"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "splitqr",
			Subsystem: "docstore",
			Name:      "operation_duration_seconds",
			Help:      "Latency of document store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Watchers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "splitqr",
			Subsystem: "docstore",
			Name:      "active_watchers",
			Help:      "Document watches currently open.",
		}),
	}
}

// Ensure Instrumented implements Store
var _ Store = (*Instrumented)(nil)

// Instrumented decorates a Store with metrics.
type Instrumented struct {
	next    Store
	metrics *Metrics
}

// Instrument wraps store so every call is counted and timed.
func Instrument(store Store, metrics *Metrics) *Instrumented {
	return &Instrumented{next: store, metrics: metrics}
}

// Unwrap returns the decorated store.
func (s *Instrumented) Unwrap() Store { return s.next }

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	s.metrics.Operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	default:
		return "error"
	}
}

func (s *Instrumented) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	start := time.Now()
	snap, err := s.next.Get(ctx, ref)
	s.observe("get", start, err)
	return snap, err
}

func (s *Instrumented) Create(ctx context.Context, ref Ref, fields Fields) (int64, error) {
	start := time.Now()
	v, err := s.next.Create(ctx, ref, fields)
	s.observe("create", start, err)
	return v, err
}

func (s *Instrumented) Set(ctx context.Context, ref Ref, fields Fields) (int64, error) {
	start := time.Now()
	v, err := s.next.Set(ctx, ref, fields)
	s.observe("set", start, err)
	return v, err
}

func (s *Instrumented) Update(ctx context.Context, ref Ref, fields Fields, opts ...UpdateOption) (int64, error) {
	start := time.Now()
	v, err := s.next.Update(ctx, ref, fields, opts...)
	s.observe("update", start, err)
	return v, err
}

func (s *Instrumented) Watch(ctx context.Context, ref Ref, onSnapshot func(Snapshot), onError func(error)) func() {
	s.metrics.Watchers.Inc()
	release := sync.OnceFunc(s.metrics.Watchers.Dec)

	stop := s.next.Watch(ctx, ref, onSnapshot, func(err error) {
		s.metrics.Operations.WithLabelValues("watch", resultLabel(err)).Inc()
		release()
		if onError != nil {
			onError(err)
		}
	})
	return func() {
		stop()
		release()
	}
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}
