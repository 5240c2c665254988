// Package prom exports engine metric events to Prometheus.
package prom

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/torosent/loadengine/internal/engine"
)

// Recorder implements engine.Recorder on top of Prometheus collectors. Event
// names become the "name" label.
type Recorder struct {
	events *prometheus.CounterVec
	timers *prometheus.HistogramVec
	errors *prometheus.CounterVec
}

var (
	_ engine.Recorder      = (*Recorder)(nil)
	_ engine.ErrorRecorder = (*Recorder)(nil)
)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadengine_events_total",
				Help: "Total number of engine events by metric name.",
			},
			[]string{"name"},
		),
		timers: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loadengine_timer_seconds",
				Help:    "Timed engine events in seconds by metric name.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"name"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadengine_errors_total",
				Help: "Failures by metric name and Go error type.",
			},
			[]string{"name", "type"},
		),
	}
	for _, c := range []prometheus.Collector{r.events, r.timers, r.errors} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register prometheus collector: %w", err)
		}
	}
	return r, nil
}

func (r *Recorder) Increment(name string) {
	r.events.WithLabelValues(name).Inc()
}

func (r *Recorder) Time(name string, d time.Duration) {
	r.timers.WithLabelValues(name).Observe(d.Seconds())
}

func (r *Recorder) RecordError(name string, err error) {
	if err == nil {
		return
	}
	r.errors.WithLabelValues(name, fmt.Sprintf("%T", err)).Inc()
}
