// Package workload provides the built-in producer/consumer pairs the CLI can
// drive through the engine.
package workload

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/loadengine/internal/config"
	"github.com/torosent/loadengine/internal/engine"
)

// Task is handed from producers to consumers. Request is only set by the
// http workload.
type Task struct {
	Seq     int64
	Request *http.Request
}

// Options carries what the workloads need from the process around them.
type Options struct {
	Timeout   time.Duration   // per-request timeout for http
	Tracer    trace.Tracer    // client spans for http
	Propagate bool            // inject W3C trace headers into http requests
	Recorder  engine.Recorder // receives workload specific counters
}

// Workload is a producer and a consumer safe for use by any number of
// worker goroutines.
type Workload struct {
	Name     string
	producer engine.Producer[Task]
	consumer engine.Consumer[Task]
}

// New builds the workload named kind from the run properties.
func New(kind config.Workload, props map[string]string, opts Options) (*Workload, error) {
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("loadengine/workload")
	}
	if opts.Recorder == nil {
		opts.Recorder = engine.NopRecorder{}
	}

	seq := &sequence{}
	switch kind {
	case "", config.WorkloadNoop:
		return &Workload{
			Name:     string(config.WorkloadNoop),
			producer: engine.ProducerFunc[Task](seq.next),
			consumer: engine.ConsumerFunc[Task](func(context.Context, Task) error { return nil }),
		}, nil
	case config.WorkloadSleep:
		produce, err := durationProperty(props, "produce_latency")
		if err != nil {
			return nil, err
		}
		consume, err := durationProperty(props, "consume_latency")
		if err != nil {
			return nil, err
		}
		return &Workload{
			Name: string(config.WorkloadSleep),
			producer: engine.ProducerFunc[Task](func(ctx context.Context) (Task, error) {
				if err := sleep(ctx, produce); err != nil {
					return Task{}, err
				}
				return seq.next(ctx)
			}),
			consumer: engine.ConsumerFunc[Task](func(ctx context.Context, _ Task) error {
				return sleep(ctx, consume)
			}),
		}, nil
	case config.WorkloadHTTP:
		return newHTTPWorkload(props, seq, opts)
	default:
		return nil, fmt.Errorf("unknown workload %q", kind)
	}
}

// Producers returns n handles on the shared producer.
func (w *Workload) Producers(n int) []engine.Producer[Task] {
	out := make([]engine.Producer[Task], n)
	for i := range out {
		out[i] = w.producer
	}
	return out
}

// Consumers returns n copies of c, which normally is Consumer() wrapped in
// middleware.
func Consumers(n int, c engine.Consumer[Task]) []engine.Consumer[Task] {
	out := make([]engine.Consumer[Task], n)
	for i := range out {
		out[i] = c
	}
	return out
}

func (w *Workload) Consumer() engine.Consumer[Task] {
	return w.consumer
}

type sequence struct {
	n atomic.Int64
}

func (s *sequence) next(context.Context) (Task, error) {
	return Task{Seq: s.n.Add(1)}, nil
}

func durationProperty(props map[string]string, key string) (time.Duration, error) {
	raw := strings.TrimSpace(props[key])
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("property %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("property %s must not be negative", key)
	}
	return d, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
