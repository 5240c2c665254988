package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/loadengine/internal/tracing"
)

// Producer creates one task per call. It is called repeatedly from a single
// goroutine until the run stops.
type Producer[T any] interface {
	Produce(ctx context.Context) (T, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc[T any] func(ctx context.Context) (T, error)

func (f ProducerFunc[T]) Produce(ctx context.Context) (T, error) { return f(ctx) }

// Consumer handles one task per call. It is called repeatedly from a single
// goroutine until the queue is drained.
type Consumer[T any] interface {
	Consume(ctx context.Context, task T) error
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc[T any] func(ctx context.Context, task T) error

func (f ConsumerFunc[T]) Consume(ctx context.Context, task T) error { return f(ctx, task) }

// Result captures the outcome of one run.
type Result struct {
	RunID           string
	Claimed         int64 // tasks produced and enqueued
	Completed       int64 // consumer invocations
	Failures        int64 // consumer invocations that returned an error
	ProduceFailures int64
	Duration        time.Duration
	Reason          StopReason
}

type Option func(*options)

type options struct {
	logger *zap.Logger
	tracer trace.Tracer
}

// WithLogger sets the logger used for run lifecycle and collaborator failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer records one span per consumer invocation.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// Engine runs producers against consumers. An Engine holds no per-run state;
// it may be reused and run concurrently.
type Engine[T any] struct {
	recorder Recorder
	errs     ErrorRecorder
	logger   *zap.Logger
	tracer   trace.Tracer
}

func New[T any](recorder Recorder, opts ...Option) *Engine[T] {
	o := options{
		logger: zap.NewNop(),
		tracer: noop.NewTracerProvider().Tracer("loadengine"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	errs, _ := recorder.(ErrorRecorder)
	return &Engine[T]{recorder: recorder, errs: errs, logger: o.logger, tracer: o.tracer}
}

// run bundles everything shared by the workers of one Run call.
type run[T any] struct {
	*Engine[T]
	cfg     RunConfig
	log     *zap.Logger
	ctx     context.Context // handed to callbacks; cancelled on interruption
	cancel  context.CancelCauseFunc
	state   *runState
	cond    StopCondition
	gate    limiter
	permits *permits
	queue   *workQueue[T]

	liveConsumers atomic.Int32
}

type worker struct {
	role  string
	index int
}

func (w worker) String() string { return fmt.Sprintf("%s-%d", w.role, w.index) }

// Run blocks until the run is over: a limit fired, or every producer exited,
// and every enqueued task was consumed. It returns an error matching
// ErrInterrupted when ctx is cancelled first, ErrInvalidConfig when the
// arguments are unusable, and ErrNoConsumers when every consumer retired
// while work was pending.
func (e *Engine[T]) Run(ctx context.Context, producers []Producer[T], consumers []Consumer[T], cfg RunConfig) (Result, error) {
	if err := validateRun(producers, consumers, cfg); err != nil {
		return Result{}, err
	}
	if err := context.Cause(ctx); err != nil {
		return Result{Reason: StopReasonInterrupted}, interrupted(err)
	}
	cfg = cfg.normalize(len(consumers))

	runID := ulid.Make().String()
	spanCtx, runSpan := tracing.StartRunSpan(ctx, e.tracer, runID)
	runCtx, cancel := context.WithCancelCause(withProperties(spanCtx, cfg.Properties))
	defer cancel(nil)

	r := &run[T]{
		Engine:  e,
		cfg:     cfg,
		log:     e.logger.With(zap.String("run_id", runID)),
		ctx:     runCtx,
		cancel:  cancel,
		state:   newRunState(runCtx),
		cond:    NewStopCondition(cfg),
		gate:    newLimiter(cfg),
		permits: newPermits(cfg),
		queue:   newWorkQueue[T](cfg.QueueCapacity),
	}
	r.liveConsumers.Store(int32(len(consumers)))

	r.log.Info("load run started",
		zap.Int("producers", len(producers)),
		zap.Int("consumers", len(consumers)),
		zap.Duration("time_limit", cfg.TimeLimit),
		zap.Int64("request_limit", cfg.RequestLimit),
		zap.Float64("qps_limit", cfg.QPSLimit),
		zap.String("arrival", string(cfg.Arrival)),
	)

	if cfg.timeLimited() {
		timer := time.AfterFunc(cfg.TimeLimit, func() {
			if r.state.stop(StopReasonTime) {
				r.log.Debug("time limit reached")
			}
		})
		defer timer.Stop()
	}

	var producerWG, consumerWG sync.WaitGroup
	producerWG.Add(len(producers))
	for i, p := range producers {
		p := p
		w := worker{role: "producer", index: i}
		go func() {
			defer producerWG.Done()
			r.produceLoop(w, p)
		}()
	}
	go func() {
		producerWG.Wait()
		r.queue.Close()
	}()

	consumerWG.Add(len(consumers))
	for i, c := range consumers {
		c := c
		w := worker{role: "consumer", index: i}
		go func() {
			defer consumerWG.Done()
			r.consumeLoop(w, c)
		}()
	}

	consumerWG.Wait()
	producerWG.Wait()

	res := Result{
		RunID:           runID,
		Claimed:         r.state.claimed.Load(),
		Completed:       r.state.consumed.Load(),
		Failures:        r.state.consumed.Load() - r.state.succeeded.Load(),
		ProduceFailures: r.state.produceFailures.Load(),
		Duration:        r.state.elapsed(),
		Reason:          r.state.stopReason(),
	}

	var err error
	if cause := context.Cause(runCtx); cause != nil {
		if errors.Is(cause, ErrNoConsumers) {
			res.Reason = StopReasonNoConsumers
			err = ErrNoConsumers
		} else {
			res.Reason = StopReasonInterrupted
			err = interrupted(cause)
		}
	}

	fields := []zap.Field{
		zap.String("reason", string(res.Reason)),
		zap.Int64("claimed", res.Claimed),
		zap.Int64("completed", res.Completed),
		zap.Int64("failures", res.Failures),
		zap.Int64("produce_failures", res.ProduceFailures),
		zap.Duration("duration", res.Duration),
	}
	if err != nil {
		r.log.Warn("load run aborted", append(fields, zap.Error(err))...)
	} else {
		r.log.Info("load run finished", fields...)
	}
	tracing.EndSpan(runSpan, err,
		attribute.String("loadengine.stop_reason", string(res.Reason)),
		attribute.Int64("loadengine.completed", res.Completed),
		attribute.Int64("loadengine.failures", res.Failures),
	)
	return res, err
}

func validateRun[T any](producers []Producer[T], consumers []Consumer[T], cfg RunConfig) error {
	err := cfg.validate(len(producers), len(consumers))
	var issues []string
	if err != nil {
		var verr ValidationError
		if errors.As(err, &verr) {
			issues = verr.issues
		}
	}
	for i, p := range producers {
		if p == nil {
			issues = append(issues, fmt.Sprintf("producers[%d] is nil", i))
		}
	}
	for i, c := range consumers {
		if c == nil {
			issues = append(issues, fmt.Sprintf("consumers[%d] is nil", i))
		}
	}
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (r *run[T]) produceLoop(w worker, p Producer[T]) {
	log := r.log.With(zap.Stringer("worker", w))
	for {
		if r.state.stopped() || r.permits.exhausted() {
			return
		}
		if err := r.gate.Acquire(r.state.ctx); err != nil {
			// rate.Limiter refuses early when the next slot lies past the
			// caller's deadline; only leave once the run really stopped.
			<-r.state.ctx.Done()
			return
		}
		if !r.permits.claim() {
			return
		}

		task, err := r.produce(p)
		if err != nil {
			r.permits.release()
			r.state.produceFailures.Add(1)
			r.recorder.Increment(MetricProduceFailures)
			r.recordError(MetricProduceFailures, err)
			if r.handleFailure(log, err) {
				return
			}
			continue
		}

		// A task still waiting for room when the run stops is dropped, so
		// the backlog past a time limit stays bounded by the queue capacity.
		if err := r.queue.Put(r.state.ctx, task); err != nil {
			r.permits.release()
			return
		}
		r.state.commit()
	}
}

func (r *run[T]) produce(p Producer[T]) (task T, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = newPanicError(v)
		}
	}()
	return p.Produce(r.ctx)
}

func (r *run[T]) consumeLoop(w worker, c Consumer[T]) {
	log := r.log.With(zap.Stringer("worker", w))
	defer func() {
		if r.liveConsumers.Add(-1) == 0 && !r.queue.drained() {
			r.cancel(ErrNoConsumers)
		}
	}()

	for {
		task, ok := r.queue.Take(r.ctx)
		if !ok {
			return
		}

		err := r.consume(w, c, task)
		count := r.state.finish(err != nil, r.cfg.FailurePolicy)
		if reason, stop := r.cond.Reason(r.state.elapsed(), count); stop {
			if r.state.stop(reason) {
				log.Debug("stop condition reached", zap.String("reason", string(reason)), zap.Int64("count", count))
			}
		}
		if err != nil && r.handleFailure(log, err) {
			return
		}
	}
}

// consume invokes the consumer bracketed by its metric events.
func (r *run[T]) consume(w worker, c Consumer[T], task T) (err error) {
	ctx, span := tracing.StartWorkerSpan(r.ctx, r.tracer, w.role, w.index)
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			err = newPanicError(v)
		}
		r.recorder.Increment(MetricRequests)
		r.recorder.Time(MetricLatency, time.Since(start))
		if err != nil {
			r.recorder.Increment(MetricFailures)
			r.recordError(MetricFailures, err)
		}
		tracing.EndSpan(span, err)
	}()
	return c.Consume(ctx, task)
}

// handleFailure logs a collaborator error and reports whether the worker has
// to leave its loop.
func (r *run[T]) handleFailure(log *zap.Logger, err error) bool {
	switch {
	case errors.Is(err, ErrInterrupted):
		log.Warn("worker interrupted the run", zap.Error(err))
		r.cancel(err)
		return true
	case errors.Is(err, ErrRetire):
		var perr *PanicError
		if errors.As(err, &perr) {
			log.Error("worker panicked, retiring", zap.Any("panic", perr.Value), zap.ByteString("stack", perr.Stack))
		} else {
			log.Warn("worker retired", zap.Error(err))
		}
		return true
	default:
		log.Debug("collaborator failed", zap.Error(err))
		return false
	}
}

func (r *run[T]) recordError(name string, err error) {
	if r.errs != nil {
		r.errs.RecordError(name, err)
	}
}
