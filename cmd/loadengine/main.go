package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/loadengine/internal/config"
	"github.com/torosent/loadengine/internal/engine"
	"github.com/torosent/loadengine/internal/logging"
	"github.com/torosent/loadengine/internal/metrics"
	"github.com/torosent/loadengine/internal/metrics/prom"
	"github.com/torosent/loadengine/internal/output"
	"github.com/torosent/loadengine/internal/threshold"
	"github.com/torosent/loadengine/internal/tracing"
	"github.com/torosent/loadengine/internal/workload"
)

const (
	progressInterval = time.Second
	baseRetryDelay   = 100 * time.Millisecond
	maxRetryDelay    = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

var errThresholdsFailed = errors.New("thresholds failed")

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	provider, err := tracing.Init(ctx, cfg.Tracing, tracing.WithAttributes(
		attribute.String("loadengine.workload", string(cfg.Workload)),
		attribute.Int("loadengine.producers", cfg.Producers),
		attribute.Int("loadengine.consumers", cfg.Consumers),
	))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	promRecorder, err := prom.NewRecorder(registry)
	if err != nil {
		return err
	}
	recorder := engine.MultiRecorder(collector, promRecorder)

	wl, err := workload.New(cfg.Workload, cfg.Properties, workload.Options{
		Timeout:   cfg.Timeout,
		Tracer:    provider.Tracer(),
		Propagate: provider.ShouldPropagate(),
		Recorder:  recorder,
	})
	if err != nil {
		return err
	}

	consumer := wl.Consumer()
	if cfg.LogErrors {
		consumer = engine.WithFailureLogging(consumer, logger.Named("consumer"))
	}
	if cfg.Retries > 0 {
		consumer = engine.WithRetry(consumer, newRetryPolicy(cfg.Retries))
	}

	eng := engine.New[workload.Task](recorder,
		engine.WithLogger(logger),
		engine.WithTracer(provider.Tracer()),
	)

	format := cfg.Format()
	var progress *output.ProgressReporter
	if cfg.Progress && format == config.OutputFormatText {
		progress = output.NewProgressReporter(collector, progressInterval, stdout)
	}

	logger.Info("starting load run",
		zap.String("workload", wl.Name),
		zap.String("config_file", cfg.ConfigFile),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	var res engine.Result
	var runErr error
	g, gctx := errgroup.WithContext(ctx)
	stopServer := func() {}
	if cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		server := newMetricsServer(registry)
		g.Go(func() error {
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		stopServer = func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}
		logger.Info("serving prometheus metrics", zap.String("addr", ln.Addr().String()))
	}

	g.Go(func() error {
		defer stopServer()
		if progress != nil {
			progress.Start()
			defer progress.Stop()
		}
		collector.Start()
		res, runErr = eng.Run(gctx, wl.Producers(cfg.Producers), workload.Consumers(cfg.Consumers, consumer), toRunConfig(cfg))
		// The run error is reported after the summary is printed.
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if errors.Is(runErr, engine.ErrInvalidConfig) {
		return runErr
	}

	stats := collector.Stats(res.Duration)
	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	report := output.Report{
		RunID:      res.RunID,
		StopReason: string(res.Reason),
		Stats:      stats,
		Thresholds: results,
	}
	if err := output.Write(stdout, string(format), report); err != nil {
		return err
	}

	switch {
	case runErr != nil:
		return runErr
	case !threshold.AllPassed(results):
		return errThresholdsFailed
	case len(thresholds) == 0 && res.Failures > 0:
		return fmt.Errorf("%d requests failed", res.Failures)
	}
	return nil
}

func newMetricsServer(registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func toRunConfig(cfg *config.Config) engine.RunConfig {
	return engine.RunConfig{
		TimeLimit:     cfg.TimeLimit,
		RequestLimit:  cfg.Requests,
		QPSLimit:      cfg.QPS,
		Arrival:       engine.ArrivalModel(cfg.ArrivalModel),
		QueueCapacity: cfg.QueueCapacity,
		FailurePolicy: toFailurePolicy(cfg.FailurePolicy),
		Properties:    cfg.Properties,
	}
}

func toFailurePolicy(policy config.FailurePolicy) engine.FailurePolicy {
	if policy == config.FailurePolicySuccesses {
		return engine.CountSuccesses
	}
	return engine.CountAttempts
}

func newRetryPolicy(retries int) engine.RetryPolicy {
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	return engine.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			if err == nil {
				return false
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}

			var httpErr *workload.HTTPError
			if errors.As(err, &httpErr) {
				return httpErr.Retryable()
			}
			var expErr *workload.ExpectationError
			if errors.As(err, &expErr) {
				return false
			}

			return true
		},
		DelayFunc: func(attempt int, err error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
			if backoff > maxRetryDelay {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}
