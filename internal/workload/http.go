package workload

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/torosent/loadengine/internal/engine"
	"github.com/torosent/loadengine/internal/httpclient"
	"github.com/torosent/loadengine/internal/tracing"
)

const (
	maxLoggedBodyBytes = 1024
	headerPrefix       = "header."
)

// HTTPError represents an HTTP response with a failure status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether sending the same request again may succeed.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type httpConsumer struct {
	client    *http.Client
	target    string
	opts      Options
	propagate bool
	expect    expectations
}

func newHTTPWorkload(props map[string]string, seq *sequence, opts Options) (*Workload, error) {
	tmpl := httpclient.RequestTemplate{
		Method:   props["method"],
		Target:   props["target"],
		Body:     props["body"],
		BodyFile: props["body_file"],
		Headers:  map[string]string{},
	}
	for key, value := range props {
		if name, ok := strings.CutPrefix(key, headerPrefix); ok {
			tmpl.Headers[name] = value
		}
	}
	builder, err := httpclient.NewRequestBuilder(tmpl)
	if err != nil {
		return nil, fmt.Errorf("http workload: %w", err)
	}
	expect, err := parseExpectations(props)
	if err != nil {
		return nil, fmt.Errorf("http workload: %w", err)
	}

	consumer := &httpConsumer{
		client:    httpclient.NewClient(opts.Timeout),
		target:    builder.Target(),
		opts:      opts,
		propagate: opts.Propagate,
		expect:    expect,
	}
	return &Workload{
		Name: "http",
		producer: engine.ProducerFunc[Task](func(ctx context.Context) (Task, error) {
			task, _ := seq.next(ctx)
			req, err := builder.Build(context.Background())
			if err != nil {
				return Task{}, err
			}
			// Consumers open their own copy of the body through GetBody.
			if req.Body != nil {
				_ = req.Body.Close()
			}
			task.Request = req
			return task, nil
		}),
		consumer: consumer,
	}, nil
}

// Consume sends the task's request on the consumer's context, so the engine
// span and cancellation apply to it.
func (c *httpConsumer) Consume(ctx context.Context, task Task) (err error) {
	if task.Request == nil {
		return fmt.Errorf("task %d carries no request", task.Seq)
	}
	ctx, span := tracing.StartRequestSpan(ctx, c.opts.Tracer, "http", c.target)
	var status int
	defer func() {
		tracing.EndSpan(span, err, attribute.Int("http.status_code", status))
	}()

	req := task.Request.Clone(ctx)
	if task.Request.GetBody != nil {
		body, err := task.Request.GetBody()
		if err != nil {
			return err
		}
		req.Body = body
	}
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.opts.Recorder.Increment("http_transport_errors")
		return err
	}
	c.opts.Recorder.Time("http_response_time", time.Since(start))
	status = resp.StatusCode
	c.opts.Recorder.Increment(statusClass(status))

	limit := int64(maxLoggedBodyBytes)
	if !c.expect.empty() {
		limit = maxCheckedBodyBytes
	}
	body := httpclient.Drain(resp.Body, limit)
	if status >= 400 {
		if len(body) > maxLoggedBodyBytes {
			body = body[:maxLoggedBodyBytes]
		}
		return &HTTPError{StatusCode: status, Body: strings.TrimSpace(string(body))}
	}
	if err := c.expect.check(body); err != nil {
		c.opts.Recorder.Increment("http_expectation_failures")
		return err
	}
	return nil
}

func statusClass(code int) string {
	return fmt.Sprintf("http_%dxx", code/100)
}
