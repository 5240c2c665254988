package engine

import (
	"context"
	"fmt"
	"maps"
	"math"
	"time"
)

// Unlimited disables a limit. The zero value of a limit means the same thing.
const Unlimited = -1

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// FailurePolicy decides whether failed consumer invocations count toward
// RequestLimit when evaluating the stop condition.
type FailurePolicy string

const (
	// CountAttempts counts every consumer invocation, failed or not.
	CountAttempts FailurePolicy = "attempts"
	// CountSuccesses counts only invocations that returned nil. A request
	// limited run still ends once every permit was used and consumed.
	CountSuccesses FailurePolicy = "successes"
)

// RunConfig configures a single Run.
type RunConfig struct {
	TimeLimit      time.Duration     // wall-clock cap (0 or Unlimited means none)
	RequestLimit   int64             // tasks that may ever be produced (0 or Unlimited means none)
	QPSLimit       float64           // aggregate permits per second (0 or Unlimited means none)
	Arrival        ArrivalModel      // pacing under QPSLimit (default uniform)
	QueueCapacity  int               // work queue size (0 means one slot per consumer)
	FailurePolicy  FailurePolicy     // default CountAttempts
	Properties     map[string]string // handed to collaborators untouched
	RandomSeed     int64             // seeds the Poisson sampler (0 picks one)
	PoissonSampler func() float64    // optional injection for tests
}

func (c RunConfig) timeLimited() bool { return c.TimeLimit > 0 }
func (c RunConfig) requestLimited() bool { return c.RequestLimit > 0 }
func (c RunConfig) rateLimited() bool { return c.QPSLimit > 0 && !math.IsInf(c.QPSLimit, 1) }

func (c RunConfig) validate(producers, consumers int) error {
	var issues []string
	if producers == 0 {
		issues = append(issues, "at least one producer is required")
	}
	if consumers == 0 {
		issues = append(issues, "at least one consumer is required")
	}
	if c.TimeLimit < 0 && c.TimeLimit != Unlimited {
		issues = append(issues, fmt.Sprintf("time limit must be >= 0 or unlimited, got %s", c.TimeLimit))
	}
	if c.RequestLimit < 0 && c.RequestLimit != Unlimited {
		issues = append(issues, fmt.Sprintf("request limit must be >= 0 or unlimited, got %d", c.RequestLimit))
	}
	if math.IsNaN(c.QPSLimit) {
		issues = append(issues, "qps limit must be a number")
	} else if c.QPSLimit < 0 && c.QPSLimit != Unlimited {
		issues = append(issues, fmt.Sprintf("qps limit must be >= 0 or unlimited, got %g", c.QPSLimit))
	}
	if c.QueueCapacity < 0 {
		issues = append(issues, "queue capacity must be >= 0")
	}
	switch c.Arrival {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", c.Arrival))
	}
	switch c.FailurePolicy {
	case "", CountAttempts, CountSuccesses:
	default:
		issues = append(issues, fmt.Sprintf("failure policy %q is not supported", c.FailurePolicy))
	}
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (c RunConfig) normalize(consumers int) RunConfig {
	if c.Arrival == "" {
		c.Arrival = ArrivalModelUniform
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = CountAttempts
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = consumers
	}
	if c.RandomSeed == 0 {
		c.RandomSeed = time.Now().UnixNano()
	}
	c.Properties = maps.Clone(c.Properties)
	if c.Properties == nil {
		c.Properties = map[string]string{}
	}
	return c
}

type propertiesKey struct{}

func withProperties(ctx context.Context, props map[string]string) context.Context {
	return context.WithValue(ctx, propertiesKey{}, props)
}

// PropertiesFromContext returns the RunConfig.Properties of the run the
// context belongs to. Producers and consumers receive such a context. The map
// must not be modified.
func PropertiesFromContext(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}
	props, _ := ctx.Value(propertiesKey{}).(map[string]string)
	return props
}
