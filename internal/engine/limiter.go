package engine

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiter paces permit issuance across every producer of a run. Acquire
// blocks until the next slot or until ctx is done.
type limiter interface {
	Acquire(ctx context.Context) error
}

// maxArrivalDelay caps one sampled gap. A slot that far out never arrives
// within a run, and the cap keeps time.Time arithmetic from overflowing.
const maxArrivalDelay = 100 * 365 * 24 * time.Hour

// farFuture stands in for a next slot that no longer fits in a time.Time.
var farFuture = time.Unix(1<<62, 0)

func newLimiter(cfg RunConfig) limiter {
	if !cfg.rateLimited() {
		return unlimitedArrival{}
	}
	switch cfg.Arrival {
	case ArrivalModelPoisson:
		sampler := cfg.PoissonSampler
		if sampler == nil {
			seeded := rand.New(rand.NewSource(cfg.RandomSeed))
			sampler = seeded.ExpFloat64
		}
		return &poissonArrival{rate: cfg.QPSLimit, sample: sampler}
	default:
		// Burst of one spaces slots evenly at 1/qps instead of letting a full
		// bucket go out at once.
		return &uniformArrival{limiter: rate.NewLimiter(rate.Limit(cfg.QPSLimit), 1)}
	}
}

type unlimitedArrival struct{}

func (unlimitedArrival) Acquire(ctx context.Context) error {
	return ctx.Err()
}

// uniformArrival delegates pacing to a rate.Limiter (uniform spacing).
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Acquire(ctx context.Context) error {
	return u.limiter.Wait(ctx)
}

// poissonArrival samples exponential inter-arrival times to approximate a
// Poisson process. Slots are reserved under a lock so the aggregate rate
// stays at the configured mean however many producers wait concurrently.
type poissonArrival struct {
	mu     sync.Mutex
	rate   float64
	next   time.Time
	sample func() float64
}

func (p *poissonArrival) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay := time.Until(p.reserve())
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonArrival) reserve() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.next.Before(now) {
		p.next = now
	}
	slot := p.next
	if next := p.next.Add(p.nextDelay()); !next.Before(p.next) {
		p.next = next
	} else {
		p.next = farFuture
	}
	return slot
}

func (p *poissonArrival) nextDelay() time.Duration {
	if p.rate <= 0 || p.sample == nil {
		return 0
	}
	delay := float64(time.Second) * p.sample() / p.rate
	switch {
	case math.IsNaN(delay) || delay >= float64(maxArrivalDelay):
		return maxArrivalDelay
	case delay < 0:
		return 0
	}
	return time.Duration(delay)
}
