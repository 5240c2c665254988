package engine

import "sync/atomic"

// permits hands out the right to produce one task. With a limit set, at most
// limit permits are outstanding or committed at any time, which makes the
// request limit an exact cutoff no matter how many producers race for it.
type permits struct {
	limit    int64 // <= 0 means unlimited
	reserved atomic.Int64
}

func newPermits(cfg RunConfig) *permits {
	p := &permits{}
	if cfg.requestLimited() {
		p.limit = cfg.RequestLimit
	}
	return p
}

func (p *permits) claim() bool {
	if p.limit <= 0 {
		p.reserved.Add(1)
		return true
	}
	for {
		current := p.reserved.Load()
		if current >= p.limit {
			return false
		}
		if p.reserved.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// release hands back a permit whose task was never enqueued.
func (p *permits) release() {
	if p.reserved.Add(-1) < 0 {
		panic("engine: permit released more often than claimed")
	}
}

func (p *permits) exhausted() bool {
	return p.limit > 0 && p.reserved.Load() >= p.limit
}
