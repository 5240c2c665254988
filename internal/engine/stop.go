package engine

import "time"

// StopCondition decides whether a run has to end. It holds no mutable state
// and may be evaluated from any goroutine.
type StopCondition struct {
	TimeLimit    time.Duration
	RequestLimit int64
}

func NewStopCondition(cfg RunConfig) StopCondition {
	var c StopCondition
	if cfg.timeLimited() {
		c.TimeLimit = cfg.TimeLimit
	}
	if cfg.requestLimited() {
		c.RequestLimit = cfg.RequestLimit
	}
	return c
}

// ShouldStop reports whether elapsed or count reached a configured limit.
func (c StopCondition) ShouldStop(elapsed time.Duration, count int64) bool {
	_, stop := c.Reason(elapsed, count)
	return stop
}

// Reason is ShouldStop that also names the limit that fired. The time limit
// wins when both are reached.
func (c StopCondition) Reason(elapsed time.Duration, count int64) (StopReason, bool) {
	if count < 0 {
		panic("engine: negative completion count")
	}
	if c.TimeLimit > 0 && elapsed >= c.TimeLimit {
		return StopReasonTime, true
	}
	if c.RequestLimit > 0 && count >= c.RequestLimit {
		return StopReasonRequests, true
	}
	return "", false
}
