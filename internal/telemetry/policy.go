package telemetry

import "time"

// RestartPolicy decides whether and when the supervisor relaunches the
// hidden child after an exit. Attempts count consecutive failures; a
// child that stays up long enough resets the counter.
type RestartPolicy interface {
	// NextDelay returns the wait before restart attempt n (1-based)
	// and whether the attempt is allowed at all.
	NextDelay(attempt int) (time.Duration, bool)
}

// FixedCooldown restarts forever with a constant delay.
type FixedCooldown struct {
	Delay time.Duration
}

func (p FixedCooldown) NextDelay(int) (time.Duration, bool) {
	d := p.Delay
	if d <= 0 {
		d = 5 * time.Second
	}
	return d, true
}

// ExponentialBackoff doubles the delay per consecutive failure up to a
// ceiling, and gives up entirely after MaxAttempts. A child that
// crash-loops on startup burns through the attempts in minutes instead
// of respawning forever.
type ExponentialBackoff struct {
	Base        time.Duration // first delay, default 5s
	Max         time.Duration // delay ceiling, default 5m
	MaxAttempts int           // 0 means unbounded, default 20
}

// DefaultBackoff is the restart policy used unless configured otherwise.
func DefaultBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		Base:        5 * time.Second,
		Max:         5 * time.Minute,
		MaxAttempts: 20,
	}
}

func (p ExponentialBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 {
		attempt = 1
	}
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return 0, false
	}

	base := p.Base
	if base <= 0 {
		base = 5 * time.Second
	}
	max := p.Max
	if max <= 0 {
		max = 5 * time.Minute
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max, true
		}
	}
	if d > max {
		d = max
	}
	return d, true
}
