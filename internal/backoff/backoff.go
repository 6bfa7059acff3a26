package backoff

import (
	"sync"
	"time"
)

// DelayFunc maps a zero-based attempt counter to a wait duration.
type DelayFunc func(attempt int) time.Duration

// Exponential doubles the base delay per attempt, capped at max.
// Exponential(2s, 30s) yields 2s, 4s, 8s, 16s, 30s, 30s, ...
func Exponential(base, max time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		// 2^30 * anything is past every cap we use; avoids shift overflow
		if attempt > 30 {
			return max
		}
		d := base << uint(attempt)
		if d <= 0 || d > max {
			return max
		}
		return d
	}
}

// Fixed ignores the attempt counter entirely.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Timer is a single-slot cancelable timer. At most one callback is ever
// pending: Schedule replaces whatever was armed before. Stop makes the
// slot permanently inert, so a fire that races with teardown is discarded
// instead of mutating torn-down state.
type Timer struct {
	mu   sync.Mutex
	t    *time.Timer
	gen  uint64
	dead bool
}

func NewTimer() *Timer {
	return &Timer{}
}

// Schedule arms fn to run after d, canceling any previously armed fire.
// Returns false if the timer has been stopped.
func (s *Timer) Schedule(d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return false
	}
	if s.t != nil {
		s.t.Stop()
	}
	s.gen++
	gen := s.gen
	s.t = time.AfterFunc(d, func() {
		s.mu.Lock()
		live := !s.dead && gen == s.gen
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return true
}

// Cancel discards the pending fire, if any. The timer can be re-armed.
func (s *Timer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
}

// Stop cancels and disables the timer for good.
func (s *Timer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = true
	s.gen++
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
}
