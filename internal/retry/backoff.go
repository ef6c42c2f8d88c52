package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff computes the delay before a given attempt: exponential from
// the base, capped, with full jitter so a burst of failures does not
// reschedule in lockstep. Delay is called concurrently from request
// handlers scheduling retries and from the poller, so the jitter
// source is guarded.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{
		Base: base,
		Max:  max,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the jittered delay for attempt n (1-based). The jitter
// draws uniformly from (0, capped]; the delay is never zero.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}
	b.mu.Lock()
	jittered := time.Duration(b.rand.Int63n(int64(d))) + 1
	b.mu.Unlock()
	return jittered
}

// Ceiling returns the un-jittered delay for attempt n, the upper bound
// Delay can produce.
func (b *Backoff) Ceiling(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}
