package retry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayStaysWithinCeiling(t *testing.T) {
	b := NewBackoff(30*time.Second, time.Hour)

	for attempt := 1; attempt <= 10; attempt++ {
		ceiling := b.Ceiling(attempt)
		for i := 0; i < 50; i++ {
			d := b.Delay(attempt)
			assert.Greater(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, ceiling)
		}
	}
}

func TestCeilingDoublesThenCaps(t *testing.T) {
	b := NewBackoff(30*time.Second, time.Hour)

	assert.Equal(t, 30*time.Second, b.Ceiling(1))
	assert.Equal(t, time.Minute, b.Ceiling(2))
	assert.Equal(t, 2*time.Minute, b.Ceiling(3))
	assert.Equal(t, 16*time.Minute, b.Ceiling(6))
	assert.Equal(t, 32*time.Minute, b.Ceiling(7))
	assert.Equal(t, time.Hour, b.Ceiling(8))
	assert.Equal(t, time.Hour, b.Ceiling(20))
}

// Delay is shared between the scheduling path and the poller; the race
// detector must stay quiet under concurrent draws.
func TestDelaySafeUnderConcurrentUse(t *testing.T) {
	b := NewBackoff(30*time.Second, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				d := b.Delay(i%5 + 1)
				assert.Greater(t, d, time.Duration(0))
			}
		}()
	}
	wg.Wait()
}

func TestDelayTreatsNonPositiveAttemptAsFirst(t *testing.T) {
	b := NewBackoff(30*time.Second, time.Hour)

	assert.Equal(t, 30*time.Second, b.Ceiling(0))
	assert.LessOrEqual(t, b.Delay(-1), 30*time.Second)
}
