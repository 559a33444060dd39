package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	c := NewFakeClock(start)

	assert.Equal(t, time.UTC, c.Now().Location())
	assert.Equal(t, c.Now(), c.Now())
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second).UTC(), c.Now())
}

func TestFakeClockStepping(t *testing.T) {
	start := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	c := NewFakeClock(start).Stepping(time.Millisecond)

	first := c.Now()
	second := c.Now()
	assert.Equal(t, start, first)
	assert.Equal(t, time.Millisecond, second.Sub(first))
}

func TestFakeClockIsSafeForConcurrentUse(t *testing.T) {
	c := NewFakeClock(time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)).Stepping(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Now()
		}()
	}
	wg.Wait()
	assert.Equal(t, time.Date(2024, 5, 3, 9, 0, 8, 0, time.UTC), c.Now())
}

func TestSystemClockIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, System().Now().Location())
}
