package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically without real sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestLimiter(limits map[Class]Limits) (*Limiter, *fakeClock) {
	fc := newFakeClock()
	l := New(limits,
		WithClock(fc.Now),
		WithSleep(fc.Sleep),
		WithRNG(rand.New(rand.NewSource(42))),
	)
	return l, fc
}

func TestAcquire_AdmitsUpToPerSecondCap(t *testing.T) {
	l, _ := newTestLimiter(map[Class]Limits{
		ClassOther: {PerSecond: 3, PerMinute: 180},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, ClassOther))
	}

	stats := l.Stats(ClassOther)
	assert.Equal(t, int64(3), stats.Admitted)
}

func TestAcquire_BlocksThenAdmitsAfterWindowAges(t *testing.T) {
	l, fc := newTestLimiter(map[Class]Limits{
		ClassOther: {PerSecond: 1, PerMinute: 180},
	})
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, ClassOther))
	before := fc.Now()
	require.NoError(t, l.Acquire(ctx, ClassOther))
	after := fc.Now()

	assert.True(t, after.Sub(before) >= time.Second, "second acquire should have waited for the 1s window to age out")

	stats := l.Stats(ClassOther)
	assert.Equal(t, int64(2), stats.Admitted)
	assert.Equal(t, int64(1), stats.Waited)
}

func TestAcquire_RespectsContextCancellation(t *testing.T) {
	l, _ := newTestLimiter(map[Class]Limits{
		ClassOther: {PerSecond: 1, PerMinute: 1},
	})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Acquire(ctx, ClassOther))
	cancel()

	err := l.Acquire(ctx, ClassOther)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestAcquire_CapRespectedUnderConcurrency is property test 1 from spec §8.1:
// for any sequence of N acquire calls, admissions in any 1s window never
// exceed the per-second cap.
func TestAcquire_CapRespectedUnderConcurrency(t *testing.T) {
	l, fc := newTestLimiter(map[Class]Limits{
		ClassOther: {PerSecond: 3, PerMinute: 180},
	})
	ctx := context.Background()

	var mu sync.Mutex
	var admissions []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(ctx, ClassOther))
			mu.Lock()
			admissions = append(admissions, fc.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, admissions, 12)

	for _, probe := range admissions {
		count := 0
		for _, a := range admissions {
			if !a.Before(probe.Add(-time.Second)) && !a.After(probe) {
				count++
			}
		}
		assert.LessOrEqual(t, count, 3, "no 1s window should admit more than the per-second cap")
	}
}
