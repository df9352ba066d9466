package fetch

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalFor(t *testing.T) {
	tests := []struct {
		name       string
		def, delay time.Duration
		want       time.Duration
	}{
		{"no crawl delay uses default", time.Second, 0, time.Second},
		{"whole seconds kept", time.Second, 3 * time.Second, 3 * time.Second},
		{"fractional rounds up", time.Second, 1500 * time.Millisecond, 2 * time.Second},
		{"small delay rounds up to one second", 5 * time.Second, 100 * time.Millisecond, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IntervalFor(tt.def, tt.delay))
		})
	}
}

func TestRateLimiter_NoDelayOnFirstRequest(t *testing.T) {
	store := newTestStore(t)
	rl := NewRateLimiter(store.KV(), testLogger())

	start := time.Now()
	waited, err := rl.Wait(context.Background(), "fresh-host.com", 5*time.Second)
	require.NoError(t, err)
	assert.Zero(t, waited)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait on first request took %v, expected instant return", elapsed)
	}
}

func TestRateLimiter_WaitsRemainingInterval(t *testing.T) {
	store := newTestStore(t)
	rl := NewRateLimiter(store.KV(), testLogger())
	ctx := context.Background()

	require.NoError(t, rl.Record(ctx, "example.com", 300*time.Millisecond))

	start := time.Now()
	waited, err := rl.Wait(ctx, "example.com", 300*time.Millisecond)
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Greater(t, waited, time.Duration(0))
	if elapsed < 200*time.Millisecond {
		t.Errorf("Wait returned too quickly: %v, expected ~300ms", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("Wait took too long: %v, expected ~300ms", elapsed)
	}
}

func TestRateLimiter_ElapsedIntervalDoesNotWait(t *testing.T) {
	store := newTestStore(t)
	rl := NewRateLimiter(store.KV(), testLogger())
	ctx := context.Background()

	recorded := time.Now().Add(-10 * time.Second)
	rl.now = func() time.Time { return recorded }
	require.NoError(t, rl.Record(ctx, "example.com", 30*time.Second))
	rl.now = time.Now

	waited, err := rl.Wait(ctx, "example.com", time.Second)
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestRateLimiter_RespectsContextCancellation(t *testing.T) {
	store := newTestStore(t)
	rl := NewRateLimiter(store.KV(), testLogger())
	require.NoError(t, rl.Record(context.Background(), "example.com", 5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := rl.Wait(ctx, "example.com", 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait with cancelled context took %v, expected <100ms", elapsed)
	}
}

func TestRateLimiter_SharedAcrossInstances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := NewRateLimiter(store.KV(), testLogger())
	b := NewRateLimiter(store.KV(), testLogger())

	require.NoError(t, a.Record(ctx, "example.com", 200*time.Millisecond))
	waited, err := b.Wait(ctx, "example.com", 200*time.Millisecond)
	require.NoError(t, err)
	assert.Greater(t, waited, time.Duration(0), "limiters over one store see each other's requests")
}

func TestRateLimiter_ConcurrentWaitersAreSpaced(t *testing.T) {
	store := newTestStore(t)
	rl := NewRateLimiter(store.KV(), testLogger())
	ctx := context.Background()

	waits := make(chan time.Duration, 2)
	for i := 0; i < 2; i++ {
		go func() {
			waited, err := rl.Wait(ctx, "example.com", 300*time.Millisecond)
			assert.NoError(t, err)
			waits <- waited
		}()
	}
	a, b := <-waits, <-waits
	if a > b {
		a, b = b, a
	}
	assert.Zero(t, a, "first reservation goes immediately")
	assert.Greater(t, b, 200*time.Millisecond, "second reservation is pushed one interval out")
}

func TestRateLimiter_RecordKeepsLaterReservation(t *testing.T) {
	store := newTestStore(t)
	rl := NewRateLimiter(store.KV(), testLogger())
	ctx := context.Background()

	_, err := rl.Wait(ctx, "example.com", 300*time.Millisecond)
	require.NoError(t, err)
	reserved := time.Now()
	rl.now = func() time.Time { return reserved.Add(time.Hour) }
	_, err = rl.Wait(ctx, "example.com", 300*time.Millisecond)
	require.NoError(t, err)
	rl.now = time.Now

	require.NoError(t, rl.Record(ctx, "example.com", 300*time.Millisecond))
	raw, found, err := store.KV().Get(ctx, rateKeyPrefix+"example.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, strconv.FormatInt(reserved.Add(time.Hour).UnixNano(), 10), string(raw), "an earlier request time never rewinds a reservation")
}
