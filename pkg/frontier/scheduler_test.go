package frontier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestScheduler(t *testing.T) (*Scheduler, *storage.BadgerStore) {
	t.Helper()
	store, err := storage.Open(context.Background(), t.TempDir(), storage.Options{}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.SchedulerConfig{BatchSize: 100, StaleLockTimeout: time.Hour, ReprioritizeChunk: 2}
	return NewScheduler(cfg, store, testLogger()), store
}

func ensureURL(t *testing.T, store *storage.BadgerStore, rec models.URLRecord) models.URLRecord {
	t.Helper()
	if rec.Hash == "" {
		rec.Hash = utils.CalculateStringSHA256(rec.NormalizedURL)
	}
	if rec.Category == "" {
		rec.Category = "technology"
	}
	stored, created, err := store.URLs().Ensure(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func TestCalculatePriority(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		depth   int
		inbound int
		crawled time.Time
		want    int
	}{
		{"seed never crawled is clamped", 0, 0, time.Time{}, 100},
		{"recently crawled", 2, 3, now.Add(-2 * time.Hour), 75},
		{"deep and crawled last week", 10, 0, now.Add(-3 * 24 * time.Hour), 50},
		{"not crawled for over a week", 3, 0, now.Add(-10 * 24 * time.Hour), 80},
		{"inbound bonus capped", 5, 40, now.Add(-2 * 24 * time.Hour), 80},
		{"deep page crawled just now", 20, 0, now, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := models.URLRecord{Depth: tt.depth, LastCrawledAt: tt.crawled}
			assert.Equal(t, tt.want, CalculatePriority(rec, tt.inbound, now))
		})
	}
}

func TestCalculatePriority_AlwaysInBounds(t *testing.T) {
	now := time.Now()
	depths := []int{-1000, -1, 0, 1, 4, 5, 50, 1 << 20, math.MaxInt32}
	inbounds := []int{-10, 0, 1, 6, 1000, math.MaxInt32}
	crawled := []time.Time{{}, now, now.Add(-time.Hour), now.Add(-30 * 24 * time.Hour), now.Add(time.Hour)}

	for _, d := range depths {
		for _, in := range inbounds {
			for _, c := range crawled {
				p := CalculatePriority(models.URLRecord{Depth: d, LastCrawledAt: c}, in, now)
				if p < 1 || p > 100 {
					t.Errorf("CalculatePriority(depth=%d, inbound=%d, crawled=%v) = %d, out of [1,100]", d, in, c, p)
				}
			}
		}
	}
}

func TestCalculateNextCrawl(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		depth   int
		inbound int
		want    time.Duration
	}{
		{0, 0, 1 * day},
		{0, 10, 1 * day}, // Floor
		{1, 0, 2 * day},
		{2, 0, 3 * day},
		{3, 0, 7 * day},
		{3, 6, 6 * day},
		{4, 5, 14 * day}, // Exactly 5 inbound is not popular
		{5, 0, 30 * day},
		{99, 99, 29 * day},
	}
	for _, tt := range tests {
		got := CalculateNextCrawl(models.URLRecord{Depth: tt.depth}, tt.inbound, now)
		if got.Sub(now) != tt.want {
			t.Errorf("CalculateNextCrawl(depth=%d, inbound=%d) = +%v, want +%v", tt.depth, tt.inbound, got.Sub(now), tt.want)
		}
	}
}

func TestSchedule_SelectsDueURLsOnce(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()
	now := time.Now()

	due := ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/due", Priority: 10})
	ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/past", Priority: 90, NextCrawlAt: now.Add(-time.Hour)})
	ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/future", NextCrawlAt: now.Add(time.Hour)})
	ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/skipped", Status: models.URLStatusSkipped})

	n, err := sched.Schedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entry, err := store.Queue().Get(ctx, due.Hash)
	require.NoError(t, err)
	assert.Equal(t, due.NormalizedURL, entry.URL)
	assert.False(t, entry.Locked)

	n, err = sched.Schedule(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already queued URLs are not queued again")

	count, err := store.Queue().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSchedule_BatchTakesHighestPriority(t *testing.T) {
	sched, store := newTestScheduler(t)
	sched.batchSize = 1
	ctx := context.Background()

	ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/low", Priority: 5})
	high := ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/high", Priority: 95})

	n, err := sched.Schedule(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = store.Queue().Get(ctx, high.Hash)
	assert.NoError(t, err)
}

func TestClaimDue_HighestPriorityFirst(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()

	for p := 10; p <= 100; p += 10 {
		ensureURL(t, store, models.URLRecord{NormalizedURL: fmt.Sprintf("https://a.com/p%d", p), Priority: p})
	}
	n, err := sched.Schedule(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	claimed, err := sched.ClaimDue(ctx, "w1", 3)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	var got []int
	for _, c := range claimed {
		got = append(got, c.Priority)
	}
	if !assert.Equal(t, []int{100, 90, 80}, got) {
		t.Errorf("claims ignored priority within a same-timestamp batch")
	}
}

func TestQueueMutualExclusion(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()
	rec := ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/contended"})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := sched.Schedule(ctx); err != nil {
				results[i] = err
				return
			}
			results[i] = sched.Lock(ctx, rec.Hash, []string{"worker-a", "worker-b"}[i])
		}(i)
	}
	wg.Wait()

	succeeded, locked := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, utils.ErrAlreadyLocked):
			locked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, locked)
}

func TestCleanupStaleQueue_AllowsReschedule(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()
	rec := ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/abandoned"})
	fresh := ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/in-progress"})

	n, err := sched.Schedule(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// A worker that crashed two hours ago
	realNow := sched.now
	sched.now = func() time.Time { return realNow().Add(-2 * time.Hour) }
	require.NoError(t, sched.Lock(ctx, rec.Hash, "crashed-worker"))
	sched.now = realNow
	require.NoError(t, sched.Lock(ctx, fresh.Hash, "live-worker"))

	deleted, err := sched.CleanupStaleQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.Queue().Get(ctx, rec.Hash)
	assert.ErrorIs(t, err, utils.ErrNotFound)

	n, err = sched.Schedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the reclaimed URL gets a fresh entry")

	entry, err := store.Queue().Get(ctx, rec.Hash)
	require.NoError(t, err)
	assert.False(t, entry.Locked)
}

func TestReprioritizeAll(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()

	seed := ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/", Depth: 0})
	child := ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/child", Depth: 1, LastCrawledAt: time.Now().Add(-time.Hour)})
	ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/grandchild", Depth: 2})

	for i := 0; i < 3; i++ {
		_, err := store.Links().AddEdge(ctx, models.Link{FromHash: utils.CalculateStringSHA256(string(rune('a' + i))), ToHash: child.Hash})
		require.NoError(t, err)
	}

	n, err := sched.ReprioritizeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "every record visited across chunks of 2")

	got, err := store.URLs().FindByHash(ctx, seed.Hash)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Priority)
	assert.WithinDuration(t, time.Now().Add(day), got.NextCrawlAt, time.Minute)

	got, err = store.URLs().FindByHash(ctx, child.Hash)
	require.NoError(t, err)
	assert.Equal(t, 50+40+15-20, got.Priority)
	assert.WithinDuration(t, time.Now().Add(2*day), got.NextCrawlAt, time.Minute)
}

func TestAcquireAndComplete(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()
	rec := ensureURL(t, store, models.URLRecord{NormalizedURL: "https://a.com/page", Depth: 3})

	require.NoError(t, sched.Acquire(ctx, rec, "w1"))
	require.NoError(t, sched.Acquire(ctx, rec, "w1"), "reentrant for the holder")
	assert.ErrorIs(t, sched.Acquire(ctx, rec, "w2"), utils.ErrAlreadyLocked)

	locked, err := store.Queue().CountLocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, locked)

	require.NoError(t, sched.Complete(ctx, rec.Hash))
	count, err := store.Queue().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := store.URLs().FindByHash(ctx, rec.Hash)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*day), got.NextCrawlAt, time.Minute)

	// No longer due, so scheduling skips it
	n, err := sched.Schedule(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClaimDueAndUnlock(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()
	for _, u := range []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"} {
		ensureURL(t, store, models.URLRecord{NormalizedURL: u})
	}
	_, err := sched.Schedule(ctx)
	require.NoError(t, err)

	claimed, err := sched.ClaimDue(ctx, "w1", 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	rest, err := sched.ClaimDue(ctx, "w2", 5)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	require.NoError(t, sched.Unlock(ctx, claimed[0].URLHash))
	again, err := sched.ClaimDue(ctx, "w2", 5)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, claimed[0].URLHash, again[0].URLHash)
}
