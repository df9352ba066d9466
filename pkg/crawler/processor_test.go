package crawler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/fetch"
	"github.com/Sriram-PR/topic-crawler/pkg/frontier"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *storage.BadgerStore {
	t.Helper()
	store, err := storage.Open(context.Background(), t.TempDir(), storage.Options{}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// stubFetcher returns a fixed result and counts calls
type stubFetcher struct {
	mu    sync.Mutex
	res   fetch.FetchResult
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, u parse.NormalizedURL, category string) fetch.FetchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.res
}

type recordingHandler struct {
	keys []string
}

func (h *recordingHandler) Handle(ctx context.Context, job models.CrawlJob, u parse.NormalizedURL, storageKey string) error {
	h.keys = append(h.keys, storageKey)
	return nil
}

type processorRig struct {
	store     *storage.BadgerStore
	failures  *storage.FailureCache
	scheduler *frontier.Scheduler
	fetcher   *stubFetcher
	handler   *recordingHandler
	proc      *Processor
	clock     time.Time
}

func newProcessorRig(t *testing.T, res fetch.FetchResult) *processorRig {
	t.Helper()
	store := newTestStore(t)
	rig := &processorRig{
		store:     store,
		failures:  storage.NewFailureCache(store.KV(), time.Hour),
		scheduler: frontier.NewScheduler(config.SchedulerConfig{BatchSize: 10, StaleLockTimeout: time.Hour, ReprioritizeChunk: 10}, store, testLogger()),
		fetcher:   &stubFetcher{res: res},
		handler:   &recordingHandler{},
		clock:     time.Now(),
	}
	policy := NewRetryPolicy(config.RetryConfig{MaxAttempts: 5, Backoff: testBackoff})
	rig.proc = NewProcessor(parse.NewNormalizer(nil), rig.fetcher, rig.handler, store, rig.scheduler, rig.failures, policy, 30*time.Second, testLogger())
	rig.proc.now = func() time.Time { return rig.clock }
	return rig
}

// claim stores a pending job for rawURL and returns it in the processing state
func (r *processorRig) claim(t *testing.T, rawURL string) models.CrawlJob {
	t.Helper()
	ctx := context.Background()
	job := models.NewCrawlJob(rawURL, "technology", 0, "", r.clock.Add(-time.Second))
	_, err := r.store.Jobs().CreateIfAbsent(ctx, job, nil, nil)
	require.NoError(t, err)
	return r.reclaim(t, job.ID)
}

func (r *processorRig) reclaim(t *testing.T, id string) models.CrawlJob {
	t.Helper()
	claimed, err := r.store.Jobs().ClaimPending(context.Background(), r.clock, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, id, claimed[0].ID)
	return claimed[0]
}

func TestProcess_RetryBoundAndBackoff(t *testing.T) {
	rig := newProcessorRig(t, fetch.FetchResult{
		Outcome:    models.OutcomeRetryable,
		HTTPStatus: 503,
		Err:        utils.WrapErrorf(utils.ErrServerHTTPError, "status 503"),
	})
	ctx := context.Background()
	job := rig.claim(t, "https://example.com/flaky")

	wantDelays := []time.Duration{10 * time.Second, 30 * time.Second, 120 * time.Second, 600 * time.Second}
	for i, delay := range wantDelays {
		d := rig.proc.Process(ctx, "w1", job)
		require.True(t, d.Retrying(), "attempt %d should be retried", i+1)
		assert.Equal(t, i+1, d.Attempts)
		assert.True(t, d.AvailableAt.Equal(rig.clock.Add(delay)), "attempt %d: retry at %v, want +%v", i+1, d.AvailableAt, delay)

		stored, err := rig.store.Jobs().Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPending, stored.Status)
		assert.Equal(t, i+1, stored.Attempts)

		// Not claimable before the backoff elapses
		early, err := rig.store.Jobs().ClaimPending(ctx, rig.clock.Add(delay-time.Second), 10)
		require.NoError(t, err)
		assert.Empty(t, early)

		rig.clock = rig.clock.Add(delay)
		job = rig.reclaim(t, job.ID)
	}

	d := rig.proc.Process(ctx, "w1", job)
	assert.Equal(t, models.JobStatusFailed, d.Status)
	assert.Equal(t, 5, d.Attempts)
	assert.Equal(t, "MaxAttempts_HTTP_5xx", d.FailedReason)
	assert.Equal(t, 5, rig.fetcher.calls)

	u, err := parse.Normalize("https://example.com/flaky")
	require.NoError(t, err)
	rec, err := rig.store.URLs().FindByHash(ctx, u.Hash)
	require.NoError(t, err)
	assert.Equal(t, models.URLStatusFailed, rec.Status)

	cached, err := rig.failures.Has(ctx, u.Hash)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Empty(t, rig.handler.keys)
}

func TestProcess_RateLimitedNeverRetried(t *testing.T) {
	rig := newProcessorRig(t, fetch.FetchResult{
		Outcome:    models.OutcomeRateLimited,
		HTTPStatus: 429,
		Err:        utils.WrapErrorf(utils.ErrRateLimited, "status 429"),
	})
	ctx := context.Background()
	job := rig.claim(t, "https://example.com/busy")

	d := rig.proc.Process(ctx, "w1", job)
	assert.Equal(t, models.JobStatusFailed, d.Status)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, "HTTP_429", d.FailedReason)

	u, _ := parse.Normalize("https://example.com/busy")
	reason, cached, err := rig.failures.Reason(ctx, u.Hash)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "HTTP_429", reason)

	// The queue entry is gone once the job is terminal
	_, err = rig.store.Queue().Get(ctx, u.Hash)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestProcess_InvalidURLIsTerminal(t *testing.T) {
	rig := newProcessorRig(t, fetch.FetchResult{Outcome: models.OutcomeSuccess})
	ctx := context.Background()
	job := rig.claim(t, "ftp://example.com/file.txt")

	d := rig.proc.Process(ctx, "w1", job)
	assert.Equal(t, models.JobStatusFailed, d.Status)
	assert.Equal(t, "URL_Invalid", d.FailedReason)
	assert.Zero(t, rig.fetcher.calls)

	cached, err := rig.failures.Has(ctx, utils.CalculateStringSHA256("ftp://example.com/file.txt"))
	require.NoError(t, err)
	assert.True(t, cached)

	stored, err := rig.store.Jobs().Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
}

func TestProcess_PreviouslyFailedSkipsFetch(t *testing.T) {
	rig := newProcessorRig(t, fetch.FetchResult{Outcome: models.OutcomeSuccess})
	ctx := context.Background()
	u, err := parse.Normalize("https://example.com/broken")
	require.NoError(t, err)
	require.NoError(t, rig.failures.Mark(ctx, u.Hash, "HTTP_429"))

	d := rig.proc.Process(ctx, "w1", rig.claim(t, u.URL))
	assert.Equal(t, models.JobStatusFailed, d.Status)
	assert.Equal(t, "Policy_FailureCache", d.FailedReason)
	assert.False(t, d.CacheFailure)
	assert.Zero(t, rig.fetcher.calls)
}

func TestProcess_LockedEntryReleasesWithoutAttempt(t *testing.T) {
	rig := newProcessorRig(t, fetch.FetchResult{Outcome: models.OutcomeSuccess})
	ctx := context.Background()
	u, err := parse.Normalize("https://example.com/contended")
	require.NoError(t, err)

	rec, _, err := rig.store.URLs().Ensure(ctx, u.Record(u.URL, "technology", 0, rig.clock))
	require.NoError(t, err)
	require.NoError(t, rig.scheduler.Acquire(ctx, rec, "other-worker"))

	job := rig.claim(t, u.URL)
	d := rig.proc.Process(ctx, "w1", job)
	assert.True(t, d.Released)
	assert.Equal(t, 0, d.Attempts)
	assert.ErrorIs(t, d.Err, utils.ErrAlreadyLocked)
	assert.Zero(t, rig.fetcher.calls)

	stored, err := rig.store.Jobs().Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
	assert.Equal(t, 0, stored.Attempts)
	assert.True(t, stored.AvailableAt.Equal(rig.clock.Add(30*time.Second)))
}

func TestProcess_SuccessHandsOff(t *testing.T) {
	rig := newProcessorRig(t, fetch.FetchResult{Outcome: models.OutcomeSuccess, HTTPStatus: 200, StorageKey: "technology/abc.html", RobotsAllowed: true})
	ctx := context.Background()
	job := rig.claim(t, "https://example.com/ok")

	d := rig.proc.Process(ctx, "w1", job)
	assert.Equal(t, models.JobStatusCompleted, d.Status)
	assert.Equal(t, []string{"technology/abc.html"}, rig.handler.keys)

	stored, err := rig.store.Jobs().Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "technology/abc.html", stored.StorageKey)
	assert.True(t, stored.RobotsTxtAllowed)

	u, _ := parse.Normalize("https://example.com/ok")
	rec, err := rig.store.URLs().FindByHash(ctx, u.Hash)
	require.NoError(t, err)
	assert.Equal(t, models.URLStatusCrawled, rec.Status)
	assert.True(t, rec.NextCrawlAt.After(rig.clock), "completed URLs are rescheduled into the future")
}

func TestProcess_CanceledFetchReleases(t *testing.T) {
	rig := newProcessorRig(t, fetch.FetchResult{Outcome: models.OutcomeRetryable, Err: context.Canceled})
	ctx, cancel := context.WithCancel(context.Background())
	job := rig.claim(t, "https://example.com/slow")
	cancel()

	d := rig.proc.Process(ctx, "w1", job)
	// Cancellation before the fetch surfaces as a lookup error or a released job, never an attempt
	stored, err := rig.store.Jobs().Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Attempts)
	assert.True(t, d.Released)
}
