package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/fetch"
	"github.com/Sriram-PR/topic-crawler/pkg/frontier"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// PageFetcher performs a single classified fetch
type PageFetcher interface {
	Fetch(ctx context.Context, u parse.NormalizedURL, category string) fetch.FetchResult
}

// PageHandler takes over a successfully fetched page
type PageHandler interface {
	Handle(ctx context.Context, job models.CrawlJob, u parse.NormalizedURL, storageKey string) error
}

// Processor drives one claimed job through a single attempt and persists the outcome
type Processor struct {
	normalizer  *parse.Normalizer
	fetcher     PageFetcher
	handler     PageHandler // nil skips the parse handoff
	jobs        storage.JobRepository
	urls        storage.URLRepository
	frontier    *frontier.Scheduler
	failures    *storage.FailureCache
	policy      RetryPolicy
	lockedDelay time.Duration
	now         func() time.Time
	log         *logrus.Entry
}

// NewProcessor creates a Processor
func NewProcessor(
	normalizer *parse.Normalizer,
	fetcher PageFetcher,
	handler PageHandler,
	store *storage.BadgerStore,
	sched *frontier.Scheduler,
	failures *storage.FailureCache,
	policy RetryPolicy,
	lockedDelay time.Duration,
	log *logrus.Entry,
) *Processor {
	return &Processor{
		normalizer:  normalizer,
		fetcher:     fetcher,
		handler:     handler,
		jobs:        store.Jobs(),
		urls:        store.URLs(),
		frontier:    sched,
		failures:    failures,
		policy:      policy,
		lockedDelay: lockedDelay,
		now:         time.Now,
		log:         log.WithField("component", "processor"),
	}
}

// Process runs one attempt of a processing job for workerID.
// Errors never escape: every outcome is recorded on the job and reported in the Decision.
func (p *Processor) Process(ctx context.Context, workerID string, job models.CrawlJob) Decision {
	job.WorkerID = workerID
	taskLog := p.log.WithFields(logrus.Fields{
		"url":       job.URL,
		"category":  job.Category,
		"depth":     job.Depth,
		"attempt":   job.Attempts + 1,
		"worker_id": workerID,
	})
	// Outcomes are persisted even when the run is being cancelled
	persistCtx := context.WithoutCancel(ctx)

	u, err := p.normalizer.Normalize(job.URL)
	if err != nil {
		d := Transition(job, invalidURL(err), p.policy, p.now())
		p.record(persistCtx, job, d, "", utils.CalculateStringSHA256(job.URL), taskLog)
		return d
	}
	job.URLHash = u.Hash
	taskLog = taskLog.WithField("host", u.Host)

	if reason, failed, err := p.failures.Reason(ctx, u.Hash); err != nil {
		taskLog.Warnf("Failure cache lookup failed, continuing: %v", err)
	} else if failed {
		d := Transition(job, previouslyFailed(u.URL, reason), p.policy, p.now())
		p.record(persistCtx, job, d, "", "", taskLog)
		return d
	}

	rec, _, err := p.urls.Ensure(ctx, u.Record(job.URL, job.Category, job.Depth, p.now()))
	if err != nil {
		return p.releaseAfter(persistCtx, job, p.lockedDelay, err, taskLog)
	}

	if err := p.frontier.Acquire(ctx, rec, workerID); err != nil {
		if errors.Is(err, utils.ErrAlreadyLocked) {
			taskLog.Debug("URL is being fetched by another worker, deferring job")
		}
		return p.releaseAfter(persistCtx, job, p.lockedDelay, err, taskLog)
	}

	res := p.fetcher.Fetch(ctx, u, job.Category)
	if ctx.Err() != nil && res.Outcome != models.OutcomeSuccess {
		// Interrupted, not failed: the attempt does not count
		if err := p.frontier.Unlock(persistCtx, u.Hash); err != nil {
			taskLog.Warnf("Failed to unlock queue entry: %v", err)
		}
		return p.release(persistCtx, job, p.now(), ctx.Err(), taskLog)
	}

	d := Transition(job, res, p.policy, p.now())
	stored := p.record(persistCtx, job, d, u.Hash, "", taskLog)

	if d.Retrying() {
		if err := p.frontier.Unlock(persistCtx, u.Hash); err != nil {
			taskLog.Warnf("Failed to unlock queue entry: %v", err)
		}
	} else if err := p.frontier.Complete(persistCtx, u.Hash); err != nil {
		taskLog.Warnf("Failed to complete queue entry: %v", err)
	}

	if d.Handoff && p.handler != nil {
		if err := p.handler.Handle(ctx, stored, u, d.StorageKey); err != nil {
			taskLog.WithField("error_category", utils.CategorizeError(err)).Warnf("Page pipeline failed: %v", err)
		}
	}
	return d
}

// record persists the decision on the job, mirrors it onto the URL record when urlHash
// is set, and writes the failure cache under cacheDigest (or urlHash) when asked to.
func (p *Processor) record(ctx context.Context, job models.CrawlJob, d Decision, urlHash, cacheDigest string, taskLog *logrus.Entry) models.CrawlJob {
	now := p.now()
	job = d.Apply(job, now)
	if err := p.jobs.Save(ctx, job); err != nil {
		taskLog.Errorf("Failed to save job state %s: %v", d.Status, err)
	}

	if urlHash != "" {
		if err := p.urls.RecordFetch(ctx, urlHash, d.URLUpdate()); err != nil {
			taskLog.Errorf("Failed to update URL record: %v", err)
		}
	}

	if d.CacheFailure {
		digest := cacheDigest
		if digest == "" {
			digest = urlHash
		}
		if err := p.failures.Mark(ctx, digest, d.FailedReason); err != nil {
			taskLog.Warnf("Failed to cache failed URL: %v", err)
		}
	}

	fields := logrus.Fields{"status": d.Status, "attempts": d.Attempts, "http_status": d.HTTPStatus}
	switch d.Status {
	case models.JobStatusCompleted:
		taskLog.WithFields(fields).Info("Job completed")
	case models.JobStatusPending:
		fields["retry_at"] = d.AvailableAt
		fields["error_category"] = d.FailedReason
		fields["transient"] = utils.IsTransientNetworkError(d.Err)
		taskLog.WithFields(fields).Warnf("Attempt failed, retrying: %v", d.Err)
	default:
		fields["error_category"] = d.FailedReason
		taskLog.WithFields(fields).Warnf("Job failed: %v", d.Err)
	}
	return job
}

// release returns the job to pending without consuming an attempt
func (p *Processor) release(ctx context.Context, job models.CrawlJob, availableAt time.Time, cause error, taskLog *logrus.Entry) Decision {
	if err := p.jobs.Release(ctx, job.ID, availableAt); err != nil {
		taskLog.Errorf("Failed to release job: %v", err)
	}
	if cause != nil && !errors.Is(cause, utils.ErrAlreadyLocked) && !errors.Is(cause, context.Canceled) {
		taskLog.WithField("error_category", utils.CategorizeError(cause)).Warnf("Job released without an attempt: %v", cause)
	}
	return Decision{
		Status:      models.JobStatusPending,
		Attempts:    job.Attempts,
		AvailableAt: availableAt,
		Err:         cause,
		Released:    true,
	}
}

// releaseAfter is release with a delay relative to now
func (p *Processor) releaseAfter(ctx context.Context, job models.CrawlJob, delay time.Duration, cause error, taskLog *logrus.Entry) Decision {
	return p.release(ctx, job, p.now().Add(delay), cause, taskLog)
}
