package crawler

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/fetch"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// RetryPolicy bounds how often a job is attempted and how long it waits between attempts
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration // Indexed by attempt; the last value repeats
}

// NewRetryPolicy builds a policy from validated config
func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	backoff := make([]time.Duration, len(cfg.Backoff))
	copy(backoff, cfg.Backoff)
	return RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: backoff}
}

// Delay returns the wait after the given 1-based attempt failed
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	return p.Backoff[i]
}

// Decision is the next state of a job after one attempt
type Decision struct {
	Status       models.JobStatus
	Attempts     int
	AvailableAt  time.Time // Only meaningful when Status is pending
	FailedReason string
	Err          error // Triggering error for failures and retries

	HTTPStatus    int
	RobotsAllowed bool
	StorageKey    string
	CrawledAt     time.Time

	CacheFailure bool // Suppress the URL digest for the failure cache TTL
	Handoff      bool // Hand the stored page to the parse pipeline
	Released     bool // Returned to pending without consuming an attempt
}

// Retrying reports whether the job goes back to pending
func (d Decision) Retrying() bool {
	return d.Status == models.JobStatusPending
}

// Transition decides the next state of a processing job given the outcome of its attempt.
// It has no side effects.
func Transition(job models.CrawlJob, res fetch.FetchResult, policy RetryPolicy, now time.Time) Decision {
	d := Decision{
		Attempts:      job.Attempts + 1,
		HTTPStatus:    res.HTTPStatus,
		RobotsAllowed: res.RobotsAllowed,
	}

	switch res.Outcome {
	case models.OutcomeSuccess:
		d.Status = models.JobStatusCompleted
		d.StorageKey = res.StorageKey
		d.CrawledAt = now
		d.Handoff = true
		return d

	case models.OutcomeRateLimited:
		// Never retried within the cycle
		return d.fail(res.Err, true)

	case models.OutcomeRetryable:
		if d.Attempts >= policy.MaxAttempts {
			return d.fail(fmt.Errorf("%w after %d attempts: %w", utils.ErrMaxAttempts, d.Attempts, res.Err), true)
		}
		d.Status = models.JobStatusPending
		d.AvailableAt = now.Add(policy.Delay(d.Attempts))
		d.Err = res.Err
		d.FailedReason = utils.CategorizeError(res.Err)
		return d

	default:
		// A malformed URL will never normalize differently, so it is suppressed like a 429
		return d.fail(res.Err, errors.Is(res.Err, utils.ErrInvalidURL) || errors.Is(res.Err, utils.ErrUnsupportedScheme))
	}
}

func (d Decision) fail(err error, cache bool) Decision {
	if err == nil {
		err = errors.New("unclassified fetch failure")
	}
	d.Status = models.JobStatusFailed
	d.Err = err
	d.FailedReason = utils.CategorizeError(err)
	d.CacheFailure = cache
	return d
}

// Apply writes the decision onto job
func (d Decision) Apply(job models.CrawlJob, now time.Time) models.CrawlJob {
	job.Status = d.Status
	job.Attempts = d.Attempts
	job.FailedReason = d.FailedReason
	job.HTTPStatus = d.HTTPStatus
	job.RobotsTxtAllowed = d.RobotsAllowed
	job.UpdatedAt = now
	if d.Retrying() {
		job.AvailableAt = d.AvailableAt
		job.WorkerID = ""
	}
	if d.Status == models.JobStatusCompleted {
		job.StorageKey = d.StorageKey
		job.CrawledAt = d.CrawledAt
		job.FailedReason = ""
	}
	return job
}

// URLUpdate mirrors the decision onto the URL record
func (d Decision) URLUpdate() storage.FetchUpdate {
	upd := storage.FetchUpdate{
		HTTPStatus:   d.HTTPStatus,
		RetryCount:   d.Attempts,
		FailedReason: d.FailedReason,
	}
	switch d.Status {
	case models.JobStatusCompleted:
		upd.Status = models.URLStatusCrawled
		upd.CrawledAt = d.CrawledAt
		upd.RetryCount = 0
	case models.JobStatusFailed:
		upd.Status = models.URLStatusFailed
	default:
		upd.Status = models.URLStatusPending
	}
	return upd
}

// invalidURL is the outcome of a job whose URL cannot be normalized
func invalidURL(err error) fetch.FetchResult {
	if !errors.Is(err, utils.ErrInvalidURL) && !errors.Is(err, utils.ErrUnsupportedScheme) {
		err = fmt.Errorf("%w: %w", utils.ErrInvalidURL, err)
	}
	return fetch.FetchResult{Outcome: models.OutcomePermanent, Err: err}
}

// previouslyFailed is the outcome of a job whose URL is still in the failure cache
func previouslyFailed(url, reason string) fetch.FetchResult {
	return fetch.FetchResult{
		Outcome: models.OutcomePermanent,
		Err:     utils.WrapErrorf(utils.ErrPreviouslyFailed, "%s (%s)", url, reason),
	}
}
