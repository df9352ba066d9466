package crawler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/discover"
	"github.com/Sriram-PR/topic-crawler/pkg/fetch"
	"github.com/Sriram-PR/topic-crawler/pkg/frontier"
	"github.com/Sriram-PR/topic-crawler/pkg/index"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/queue"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
)

const (
	progressInterval = 30 * time.Second
	evictionInterval = time.Minute
	hostIdleTimeout  = 10 * time.Minute
	dispatcherWorker = "dispatcher"
)

// Crawler claims crawl jobs from the store and runs them on a pool of workers
type Crawler struct {
	log   *logrus.Entry
	cfg   *config.AppConfig
	jobs  storage.JobRepository
	queue storage.QueueRepository

	pq         *queue.ThreadSafePriorityQueue
	processor  *Processor
	scheduler  *frontier.Scheduler
	scorer     *discover.Scorer
	normalizer *parse.Normalizer
	failures   *storage.FailureCache
	hostSems   *fetch.HostSemaphorePool

	processedCounter atomic.Int64
	completed        atomic.Int64
	failed           atomic.Int64
	retried          atomic.Int64
	released         atomic.Int64
	claimed          atomic.Int64
	inFlight         atomic.Int64 // Buffered or running jobs; discovery may still add work

	now func() time.Time
}

// RunOptions selects how long Run keeps dispatching
type RunOptions struct {
	UntilDrained bool // Stop once no active job or due queue entry remains
	Recrawl      bool // Turn due queue entries into recrawl jobs when no job is claimable
}

// RunStats summarises a finished run
type RunStats struct {
	Requeued  int           `json:"requeued"`
	Claimed   int64         `json:"claimed"`
	Processed int64         `json:"processed"`
	Completed int64         `json:"completed"`
	Failed    int64         `json:"failed"`
	Retried   int64         `json:"retried"`
	Released  int64         `json:"released"`
	Duration  time.Duration `json:"duration"`
}

// NewCrawler wires the fetch, discovery and scheduling components over store.
// indexer may be nil to skip document indexing.
func NewCrawler(
	cfg *config.AppConfig,
	store *storage.BadgerStore,
	blobs storage.BlobStore,
	indexer index.Indexer,
	baseLogger *logrus.Entry,
) (*Crawler, error) {
	logger := baseLogger.WithField("component", "crawler")

	normalizer := parse.NewNormalizer(cfg.ExtraTrackingParams)
	client := fetch.NewClient(cfg.HTTPClientSettings, cfg.MaxRedirects, baseLogger)
	robots := fetch.NewRobotsGuard(client, store.Hosts(), config.GetEffectiveRobotsAgent(*cfg), cfg.UserAgent, cfg.RobotsTimeout, cfg.RobotsCacheTTL, baseLogger)
	limiter := fetch.NewRateLimiter(store.KV(), baseLogger)
	hostSems := fetch.NewHostSemaphorePool(cfg.MaxRequestsPerHost, baseLogger)
	fetcher := fetch.NewFetcher(cfg, client, robots, limiter, hostSems, blobs, baseLogger)

	scorer, err := discover.NewScorer(cfg, baseLogger)
	if err != nil {
		return nil, fmt.Errorf("building relevance scorer: %w", err)
	}
	failures := storage.NewFailureCache(store.KV(), cfg.FailureCacheTTL)
	discoverer := discover.NewDiscoverer(cfg, scorer, normalizer, store, failures, baseLogger)
	parser := parse.NewHTMLParser(cfg.RespectNofollow, baseLogger.Logger)
	scheduler := frontier.NewScheduler(cfg.Scheduler, store, baseLogger)

	pipeline := NewPipeline(blobs, store, parser, indexer, discoverer, scorer, baseLogger)
	processor := NewProcessor(normalizer, fetcher, pipeline, store, scheduler, failures,
		NewRetryPolicy(cfg.Retry), cfg.Scheduler.LockedRetryDelay, baseLogger)

	return &Crawler{
		log:        logger,
		cfg:        cfg,
		jobs:       store.Jobs(),
		queue:      store.Queue(),
		pq:         queue.NewThreadSafePriorityQueue(logger),
		processor:  processor,
		scheduler:  scheduler,
		scorer:     scorer,
		normalizer: normalizer,
		failures:   failures,
		hostSems:   hostSems,
		now:        time.Now,
	}, nil
}

// NewIndexer builds the default file indexer for cfg
func NewIndexer(cfg *config.AppConfig, log *logrus.Entry) (*index.FileIndexer, error) {
	return index.NewFileIndexer(cfg.Index, cfg.IndexDir, log)
}

func (c *Crawler) Scheduler() *frontier.Scheduler      { return c.scheduler }
func (c *Crawler) Scorer() *discover.Scorer            { return c.scorer }
func (c *Crawler) Normalizer() *parse.Normalizer       { return c.normalizer }
func (c *Crawler) FailureCache() *storage.FailureCache { return c.failures }

// Run dispatches claimed jobs to NumWorkers workers until ctx ends or, with
// UntilDrained, until nothing is left to do. The configured global crawl timeout
// ends the run gracefully.
func (c *Crawler) Run(ctx context.Context, opts RunOptions) (RunStats, error) {
	start := c.now()
	runLog := c.log.WithFields(logrus.Fields{"until_drained": opts.UntilDrained, "recrawl": opts.Recrawl})
	runLog.Infof("Crawl starting with %d worker(s)...", c.cfg.NumWorkers)

	c.resetCounters()
	stats := RunStats{}
	requeued, err := c.jobs.RequeueStale(ctx, start.Add(-c.cfg.Scheduler.StaleLockTimeout))
	if err != nil {
		return stats, fmt.Errorf("requeueing stale jobs: %w", err)
	}
	stats.Requeued = requeued
	if requeued > 0 {
		runLog.Warnf("Requeued %d job(s) abandoned by a previous run", requeued)
	}
	if removed, err := c.scheduler.CleanupStaleQueue(ctx); err != nil {
		runLog.Warnf("Failed to clean stale queue entries: %v", err)
	} else if removed > 0 {
		runLog.Infof("Removed %d stale queue lock(s)", removed)
	}

	runCtx := ctx
	if c.cfg.GlobalCrawlTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.GlobalCrawlTimeout)
		defer cancel()
	}

	evictCtx, stopEviction := context.WithCancel(runCtx)
	defer stopEviction()
	go c.hostSems.RunEviction(evictCtx, evictionInterval, hostIdleTimeout)

	progressDone := make(chan struct{})
	go c.reportProgress(runCtx, progressDone, runLog)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer c.pq.Close()
		return c.dispatch(gctx, opts, runLog)
	})
	for i := 1; i <= c.cfg.NumWorkers; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString())
		workerLog := runLog.WithField("worker_id", workerID)
		g.Go(func() error {
			c.worker(gctx, workerID, workerLog)
			return nil
		})
	}
	runErr := g.Wait()
	close(progressDone)

	// Anything still buffered was claimed but never started
	persistCtx := context.WithoutCancel(ctx)
	for _, job := range c.pq.Drain() {
		if err := c.jobs.Release(persistCtx, job.ID, c.now()); err != nil {
			runLog.WithField("url", job.URL).Errorf("Failed to release unstarted job: %v", err)
			continue
		}
		c.released.Add(1)
	}

	stats.Claimed = c.claimed.Load()
	stats.Processed = c.processedCounter.Load()
	stats.Completed = c.completed.Load()
	stats.Failed = c.failed.Load()
	stats.Retried = c.retried.Load()
	stats.Released = c.released.Load()
	stats.Duration = c.now().Sub(start)

	summaryLog := runLog.WithFields(logrus.Fields{})
	summaryLog.Info("========================================================================")
	summaryLog.Info("CRAWL FINISHED")
	summaryLog.Infof("Duration:         %v", stats.Duration)
	summaryLog.Infof("Final Stats: Processed: %d, Completed: %d, Failed: %d, Retried: %d, Released: %d",
		stats.Processed, stats.Completed, stats.Failed, stats.Retried, stats.Released)
	summaryLog.Info("========================================================================")

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return stats, runErr
	}
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		runLog.Warnf("Global crawl timeout (%v) reached; remaining jobs stay pending", c.cfg.GlobalCrawlTimeout)
	}
	return stats, nil
}

// resetCounters prepares a fresh in-memory queue and counters so a Crawler can run repeatedly
func (c *Crawler) resetCounters() {
	c.pq = queue.NewThreadSafePriorityQueue(c.log)
	c.processedCounter.Store(0)
	c.completed.Store(0)
	c.failed.Store(0)
	c.retried.Store(0)
	c.released.Store(0)
	c.claimed.Store(0)
	c.inFlight.Store(0)
}

// dispatch moves claimable jobs into the in-memory queue until the run ends
func (c *Crawler) dispatch(ctx context.Context, opts RunOptions, runLog *logrus.Entry) error {
	batch := c.cfg.Scheduler.ClaimBatch
	for {
		if ctx.Err() != nil {
			return nil
		}

		claimed := 0
		if limit := batch - c.pq.Len(); limit > 0 {
			jobs, err := c.jobs.ClaimPending(ctx, c.now(), limit)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("claiming pending jobs: %w", err)
			}
			for i := range jobs {
				job := jobs[i]
				if !c.pq.Add(&job) {
					if err := c.jobs.Release(context.WithoutCancel(ctx), job.ID, c.now()); err != nil {
						runLog.WithField("url", job.URL).Errorf("Failed to release job: %v", err)
					}
					continue
				}
				c.inFlight.Add(1)
				claimed++
			}
			c.claimed.Add(int64(claimed))
		}

		if claimed == 0 && c.pq.Len() == 0 {
			reopened := 0
			if opts.Recrawl {
				n, err := c.reopenDue(ctx, batch, runLog)
				if err != nil {
					runLog.Warnf("Failed to turn due URLs into recrawl jobs: %v", err)
				}
				reopened = n
			}
			if reopened == 0 && opts.UntilDrained {
				drained, err := c.drained(ctx, opts)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				if drained {
					runLog.Info("No active jobs remain; stopping dispatch")
					return nil
				}
			}
			if reopened > 0 {
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.Scheduler.PollInterval):
		}
	}
}

// reopenDue schedules due URLs and turns up to n queue entries into recrawl jobs
func (c *Crawler) reopenDue(ctx context.Context, n int, runLog *logrus.Entry) (int, error) {
	if _, err := c.scheduler.Schedule(ctx); err != nil {
		return 0, err
	}
	entries, err := c.scheduler.ClaimDue(ctx, dispatcherWorker, n)
	if err != nil {
		return 0, err
	}

	reopened := 0
	for _, entry := range entries {
		entryLog := runLog.WithFields(logrus.Fields{"url": entry.URL, "category": entry.Category})
		job := models.NewCrawlJob(entry.URL, entry.Category, entry.Depth, "", c.now())
		job.URLHash = entry.URLHash
		job.Recrawl = true

		stored, err := c.jobs.Reopen(ctx, job)
		if err != nil {
			entryLog.Warnf("Failed to reopen job: %v", err)
			if err := c.scheduler.Unlock(ctx, entry.URLHash); err != nil {
				entryLog.Warnf("Failed to unlock queue entry: %v", err)
			}
			continue
		}
		if !stored {
			// An active job already covers this URL
			if err := c.queue.Delete(ctx, entry.URLHash); err != nil {
				entryLog.Warnf("Failed to remove queue entry: %v", err)
			}
			continue
		}
		if err := c.scheduler.Unlock(ctx, entry.URLHash); err != nil {
			entryLog.Warnf("Failed to unlock queue entry: %v", err)
		}
		reopened++
	}
	if reopened > 0 {
		runLog.Infof("Reopened %d due URL(s) for recrawl", reopened)
	}
	return reopened, nil
}

// drained reports whether no job can become claimable again
func (c *Crawler) drained(ctx context.Context, opts RunOptions) (bool, error) {
	if c.inFlight.Load() > 0 {
		return false, nil
	}
	active, err := c.jobs.CountActive(ctx)
	if err != nil {
		return false, fmt.Errorf("counting active jobs: %w", err)
	}
	if active > 0 {
		return false, nil
	}
	if !opts.Recrawl {
		return true, nil
	}
	total, err := c.queue.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("counting queue entries: %w", err)
	}
	locked, err := c.queue.CountLocked(ctx)
	if err != nil {
		return false, fmt.Errorf("counting locked queue entries: %w", err)
	}
	return total-locked == 0, nil
}

// worker runs the loop for a single worker goroutine
func (c *Crawler) worker(ctx context.Context, workerID string, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, ok := c.pq.Pop()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			c.inFlight.Add(-1)
			if err := c.jobs.Release(context.WithoutCancel(ctx), job.ID, c.now()); err != nil {
				workerLog.WithField("url", job.URL).Errorf("Failed to release job: %v", err)
			} else {
				c.released.Add(1)
			}
			return
		}
		c.processJob(ctx, workerID, *job, workerLog)
	}
}

// processJob runs one job and recovers from panics so the worker survives
func (c *Crawler) processJob(ctx context.Context, workerID string, job models.CrawlJob, workerLog *logrus.Entry) {
	startTime := c.now()
	defer c.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			workerLog.WithFields(logrus.Fields{
				"url":         job.URL,
				"panic_info":  r,
				"duration":    c.now().Sub(startTime).String(),
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processJob")
			if err := c.jobs.Release(context.WithoutCancel(ctx), job.ID, c.now().Add(c.cfg.Scheduler.LockedRetryDelay)); err != nil {
				workerLog.Errorf("Failed to release job after panic: %v", err)
			}
			c.released.Add(1)
		}
	}()

	d := c.processor.Process(ctx, workerID, job)
	switch {
	case d.Released:
		c.released.Add(1)
		return
	case d.Status == models.JobStatusCompleted:
		c.completed.Add(1)
	case d.Status == models.JobStatusFailed:
		c.failed.Add(1)
	default:
		c.retried.Add(1)
	}
	c.processedCounter.Add(1)
}

func (c *Crawler) reportProgress(ctx context.Context, done <-chan struct{}, runLog *logrus.Entry) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, _ := c.jobs.CountActive(ctx)
			runLog.WithFields(logrus.Fields{
				"active_jobs":     active,
				"buffered_jobs":   c.pq.Len(),
				"processed_tasks": c.processedCounter.Load(),
				"completed":       c.completed.Load(),
				"failed":          c.failed.Load(),
				"host_semaphores": c.hostSems.Len(),
			}).Info("Crawl Progress")
		}
	}
}
