package frontier

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
)

const (
	basePriority    = 50
	minPriority     = 1
	maxPriority     = 100
	depthPenalty    = 10 // Per hop from a seed
	maxDepthBonus   = 50
	inboundWeight   = 5
	maxInboundBonus = 30
	recentPenalty   = 20 // Crawled within recentWindow
	stalePageBonus  = 10 // Not crawled for longer than staleWindow
	neverBonus      = 20

	recentWindow = 24 * time.Hour
	staleWindow  = 7 * 24 * time.Hour

	day               = 24 * time.Hour
	popularInbound    = 5 // Pages with more inbound links than this are revisited a day sooner
	deepRevisitPeriod = 30 * day
)

// revisitByDepth is the base revisit interval indexed by depth
var revisitByDepth = []time.Duration{1 * day, 2 * day, 3 * day, 7 * day, 14 * day}

// Scheduler owns the priority and next-crawl fields of the URL table and
// the lockable queue layered over it.
type Scheduler struct {
	urls       storage.URLRepository
	queue      storage.QueueRepository
	links      storage.LinkRepository
	batchSize  int
	staleAfter time.Duration
	chunkSize  int
	now        func() time.Time
	log        *logrus.Entry
}

// NewScheduler creates a Scheduler over store
func NewScheduler(cfg config.SchedulerConfig, store *storage.BadgerStore, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		urls:       store.URLs(),
		queue:      store.Queue(),
		links:      store.Links(),
		batchSize:  cfg.BatchSize,
		staleAfter: cfg.StaleLockTimeout,
		chunkSize:  cfg.ReprioritizeChunk,
		now:        time.Now,
		log:        log.WithField("component", "frontier"),
	}
}

// Schedule queues up to one batch of due URLs, highest priority first.
// URLs that already have a queue entry are left alone.
func (s *Scheduler) Schedule(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.urls.FindDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("selecting due urls: %w", err)
	}

	scheduled := 0
	for _, rec := range due {
		inserted, err := s.queue.InsertIfAbsent(ctx, models.QueueEntry{
			URLHash:     rec.Hash,
			URL:         rec.NormalizedURL,
			Category:    rec.Category,
			Depth:       rec.Depth,
			Priority:    rec.Priority,
			ScheduledAt: now,
		})
		if err != nil {
			return scheduled, fmt.Errorf("queueing %s: %w", rec.NormalizedURL, err)
		}
		if inserted {
			scheduled++
		}
	}

	s.log.WithFields(logrus.Fields{"due": len(due), "scheduled": scheduled}).Info("Scheduled URLs for crawling")
	return scheduled, nil
}

// CalculatePriority scores how soon rec should be crawled, always within [1,100]
func CalculatePriority(rec models.URLRecord, inbound int, now time.Time) int {
	priority := basePriority
	priority += max(0, maxDepthBonus-rec.Depth*depthPenalty)
	priority += min(maxInboundBonus, max(0, inbound)*inboundWeight)

	if rec.LastCrawledAt.IsZero() {
		priority += neverBonus
	} else {
		since := now.Sub(rec.LastCrawledAt)
		switch {
		case since < recentWindow:
			priority -= recentPenalty
		case since > staleWindow:
			priority += stalePageBonus
		}
	}

	return max(minPriority, min(maxPriority, priority))
}

// CalculateNextCrawl returns when rec should next be revisited. Deeper pages
// wait longer; popular pages come back a day sooner, but never under a day.
func CalculateNextCrawl(rec models.URLRecord, inbound int, now time.Time) time.Time {
	interval := deepRevisitPeriod
	if rec.Depth >= 0 && rec.Depth < len(revisitByDepth) {
		interval = revisitByDepth[rec.Depth]
	}
	if inbound > popularInbound {
		interval -= day
	}
	if interval < day {
		interval = day
	}
	return now.Add(interval)
}

// Reschedule recomputes priority and next crawl time for one URL
func (s *Scheduler) Reschedule(ctx context.Context, hash string) error {
	rec, err := s.urls.FindByHash(ctx, hash)
	if err != nil {
		return err
	}
	return s.reschedule(ctx, *rec, s.now())
}

func (s *Scheduler) reschedule(ctx context.Context, rec models.URLRecord, now time.Time) error {
	inbound, err := s.links.CountInbound(ctx, rec.Hash)
	if err != nil {
		return err
	}
	return s.urls.UpdateSchedule(ctx, rec.Hash, CalculatePriority(rec, inbound, now), CalculateNextCrawl(rec, inbound, now))
}

// ReprioritizeAll walks the whole URL table chunk by chunk, recomputing schedule fields
func (s *Scheduler) ReprioritizeAll(ctx context.Context) (int, error) {
	now := s.now()
	updated := 0
	err := s.urls.Scan(ctx, s.chunkSize, func(chunk []models.URLRecord) error {
		for _, rec := range chunk {
			if err := s.reschedule(ctx, rec, now); err != nil {
				return fmt.Errorf("reprioritizing %s: %w", rec.NormalizedURL, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return updated, err
	}
	s.log.WithField("count", updated).Info("Reprioritized URLs")
	return updated, nil
}

// CleanupStaleQueue deletes entries locked for longer than the staleness threshold,
// so the next Schedule pass can queue those URLs afresh.
func (s *Scheduler) CleanupStaleQueue(ctx context.Context) (int, error) {
	deleted, err := s.queue.DeleteStale(ctx, s.now().Add(-s.staleAfter))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.WithField("count", deleted).Warn("Cleaned up stale queue entries")
	}
	return deleted, nil
}

// Lock claims an existing queue entry for workerID
func (s *Scheduler) Lock(ctx context.Context, urlHash, workerID string) error {
	return s.queue.Lock(ctx, urlHash, workerID, s.now())
}

// Unlock releases a claim without removing the entry
func (s *Scheduler) Unlock(ctx context.Context, urlHash string) error {
	return s.queue.Unlock(ctx, urlHash)
}

// Acquire locks the entry for rec, creating it when the URL was never scheduled
func (s *Scheduler) Acquire(ctx context.Context, rec models.URLRecord, workerID string) error {
	now := s.now()
	return s.queue.Acquire(ctx, models.QueueEntry{
		URLHash:     rec.Hash,
		URL:         rec.NormalizedURL,
		Category:    rec.Category,
		Depth:       rec.Depth,
		Priority:    rec.Priority,
		ScheduledAt: now,
	}, workerID, now)
}

// Complete removes the queue entry and reschedules the URL
func (s *Scheduler) Complete(ctx context.Context, urlHash string) error {
	if err := s.queue.Delete(ctx, urlHash); err != nil {
		return err
	}
	return s.Reschedule(ctx, urlHash)
}

// ClaimDue locks up to n unlocked queue entries for workerID, highest priority first
func (s *Scheduler) ClaimDue(ctx context.Context, workerID string, n int) ([]models.QueueEntry, error) {
	return s.queue.ClaimUnlocked(ctx, workerID, s.now(), n)
}
