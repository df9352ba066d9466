package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
)

// Budget is an optional daily admission cap checked and consumed atomically with job creation
type Budget struct {
	Key   string        // KV counter key, e.g. crawl_count:{category}:{date}
	Limit int           // Admissions allowed before ErrBudgetExhausted
	TTL   time.Duration // Counter lifetime
}

// FetchUpdate carries the fetcher-owned fields of a URL record
type FetchUpdate struct {
	Status       models.URLStatus
	HTTPStatus   int
	CrawledAt    time.Time // Zero leaves LastCrawledAt unchanged
	RetryCount   int
	FailedReason string
}

// URLRepository is the durable frontier, one record per canonical URL
type URLRepository interface {
	// FindByHash returns utils.ErrNotFound when no record exists
	FindByHash(ctx context.Context, hash string) (*models.URLRecord, error)

	// Ensure inserts rec if its hash is unknown; otherwise returns the stored record unchanged.
	// created reports whether an insert happened.
	Ensure(ctx context.Context, rec models.URLRecord) (stored models.URLRecord, created bool, err error)

	// RecordFetch updates only the fetcher-owned fields
	RecordFetch(ctx context.Context, hash string, upd FetchUpdate) error

	// RecordParse stores parser output (title, content hash) on the record
	RecordParse(ctx context.Context, hash, title, contentHash string) error

	// UpdateSchedule updates only the scheduler-owned fields
	UpdateSchedule(ctx context.Context, hash string, priority int, nextCrawlAt time.Time) error

	// FindDue returns non-skipped records whose next crawl is due, by priority desc then next crawl asc
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.URLRecord, error)

	// Scan walks every record in chunks of at most chunkSize
	Scan(ctx context.Context, chunkSize int, fn func([]models.URLRecord) error) error

	// CountByStatus returns record counts keyed by status
	CountByStatus(ctx context.Context) (map[models.URLStatus]int, error)
}

// JobRepository stores cycle-scoped crawl jobs
type JobRepository interface {
	// Get returns utils.ErrNotFound when no job exists
	Get(ctx context.Context, id string) (*models.CrawlJob, error)

	// CreateIfAbsent inserts job unless a job with the same ID exists.
	// When rec is non-nil the URL record is ensured in the same transaction.
	// When budget is non-nil the daily counter is checked and incremented in the same transaction;
	// an exhausted budget returns utils.ErrBudgetExhausted.
	CreateIfAbsent(ctx context.Context, job models.CrawlJob, rec *models.URLRecord, budget *Budget) (created bool, err error)

	// Reopen stores job unless an active job holds the same ID; a terminal job is replaced
	Reopen(ctx context.Context, job models.CrawlJob) (stored bool, err error)

	// ClaimPending atomically moves up to limit due pending jobs to processing, shallowest first
	ClaimPending(ctx context.Context, now time.Time, limit int) ([]models.CrawlJob, error)

	// Save overwrites the job
	Save(ctx context.Context, job models.CrawlJob) error

	// Release returns a processing job to pending without consuming an attempt
	Release(ctx context.Context, id string, availableAt time.Time) error

	// RequeueStale returns processing jobs not updated since before olderThan to pending
	RequeueStale(ctx context.Context, olderThan time.Time) (int, error)

	// DeleteByCategory removes every job of a category
	DeleteByCategory(ctx context.Context, category string) (int, error)

	// CountByCategoryStatus returns job counts keyed by category then status
	CountByCategoryStatus(ctx context.Context) (map[string]map[models.JobStatus]int, error)

	// CountActive counts pending and processing jobs
	CountActive(ctx context.Context) (int, error)
}

// HostRepository caches per-host robots.txt state
type HostRepository interface {
	// Get returns utils.ErrNotFound when the host has never been checked
	Get(ctx context.Context, host string) (*models.HostRecord, error)
	Put(ctx context.Context, rec models.HostRecord) error
}

// QueueRepository is the lockable scheduling overlay on the URL table
type QueueRepository interface {
	Get(ctx context.Context, urlHash string) (*models.QueueEntry, error)

	// InsertIfAbsent inserts entry unless one already exists for the URL
	InsertIfAbsent(ctx context.Context, entry models.QueueEntry) (bool, error)

	// Lock claims an existing entry for workerID.
	// Returns utils.ErrAlreadyLocked when another worker holds it, utils.ErrNotFound when absent.
	Lock(ctx context.Context, urlHash, workerID string, now time.Time) error

	// Acquire locks the entry, inserting it already locked when absent. Reentrant for the same worker.
	Acquire(ctx context.Context, entry models.QueueEntry, workerID string, now time.Time) error

	Unlock(ctx context.Context, urlHash string) error

	// Delete removes the entry; a missing entry is not an error
	Delete(ctx context.Context, urlHash string) error

	// ClaimUnlocked atomically locks up to limit unlocked entries for workerID,
	// highest priority first and oldest first among equals
	ClaimUnlocked(ctx context.Context, workerID string, now time.Time, limit int) ([]models.QueueEntry, error)

	// DeleteStale removes entries locked before olderThan
	DeleteStale(ctx context.Context, olderThan time.Time) (int, error)

	Count(ctx context.Context) (int, error)
	CountLocked(ctx context.Context) (int, error)
}

// LinkRepository is the discovery adjacency table
type LinkRepository interface {
	// AddEdge records the edge once; repeated sightings return false
	AddEdge(ctx context.Context, link models.Link) (bool, error)

	// CountInbound counts distinct edges pointing at toHash
	CountInbound(ctx context.Context, toHash string) (int, error)
}

// KVStore is a TTL-aware key-value cache for rate-limiter timestamps, failure markers and counters
type KVStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put stores value; ttl <= 0 means no expiry
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Has(ctx context.Context, key string) (bool, error)

	// Increment adds delta to an integer counter atomically and returns the new value
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Reserve atomically stores max(floor, current+step), or floor when the key is
	// absent, and returns the stored value
	Reserve(ctx context.Context, key string, floor, step int64, ttl time.Duration) (int64, error)

	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix and returns how many were removed
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// BlobStore stages raw page bytes between fetch and parse
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
