package models

import (
	"time"

	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// URLRecord is the durable frontier entry for one canonical URL.
// Hash is the SHA-256 of NormalizedURL and is the record key.
type URLRecord struct {
	Hash          string    `json:"url_hash" badgerhold:"key"`
	NormalizedURL string    `json:"normalized_url"`
	OriginalURL   string    `json:"original_url"`
	Host          string    `json:"host" badgerhold:"index"`
	Path          string    `json:"path"`
	QueryHash     string    `json:"query_hash,omitempty"`
	Category      string    `json:"category" badgerhold:"index"`
	Depth         int       `json:"depth"`
	Priority      int       `json:"priority"`
	Status        URLStatus `json:"status" badgerhold:"index"`
	LastCrawledAt time.Time `json:"last_crawled_at,omitempty"`
	NextCrawlAt   time.Time `json:"next_crawl_at,omitempty"` // Zero means due immediately
	HTTPStatus    int       `json:"http_status,omitempty"`
	RetryCount    int       `json:"retry_count"`
	FailedReason  string    `json:"failed_reason,omitempty"`
	Title         string    `json:"title,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CrawlJob is one cycle-scoped attempt to process a URL for a category.
type CrawlJob struct {
	ID               string    `json:"id" badgerhold:"key"` // JobID(category, url)
	URL              string    `json:"url"`
	URLHash          string    `json:"url_hash,omitempty"` // Set once the URL normalizes
	Category         string    `json:"category" badgerhold:"index"`
	Depth            int       `json:"depth"`
	SourceURL        string    `json:"source_url,omitempty"`
	Status           JobStatus `json:"status" badgerhold:"index"`
	Attempts         int       `json:"attempts"`
	AvailableAt      time.Time `json:"available_at"` // Pending jobs are not claimable before this
	HTTPStatus       int       `json:"http_status,omitempty"`
	RobotsTxtAllowed bool      `json:"robots_txt_allowed"`
	CrawledAt        time.Time `json:"crawled_at,omitempty"`
	FailedReason     string    `json:"failed_reason,omitempty"`
	StorageKey       string    `json:"storage_key,omitempty"`
	WorkerID         string    `json:"worker_id,omitempty"`
	Recrawl          bool      `json:"recrawl,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// JobID derives the identity of a job from its (category, url) pair.
func JobID(category, url string) string {
	return utils.JoinedSHA256(category, url)
}

// NewCrawlJob builds a pending job available immediately.
func NewCrawlJob(url, category string, depth int, sourceURL string, now time.Time) CrawlJob {
	return CrawlJob{
		ID:          JobID(category, url),
		URL:         url,
		Category:    category,
		Depth:       depth,
		SourceURL:   sourceURL,
		Status:      JobStatusPending,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HostRecord caches robots.txt state for one host.
type HostRecord struct {
	Host            string         `json:"host" badgerhold:"key"`
	RobotsFetchedAt time.Time      `json:"robots_fetched_at"`
	RobotsTxtExists bool           `json:"robots_txt_exists"`
	CrawlDelay      map[string]int `json:"crawl_delay,omitempty"` // user-agent -> seconds
	AllowRules      []string       `json:"allow_rules,omitempty"`
	DisallowRules   []string       `json:"disallow_rules,omitempty"`
	RobotsBody      []byte         `json:"-"`
}

// IsFresh reports whether the cached robots data can still be trusted.
func (h HostRecord) IsFresh(now time.Time, ttl time.Duration) bool {
	return !h.RobotsFetchedAt.IsZero() && now.Sub(h.RobotsFetchedAt) < ttl
}

// QueueEntry is a schedulable, lockable claim on a URL, keyed by URL hash.
type QueueEntry struct {
	URLHash     string    `json:"url_id" badgerhold:"key"`
	URL         string    `json:"url"`
	Category    string    `json:"category"`
	Depth       int       `json:"depth"`
	Priority    int       `json:"priority"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Locked      bool      `json:"locked" badgerhold:"index"`
	LockedAt    time.Time `json:"locked_at,omitempty"`
	WorkerID    string    `json:"worker_id,omitempty"`
}

// IsStale reports whether a held lock is older than the staleness threshold.
func (q QueueEntry) IsStale(now time.Time, threshold time.Duration) bool {
	return q.Locked && now.Sub(q.LockedAt) > threshold
}

// Link is a directed discovery edge between two URL hashes.
type Link struct {
	ID           string    `json:"id" badgerhold:"key"` // LinkID(from, to)
	FromHash     string    `json:"from_hash"`
	ToHash       string    `json:"to_hash" badgerhold:"index"`
	AnchorText   string    `json:"anchor_text,omitempty"`
	Nofollow     bool      `json:"nofollow,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// LinkID derives the edge identity so repeated sightings collapse to one edge.
func LinkID(fromHash, toHash string) string {
	return utils.JoinedSHA256(fromHash, toHash)
}

// Anchor is an outbound link as extracted from a page.
type Anchor struct {
	URL      string
	Text     string
	Nofollow bool
}

// ParsedPage is the metadata the HTML parser extracts from raw page bytes.
type ParsedPage struct {
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	CanonicalURL string    `json:"canonical_url,omitempty"`
	PublishedAt  time.Time `json:"published_at,omitempty"`
	ContentHash  string    `json:"content_hash"`
}
