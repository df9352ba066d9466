package storage

import (
	"context"
	"strconv"
	"time"
)

const (
	failedURLPrefix   = "failed_url:"
	crawlCountPrefix  = "crawl_count:"
	crawlCountDateFmt = "2006-01-02"
	budgetCounterTTL  = 48 * time.Hour
)

// BudgetPrefix is the KV prefix shared by every daily counter of a category
func BudgetPrefix(category string) string {
	return crawlCountPrefix + category + ":"
}

// DailyBudget returns the discovery budget for category on the UTC day of now
func DailyBudget(category string, limit int, now time.Time) *Budget {
	return &Budget{
		Key:   BudgetPrefix(category) + now.UTC().Format(crawlCountDateFmt),
		Limit: limit,
		TTL:   budgetCounterTTL,
	}
}

// BudgetUsed reads the current value of a budget counter
func BudgetUsed(ctx context.Context, kv KVStore, b *Budget) (int, error) {
	raw, found, err := kv.Get(ctx, b.Key)
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, wrapDB(err, "budget counter %s", b.Key)
	}
	return n, nil
}

// FailureCache remembers URL digests that must not be re-admitted until the marker expires
type FailureCache struct {
	kv  KVStore
	ttl time.Duration
}

// NewFailureCache creates a FailureCache whose markers live for ttl
func NewFailureCache(kv KVStore, ttl time.Duration) *FailureCache {
	return &FailureCache{kv: kv, ttl: ttl}
}

// Mark caches digest as failed, storing reason as the marker value
func (c *FailureCache) Mark(ctx context.Context, digest, reason string) error {
	return c.kv.Put(ctx, failedURLPrefix+digest, []byte(reason), c.ttl)
}

// Has reports whether digest is currently marked as failed
func (c *FailureCache) Has(ctx context.Context, digest string) (bool, error) {
	return c.kv.Has(ctx, failedURLPrefix+digest)
}

// Reason returns the cached failure reason, if any
func (c *FailureCache) Reason(ctx context.Context, digest string) (string, bool, error) {
	raw, found, err := c.kv.Get(ctx, failedURLPrefix+digest)
	return string(raw), found, err
}

// Clear drops the marker for digest
func (c *FailureCache) Clear(ctx context.Context, digest string) error {
	return c.kv.Delete(ctx, failedURLPrefix+digest)
}
