package fetch

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/storage"
)

const rateKeyPrefix = "rate_limit:"

// RateLimiter spaces requests per host using slot timestamps kept in the shared
// KV store, so every worker sharing the store observes the same spacing.
type RateLimiter struct {
	kv  storage.KVStore
	now func() time.Time
	log *logrus.Entry
}

// NewRateLimiter creates a RateLimiter
func NewRateLimiter(kv storage.KVStore, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		kv:  kv,
		now: time.Now,
		log: log.WithField("component", "rate_limiter"),
	}
}

// IntervalFor returns the minimum spacing for a host: its robots.txt crawl delay
// rounded up to whole seconds when set, otherwise defaultDelay
func IntervalFor(defaultDelay, crawlDelay time.Duration) time.Duration {
	if crawlDelay > 0 {
		return time.Duration(math.Ceil(crawlDelay.Seconds())) * time.Second
	}
	return defaultDelay
}

// Wait reserves the host's next request slot, at least minInterval after the
// previous reservation or recorded request, and blocks until it arrives.
// Concurrent callers get distinct slots. Returns the time spent waiting.
func (rl *RateLimiter) Wait(ctx context.Context, host string, minInterval time.Duration) (time.Duration, error) {
	if minInterval <= 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := rl.now()
	slot, err := rl.kv.Reserve(ctx, rateKeyPrefix+host, now.UnixNano(), int64(minInterval), rateTTL(minInterval))
	if err != nil {
		return 0, err
	}

	wait := time.Unix(0, slot).Sub(now)
	if wait <= 0 {
		return 0, nil
	}

	rl.log.WithFields(logrus.Fields{
		"host": host, "sleep": wait, "required_delay": minInterval,
	}).Debug("Rate limit applying sleep")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return wait, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Record marks now as the host's last request time. A later reservation is kept.
func (rl *RateLimiter) Record(ctx context.Context, host string, interval time.Duration) error {
	_, err := rl.kv.Reserve(ctx, rateKeyPrefix+host, rl.now().UnixNano(), 0, rateTTL(interval))
	return err
}

// minRateTTL covers slots reserved ahead by workers queued on one host
const minRateTTL = 10 * time.Minute

func rateTTL(interval time.Duration) time.Duration {
	if ttl := 2 * interval; ttl > minRateTTL {
		return ttl
	}
	return minRateTTL
}
