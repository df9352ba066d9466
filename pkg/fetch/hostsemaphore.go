package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// hostEntry tracks a single host's semaphore and its usage state.
type hostEntry struct {
	sem         *semaphore.Weighted
	activeCount int64     // number of held + waiting permits
	lastRelease time.Time // updated on every Release; zero if never released
}

// HostSemaphorePool limits in-process concurrency per host. Spacing between
// requests is the rate limiter's job; the pool only caps how many are in flight.
type HostSemaphorePool struct {
	entries map[string]*hostEntry
	mu      sync.Mutex
	limit   int64
	log     *logrus.Entry
}

// NewHostSemaphorePool creates a new pool with the given per-host concurrency limit.
func NewHostSemaphorePool(maxPerHost int, log *logrus.Entry) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 1
		log.Warnf("max_requests_per_host invalid or zero, defaulting to %d", limit)
	}
	return &HostSemaphorePool{
		entries: make(map[string]*hostEntry),
		limit:   limit,
		log:     log,
	}
}

// Acquire gets or creates a host semaphore and acquires one permit.
// Blocks until the permit is available or ctx is cancelled.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) error {
	p.mu.Lock()
	entry, exists := p.entries[host]
	if !exists {
		entry = &hostEntry{sem: semaphore.NewWeighted(p.limit)}
		p.entries[host] = entry
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Created new host semaphore")
	}
	entry.activeCount++
	p.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		entry.activeCount--
		p.mu.Unlock()
		return err
	}
	return nil
}

// Release releases one permit for the given host.
func (p *HostSemaphorePool) Release(host string) {
	p.mu.Lock()
	entry, exists := p.entries[host]
	if !exists {
		p.mu.Unlock()
		p.log.Errorf("hostsemaphore: Release called for unknown host: %s", host)
		return
	}
	entry.activeCount--
	entry.lastRelease = time.Now()
	p.mu.Unlock()

	entry.sem.Release(1)
}

// With runs fn while holding a permit for host
func (p *HostSemaphorePool) With(ctx context.Context, host string, fn func() error) error {
	if err := p.Acquire(ctx, host); err != nil {
		return err
	}
	defer p.Release(host)
	return fn()
}

// RunEviction removes hosts idle for longer than maxIdle, checking every interval.
// Should be run in a goroutine.
func (p *HostSemaphorePool) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxIdle <= 0 {
		maxIdle = interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info("Host semaphore eviction goroutine started.")

	for {
		select {
		case <-ticker.C:
			p.evictIdle(time.Now(), maxIdle)
		case <-ctx.Done():
			p.log.Infof("Stopping host semaphore eviction: %v", ctx.Err())
			return
		}
	}
}

// evictIdle removes entries with no holders or waiters whose last release is older than maxIdle.
func (p *HostSemaphorePool) evictIdle(now time.Time, maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for host, entry := range p.entries {
		if entry.activeCount == 0 && !entry.lastRelease.IsZero() && now.Sub(entry.lastRelease) >= maxIdle {
			delete(p.entries, host)
			evicted++
		}
	}
	if evicted > 0 {
		p.log.Debugf("Evicted %d idle host semaphores, %d remain", evicted, len(p.entries))
	}
	return evicted
}

// Len returns the current number of tracked hosts.
func (p *HostSemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
