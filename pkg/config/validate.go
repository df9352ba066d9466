package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

const defaultUserAgent = "TopicCrawler/1.0 (+http://localhost:8000/bot)"

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}

	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	}

	if c.MaxRequestsPerHost <= 0 {
		warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 1")
		c.MaxRequestsPerHost = 1
	}

	// Negative disables the global throttle; zero takes the default
	if c.GlobalRequestsPerSecond < 0 {
		warnings = append(warnings, "global_requests_per_second is negative, global throttle disabled")
		c.GlobalRequestsPerSecond = 0
	} else if c.GlobalRequestsPerSecond == 0 {
		c.GlobalRequestsPerSecond = 5
	}

	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}
	if c.BlobDir == "" {
		c.BlobDir = strings.TrimSuffix(c.StateDir, "/") + "/blobs"
	}
	if c.IndexDir == "" {
		warnings = append(warnings, "index_dir is empty, defaulting to './crawler_index'")
		c.IndexDir = "./crawler_index"
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.RobotsTimeout <= 0 {
		c.RobotsTimeout = 10 * time.Second
	}
	if c.RobotsCacheTTL <= 0 {
		c.RobotsCacheTTL = 24 * time.Hour
	}
	if c.DefaultCrawlDelay <= 0 {
		c.DefaultCrawlDelay = 1 * time.Second
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 5 * 1024 * 1024
	}
	if c.MaxRedirects < 0 {
		warnings = append(warnings, "max_redirects cannot be negative, defaulting to 5")
		c.MaxRedirects = 5
	} else if c.MaxRedirects == 0 {
		c.MaxRedirects = 5
	}
	if len(c.AllowedContentTypes) == 0 {
		c.AllowedContentTypes = []string{"text/html", "application/xhtml+xml"}
	}
	if c.FailureCacheTTL <= 0 {
		c.FailureCacheTTL = 24 * time.Hour
	}

	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	warnings = append(warnings, c.validateRetry()...)
	warnings = append(warnings, c.validateDiscovery()...)
	c.validateScheduler()
	c.validateStorage()
	warnings = append(warnings, c.validateIndex()...)
	c.validateHTTPClientSettings()

	watchWarnings, err := c.validateWatch()
	warnings = append(warnings, watchWarnings...)
	if err != nil {
		return warnings, err
	}

	if len(c.Categories) == 0 {
		warnings = append(warnings, "no categories configured, using the built-in catalogue")
		c.Categories = DefaultCategories()
	}

	return warnings, nil
}

// validateRetry applies defaults to the job retry schedule.
func (c *AppConfig) validateRetry() (warnings []string) {
	r := &c.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 5
	}
	if len(r.Backoff) == 0 {
		r.Backoff = []time.Duration{10 * time.Second, 30 * time.Second, 120 * time.Second, 600 * time.Second}
	}
	for i, d := range r.Backoff {
		if d < 0 {
			warnings = append(warnings, fmt.Sprintf("retry.backoff[%d] is negative, setting to 0", i))
			r.Backoff[i] = 0
		}
	}
	return warnings
}

// validateDiscovery applies defaults to link admission and enforces a non-decreasing threshold table.
func (c *AppConfig) validateDiscovery() (warnings []string) {
	d := &c.Discovery
	if d.MaxPerCategoryPerDay <= 0 {
		d.MaxPerCategoryPerDay = 10
	}
	if len(d.DepthThresholds) == 0 {
		d.DepthThresholds = append([]int(nil), DefaultDepthThresholds...)
	}
	if d.BeyondThreshold <= 0 {
		d.BeyondThreshold = DefaultBeyondThreshold
	}
	for i := 1; i < len(d.DepthThresholds); i++ {
		if d.DepthThresholds[i] < d.DepthThresholds[i-1] {
			warnings = append(warnings, fmt.Sprintf(
				"discovery.depth_thresholds[%d] (%d) is below the previous depth, raising to %d",
				i, d.DepthThresholds[i], d.DepthThresholds[i-1]))
			d.DepthThresholds[i] = d.DepthThresholds[i-1]
		}
	}
	if last := d.DepthThresholds[len(d.DepthThresholds)-1]; d.BeyondThreshold < last {
		warnings = append(warnings, fmt.Sprintf("discovery.beyond_threshold (%d) is below the deepest threshold, raising to %d", d.BeyondThreshold, last))
		d.BeyondThreshold = last
	}
	if d.MaxDepth < 0 {
		warnings = append(warnings, "discovery.max_depth cannot be negative, setting to 0 (unlimited)")
		d.MaxDepth = 0
	}
	if len(d.Vocabulary) == 0 {
		d.Vocabulary = append([]string(nil), DefaultVocabulary...)
	}
	return warnings
}

// validateScheduler applies defaults to the frontier scheduler.
func (c *AppConfig) validateScheduler() {
	s := &c.Scheduler
	if s.BatchSize <= 0 {
		s.BatchSize = 100
	}
	if s.StaleLockTimeout <= 0 {
		s.StaleLockTimeout = time.Hour
	}
	if s.ReprioritizeChunk <= 0 {
		s.ReprioritizeChunk = 1000
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 2 * time.Second
	}
	if s.ClaimBatch <= 0 {
		s.ClaimBatch = 16
	}
	if s.LockedRetryDelay <= 0 {
		s.LockedRetryDelay = 30 * time.Second
	}
}

// validateStorage applies defaults to the embedded store.
func (c *AppConfig) validateStorage() {
	s := &c.Storage
	if s.MaxTxnAttempts <= 0 {
		s.MaxTxnAttempts = 5
	}
	if s.TxnRetryBaseDelay <= 0 {
		s.TxnRetryBaseDelay = 100 * time.Millisecond
	}
	if s.GCInterval <= 0 {
		s.GCInterval = 10 * time.Minute
	}
}

// validateIndex applies chunking defaults.
func (c *AppConfig) validateIndex() (warnings []string) {
	ix := &c.Index
	if ix.MaxChunkSize <= 0 {
		ix.MaxChunkSize = 512
	}
	if ix.ChunkOverlap < 0 {
		warnings = append(warnings, "index.chunk_overlap cannot be negative, setting to 0")
		ix.ChunkOverlap = 0
	} else if ix.ChunkOverlap == 0 {
		ix.ChunkOverlap = 50
	}
	if ix.ChunkOverlap >= ix.MaxChunkSize {
		warnings = append(warnings, fmt.Sprintf("index.chunk_overlap (%d) must be below max_chunk_size (%d), setting to %d",
			ix.ChunkOverlap, ix.MaxChunkSize, ix.MaxChunkSize/10))
		ix.ChunkOverlap = ix.MaxChunkSize / 10
	}
	if ix.TokenizerEncoding == "" {
		ix.TokenizerEncoding = "cl100k_base"
	}
	return warnings
}

// validateWatch applies default cron specs and rejects unparsable ones.
func (c *AppConfig) validateWatch() (warnings []string, err error) {
	w := &c.Watch
	if w.ScheduleSpec == "" {
		w.ScheduleSpec = "@every 5m"
	}
	if w.CleanupSpec == "" {
		w.CleanupSpec = "@every 15m"
	}
	if w.ReprioritizeSpec == "" {
		w.ReprioritizeSpec = "0 3 * * *"
	}
	if w.CycleSpec == "" {
		w.CycleSpec = "0 6 * * *"
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"schedule_spec":     w.ScheduleSpec,
		"cleanup_spec":      w.CleanupSpec,
		"reprioritize_spec": w.ReprioritizeSpec,
		"cycle_spec":        w.CycleSpec,
	} {
		if _, perr := parser.Parse(spec); perr != nil {
			return warnings, fmt.Errorf("%w: watch.%s %q: %v", utils.ErrConfigValidation, name, spec, perr)
		}
	}
	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks CategoryConfig fields.
// Returns collected warnings and any fatal error.
func (c *CategoryConfig) Validate() (warnings []string, err error) {
	if len(c.SeedURLs) == 0 {
		return nil, fmt.Errorf("%w: category has no seed_urls", utils.ErrConfigValidation)
	}
	for i, seed := range c.SeedURLs {
		if strings.TrimSpace(seed) == "" {
			return nil, fmt.Errorf("%w: seed_urls[%d] is empty", utils.ErrConfigValidation, i)
		}
		if u, perr := url.Parse(seed); perr != nil || (u.Host == "" && !strings.Contains(seed, ".")) {
			warnings = append(warnings, fmt.Sprintf("seed_urls[%d] %q does not look like a URL", i, seed))
		}
	}

	if _, err := utils.CompileRegexPatterns(c.Patterns, true); err != nil {
		return nil, err
	}

	if len(c.Keywords) == 0 {
		warnings = append(warnings, "category has no keywords, path-keyword scoring disabled")
	}

	if c.MaxPerDay != nil && *c.MaxPerDay < 0 {
		warnings = append(warnings, "category max_per_day cannot be negative, setting to 0")
		zero := 0
		c.MaxPerDay = &zero
	}

	return warnings, nil
}
