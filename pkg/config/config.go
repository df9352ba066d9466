package config

import (
	"sort"
	"time"
)

// CategoryConfig holds configuration specific to a single crawl category
type CategoryConfig struct {
	Name        string   `yaml:"name,omitempty"`
	Description string   `yaml:"description,omitempty"`
	SeedURLs    []string `yaml:"seed_urls"`
	Keywords    []string `yaml:"keywords,omitempty"` // Path keywords used by the relevance scorer
	Patterns    []string `yaml:"patterns,omitempty"` // Regexes over the lowercased URL
	MaxPerDay   *int     `yaml:"max_per_day,omitempty"`
	MaxDepth    *int     `yaml:"max_depth,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgent               string                    `yaml:"user_agent"`
	RobotsAgent             string                    `yaml:"robots_agent,omitempty"` // Token matched against robots.txt groups
	StateDir                string                    `yaml:"state_dir"`
	BlobDir                 string                    `yaml:"blob_dir"`
	IndexDir                string                    `yaml:"index_dir"`
	NumWorkers              int                       `yaml:"num_workers"`
	MaxRequestsPerHost      int                       `yaml:"max_requests_per_host"`
	GlobalRequestsPerSecond float64                   `yaml:"global_requests_per_second,omitempty"`
	RequestTimeout          time.Duration             `yaml:"request_timeout,omitempty"`
	RobotsTimeout           time.Duration             `yaml:"robots_timeout,omitempty"`
	RobotsCacheTTL          time.Duration             `yaml:"robots_cache_ttl,omitempty"`
	DefaultCrawlDelay       time.Duration             `yaml:"default_crawl_delay,omitempty"`
	MaxPageSize             int64                     `yaml:"max_page_size,omitempty"`
	MaxRedirects            int                       `yaml:"max_redirects,omitempty"`
	AllowedContentTypes     []string                  `yaml:"allowed_content_types,omitempty"`
	FailureCacheTTL         time.Duration             `yaml:"failure_cache_ttl,omitempty"`
	ExtraTrackingParams     []string                  `yaml:"extra_tracking_params,omitempty"`
	RespectNofollow         bool                      `yaml:"respect_nofollow,omitempty"`
	GlobalCrawlTimeout      time.Duration             `yaml:"global_crawl_timeout,omitempty"` // Wall-clock budget per cycle (0 = none)
	Retry                   RetryConfig               `yaml:"retry,omitempty"`
	Discovery               DiscoveryConfig           `yaml:"discovery,omitempty"`
	Scheduler               SchedulerConfig           `yaml:"scheduler,omitempty"`
	Storage                 StorageConfig             `yaml:"storage,omitempty"`
	Watch                   WatchConfig               `yaml:"watch,omitempty"`
	Index                   IndexConfig               `yaml:"index,omitempty"`
	HTTPClientSettings      HTTPClientConfig          `yaml:"http_client_settings,omitempty"`
	Categories              map[string]CategoryConfig `yaml:"categories"`
}

// RetryConfig controls the crawl job retry schedule
type RetryConfig struct {
	MaxAttempts int             `yaml:"max_attempts,omitempty"`
	Backoff     []time.Duration `yaml:"backoff,omitempty"` // Indexed by attempt; last value repeats
}

// DiscoveryConfig controls link admission
type DiscoveryConfig struct {
	MaxPerCategoryPerDay   int      `yaml:"max_per_category_per_day,omitempty"`
	DepthThresholds        []int    `yaml:"depth_thresholds,omitempty"` // Index = depth
	BeyondThreshold        int      `yaml:"beyond_threshold,omitempty"` // Used past the end of DepthThresholds
	MaxDepth               int      `yaml:"max_depth,omitempty"`        // 0 = unlimited
	AllowedExternalDomains []string `yaml:"allowed_external_domains,omitempty"`
	Vocabulary             []string `yaml:"vocabulary,omitempty"` // Cross-domain fallback keywords
}

// SchedulerConfig controls the frontier scheduler and dispatcher
type SchedulerConfig struct {
	BatchSize         int           `yaml:"batch_size,omitempty"`
	StaleLockTimeout  time.Duration `yaml:"stale_lock_timeout,omitempty"`
	ReprioritizeChunk int           `yaml:"reprioritize_chunk,omitempty"`
	PollInterval      time.Duration `yaml:"poll_interval,omitempty"`
	ClaimBatch        int           `yaml:"claim_batch,omitempty"`
	LockedRetryDelay  time.Duration `yaml:"locked_retry_delay,omitempty"` // Delay when another worker holds the URL
}

// StorageConfig controls the embedded store
type StorageConfig struct {
	MaxTxnAttempts    int           `yaml:"max_txn_attempts,omitempty"`
	TxnRetryBaseDelay time.Duration `yaml:"txn_retry_base_delay,omitempty"`
	GCInterval        time.Duration `yaml:"gc_interval,omitempty"`
}

// WatchConfig holds cron specs for the scheduled-task runner
type WatchConfig struct {
	ScheduleSpec     string `yaml:"schedule_spec,omitempty"`
	CleanupSpec      string `yaml:"cleanup_spec,omitempty"`
	ReprioritizeSpec string `yaml:"reprioritize_spec,omitempty"`
	CycleSpec        string `yaml:"cycle_spec,omitempty"`
}

// IndexConfig controls the file indexer's document enrichment
type IndexConfig struct {
	EnableChunking    bool   `yaml:"enable_chunking,omitempty"`
	MaxChunkSize      int    `yaml:"max_chunk_size,omitempty"` // Tokens
	ChunkOverlap      int    `yaml:"chunk_overlap,omitempty"`  // Tokens
	TokenizerEncoding string `yaml:"tokenizer_encoding,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// CategoryKeys returns the configured category keys in sorted order
func (c *AppConfig) CategoryKeys() []string {
	keys := make([]string, 0, len(c.Categories))
	for k := range c.Categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetEffectiveMaxPerDay determines the daily discovery budget for a category
func GetEffectiveMaxPerDay(catCfg CategoryConfig, appCfg AppConfig) int {
	if catCfg.MaxPerDay != nil {
		return *catCfg.MaxPerDay
	}
	return appCfg.Discovery.MaxPerCategoryPerDay
}

// GetEffectiveMaxDepth determines the maximum discovery depth for a category (0 = unlimited)
func GetEffectiveMaxDepth(catCfg CategoryConfig, appCfg AppConfig) int {
	if catCfg.MaxDepth != nil {
		return *catCfg.MaxDepth
	}
	return appCfg.Discovery.MaxDepth
}

// GetEffectiveRobotsAgent returns the token used for robots.txt group matching.
// Falls back to the product token of the user agent ("Bot/1.0 (...)" -> "Bot").
func GetEffectiveRobotsAgent(appCfg AppConfig) string {
	if appCfg.RobotsAgent != "" {
		return appCfg.RobotsAgent
	}
	ua := appCfg.UserAgent
	for i, r := range ua {
		if r == '/' || r == ' ' {
			return ua[:i]
		}
	}
	return ua
}
