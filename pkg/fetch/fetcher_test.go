package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *storage.BadgerStore {
	t.Helper()
	store, err := storage.Open(context.Background(), t.TempDir(), storage.Options{}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// testConfig returns a validated config with a short politeness delay
func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		StateDir:          t.TempDir(),
		IndexDir:          t.TempDir(),
		DefaultCrawlDelay: 10 * time.Millisecond,
		MaxPageSize:       1024,
		RequestTimeout:    2 * time.Second,
		RobotsTimeout:     time.Second,
		MaxRedirects:      2,
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

type testRig struct {
	fetcher *Fetcher
	store   *storage.BadgerStore
	blobs   *storage.FSBlobStore
}

func newTestRig(t *testing.T, cfg *config.AppConfig) *testRig {
	t.Helper()
	store := newTestStore(t)
	blobs, err := storage.NewFSBlobStore(t.TempDir())
	require.NoError(t, err)

	log := testLogger()
	client := NewClient(cfg.HTTPClientSettings, cfg.MaxRedirects, log)
	robots := NewRobotsGuard(client, store.Hosts(), config.GetEffectiveRobotsAgent(*cfg), cfg.UserAgent, cfg.RobotsTimeout, cfg.RobotsCacheTTL, log)
	limiter := NewRateLimiter(store.KV(), log)
	sems := NewHostSemaphorePool(cfg.MaxRequestsPerHost, log)
	return &testRig{
		fetcher: NewFetcher(cfg, client, robots, limiter, sems, blobs, log),
		store:   store,
		blobs:   blobs,
	}
}

func mustNormalize(t *testing.T, raw string) parse.NormalizedURL {
	t.Helper()
	u, err := parse.Normalize(raw)
	require.NoError(t, err)
	return u
}

// siteServer serves robots.txt from robots (404 when empty) and delegates everything else to page.
// Returns the server and a counter of non-robots requests.
func siteServer(t *testing.T, robots string, page http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	pageHits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			if robots == "" {
				http.NotFound(w, r)
				return
			}
			io.WriteString(w, robots)
			return
		}
		pageHits.Add(1)
		page(w, r)
	}))
	t.Cleanup(server.Close)
	return server, pageHits
}

func htmlPage(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	}
}

func TestFetch_Success(t *testing.T) {
	rig := newTestRig(t, testConfig(t))
	var gotUA string
	server, hits := siteServer(t, "", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		htmlPage("<html><title>x</title></html>")(w, r)
	})

	res := rig.fetcher.Fetch(context.Background(), mustNormalize(t, server.URL+"/a"), "technology")
	require.NoError(t, res.Err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.True(t, res.RobotsAllowed)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "TopicCrawler/1.0 (+http://localhost:8000/bot)", gotUA)
	assert.True(t, strings.HasPrefix(res.StorageKey, "crawl/technology/"), res.StorageKey)
	assert.True(t, strings.HasSuffix(res.StorageKey, ".html"))

	data, err := rig.blobs.Get(context.Background(), res.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, "<html><title>x</title></html>", string(data))
}

func TestFetch_Classification(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		outcome  models.FetchOutcome
		sentinel error
	}{
		{"404 is permanent", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			models.OutcomePermanent, utils.ErrClientHTTPError},
		{"500 is retryable", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			models.OutcomeRetryable, utils.ErrServerHTTPError},
		{"503 is retryable", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			models.OutcomeRetryable, utils.ErrServerHTTPError},
		{"429 is rate limited", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			models.OutcomeRateLimited, utils.ErrRateLimited},
		{"non-html is permanent", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			io.WriteString(w, "%PDF")
		}, models.OutcomePermanent, utils.ErrContentType},
		{"oversized body is permanent", htmlPage(strings.Repeat("x", 2048)),
			models.OutcomePermanent, utils.ErrBodyTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t, testConfig(t))
			server, hits := siteServer(t, "", tt.handler)

			res := rig.fetcher.Fetch(context.Background(), mustNormalize(t, server.URL+"/page"), "technology")
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.ErrorIs(t, res.Err, tt.sentinel)
			assert.Empty(t, res.StorageKey)
			assert.Equal(t, int32(1), hits.Load(), "exactly one GET per fetch")

			// Late rejection after a GET still records the request
			host := mustNormalize(t, server.URL).Host
			has, err := rig.store.KV().Has(context.Background(), rateKeyPrefix+host)
			require.NoError(t, err)
			assert.True(t, has)
		})
	}
}

func TestFetch_RobotsDisallowedIsEarlyRejection(t *testing.T) {
	rig := newTestRig(t, testConfig(t))
	server, hits := siteServer(t, "User-agent: *\nDisallow: /private\n", htmlPage("<html></html>"))

	res := rig.fetcher.Fetch(context.Background(), mustNormalize(t, server.URL+"/private/page"), "technology")
	assert.Equal(t, models.OutcomePermanent, res.Outcome)
	assert.ErrorIs(t, res.Err, utils.ErrRobotsDisallowed)
	assert.False(t, res.RobotsAllowed)
	assert.Equal(t, int32(0), hits.Load())

	host := mustNormalize(t, server.URL).Host
	has, err := rig.store.KV().Has(context.Background(), rateKeyPrefix+host)
	require.NoError(t, err)
	assert.False(t, has, "robots rejection must not touch the rate limiter")

	res = rig.fetcher.Fetch(context.Background(), mustNormalize(t, server.URL+"/public"), "technology")
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
}

func TestFetch_TooManyRedirectsIsPermanent(t *testing.T) {
	rig := newTestRig(t, testConfig(t))
	server, _ := siteServer(t, "", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	res := rig.fetcher.Fetch(context.Background(), mustNormalize(t, server.URL+"/start"), "technology")
	assert.Equal(t, models.OutcomePermanent, res.Outcome)
	assert.ErrorIs(t, res.Err, utils.ErrTooManyRedirects)
}

func TestFetch_ConnectionErrorIsRetryable(t *testing.T) {
	rig := newTestRig(t, testConfig(t))
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + "/gone"
	server.Close()

	res := rig.fetcher.Fetch(context.Background(), mustNormalize(t, url), "technology")
	assert.Equal(t, models.OutcomeRetryable, res.Outcome)
	assert.Error(t, res.Err)
}

func TestFetch_TimeoutIsRetryable(t *testing.T) {
	cfg := testConfig(t)
	cfg.RequestTimeout = 100 * time.Millisecond
	rig := newTestRig(t, cfg)
	server, _ := siteServer(t, "", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	res := rig.fetcher.Fetch(context.Background(), mustNormalize(t, server.URL+"/slow"), "technology")
	assert.Equal(t, models.OutcomeRetryable, res.Outcome)
	assert.True(t, utils.IsTransientNetworkError(res.Err), "got %v", res.Err)
}

func TestFetch_SameHostSpacing(t *testing.T) {
	for _, perHost := range []int{1, 2} {
		t.Run(fmt.Sprintf("max_requests_per_host=%d", perHost), func(t *testing.T) {
			cfg := testConfig(t)
			cfg.DefaultCrawlDelay = time.Second
			cfg.MaxRequestsPerHost = perHost
			rig := newTestRig(t, cfg)

			var mu sync.Mutex
			var arrivals []time.Time
			server, _ := siteServer(t, "", func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				arrivals = append(arrivals, time.Now())
				mu.Unlock()
				htmlPage("<html></html>")(w, r)
			})

			var wg sync.WaitGroup
			for _, path := range []string{"/one", "/two"} {
				wg.Add(1)
				go func(path string) {
					defer wg.Done()
					rig.fetcher.Fetch(context.Background(), mustNormalize(t, server.URL+path), "technology")
				}(path)
			}
			wg.Wait()

			require.Len(t, arrivals, 2)
			gap := arrivals[1].Sub(arrivals[0])
			assert.GreaterOrEqual(t, gap, 900*time.Millisecond, "requests to one host must be spaced by the crawl interval")
		})
	}
}

func TestFetch_CrawlDelayFromRobots(t *testing.T) {
	cfg := testConfig(t)
	rig := newTestRig(t, cfg)
	server, _ := siteServer(t, "User-agent: *\nCrawl-delay: 1\n", htmlPage("<html></html>"))

	ctx := context.Background()
	first := rig.fetcher.Fetch(ctx, mustNormalize(t, server.URL+"/a"), "technology")
	require.Equal(t, models.OutcomeSuccess, first.Outcome)

	start := time.Now()
	second := rig.fetcher.Fetch(ctx, mustNormalize(t, server.URL+"/b"), "technology")
	require.Equal(t, models.OutcomeSuccess, second.Outcome)
	assert.GreaterOrEqual(t, time.Since(start), 800*time.Millisecond, "crawl-delay overrides the short default")
}

func TestBlobKey(t *testing.T) {
	at := time.Unix(0, 42)
	k1 := BlobKey("Technology", "https://example.com/a", at)
	k2 := BlobKey("Technology", "https://example.com/a", at.Add(time.Nanosecond))
	assert.True(t, strings.HasPrefix(k1, "crawl/technology/"))
	assert.NotEqual(t, k1, k2, "keys are timestamp-scoped")
	assert.Equal(t, k1, BlobKey("Technology", "https://example.com/a", at))
}

func TestAllowedContentType(t *testing.T) {
	f := &Fetcher{contentTypes: []string{"text/html", "application/xhtml+xml"}}
	assert.True(t, f.allowedContentType("text/html; charset=utf-8"))
	assert.True(t, f.allowedContentType("TEXT/HTML"))
	assert.True(t, f.allowedContentType("application/xhtml+xml"))
	assert.False(t, f.allowedContentType("application/json"))
	assert.False(t, f.allowedContentType(""))
}
