package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// FetchResult is the classified outcome of a single fetch attempt
type FetchResult struct {
	Outcome       models.FetchOutcome
	HTTPStatus    int    // Zero when no response was received
	StorageKey    string // Blob key of the raw page on success
	ContentType   string
	Size          int
	RobotsAllowed bool
	Err           error // Set for every outcome except success
	Duration      time.Duration
}

// Fetcher performs one polite GET per call: robots.txt check, per-host
// serialisation, global throttle, per-host spacing, then the request itself.
type Fetcher struct {
	client       *http.Client
	robots       *RobotsGuard
	limiter      *RateLimiter
	hostSems     *HostSemaphorePool
	global       *rate.Limiter // nil disables the global throttle
	blobs        storage.BlobStore
	userAgent    string
	timeout      time.Duration
	maxPageSize  int64
	contentTypes []string
	defaultDelay time.Duration
	now          func() time.Time
	log          *logrus.Entry
}

// NewFetcher creates a Fetcher
func NewFetcher(
	cfg *config.AppConfig,
	client *http.Client,
	robots *RobotsGuard,
	limiter *RateLimiter,
	hostSems *HostSemaphorePool,
	blobs storage.BlobStore,
	log *logrus.Entry,
) *Fetcher {
	var global *rate.Limiter
	if cfg.GlobalRequestsPerSecond > 0 {
		burst := int(cfg.GlobalRequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		global = rate.NewLimiter(rate.Limit(cfg.GlobalRequestsPerSecond), burst)
	}
	return &Fetcher{
		client:       client,
		robots:       robots,
		limiter:      limiter,
		hostSems:     hostSems,
		global:       global,
		blobs:        blobs,
		userAgent:    cfg.UserAgent,
		timeout:      cfg.RequestTimeout,
		maxPageSize:  cfg.MaxPageSize,
		contentTypes: cfg.AllowedContentTypes,
		defaultDelay: cfg.DefaultCrawlDelay,
		now:          time.Now,
		log:          log.WithField("component", "fetcher"),
	}
}

// Fetch retrieves u for category and classifies the result. It never panics on
// remote misbehaviour; every failure is reported through FetchResult.
func (f *Fetcher) Fetch(ctx context.Context, u parse.NormalizedURL, category string) FetchResult {
	start := f.now()
	res := f.fetch(ctx, u, category)
	res.Duration = f.now().Sub(start)

	fields := logrus.Fields{"url": u.URL, "category": category, "outcome": res.Outcome, "status_code": res.HTTPStatus, "duration": res.Duration}
	if res.Err != nil {
		fields["error"] = res.Err
		fields["error_category"] = utils.CategorizeError(res.Err)
		f.log.WithFields(fields).Debug("Fetch failed")
	} else {
		f.log.WithFields(fields).Debug("Fetch succeeded")
	}
	return res
}

func (f *Fetcher) fetch(ctx context.Context, u parse.NormalizedURL, category string) FetchResult {
	if u.Host == "" {
		return permanent(utils.WrapErrorf(utils.ErrInvalidURL, "no host in %q", u.URL))
	}

	decision, err := f.robots.Check(ctx, u)
	if err != nil {
		return retryable(fmt.Errorf("robots.txt check for %s: %w", u.Host, err))
	}
	if !decision.Allowed {
		// Early rejection: no request, no rate-limiter update
		return permanent(utils.WrapErrorf(utils.ErrRobotsDisallowed, "%s", u.URL))
	}

	var res FetchResult
	err = f.hostSems.With(ctx, u.Host, func() error {
		if f.global != nil {
			if err := f.global.Wait(ctx); err != nil {
				return err
			}
		}
		interval := IntervalFor(f.defaultDelay, decision.CrawlDelay)
		if _, err := f.limiter.Wait(ctx, u.Host, interval); err != nil {
			return err
		}

		res = f.get(ctx, u, category)

		// Recorded once per request regardless of outcome, even if ctx is already done
		if err := f.limiter.Record(context.WithoutCancel(ctx), u.Host, interval); err != nil {
			f.log.WithField("host", u.Host).Warnf("Failed to record request time: %v", err)
		}
		return nil
	})
	if err != nil {
		return retryable(err)
	}
	res.RobotsAllowed = true
	return res
}

// get issues the request and classifies the response
func (f *Fetcher) get(ctx context.Context, u parse.NormalizedURL, category string) FetchResult {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.URL, nil)
	if err != nil {
		return permanent(fmt.Errorf("%w: %w", utils.ErrRequestCreation, err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, utils.ErrTooManyRedirects) {
			return permanent(err)
		}
		return retryable(err)
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	statusErr := func(sentinel error) error {
		return fmt.Errorf("%w: status %d %s", sentinel, status, resp.Status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return withStatus(FetchResult{Outcome: models.OutcomeRateLimited, Err: statusErr(utils.ErrRateLimited)}, status)
	case status >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return withStatus(retryable(statusErr(utils.ErrServerHTTPError)), status)
	case status >= 400:
		return withStatus(permanent(statusErr(utils.ErrClientHTTPError)), status)
	case status < 200 || status >= 300:
		return withStatus(permanent(statusErr(utils.ErrOtherHTTPError)), status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !f.allowedContentType(contentType) {
		res := permanent(utils.WrapErrorf(utils.ErrContentType, "%q", contentType))
		res.ContentType = contentType
		return withStatus(res, status)
	}
	if resp.ContentLength > f.maxPageSize {
		return withStatus(permanent(utils.WrapErrorf(utils.ErrBodyTooLarge, "declared %d bytes, limit %d", resp.ContentLength, f.maxPageSize)), status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxPageSize+1))
	if err != nil {
		return withStatus(retryable(fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)), status)
	}
	if int64(len(body)) > f.maxPageSize {
		return withStatus(permanent(utils.WrapErrorf(utils.ErrBodyTooLarge, "more than %d bytes", f.maxPageSize)), status)
	}

	key := BlobKey(category, u.URL, f.now())
	if err := f.blobs.Put(ctx, key, body); err != nil {
		return withStatus(retryable(fmt.Errorf("storing page: %w", err)), status)
	}

	return FetchResult{
		Outcome:     models.OutcomeSuccess,
		HTTPStatus:  status,
		StorageKey:  key,
		ContentType: contentType,
		Size:        len(body),
	}
}

func (f *Fetcher) allowedContentType(header string) bool {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	for _, allowed := range f.contentTypes {
		if strings.EqualFold(mediaType, allowed) {
			return true
		}
	}
	return false
}

// BlobKey builds the staging key for a fetched page
func BlobKey(category, url string, at time.Time) string {
	digest := utils.CalculateStringSHA256(url + "|" + strconv.FormatInt(at.UnixNano(), 10))
	return "crawl/" + utils.SanitizePathSegment(category) + "/" + digest + ".html"
}

func permanent(err error) FetchResult {
	return FetchResult{Outcome: models.OutcomePermanent, Err: err}
}

func retryable(err error) FetchResult {
	return FetchResult{Outcome: models.OutcomeRetryable, Err: err}
}

func withStatus(res FetchResult, status int) FetchResult {
	res.HTTPStatus = status
	return res
}
