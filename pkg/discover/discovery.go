package discover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// DiscoverRequest carries the outbound anchors of one successfully parsed page
type DiscoverRequest struct {
	Source  models.CrawlJob     // Job whose page the anchors came from
	Page    parse.NormalizedURL // Normalized form of the source URL
	Anchors []models.Anchor     // In page order
}

// DiscoverResult tallies what happened to each anchor
type DiscoverResult struct {
	Considered       int  `json:"considered"`
	Admitted         int  `json:"admitted"`
	Invalid          int  `json:"invalid"`
	SelfLinks        int  `json:"self_links"`
	TooDeep          int  `json:"too_deep"`
	CrossDomain      int  `json:"cross_domain"`
	PreviouslyFailed int  `json:"previously_failed"`
	LowScore         int  `json:"low_score"`
	Duplicates       int  `json:"duplicates"`
	BudgetExhausted  bool `json:"budget_exhausted"`
}

// Discoverer turns discovered links into new pending crawl jobs
type Discoverer struct {
	cfg        *config.AppConfig
	scorer     *Scorer
	normalizer *parse.Normalizer
	jobs       storage.JobRepository
	links      storage.LinkRepository
	kv         storage.KVStore
	failures   *storage.FailureCache
	allowed    map[string]struct{} // Lowercased allowed_external_domains
	vocabulary []string
	now        func() time.Time
	log        *logrus.Entry
}

// NewDiscoverer creates a Discoverer
func NewDiscoverer(
	cfg *config.AppConfig,
	scorer *Scorer,
	normalizer *parse.Normalizer,
	store *storage.BadgerStore,
	failures *storage.FailureCache,
	log *logrus.Entry,
) *Discoverer {
	d := &Discoverer{
		cfg:        cfg,
		scorer:     scorer,
		normalizer: normalizer,
		jobs:       store.Jobs(),
		links:      store.Links(),
		kv:         store.KV(),
		failures:   failures,
		allowed:    make(map[string]struct{}, len(cfg.Discovery.AllowedExternalDomains)),
		now:        time.Now,
		log:        log.WithField("component", "discoverer"),
	}
	for _, host := range cfg.Discovery.AllowedExternalDomains {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			d.allowed[host] = struct{}{}
		}
	}
	for _, kw := range cfg.Discovery.Vocabulary {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			d.vocabulary = append(d.vocabulary, kw)
		}
	}
	return d
}

// Discover admits relevant anchors as pending jobs one depth below the source.
// Per-link storage failures are logged and skipped; the first one is returned
// alongside the partial result.
func (d *Discoverer) Discover(ctx context.Context, req DiscoverRequest) (DiscoverResult, error) {
	var res DiscoverResult
	category := req.Source.Category
	catCfg, ok := d.cfg.Categories[category]
	if !ok {
		return res, utils.WrapErrorf(utils.ErrUnknownCategory, "%q", category)
	}

	now := d.now()
	depth := req.Source.Depth + 1
	maxDepth := config.GetEffectiveMaxDepth(catCfg, *d.cfg)
	budget := storage.DailyBudget(category, config.GetEffectiveMaxPerDay(catCfg, *d.cfg), now)
	log := d.log.WithFields(logrus.Fields{"source": req.Page.URL, "category": category, "next_depth": depth})

	used, err := storage.BudgetUsed(ctx, d.kv, budget)
	if err != nil {
		return res, fmt.Errorf("reading discovery budget: %w", err)
	}

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, anchor := range req.Anchors {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if used >= budget.Limit {
			res.BudgetExhausted = true
			break
		}
		res.Considered++

		target, err := d.normalizer.Normalize(anchor.URL)
		if err != nil {
			res.Invalid++
			continue
		}
		if target.Hash == req.Page.Hash {
			res.SelfLinks++
			continue
		}

		if _, err := d.links.AddEdge(ctx, models.Link{
			FromHash:     req.Page.Hash,
			ToHash:       target.Hash,
			AnchorText:   anchor.Text,
			Nofollow:     anchor.Nofollow,
			DiscoveredAt: now,
		}); err != nil {
			log.WithField("target", target.URL).Warnf("Failed to record link edge: %v", err)
			keep(err)
		}

		if maxDepth > 0 && depth > maxDepth {
			res.TooDeep++
			continue
		}
		if !d.crossDomainAllowed(req.Page, target) {
			res.CrossDomain++
			continue
		}

		failed, err := d.failures.Has(ctx, target.Hash)
		if err != nil {
			log.WithField("target", target.URL).Warnf("Failure cache lookup failed: %v", err)
			keep(err)
			continue
		}
		if failed {
			res.PreviouslyFailed++
			continue
		}

		if !d.scorer.ShouldFollow(req.Page.URL, category, target.URL, depth) {
			res.LowScore++
			continue
		}

		job := models.NewCrawlJob(target.URL, category, depth, req.Page.URL, now)
		job.URLHash = target.Hash
		rec := target.Record(anchor.URL, category, depth, now)

		created, err := d.jobs.CreateIfAbsent(ctx, job, &rec, budget)
		switch {
		case errors.Is(err, utils.ErrBudgetExhausted):
			// Another worker consumed the remainder
			res.BudgetExhausted = true
			used = budget.Limit
			continue
		case err != nil:
			log.WithField("target", target.URL).Errorf("Failed to create crawl job: %v", err)
			keep(err)
			continue
		case !created:
			res.Duplicates++
			continue
		}
		used++
		res.Admitted++
		log.WithField("target", target.URL).Debug("Admitted discovered link")
	}

	log.WithFields(logrus.Fields{
		"considered":       res.Considered,
		"admitted":         res.Admitted,
		"budget_exhausted": res.BudgetExhausted,
	}).Info("Link discovery finished")
	return res, firstErr
}

// crossDomainAllowed gates links leaving the source host: an explicit allow-list
// wins when configured, otherwise the URL must mention a vocabulary keyword.
func (d *Discoverer) crossDomainAllowed(source, target parse.NormalizedURL) bool {
	if strings.EqualFold(source.Hostname(), target.Hostname()) {
		return true
	}
	if len(d.allowed) > 0 {
		host := strings.ToLower(target.Hostname())
		if _, ok := d.allowed[host]; ok {
			return true
		}
		_, ok := d.allowed[RegistrableDomain(host)]
		return ok
	}
	lower := strings.ToLower(target.URL)
	for _, kw := range d.vocabulary {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
