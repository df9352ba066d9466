package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/crawler"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// CycleOptions selects the categories of a cycle and whether it starts fresh
type CycleOptions struct {
	Categories []string // Empty means every configured category
	Fresh      bool     // Wipe the categories' jobs and discovery counters first
}

// CycleReport contains the result of seeding a single category
type CycleReport struct {
	Category         string `json:"category"`
	Fresh            bool   `json:"fresh"`
	JobsDeleted      int    `json:"jobs_deleted"`
	CountersReset    int    `json:"counters_reset"`
	Seeds            int    `json:"seeds"`
	Admitted         int    `json:"admitted"`
	AlreadyTracked   int    `json:"already_tracked"`
	Invalid          int    `json:"invalid"`
	PreviouslyFailed int    `json:"previously_failed"`
}

// CycleResult is the outcome of a triggered and drained cycle
type CycleResult struct {
	Reports []CycleReport    `json:"reports"`
	Stats   crawler.RunStats `json:"stats"`
}

// Orchestrator triggers crawl cycles and runs them to completion
type Orchestrator struct {
	cfg        *config.AppConfig
	jobs       storage.JobRepository
	kv         storage.KVStore
	crawler    *crawler.Crawler
	normalizer *parse.Normalizer
	failures   *storage.FailureCache
	now        func() time.Time
	log        *logrus.Entry
}

// NewOrchestrator creates an Orchestrator seeding into store and draining with c
func NewOrchestrator(cfg *config.AppConfig, store *storage.BadgerStore, c *crawler.Crawler, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		jobs:       store.Jobs(),
		kv:         store.KV(),
		crawler:    c,
		normalizer: c.Normalizer(),
		failures:   c.FailureCache(),
		now:        time.Now,
		log:        log.WithField("component", "orchestrator"),
	}
}

// TriggerCycle admits the seed URLs of the selected categories as pending jobs.
// In resume mode a seed already tracked for its category is left alone; in fresh
// mode the categories are wiped first, so every seed is admitted again.
func (o *Orchestrator) TriggerCycle(ctx context.Context, opts CycleOptions) ([]CycleReport, error) {
	categories := opts.Categories
	if len(categories) == 0 {
		categories = AllCategories(o.cfg)
	}
	if err := ValidateCategories(o.cfg, categories); err != nil {
		return nil, err
	}

	reports := make([]CycleReport, 0, len(categories))
	for _, category := range categories {
		report, err := o.seedCategory(ctx, category, opts.Fresh)
		if err != nil {
			return reports, fmt.Errorf("seeding category '%s': %w", category, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (o *Orchestrator) seedCategory(ctx context.Context, category string, fresh bool) (CycleReport, error) {
	catCfg := o.cfg.Categories[category]
	catLog := o.log.WithFields(logrus.Fields{"category": category, "fresh": fresh})
	report := CycleReport{Category: category, Fresh: fresh, Seeds: len(catCfg.SeedURLs)}

	if fresh {
		deleted, err := o.jobs.DeleteByCategory(ctx, category)
		if err != nil {
			return report, err
		}
		reset, err := o.kv.DeletePrefix(ctx, storage.BudgetPrefix(category))
		if err != nil {
			return report, err
		}
		report.JobsDeleted, report.CountersReset = deleted, reset
		catLog.Infof("Fresh start: removed %d job(s) and %d discovery counter(s)", deleted, reset)
	}

	now := o.now()
	for _, seed := range catCfg.SeedURLs {
		seedLog := catLog.WithField("seed", seed)
		u, err := o.normalizer.Normalize(seed)
		if err != nil {
			report.Invalid++
			seedLog.Warnf("Invalid seed URL. Skipping: %v", err)
			continue
		}

		if fresh {
			if err := o.failures.Clear(ctx, u.Hash); err != nil {
				seedLog.Warnf("Failed to clear failure marker: %v", err)
			}
		} else {
			failed, err := o.failures.Has(ctx, u.Hash)
			if err != nil {
				return report, err
			}
			if failed {
				report.PreviouslyFailed++
				seedLog.Info("Seed failed recently. Skipping until the failure marker expires.")
				continue
			}
		}

		job := models.NewCrawlJob(u.URL, category, 0, "", now)
		job.URLHash = u.Hash
		rec := u.Record(seed, category, 0, now)
		created, err := o.jobs.CreateIfAbsent(ctx, job, &rec, nil)
		if err != nil {
			return report, err
		}
		if created {
			report.Admitted++
			seedLog.Debug("Seed admitted")
		} else {
			report.AlreadyTracked++
		}
	}

	catLog.WithFields(logrus.Fields{
		"seeds":             report.Seeds,
		"admitted":          report.Admitted,
		"already_tracked":   report.AlreadyTracked,
		"invalid":           report.Invalid,
		"previously_failed": report.PreviouslyFailed,
	}).Info("Cycle triggered")
	return report, nil
}

// RunCycle triggers a cycle and runs workers until no active job remains
func (o *Orchestrator) RunCycle(ctx context.Context, opts CycleOptions) (CycleResult, error) {
	startTime := o.now()
	reports, err := o.TriggerCycle(ctx, opts)
	result := CycleResult{Reports: reports}
	if err != nil {
		return result, err
	}

	stats, err := o.crawler.Run(ctx, crawler.RunOptions{UntilDrained: true})
	result.Stats = stats
	o.logSummary(result, o.now().Sub(startTime))
	return result, err
}

// logSummary logs a summary of a finished cycle
func (o *Orchestrator) logSummary(result CycleResult, totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Crawl cycle completed in %v", totalDuration)
	o.log.Info("Category Results:")

	admitted := 0
	for _, r := range result.Reports {
		admitted += r.Admitted
		o.log.Infof("  %s: %d of %d seed(s) admitted (%d already tracked, %d invalid, %d recently failed)",
			r.Category, r.Admitted, r.Seeds, r.AlreadyTracked, r.Invalid, r.PreviouslyFailed)
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d categories, %d seeds admitted, %d jobs processed (%d completed, %d failed)",
		len(result.Reports), admitted, result.Stats.Processed, result.Stats.Completed, result.Stats.Failed)
	o.log.Info("============================================")
}

// ValidateCategories checks that all provided category keys exist in the config
func ValidateCategories(appCfg *config.AppConfig, categories []string) error {
	for _, key := range categories {
		if _, exists := appCfg.Categories[key]; !exists {
			return utils.WrapErrorf(utils.ErrUnknownCategory, "'%s' not found. Available categories: %v", key, AllCategories(appCfg))
		}
	}
	return nil
}

// AllCategories returns all category keys from the config in sorted order
func AllCategories(appCfg *config.AppConfig) []string {
	return appCfg.CategoryKeys()
}
