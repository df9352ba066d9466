package monitor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
)

// CategoryStats holds job counts and today's discovery usage for one category
type CategoryStats struct {
	Jobs        map[models.JobStatus]int `json:"jobs"`
	Discovered  int                      `json:"discovered_today"`
	DailyBudget int                      `json:"daily_budget,omitempty"`
}

// Report is a point-in-time snapshot of the crawl state
type Report struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	URLs        map[models.URLStatus]int  `json:"urls"`
	URLTotal    int                       `json:"url_total"`
	QueueSize   int                       `json:"queue_size"`
	QueueLocked int                       `json:"queue_locked"`
	ActiveJobs  int                       `json:"active_jobs"`
	Categories  map[string]*CategoryStats `json:"categories"`
}

// Collect gathers a Report from store. When cfg is non-nil every configured
// category is listed with its discovery budget, even without jobs.
func Collect(ctx context.Context, store *storage.BadgerStore, cfg *config.AppConfig) (Report, error) {
	return collect(ctx, store, cfg, time.Now())
}

func collect(ctx context.Context, store *storage.BadgerStore, cfg *config.AppConfig, now time.Time) (Report, error) {
	r := Report{GeneratedAt: now, Categories: make(map[string]*CategoryStats)}

	urls, err := store.URLs().CountByStatus(ctx)
	if err != nil {
		return r, fmt.Errorf("counting urls: %w", err)
	}
	r.URLs = urls
	for _, n := range urls {
		r.URLTotal += n
	}

	if r.QueueSize, err = store.Queue().Count(ctx); err != nil {
		return r, fmt.Errorf("counting queue: %w", err)
	}
	if r.QueueLocked, err = store.Queue().CountLocked(ctx); err != nil {
		return r, fmt.Errorf("counting locked queue entries: %w", err)
	}

	jobs, err := store.Jobs().CountByCategoryStatus(ctx)
	if err != nil {
		return r, fmt.Errorf("counting jobs: %w", err)
	}
	for category, counts := range jobs {
		r.Categories[category] = &CategoryStats{Jobs: counts}
		r.ActiveJobs += counts[models.JobStatusPending] + counts[models.JobStatusProcessing]
	}

	if cfg == nil {
		return r, nil
	}
	for _, category := range cfg.CategoryKeys() {
		stats, ok := r.Categories[category]
		if !ok {
			stats = &CategoryStats{Jobs: map[models.JobStatus]int{}}
			r.Categories[category] = stats
		}
		limit := config.GetEffectiveMaxPerDay(cfg.Categories[category], *cfg)
		used, err := storage.BudgetUsed(ctx, store.KV(), storage.DailyBudget(category, limit, now))
		if err != nil {
			return r, fmt.Errorf("reading discovery budget for %s: %w", category, err)
		}
		stats.Discovered = used
		stats.DailyBudget = limit
	}
	return r, nil
}

// WriteText renders the report as aligned tables
func (r Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Crawl status at %s\n\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintln(tw, "URLS\tCOUNT")
	for _, status := range models.AllURLStatuses {
		fmt.Fprintf(tw, "%s\t%d\n", status, r.URLs[status])
	}
	fmt.Fprintf(tw, "total\t%d\n\n", r.URLTotal)

	fmt.Fprintf(tw, "Queue: %d entries (%d locked)\n", r.QueueSize, r.QueueLocked)
	fmt.Fprintf(tw, "Active jobs: %d\n\n", r.ActiveJobs)

	categories := make([]string, 0, len(r.Categories))
	for c := range r.Categories {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	fmt.Fprint(tw, "CATEGORY")
	for _, status := range models.AllJobStatuses {
		fmt.Fprintf(tw, "\t%s", status)
	}
	fmt.Fprintln(tw, "\tDISCOVERED TODAY")
	for _, c := range categories {
		stats := r.Categories[c]
		fmt.Fprint(tw, c)
		for _, status := range models.AllJobStatuses {
			fmt.Fprintf(tw, "\t%d", stats.Jobs[status])
		}
		if stats.DailyBudget > 0 {
			fmt.Fprintf(tw, "\t%d/%d\n", stats.Discovered, stats.DailyBudget)
		} else {
			fmt.Fprintf(tw, "\t%d\n", stats.Discovered)
		}
	}
	return tw.Flush()
}
