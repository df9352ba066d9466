package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/discover"
	"github.com/Sriram-PR/topic-crawler/pkg/index"
	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/parse"
	"github.com/Sriram-PR/topic-crawler/pkg/storage"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

// Pipeline parses a fetched page, indexes it and admits its outbound links.
// The staged blob is removed once the page has been handled.
type Pipeline struct {
	blobs      storage.BlobStore
	urls       storage.URLRepository
	parser     *parse.HTMLParser
	indexer    index.Indexer // nil disables indexing
	discoverer *discover.Discoverer
	scorer     *discover.Scorer
	log        *logrus.Entry
}

// NewPipeline creates a Pipeline
func NewPipeline(
	blobs storage.BlobStore,
	store *storage.BadgerStore,
	parser *parse.HTMLParser,
	indexer index.Indexer,
	discoverer *discover.Discoverer,
	scorer *discover.Scorer,
	log *logrus.Entry,
) *Pipeline {
	return &Pipeline{
		blobs:      blobs,
		urls:       store.URLs(),
		parser:     parser,
		indexer:    indexer,
		discoverer: discoverer,
		scorer:     scorer,
		log:        log.WithField("component", "pipeline"),
	}
}

// Handle processes the page stored under storageKey for a completed job
func (pl *Pipeline) Handle(ctx context.Context, job models.CrawlJob, u parse.NormalizedURL, storageKey string) error {
	taskLog := pl.log.WithFields(logrus.Fields{"url": u.URL, "category": job.Category, "storage_key": storageKey})

	raw, err := pl.blobs.Get(ctx, storageKey)
	if err != nil {
		return fmt.Errorf("loading staged page: %w", err)
	}
	defer func() {
		if err := pl.blobs.Delete(context.WithoutCancel(ctx), storageKey); err != nil {
			taskLog.Warnf("Failed to delete staged page: %v", err)
		}
	}()

	page, err := pl.parser.Parse(raw, u.URL)
	if err != nil {
		if errors.Is(err, utils.ErrNoTitle) {
			taskLog.Warn("Parse failed: no title found, page not indexed")
			return nil
		}
		return fmt.Errorf("parsing page: %w", err)
	}
	if err := pl.urls.RecordParse(ctx, u.Hash, page.Title, page.ContentHash); err != nil {
		taskLog.Warnf("Failed to store parse result: %v", err)
	}

	if pl.indexer != nil {
		rec, err := pl.urls.FindByHash(ctx, u.Hash)
		if err != nil {
			taskLog.Warnf("URL record unavailable, page not indexed: %v", err)
		} else if err := pl.indexer.Index(ctx, *rec, page, raw); err != nil {
			taskLog.WithField("error_category", utils.CategorizeError(err)).Errorf("Indexing failed: %v", err)
		}
	}

	if inferred, ok := pl.scorer.InferCategory(page.Title + " " + page.Description); ok && inferred != job.Category {
		taskLog.WithField("inferred_category", inferred).Info("Page content suggests a different category")
	}

	anchors, err := pl.parser.ExtractAnchors(raw, u.URL)
	if err != nil {
		return fmt.Errorf("extracting links: %w", err)
	}
	res, err := pl.discoverer.Discover(ctx, discover.DiscoverRequest{Source: job, Page: u, Anchors: anchors})
	if err != nil {
		taskLog.Warnf("Non-fatal error during link discovery: %v", err)
	}
	taskLog.WithFields(logrus.Fields{
		"links":            len(anchors),
		"admitted":         res.Admitted,
		"duplicates":       res.Duplicates,
		"low_score":        res.LowScore,
		"budget_exhausted": res.BudgetExhausted,
	}).Info("Page handled")
	return nil
}
