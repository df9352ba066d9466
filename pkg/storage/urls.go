package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
)

type urlStore struct{ *BadgerStore }

func (s urlStore) FindByHash(ctx context.Context, hash string) (*models.URLRecord, error) {
	var rec models.URLRecord
	if err := s.store.Get(hash, &rec); err != nil {
		return nil, wrapDB(err, "url %s", hash)
	}
	return &rec, nil
}

func (s urlStore) Ensure(ctx context.Context, rec models.URLRecord) (models.URLRecord, bool, error) {
	var stored models.URLRecord
	var created bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		stored, created, err = s.txEnsure(txn, rec)
		return err
	})
	if err != nil {
		return models.URLRecord{}, false, wrapDB(err, "ensuring url %s", rec.Hash)
	}
	return stored, created, nil
}

// txEnsure inserts rec unless its hash exists, returning the stored version
func (s urlStore) txEnsure(txn *badger.Txn, rec models.URLRecord) (models.URLRecord, bool, error) {
	var existing models.URLRecord
	err := s.store.TxGet(txn, rec.Hash, &existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, badgerhold.ErrNotFound) {
		return models.URLRecord{}, false, err
	}
	if rec.Status == "" {
		rec.Status = models.URLStatusPending
	}
	if err := s.store.TxInsert(txn, rec.Hash, rec); err != nil {
		return models.URLRecord{}, false, err
	}
	return rec, true, nil
}

// modify applies fn to the stored record inside a retried transaction
func (s urlStore) modify(ctx context.Context, hash string, fn func(rec *models.URLRecord)) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var rec models.URLRecord
		if err := s.store.TxGet(txn, hash, &rec); err != nil {
			return err
		}
		fn(&rec)
		return s.store.TxUpdate(txn, hash, rec)
	})
}

func (s urlStore) RecordFetch(ctx context.Context, hash string, upd FetchUpdate) error {
	err := s.modify(ctx, hash, func(rec *models.URLRecord) {
		rec.Status = upd.Status
		rec.HTTPStatus = upd.HTTPStatus
		if !upd.CrawledAt.IsZero() {
			rec.LastCrawledAt = upd.CrawledAt
		}
		rec.RetryCount = upd.RetryCount
		rec.FailedReason = upd.FailedReason
		rec.UpdatedAt = time.Now()
	})
	return wrapDB(err, "recording fetch for url %s", hash)
}

func (s urlStore) RecordParse(ctx context.Context, hash, title, contentHash string) error {
	err := s.modify(ctx, hash, func(rec *models.URLRecord) {
		rec.Title = title
		rec.ContentHash = contentHash
		rec.UpdatedAt = time.Now()
	})
	return wrapDB(err, "recording parse for url %s", hash)
}

func (s urlStore) UpdateSchedule(ctx context.Context, hash string, priority int, nextCrawlAt time.Time) error {
	err := s.modify(ctx, hash, func(rec *models.URLRecord) {
		rec.Priority = priority
		rec.NextCrawlAt = nextCrawlAt
		rec.UpdatedAt = time.Now()
	})
	return wrapDB(err, "updating schedule for url %s", hash)
}

func (s urlStore) FindDue(ctx context.Context, now time.Time, limit int) ([]models.URLRecord, error) {
	var due []models.URLRecord
	query := badgerhold.Where("NextCrawlAt").Le(now).And("Status").Ne(models.URLStatusSkipped)
	if err := s.store.Find(&due, query); err != nil {
		return nil, wrapDB(err, "finding due urls")
	}

	// Multi-direction ordering is done here; badgerhold's Reverse applies to every sort field
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].NextCrawlAt.Before(due[j].NextCrawlAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Scan pages through records by key. Hashes are fixed-length hex, so
// badger's iteration order matches string order on the key.
func (s urlStore) Scan(ctx context.Context, chunkSize int, fn func([]models.URLRecord) error) error {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	last := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var chunk []models.URLRecord
		query := badgerhold.Where(badgerhold.Key).Gt(last).Limit(chunkSize)
		if err := s.store.Find(&chunk, query); err != nil {
			return wrapDB(err, "scanning urls after %q", last)
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if len(chunk) < chunkSize {
			return nil
		}
		last = chunk[len(chunk)-1].Hash
	}
}

func (s urlStore) CountByStatus(ctx context.Context) (map[models.URLStatus]int, error) {
	counts := make(map[models.URLStatus]int, len(models.AllURLStatuses))
	for _, status := range models.AllURLStatuses {
		n, err := s.store.Count(&models.URLRecord{}, badgerhold.Where("Status").Eq(status).Index("Status"))
		if err != nil {
			return nil, wrapDB(err, "counting urls with status %s", status)
		}
		counts[status] = int(n)
	}
	return counts, nil
}
