package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

const jobDeleteChunk = 500 // Keeps a single delete transaction well under badger's size limit

type jobStore struct{ *BadgerStore }

func (s jobStore) Get(ctx context.Context, id string) (*models.CrawlJob, error) {
	var job models.CrawlJob
	if err := s.store.Get(id, &job); err != nil {
		return nil, wrapDB(err, "job %s", id)
	}
	return &job, nil
}

func (s jobStore) CreateIfAbsent(ctx context.Context, job models.CrawlJob, rec *models.URLRecord, budget *Budget) (bool, error) {
	if job.ID == "" {
		job.ID = models.JobID(job.Category, job.URL)
	}
	var created bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		created = false

		if budget != nil {
			used, err := kvStore{s.BadgerStore}.txGetInt(txn, budget.Key)
			if err != nil {
				return err
			}
			if used >= int64(budget.Limit) {
				return fmt.Errorf("%w: %s at %d/%d", utils.ErrBudgetExhausted, budget.Key, used, budget.Limit)
			}
		}

		var existing models.CrawlJob
		err := s.store.TxGet(txn, job.ID, &existing)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}

		if err := s.store.TxInsert(txn, job.ID, job); err != nil {
			return err
		}
		if rec != nil {
			if _, _, err := (urlStore{s.BadgerStore}).txEnsure(txn, *rec); err != nil {
				return err
			}
		}
		if budget != nil {
			if _, err := (kvStore{s.BadgerStore}).txIncrement(txn, budget.Key, 1, budget.TTL); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return false, wrapDB(err, "creating job %s", job.ID)
	}
	return created, nil
}

// Reopen stores job unless an active job holds the same ID, replacing a terminal one
func (s jobStore) Reopen(ctx context.Context, job models.CrawlJob) (bool, error) {
	var stored bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		stored = false
		var existing models.CrawlJob
		err := s.store.TxGet(txn, job.ID, &existing)
		switch {
		case err == nil && existing.Status.IsActive():
			return nil
		case err != nil && !errors.Is(err, badgerhold.ErrNotFound):
			return err
		}
		stored = true
		return s.store.TxUpsert(txn, job.ID, job)
	})
	if err != nil {
		return false, wrapDB(err, "reopening job %s", job.ID)
	}
	return stored, nil
}

func (s jobStore) ClaimPending(ctx context.Context, now time.Time, limit int) ([]models.CrawlJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	var claimed []models.CrawlJob
	err := s.update(ctx, func(txn *badger.Txn) error {
		claimed = nil
		var due []models.CrawlJob
		query := badgerhold.Where("Status").Eq(models.JobStatusPending).Index("Status").
			And("AvailableAt").Le(now).
			SortBy("Depth", "AvailableAt").
			Limit(limit)
		if err := s.store.TxFind(txn, &due, query); err != nil {
			return err
		}
		for _, job := range due {
			job.Status = models.JobStatusProcessing
			job.UpdatedAt = now
			if err := s.store.TxUpdate(txn, job.ID, job); err != nil {
				return err
			}
			claimed = append(claimed, job)
		}
		return nil
	})
	if err != nil {
		return nil, wrapDB(err, "claiming pending jobs")
	}
	return claimed, nil
}

func (s jobStore) Save(ctx context.Context, job models.CrawlJob) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return s.store.TxUpsert(txn, job.ID, job)
	})
	return wrapDB(err, "saving job %s", job.ID)
}

func (s jobStore) Release(ctx context.Context, id string, availableAt time.Time) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var job models.CrawlJob
		if err := s.store.TxGet(txn, id, &job); err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return nil
		}
		job.Status = models.JobStatusPending
		job.AvailableAt = availableAt
		job.WorkerID = ""
		job.UpdatedAt = time.Now()
		return s.store.TxUpdate(txn, id, job)
	})
	return wrapDB(err, "releasing job %s", id)
}

func (s jobStore) RequeueStale(ctx context.Context, olderThan time.Time) (int, error) {
	var requeued int
	err := s.update(ctx, func(txn *badger.Txn) error {
		requeued = 0
		var stale []models.CrawlJob
		query := badgerhold.Where("Status").Eq(models.JobStatusProcessing).Index("Status").
			And("UpdatedAt").Lt(olderThan)
		if err := s.store.TxFind(txn, &stale, query); err != nil {
			return err
		}
		now := time.Now()
		for _, job := range stale {
			job.Status = models.JobStatusPending
			job.AvailableAt = now
			job.WorkerID = ""
			job.UpdatedAt = now
			if err := s.store.TxUpdate(txn, job.ID, job); err != nil {
				return err
			}
			requeued++
		}
		return nil
	})
	if err != nil {
		return 0, wrapDB(err, "requeueing stale jobs")
	}
	return requeued, nil
}

func (s jobStore) DeleteByCategory(ctx context.Context, category string) (int, error) {
	total := 0
	for {
		var deleted int
		err := s.update(ctx, func(txn *badger.Txn) error {
			deleted = 0
			var batch []models.CrawlJob
			query := badgerhold.Where("Category").Eq(category).Index("Category").Limit(jobDeleteChunk)
			if err := s.store.TxFind(txn, &batch, query); err != nil {
				return err
			}
			for _, job := range batch {
				if err := s.store.TxDelete(txn, job.ID, &models.CrawlJob{}); err != nil {
					return err
				}
				deleted++
			}
			return nil
		})
		if err != nil {
			return total, wrapDB(err, "deleting jobs of category %s", category)
		}
		total += deleted
		if deleted < jobDeleteChunk {
			return total, nil
		}
	}
}

func (s jobStore) CountByCategoryStatus(ctx context.Context) (map[string]map[models.JobStatus]int, error) {
	var jobs []models.CrawlJob
	if err := s.store.Find(&jobs, nil); err != nil {
		return nil, wrapDB(err, "listing jobs")
	}
	counts := make(map[string]map[models.JobStatus]int)
	for _, job := range jobs {
		byStatus, ok := counts[job.Category]
		if !ok {
			byStatus = make(map[models.JobStatus]int, len(models.AllJobStatuses))
			counts[job.Category] = byStatus
		}
		byStatus[job.Status]++
	}
	return counts, nil
}

func (s jobStore) CountActive(ctx context.Context) (int, error) {
	n, err := s.store.Count(&models.CrawlJob{},
		badgerhold.Where("Status").In(models.JobStatusPending, models.JobStatusProcessing).Index("Status"))
	if err != nil {
		return 0, wrapDB(err, "counting active jobs")
	}
	return int(n), nil
}
