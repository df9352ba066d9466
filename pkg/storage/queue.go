package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

type queueStore struct{ *BadgerStore }

func (s queueStore) Get(ctx context.Context, urlHash string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := s.store.Get(urlHash, &entry); err != nil {
		return nil, wrapDB(err, "queue entry %s", urlHash)
	}
	return &entry, nil
}

func (s queueStore) InsertIfAbsent(ctx context.Context, entry models.QueueEntry) (bool, error) {
	var inserted bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		inserted = false
		err := s.store.TxInsert(txn, entry.URLHash, entry)
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil
		}
		if err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, wrapDB(err, "inserting queue entry %s", entry.URLHash)
	}
	return inserted, nil
}

// txLock locks an existing entry; a lock already held by workerID is refreshed
func (s queueStore) txLock(txn *badger.Txn, urlHash, workerID string, now time.Time) error {
	var entry models.QueueEntry
	if err := s.store.TxGet(txn, urlHash, &entry); err != nil {
		return err
	}
	if entry.Locked && entry.WorkerID != workerID {
		return fmt.Errorf("%w: %s held by %s since %s", utils.ErrAlreadyLocked, urlHash, entry.WorkerID, entry.LockedAt.Format(time.RFC3339))
	}
	entry.Locked = true
	entry.LockedAt = now
	entry.WorkerID = workerID
	return s.store.TxUpdate(txn, urlHash, entry)
}

func (s queueStore) Lock(ctx context.Context, urlHash, workerID string, now time.Time) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return s.txLock(txn, urlHash, workerID, now)
	})
	return wrapDB(err, "locking queue entry %s", urlHash)
}

func (s queueStore) Acquire(ctx context.Context, entry models.QueueEntry, workerID string, now time.Time) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		err := s.txLock(txn, entry.URLHash, workerID, now)
		if !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		entry.Locked = true
		entry.LockedAt = now
		entry.WorkerID = workerID
		if entry.ScheduledAt.IsZero() {
			entry.ScheduledAt = now
		}
		return s.store.TxInsert(txn, entry.URLHash, entry)
	})
	return wrapDB(err, "acquiring queue entry %s", entry.URLHash)
}

func (s queueStore) Unlock(ctx context.Context, urlHash string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var entry models.QueueEntry
		if err := s.store.TxGet(txn, urlHash, &entry); err != nil {
			return err
		}
		entry.Locked = false
		entry.LockedAt = time.Time{}
		entry.WorkerID = ""
		return s.store.TxUpdate(txn, urlHash, entry)
	})
	return wrapDB(err, "unlocking queue entry %s", urlHash)
}

func (s queueStore) Delete(ctx context.Context, urlHash string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		err := s.store.TxDelete(txn, urlHash, &models.QueueEntry{})
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	})
	return wrapDB(err, "deleting queue entry %s", urlHash)
}

func (s queueStore) ClaimUnlocked(ctx context.Context, workerID string, now time.Time, limit int) ([]models.QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	var claimed []models.QueueEntry
	err := s.update(ctx, func(txn *badger.Txn) error {
		claimed = nil
		var free []models.QueueEntry
		query := badgerhold.Where("Locked").Eq(false).Index("Locked")
		if err := s.store.TxFind(txn, &free, query); err != nil {
			return err
		}
		sort.SliceStable(free, func(i, j int) bool {
			if free[i].Priority != free[j].Priority {
				return free[i].Priority > free[j].Priority
			}
			return free[i].ScheduledAt.Before(free[j].ScheduledAt)
		})
		if len(free) > limit {
			free = free[:limit]
		}
		for _, entry := range free {
			entry.Locked = true
			entry.LockedAt = now
			entry.WorkerID = workerID
			if err := s.store.TxUpdate(txn, entry.URLHash, entry); err != nil {
				return err
			}
			claimed = append(claimed, entry)
		}
		return nil
	})
	if err != nil {
		return nil, wrapDB(err, "claiming queue entries")
	}
	return claimed, nil
}

func (s queueStore) DeleteStale(ctx context.Context, olderThan time.Time) (int, error) {
	var deleted int
	err := s.update(ctx, func(txn *badger.Txn) error {
		deleted = 0
		var stale []models.QueueEntry
		query := badgerhold.Where("Locked").Eq(true).Index("Locked").And("LockedAt").Lt(olderThan)
		if err := s.store.TxFind(txn, &stale, query); err != nil {
			return err
		}
		for _, entry := range stale {
			if err := s.store.TxDelete(txn, entry.URLHash, &models.QueueEntry{}); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, wrapDB(err, "deleting stale queue entries")
	}
	return deleted, nil
}

func (s queueStore) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(&models.QueueEntry{}, nil)
	if err != nil {
		return 0, wrapDB(err, "counting queue entries")
	}
	return int(n), nil
}

func (s queueStore) CountLocked(ctx context.Context) (int, error) {
	n, err := s.store.Count(&models.QueueEntry{}, badgerhold.Where("Locked").Eq(true).Index("Locked"))
	if err != nil {
		return 0, wrapDB(err, "counting locked queue entries")
	}
	return int(n), nil
}
