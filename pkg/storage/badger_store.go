package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Sriram-PR/topic-crawler/pkg/log"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

const (
	stateDBDir    = "crawl_db" // Subdirectory name within stateDir for Badger DB files
	maxRetryDelay = 2 * time.Second
)

// Options controls how the store is opened
type Options struct {
	Reset             bool          // Remove all existing state before opening
	MaxTxnAttempts    int           // Attempts per transaction before ErrStorageContention
	TxnRetryBaseDelay time.Duration // First conflict backoff; doubles each attempt
}

// BadgerStore holds the crawl tables (badgerhold) and the raw KV cache (badger) in one database.
// Repositories are views over the same store and share its transaction retry policy.
type BadgerStore struct {
	store          *badgerhold.Store
	log            *logrus.Entry
	maxTxnAttempts int
	retryBaseDelay time.Duration
}

// Open initializes the store under stateDir
func Open(ctx context.Context, stateDir string, opts Options, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, stateDBDir)

	if opts.Reset {
		logger.Warnf("Reset requested. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	logger.Infof("Opening crawl state database at: %s", dbPath)

	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	s := &BadgerStore{
		store:          store,
		log:            logger,
		maxTxnAttempts: opts.MaxTxnAttempts,
		retryBaseDelay: opts.TxnRetryBaseDelay,
	}
	if s.maxTxnAttempts <= 0 {
		s.maxTxnAttempts = 5
	}
	if s.retryBaseDelay <= 0 {
		s.retryBaseDelay = 100 * time.Millisecond
	}

	logger.Info("Crawl state database initialized successfully.")
	return s, nil
}

// URLs returns the URL repository view of the store
func (s *BadgerStore) URLs() URLRepository { return urlStore{s} }

// Jobs returns the job repository view of the store
func (s *BadgerStore) Jobs() JobRepository { return jobStore{s} }

// Hosts returns the host repository view of the store
func (s *BadgerStore) Hosts() HostRepository { return hostStore{s} }

// Queue returns the queue repository view of the store
func (s *BadgerStore) Queue() QueueRepository { return queueStore{s} }

// Links returns the link repository view of the store
func (s *BadgerStore) Links() LinkRepository { return linkStore{s} }

// KV returns the key-value cache view of the store
func (s *BadgerStore) KV() KVStore { return kvStore{s} }

// update runs fn in a read-write transaction, retrying on badger.ErrConflict with
// exponential backoff. Exhausted retries surface as ErrStorageContention; any other
// error is returned unchanged. fn must reset any captured state at its start.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	delay := s.retryBaseDelay
	for attempt := 1; ; attempt++ {
		err := s.store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt >= s.maxTxnAttempts {
			return fmt.Errorf("%w: transaction conflict not resolved after %d attempts", utils.ErrStorageContention, attempt)
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying in ~%v", attempt, s.maxTxnAttempts, delay)

		jittered := delay + time.Duration(rand.Int64N(int64(delay)/2+1))
		timer := time.NewTimer(jittered)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// view runs fn in a read-only transaction
func (s *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	return s.store.Badger().View(fn)
}

// RunGC runs BadgerDB's value log garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			db := s.store.Badger()
			if db == nil || db.IsClosed() {
				s.log.Info("DB GC: Database is closed, skipping GC cycle.")
				continue
			}

			s.log.Debug("Running BadgerDB value log garbage collection...")
			var err error
			rewrites := 0
			for {
				// Rewrite while at least half of a log file is reclaimable
				if err = db.RunValueLogGC(0.5); err != nil {
					break
				}
				rewrites++
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debugf("BadgerDB GC finished (%d rewrites).", rewrites)
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close cleanly closes the database
func (s *BadgerStore) Close() error {
	db := s.store.Badger()
	if db != nil && !db.IsClosed() {
		s.log.Info("Closing crawl state DB...")
		if err := s.store.Close(); err != nil {
			s.log.Errorf("Error closing crawl state DB: %v", err)
			return err
		}
		s.log.Info("Crawl state DB closed.")
		return nil
	}
	s.log.Info("Crawl state DB already closed.")
	return nil
}

// passThrough reports errors that repositories return without wrapping
func passThrough(err error) bool {
	return errors.Is(err, utils.ErrNotFound) ||
		errors.Is(err, utils.ErrAlreadyLocked) ||
		errors.Is(err, utils.ErrBudgetExhausted) ||
		errors.Is(err, utils.ErrStorageContention) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// wrapDB tags storage failures with utils.ErrDatabase, leaving domain sentinels untouched
func wrapDB(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("%w: %s", utils.ErrNotFound, fmt.Sprintf(format, args...))
	}
	if passThrough(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", utils.ErrDatabase, fmt.Sprintf(format, args...), err)
}
