package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
	"github.com/Sriram-PR/topic-crawler/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := Open(context.Background(), t.TempDir(), Options{}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testURLRecord(n int) models.URLRecord {
	url := fmt.Sprintf("https://example.com/page%d", n)
	return models.URLRecord{
		Hash:          utils.CalculateStringSHA256(url),
		NormalizedURL: url,
		OriginalURL:   url,
		Host:          "example.com",
		Path:          fmt.Sprintf("/page%d", n),
		Category:      "technology",
		CreatedAt:     time.Now(),
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("reopen preserves data", func(t *testing.T) {
		dir := t.TempDir()
		store1, err := Open(ctx, dir, Options{}, testLogger())
		require.NoError(t, err)
		_, created, err := store1.URLs().Ensure(ctx, testURLRecord(1))
		require.NoError(t, err)
		require.True(t, created)
		require.NoError(t, store1.Close())

		store2, err := Open(ctx, dir, Options{}, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		_, err = store2.URLs().FindByHash(ctx, testURLRecord(1).Hash)
		assert.NoError(t, err)
	})

	t.Run("reset wipes data", func(t *testing.T) {
		dir := t.TempDir()
		store1, err := Open(ctx, dir, Options{}, testLogger())
		require.NoError(t, err)
		_, _, err = store1.URLs().Ensure(ctx, testURLRecord(1))
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := Open(ctx, dir, Options{Reset: true}, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		_, err = store2.URLs().FindByHash(ctx, testURLRecord(1).Hash)
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("applies retry defaults", func(t *testing.T) {
		store := newTestStore(t)
		assert.Equal(t, 5, store.maxTxnAttempts)
		assert.Equal(t, 100*time.Millisecond, store.retryBaseDelay)
	})
}

func TestCloseTwice(t *testing.T) {
	store, err := Open(context.Background(), t.TempDir(), Options{}, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestUpdateRetriesConflicts(t *testing.T) {
	store, err := Open(context.Background(), t.TempDir(), Options{
		MaxTxnAttempts:    100,
		TxnRetryBaseDelay: time.Millisecond,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	kv := store.KV()

	const writers = 10
	const perWriter = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := kv.Increment(ctx, "contended", 1, 0); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("increment failed: %v", err)
	}

	val, found, err := kv.Get(ctx, "contended")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fmt.Sprint(writers*perWriter), string(val))
}

func TestUpdateExhaustedReturnsContention(t *testing.T) {
	store, err := Open(context.Background(), t.TempDir(), Options{
		MaxTxnAttempts:    2,
		TxnRetryBaseDelay: time.Millisecond,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	calls := 0
	err = store.update(context.Background(), func(txn *badger.Txn) error {
		calls++
		return badger.ErrConflict
	})
	assert.ErrorIs(t, err, utils.ErrStorageContention)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Database_Contention", utils.CategorizeError(err))
}

func TestUpdateHonoursContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.update(ctx, func(txn *badger.Txn) error {
		return badger.ErrConflict
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWrapDB(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"nil stays nil", nil, nil},
		{"badgerhold not found", badgerhold.ErrNotFound, utils.ErrNotFound},
		{"already locked passes", utils.WrapErrorf(utils.ErrAlreadyLocked, "x"), utils.ErrAlreadyLocked},
		{"budget passes", utils.WrapErrorf(utils.ErrBudgetExhausted, "x"), utils.ErrBudgetExhausted},
		{"other becomes database", errors.New("disk on fire"), utils.ErrDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapDB(tt.err, "op %d", 1)
			if tt.target == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.target)
		})
	}
	assert.NotErrorIs(t, wrapDB(utils.WrapErrorf(utils.ErrAlreadyLocked, "x"), "op"), utils.ErrDatabase)
}
