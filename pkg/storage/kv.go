package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const kvKeyPrefix = "kv:" // Raw keys live beside badgerhold's "bh_" namespaces

type kvStore struct{ *BadgerStore }

func kvKey(key string) []byte {
	return []byte(kvKeyPrefix + key)
}

func newKVEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry(kvKey(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

func (s kvStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	found := false
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, wrapDB(err, "kv get %s", key)
	}
	return value, found, nil
}

func (s kvStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(newKVEntry(key, value, ttl))
	})
	return wrapDB(err, "kv put %s", key)
}

func (s kvStore) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.Get(ctx, key)
	return found, err
}

func (s kvStore) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	var n int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		n, err = s.txIncrement(txn, key, delta, ttl)
		return err
	})
	if err != nil {
		return 0, wrapDB(err, "kv increment %s", key)
	}
	return n, nil
}

// txGetInt reads a decimal counter, treating a missing key as zero
func (s kvStore) txGetInt(txn *badger.Txn, key string) (int64, error) {
	item, err := txn.Get(kvKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	err = item.Value(func(val []byte) error {
		var perr error
		n, perr = strconv.ParseInt(string(val), 10, 64)
		if perr != nil {
			return fmt.Errorf("counter %s holds non-integer value %q", key, val)
		}
		return nil
	})
	return n, err
}

// txIncrement is the read-modify-write half of Increment, usable inside larger transactions
func (s kvStore) txIncrement(txn *badger.Txn, key string, delta int64, ttl time.Duration) (int64, error) {
	n, err := s.txGetInt(txn, key)
	if err != nil {
		return 0, err
	}
	n += delta
	if err := txn.SetEntry(newKVEntry(key, []byte(strconv.FormatInt(n, 10)), ttl)); err != nil {
		return 0, err
	}
	return n, nil
}

func (s kvStore) Reserve(ctx context.Context, key string, floor, step int64, ttl time.Duration) (int64, error) {
	var slot int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		slot = floor
		item, err := txn.Get(kvKey(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				// A non-integer value is overwritten
				if last, perr := strconv.ParseInt(string(val), 10, 64); perr == nil && last+step > slot {
					slot = last + step
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return txn.SetEntry(newKVEntry(key, []byte(strconv.FormatInt(slot, 10)), ttl))
	})
	if err != nil {
		return 0, wrapDB(err, "kv reserve %s", key)
	}
	return slot, nil
}

func (s kvStore) Delete(ctx context.Context, key string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(kvKey(key))
	})
	return wrapDB(err, "kv delete %s", key)
}

func (s kvStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var keys [][]byte
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := kvKey(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, wrapDB(err, "kv scan prefix %s", prefix)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.store.Badger().NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, wrapDB(err, "kv delete prefix %s", prefix)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, wrapDB(err, "kv flush delete prefix %s", prefix)
	}
	return len(keys), nil
}
