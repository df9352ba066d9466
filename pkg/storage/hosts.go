package storage

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
)

type hostStore struct{ *BadgerStore }

func (s hostStore) Get(ctx context.Context, host string) (*models.HostRecord, error) {
	var rec models.HostRecord
	if err := s.store.Get(host, &rec); err != nil {
		return nil, wrapDB(err, "host %s", host)
	}
	return &rec, nil
}

func (s hostStore) Put(ctx context.Context, rec models.HostRecord) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return s.store.TxUpsert(txn, rec.Host, rec)
	})
	return wrapDB(err, "saving host %s", rec.Host)
}
