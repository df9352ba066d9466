package storage

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
)

type linkStore struct{ *BadgerStore }

func (s linkStore) AddEdge(ctx context.Context, link models.Link) (bool, error) {
	if link.ID == "" {
		link.ID = models.LinkID(link.FromHash, link.ToHash)
	}
	var added bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		added = false
		err := s.store.TxInsert(txn, link.ID, link)
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil
		}
		if err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, wrapDB(err, "adding link %s -> %s", link.FromHash, link.ToHash)
	}
	return added, nil
}

func (s linkStore) CountInbound(ctx context.Context, toHash string) (int, error) {
	n, err := s.store.Count(&models.Link{}, badgerhold.Where("ToHash").Eq(toHash).Index("ToHash"))
	if err != nil {
		return 0, wrapDB(err, "counting inbound links for %s", toHash)
	}
	return int(n), nil
}
