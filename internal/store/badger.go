package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const cacheKeyPrefix = "conv:"

// BadgerCache is the shared low-latency tier: an embedded BadgerDB holding
// JSON copies of conversation state. It is best-effort; every caller treats
// its failures as a cache miss.
type BadgerCache struct {
	db *badger.DB
}

// OpenBadger opens the shared cache at path, or fully in memory when
// inMemory is set (tests, single-process deployments).
func OpenBadger(path string, inMemory bool) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

// Get returns the cached record, or (nil, nil) on miss.
func (c *BadgerCache) Get(conversationID string) ([]byte, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKeyPrefix + conversationID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *BadgerCache) Set(conversationID string, raw []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cacheKeyPrefix+conversationID), raw)
	})
}

func (c *BadgerCache) Delete(conversationID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(cacheKeyPrefix + conversationID))
	})
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}
