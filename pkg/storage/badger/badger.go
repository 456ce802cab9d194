// Package badger is the embedded key-value backend of storage.Repository.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/absmach/hyperfold/pkg/storage"
	badgerdb "github.com/dgraph-io/badger/v4"
)

var (
	snapshotPrefix = []byte("snapshot:")
	gradientPrefix = []byte("gradient:")
)

type Database struct {
	db *badgerdb.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badgerdb.DefaultOptions(path)
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

type repository struct {
	db *Database
}

func NewRepository(db *Database) storage.Repository {
	return &repository{db: db}
}

// Epochs are zero padded so that lexical key order is numeric order.
func snapshotKey(epoch uint64) []byte {
	return fmt.Appendf(bytes.Clone(snapshotPrefix), "%020d", epoch)
}

func gradientEpochPrefix(epoch uint64) []byte {
	return fmt.Appendf(bytes.Clone(gradientPrefix), "%020d:", epoch)
}

func gradientKey(epoch uint64, layer int) []byte {
	return fmt.Appendf(gradientEpochPrefix(epoch), "%010d", layer)
}

func (r *repository) SaveSnapshot(_ context.Context, s storage.Snapshot) error {
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(snapshotKey(s.Epoch), val)
}

func (r *repository) GetSnapshot(_ context.Context, epoch uint64) (storage.Snapshot, error) {
	val, err := r.db.get(snapshotKey(epoch))
	if err != nil {
		return storage.Snapshot{}, err
	}
	var s storage.Snapshot
	if err := json.Unmarshal(val, &s); err != nil {
		return storage.Snapshot{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return s, nil
}

func (r *repository) LatestSnapshot(_ context.Context) (storage.Snapshot, error) {
	val, err := r.db.last(snapshotPrefix)
	if err != nil {
		return storage.Snapshot{}, err
	}
	var s storage.Snapshot
	if err := json.Unmarshal(val, &s); err != nil {
		return storage.Snapshot{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return s, nil
}

func (r *repository) ListSnapshots(_ context.Context, offset, limit uint64) ([]storage.Snapshot, uint64, error) {
	total, err := r.db.countWithPrefix(snapshotPrefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(snapshotPrefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	snapshots := make([]storage.Snapshot, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &snapshots[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return snapshots, total, nil
}

func (r *repository) SaveGradient(_ context.Context, g storage.Gradient) error {
	val, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(gradientKey(g.Epoch, g.LayerIndex), val)
}

func (r *repository) ListGradients(_ context.Context, epoch uint64) ([]storage.Gradient, error) {
	prefix := gradientEpochPrefix(epoch)
	count, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, err
	}
	values, err := r.db.listWithPrefix(prefix, 0, count)
	if err != nil {
		return nil, err
	}
	gradients := make([]storage.Gradient, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &gradients[i]); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return gradients, nil
}

func (d *Database) get(key []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)

		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", storage.ErrDBQuery, err)
	}

	return val, nil
}

func (d *Database) set(key, val []byte) error {
	err := d.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrCreate, err)
	}

	return nil
}

// last returns the value of the greatest key under prefix.
func (d *Database) last(prefix []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(bytes.Clone(prefix), 0xff)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return storage.ErrNotFound
		}
		var err error
		val, err = it.Item().ValueCopy(nil)

		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", storage.ErrDBQuery, err)
	}

	return val, nil
}

func (d *Database) listWithPrefix(prefix []byte, offset, limit uint64) ([][]byte, error) {
	items := [][]byte{}
	err := d.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchSize = max(int(min(limit, 1000)), 1)
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := uint64(0)
		count := uint64(0)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < offset {
				skipped++

				continue
			}
			if count >= limit {
				break
			}

			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, val)
			count++
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDBQuery, err)
	}

	return items, nil
}

func (d *Database) countWithPrefix(prefix []byte) (uint64, error) {
	var count uint64
	err := d.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", storage.ErrDBQuery, err)
	}

	return count, nil
}
