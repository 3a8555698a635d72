package cloudeval

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/movegrade/movegrade/internal/polyglot"
)

const evalKeyPrefix = "eval:"

// Store persists cloud evaluations in BadgerDB so hits survive process
// restarts. Only found evaluations are persisted: a cloud miss today may
// be a hit tomorrow as the Lichess database grows.
type Store struct {
	db *badger.DB
}

// OpenStore opens (or creates) the evaluation database in dir.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func storeKey(key uint64) []byte {
	b := make([]byte, len(evalKeyPrefix)+8)
	copy(b, evalKeyPrefix)
	binary.BigEndian.PutUint64(b[len(evalKeyPrefix):], key)
	return b
}

// Get loads the stored evaluation for a position hash.
func (s *Store) Get(key uint64) (Result, bool, error) {
	var result Result
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &result); err != nil {
				return err
			}
			found = true
			return nil
		})
	})

	return result, found, err
}

// Put stores the evaluation for a position hash.
func (s *Store) Put(key uint64, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(key), data)
	})
}

// StoredEvaluator checks the disk store before asking the wrapped
// evaluator, and persists whatever the wrapped evaluator finds.
// Store errors degrade to plain lookups; persistence is best effort.
type StoredEvaluator struct {
	inner Evaluator
	store *Store
}

// NewStoredEvaluator wraps inner with the disk store.
func NewStoredEvaluator(inner Evaluator, store *Store) *StoredEvaluator {
	return &StoredEvaluator{inner: inner, store: store}
}

func (se *StoredEvaluator) Lookup(ctx context.Context, fen string) Result {
	key, err := polyglot.KeyFromFEN(fen)
	if err != nil {
		return se.inner.Lookup(ctx, fen)
	}

	if result, found, err := se.store.Get(key); err == nil && found {
		return result
	}

	result := se.inner.Lookup(ctx, fen)
	if result.Found {
		se.store.Put(key, result)
	}
	return result
}
