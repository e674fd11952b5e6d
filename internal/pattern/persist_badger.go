package pattern

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	badgerActiveKey  = []byte("pattern/active")
	badgerVersionKey = []byte("pattern/version")
)

// BadgerPersister keeps the active snapshot under a single key in a badger
// key-value store.
type BadgerPersister struct {
	db *badger.DB
}

// NewBadgerPersister opens (or creates) a badger store in dir.
func NewBadgerPersister(dir string) (*BadgerPersister, error) {
	return openBadger(badger.DefaultOptions(dir).WithLogger(nil))
}

// NewInMemoryBadgerPersister opens a badger store that lives only in memory.
func NewInMemoryBadgerPersister() (*BadgerPersister, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerPersister, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerPersister{db: db}, nil
}

// SaveSnapshot overwrites the active snapshot and records its version ID.
func (p *BadgerPersister) SaveSnapshot(snap Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	id := uuid.New().String()
	err = p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(badgerActiveKey, data); err != nil {
			return err
		}
		return txn.Set(badgerVersionKey, []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("badger set: %w", err)
	}
	return id, nil
}

// LoadSnapshot reads the active snapshot.
func (p *BadgerPersister) LoadSnapshot() (Snapshot, error) {
	var data []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerActiveKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("badger get: %w", err)
	}
	return decodeSnapshot(data)
}

// Version returns the ID of the active snapshot, or "" when none is stored.
func (p *BadgerPersister) Version() (string, error) {
	var id string
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerVersionKey)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			id = string(v)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	return id, err
}

// Close closes the badger store.
func (p *BadgerPersister) Close() error {
	return p.db.Close()
}
