// Package kv provides a small key-value store with persistence using BadgerDB
package kv

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

type KV struct {
	db       *badger.DB
	closed   bool
	closedMu sync.RWMutex
}

// Options for KV store
type Options struct {
	Dir        string // data directory
	SyncWrites bool   // sync writes to disk
	MemoryMode bool   // in-memory only (no persistence)
}

// DefaultOptions returns default options
func DefaultOptions(dir string) Options {
	return Options{
		Dir:        dir,
		SyncWrites: false, // async for performance
	}
}

// Open opens a KV store
func Open(opt Options) (*KV, error) {
	if !opt.MemoryMode && opt.Dir == "" {
		opt.Dir = filepath.Join(os.TempDir(), "wira-kv")
	}

	opts := badger.DefaultOptions(opt.Dir)
	opts.SyncWrites = opt.SyncWrites
	opts.Logger = nil
	if opt.MemoryMode {
		opts = badger.DefaultOptions("").WithInMemory(true)
		opts.Logger = nil
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger failed: %w", err)
	}

	log.Printf("[KV] Opened: %s (memory: %v)", opt.Dir, opt.MemoryMode)
	return &KV{db: db}, nil
}

// Close closes the KV store
func (k *KV) Close() error {
	k.closedMu.Lock()
	defer k.closedMu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	return k.db.Close()
}

// Set sets a key-value pair
func (k *KV) Set(key string, value []byte) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Get gets a value by key. Returns badger.ErrKeyNotFound if absent.
func (k *KV) Get(key string) ([]byte, error) {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return nil, fmt.Errorf("KV is closed")
	}

	var result []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Has reports whether a key exists
func (k *KV) Has(key string) bool {
	_, err := k.Get(key)
	return err == nil
}

// Delete removes a key
func (k *KV) Delete(key string) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// IsNotFound reports whether err is the badger key-not-found error
func IsNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}
