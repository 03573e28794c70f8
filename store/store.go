package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/nlevitt/outbackcdx/cdx"
	"github.com/nlevitt/outbackcdx/cmn/cos"
)

// Store owns the buntdb handle and every per-collection Index built on
// top of it. It is the only thing in this tree allowed to touch the KV
// engine directly.
type Store struct {
	mu     sync.RWMutex
	db     *buntdb.DB
	path   string
	filter cdx.Filter // optional, immutable once Open returns

	collections map[string]struct{}
	indexes     map[string]*Index

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if absent) a directory holding one buntdb
// database. filter, if non-nil, is applied to every query result of
// every index in this store.
func Open(path string, filter cdx.Filter) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "store: creating data directory %s", path)
	}
	// A process killed mid-write leaves a "<name>.tmp.<tie>" file behind
	// (cmn/jsp's atomic save pattern: write tmp, fsync, rename). Sweep
	// and remove any such leftovers before opening the database so they
	// don't accumulate across restarts.
	if err := removeStaleTmpFiles(path); err != nil {
		return nil, errors.Wrapf(err, "store: sweeping stale tmp files in %s", path)
	}

	dbPath := filepath.Join(path, "cdx.db")
	db, err := buntdb.Open(dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "store: opening %s", dbPath)
	}
	// Every mutation must be durable before the caller's commit()
	// returns; buntdb.Always fsyncs every transaction rather than
	// batching on a timer.
	if err := db.SetConfig(buntdb.Config{SyncPolicy: buntdb.Always}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store: configuring sync policy")
	}

	s := &Store{
		db:          db,
		path:        path,
		filter:      filter,
		collections: map[string]struct{}{},
		indexes:     map[string]*Index{},
	}
	if err := s.loadCollections(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// removeStaleTmpFiles walks path and removes every "*.tmp.*" artifact
// left behind by an interrupted atomic write.
func removeStaleTmpFiles(path string) error {
	return godirwalk.Walk(path, &godirwalk.Options{
		Callback: func(p string, de *godirwalk.Dirent) error {
			if de.IsDir() || !strings.Contains(filepath.Base(p), ".tmp.") {
				return nil
			}
			glog.Infof("store: removing stale tmp file %s", p)
			return cos.RemoveFile(p)
		},
		Unsorted: true,
	})
}

func (s *Store) loadCollections() error {
	return s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(collectionsRegistryKey)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "store: reading collection registry")
		}
		var names []string
		if err := json.Unmarshal([]byte(val), &names); err != nil {
			return errors.Wrap(err, "store: decoding collection registry")
		}
		for _, n := range names {
			s.collections[n] = struct{}{}
		}
		return nil
	})
}

func (s *Store) persistCollections() error {
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	data, err := json.Marshal(names)
	if err != nil {
		return errors.Wrap(err, "store: encoding collection registry")
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(collectionsRegistryKey, string(data), nil)
		return err
	})
}

// GetIndex returns the named collection's Index, creating it (and
// registering its name durably) if createIfMissing is true and it does
// not yet exist. Returns (nil, nil) if the collection is unknown and
// createIfMissing is false.
func (s *Store) GetIndex(name string, createIfMissing bool) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}
	if _, exists := s.collections[name]; !exists {
		if !createIfMissing {
			return nil, nil
		}
		s.collections[name] = struct{}{}
		if err := s.persistCollections(); err != nil {
			delete(s.collections, name)
			return nil, err
		}
	}
	idx := &Index{store: s, name: name}
	s.indexes[name] = idx
	return idx, nil
}

// ListCollections returns every registered collection name, sorted.
func (s *Store) ListCollections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close releases the KV engine handle. It is safe to call more than
// once; only the first call does any work.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// ErrUnknownCollection names the unknown-collection error kind. No
// function in this package returns it: GetIndex reports an unknown
// collection without createIfMissing as (nil, nil).
var ErrUnknownCollection = fmt.Errorf("store: unknown collection")
