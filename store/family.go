package store

import (
	"strings"

	"github.com/tidwall/buntdb"
)

// TagRule/TagPolicy are the rule and policy column families kept per
// collection alongside the capture and alias families. They are
// exposed to the access package through Family rather than letting that
// package touch buntdb directly, so the data store keeps sole ownership
// of the KV engine handle.
const (
	TagRule   = 'r' // {collection}\x00{8-byte BE rule id}
	TagPolicy = 'p' // {collection}\x00{8-byte BE policy id}
)

// Family is a narrow, prefix-scoped view of the shared buntdb handle:
// exactly the KV surface the access package needs to persist its own
// column families without being handed the engine itself.
type Family struct {
	db     *buntdb.DB
	prefix string
}

// Family returns the scoped KV view for collection's rule or policy
// family (tag must be TagRule or TagPolicy).
func (s *Store) Family(collection string, tag byte) *Family {
	return &Family{db: s.db, prefix: string(rune(tag)) + collection + sep}
}

func (f *Family) full(key string) string { return f.prefix + key }

func (f *Family) Get(key string) (value string, ok bool, err error) {
	err = f.db.View(func(tx *buntdb.Tx) error {
		v, getErr := tx.Get(f.full(key))
		if getErr == buntdb.ErrNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		value, ok = v, true
		return nil
	})
	return value, ok, err
}

func (f *Family) Set(key, value string) error {
	return f.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(f.full(key), value, nil)
		return err
	})
}

func (f *Family) Delete(key string) (ok bool, err error) {
	err = f.db.Update(func(tx *buntdb.Tx) error {
		_, delErr := tx.Delete(f.full(key))
		if delErr == buntdb.ErrNotFound {
			return nil
		}
		if delErr != nil {
			return delErr
		}
		ok = true
		return nil
	})
	return ok, err
}

// Ascend calls fn for every key/value in this family, in key order,
// with the family prefix stripped from the key.
func (f *Family) Ascend(fn func(key, value string) bool) error {
	return f.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", f.prefix, func(key, value string) bool {
			if !strings.HasPrefix(key, f.prefix) {
				return false
			}
			return fn(key[len(f.prefix):], value)
		})
	})
}
