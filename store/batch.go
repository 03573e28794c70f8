package store

import (
	"github.com/tidwall/buntdb"

	"github.com/nlevitt/outbackcdx/cdx"
)

// Batch aggregates ingestion writes in memory and commits them
// atomically. A Batch must not be used from more than one goroutine
// concurrently.
type Batch struct {
	idx *Index

	captures map[string]string // family key -> encoded value
	aliases  map[string]string // family key -> target surt

	committed bool
	released  bool
}

// PutCapture stages c for the capture family. Within one batch the same
// primary key overwrites any earlier staged value.
func (b *Batch) PutCapture(c cdx.Capture) {
	key := captureKey(b.idx.name, cdx.EncodeKey(c))
	b.captures[key] = string(cdx.EncodeValue(c))
}

// PutAlias stages aliasSurt -> targetSurt. Self-loops are accepted here
// and neutralized at query time by Index.resolveAlias.
func (b *Batch) PutAlias(aliasSurt, targetSurt string) {
	key := aliasKey(b.idx.name, aliasSurt)
	b.aliases[key] = targetSurt
}

// Commit atomically applies every staged write; it is durable before
// returning (the Store's buntdb handle is configured with
// buntdb.Always sync policy). Commit is the linearization point: any
// Query started after Commit returns sees every write in this batch,
// or none of them.
func (b *Batch) Commit() error {
	if b.committed || b.released {
		return nil
	}
	err := b.idx.store.db.Update(func(tx *buntdb.Tx) error {
		for k, v := range b.captures {
			if _, _, err := tx.Set(k, v, nil); err != nil {
				return err
			}
		}
		for k, v := range b.aliases {
			if _, _, err := tx.Set(k, v, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.committed = true
	return nil
}

// Release discards every staged write without committing. Safe to call
// after Commit (no-op) so defer Release() after a successful early
// Commit is harmless.
func (b *Batch) Release() {
	if b.committed {
		return
	}
	b.released = true
	b.captures = nil
	b.aliases = nil
}
