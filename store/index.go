package store

import (
	"github.com/tidwall/buntdb"

	"github.com/nlevitt/outbackcdx/cdx"
)

// Index is the per-collection API: streaming query by canonical URL,
// batched ingestion, and alias resolution. An Index holds a non-owning
// reference into its Store; closing the Store invalidates every Index
// built on it.
type Index struct {
	store *Store
	name  string
}

func (idx *Index) Name() string { return idx.name }

// resolveAlias performs a single alias hop: if urlkey has an alias
// whose target differs from urlkey itself, the target is used instead.
// Self-loop aliases (target == urlkey) are treated as "no alias."
func (idx *Index) resolveAlias(urlkey string) (string, error) {
	var target string
	err := idx.store.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(aliasKey(idx.name, urlkey))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		target = val
		return nil
	})
	if err != nil {
		return "", err
	}
	if target == "" || target == urlkey {
		return urlkey, nil
	}
	return target, nil
}

// Query streams every capture whose urlkey equals urlkey (after one-hop
// alias resolution), in ascending (timestamp, file, compressedoffset)
// order. The store's static filter, if any, is applied inline so
// rejected rows never leave the scan. The returned stream is lazy and
// not restartable; the caller must Close it, whether or not it was
// drained.
func (idx *Index) Query(urlkey string) CaptureStream {
	effective, err := idx.resolveAlias(urlkey)
	if err != nil {
		return &errStream{err: err}
	}

	rows := make(chan row)
	stop := make(chan struct{})
	it := &captureIter{rows: rows, stop: stop}

	go func() {
		defer close(rows)
		prefix := captureKey(idx.name, cdx.PrefixKey(effective))
		scanErr := idx.store.db.View(func(tx *buntdb.Tx) error {
			return tx.AscendGreaterOrEqual("", prefix, func(key, value string) bool {
				raw, ok := rawCaptureKey(key, idx.name)
				if !ok {
					return false // ran past this collection's capture family
				}
				gotURLKey, _, _, _, ok := cdx.SplitKey(raw)
				if !ok || gotURLKey != effective {
					return false // first mismatch: stop
				}
				c, err := cdx.DecodeRow(raw, []byte(value))
				if err != nil {
					select {
					case rows <- row{err: err}:
					case <-stop:
					}
					return false
				}
				if idx.store.filter != nil && !idx.store.filter(c) {
					return true // rejected by the static filter; keep scanning
				}
				select {
				case rows <- row{capture: c}:
					return true
				case <-stop:
					return false
				}
			})
		})
		if scanErr != nil {
			select {
			case rows <- row{err: scanErr}:
			case <-stop:
			}
		}
	}()

	return it
}

type errStream struct{ err error }

func (e *errStream) Next() (cdx.Capture, bool, error) { return cdx.Capture{}, false, e.err }
func (e *errStream) Close()                           {}

// BeginUpdate opens a new ingestion batch. Writes staged on the batch
// are invisible to queries until Commit returns.
func (idx *Index) BeginUpdate() *Batch {
	return &Batch{idx: idx, captures: map[string]string{}, aliases: map[string]string{}}
}
