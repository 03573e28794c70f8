package store

import (
	"sync"

	"github.com/nlevitt/outbackcdx/cdx"
)

// CaptureStream is a lazy, forward-only, non-restartable sequence of
// captures. Callers that stop consuming early must call Close to
// release the underlying buntdb transaction.
type CaptureStream interface {
	// Next advances the stream. ok is false once the stream is
	// exhausted; err is non-nil if the underlying scan failed.
	Next() (capture cdx.Capture, ok bool, err error)
	Close()
}

type row struct {
	capture cdx.Capture
	err     error
}

// captureIter implements CaptureStream over a buntdb.Tx.AscendGreaterOrEqual
// scan running in its own goroutine, so the transaction's callback-style
// iteration can be consumed by the rest of the tree as an ordinary pull
// iterator.
type captureIter struct {
	rows chan row
	stop chan struct{}
	once sync.Once
}

func (it *captureIter) Next() (cdx.Capture, bool, error) {
	r, ok := <-it.rows
	if !ok {
		return cdx.Capture{}, false, nil
	}
	if r.err != nil {
		return cdx.Capture{}, false, r.err
	}
	return r.capture, true, nil
}

func (it *captureIter) Close() {
	it.once.Do(func() { close(it.stop) })
}
