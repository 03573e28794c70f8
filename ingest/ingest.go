// Package ingest implements the line-oriented streaming CDX ingestion
// pipeline: parse lines into Captures or alias directives, stage them
// into one store.Batch per request, and commit (or abort) atomically.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/nlevitt/outbackcdx/cdx"
	"github.com/nlevitt/outbackcdx/store"
	"github.com/nlevitt/outbackcdx/surt"
)

// dedupFilterSize bounds the per-batch cuckoo filter's capacity; the
// filter only feeds the DuplicatesSkipped hint, so undersizing it can
// skew that count but never changes what the batch writes.
const dedupFilterSize = 1 << 16

// Result reports what one Ingest call committed.
type Result struct {
	Added             int
	DuplicatesSkipped int // hint only: cuckoo-filter-detected repeats within this batch
}

// Ingest reads CDX-11 lines and @alias directives from body, stages
// them into a single batch against idx, and commits atomically. On the
// first malformed line the batch is released and the error is
// returned; nothing from this call becomes visible.
func Ingest(idx *store.Index, body io.Reader) (Result, error) {
	batch := idx.BeginUpdate()

	dedup := cuckoo.NewFilter(dedupFilterSize)
	var res Result

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNum := 0
	for scanner.Scan() {
		line := scanner.Text()
		isFirst := lineNum == 0
		lineNum++

		if strings.TrimSpace(line) == "" {
			continue
		}
		// A leading token of ` CDX` (space + CDX header) on the first
		// line is ignored.
		if isFirst && strings.HasPrefix(line, " CDX") {
			continue
		}

		if strings.HasPrefix(line, "@alias ") {
			fields := strings.Fields(line)
			if len(fields) != 3 {
				batch.Release()
				return Result{}, &cdx.MalformedRecord{Line: line, Reason: "@alias requires exactly 2 URLs"}
			}
			aliasSurt, err := surt.Canonicalize(fields[1])
			if err != nil {
				batch.Release()
				return Result{}, &cdx.MalformedRecord{Line: line, Reason: fmt.Sprintf("bad alias source URL: %s", err)}
			}
			targetSurt, err := surt.Canonicalize(fields[2])
			if err != nil {
				batch.Release()
				return Result{}, &cdx.MalformedRecord{Line: line, Reason: fmt.Sprintf("bad alias target URL: %s", err)}
			}
			if !dedup.InsertUnique(append([]byte("a:"), aliasSurt...)) {
				res.DuplicatesSkipped++
			}
			batch.PutAlias(aliasSurt, targetSurt)
			res.Added++
			continue
		}

		c, err := cdx.FromCDXLine(line)
		if err != nil {
			batch.Release()
			return Result{}, err
		}
		urlkey, err := surt.Canonicalize(c.Original)
		if err != nil {
			batch.Release()
			return Result{}, &cdx.MalformedRecord{Line: line, Reason: fmt.Sprintf("bad URL: %s", err)}
		}
		c.Urlkey = urlkey

		if !dedup.InsertUnique(append([]byte("c:"), cdx.EncodeKey(c)...)) {
			res.DuplicatesSkipped++
		}
		batch.PutCapture(c)
		res.Added++
	}
	if err := scanner.Err(); err != nil {
		batch.Release()
		return Result{}, err
	}

	if err := batch.Commit(); err != nil {
		return Result{}, err
	}
	return res, nil
}
