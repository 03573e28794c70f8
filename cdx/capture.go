// Package cdx implements the CDX-11 line codec and the binary key/value
// layout captures are stored under in the capture index (store package).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cdx

import (
	"fmt"
	"time"
)

const timestampLayout = "20060102150405"

// Capture is one archived-response record. Urlkey, Timestamp, File and
// CompressedOffset form the key; the rest is carried in the value. See
// EncodeKey for how (Urlkey, Timestamp, File, CompressedOffset) becomes
// ordered bytes.
type Capture struct {
	Urlkey           string // canonical (SURT) URL
	Timestamp        int64  // packed decimal YYYYMMDDhhmmss
	Original         string // URL as captured
	Mimetype         string
	Status           int // 0 if absent
	Digest           string
	RedirectURL      string // "" if none ("-" on the wire)
	Length           int64
	CompressedOffset int64
	File             string
}

// MalformedRecord is returned by FromCDXLine and PutCapture callers that
// validate a line before staging it; it carries the offending line so
// the ingest protocol can echo it back to the client.
type MalformedRecord struct {
	Line   string
	Reason string
}

func (e *MalformedRecord) Error() string {
	return fmt.Sprintf("malformed CDX record: %s: %q", e.Reason, e.Line)
}

// Filter is a pure predicate over a Capture, used both as the
// data-store-level static filter (store.Store) and the per-request
// access-control filter (access.Store.Filter). Kept here, rather than
// in either of those packages, so neither has to import the other.
type Filter func(Capture) bool

// Time parses Timestamp (YYYYMMDDhhmmss, UTC) into a time.Time, for
// callers that need to evaluate date predicates against a capture
// (e.g. access.Rule.Matches).
func (c Capture) Time() (time.Time, error) {
	return time.Parse(timestampLayout, formatTimestamp(c.Timestamp))
}

