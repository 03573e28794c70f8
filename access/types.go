// Package access implements the access-control evaluator: rule and
// policy persistence, the prefix-trie index over rule SURTs, and the
// capture-filter factory.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package access

import "time"

// Rule is a predicate over (canonical-URL-prefix, capture date, access
// date) pointing to a Policy.
type Rule struct {
	ID       int64      `json:"id"`
	PolicyID int64      `json:"policyId"`
	Surts    []string   `json:"surts"`
	Accessed *DateRange `json:"accessed,omitempty"`
	Captured *DateRange `json:"captured,omitempty"`
	Period   *Period    `json:"period,omitempty"`
}

// Policy is a named set of access points. A capture
// matched by a rule is visible at access point A iff the rule's
// policy's AccessPoints contains A.
type Policy struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	AccessPoints []string `json:"accessPoints"`
}

// DateRange is a half-open [From, To) predicate; either bound may be
// nil to mean "unbounded" on that side.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

func (d *DateRange) Contains(t time.Time) bool {
	if d == nil {
		return true
	}
	if d.From != nil && t.Before(*d.From) {
		return false
	}
	if d.To != nil && !t.Before(*d.To) {
		return false
	}
	return true
}

// Period expresses a relative span between capture and access time,
// e.g. "access date within N years of capture date".
type Period struct {
	Years int `json:"years"`
}

// Applies reports whether accessTime falls within Years of capturedTime
// (inclusive of capturedTime, exclusive of the Years-later boundary).
func (p *Period) Applies(capturedTime, accessTime time.Time) bool {
	if p == nil {
		return true
	}
	if accessTime.Before(capturedTime) {
		return false
	}
	return accessTime.Before(capturedTime.AddDate(p.Years, 0, 0))
}

// Matches reports whether r's capture-date, access-date, and period
// predicates all hold for capturedTime/accessTime.
func (r *Rule) Matches(capturedTime, accessTime time.Time) bool {
	return r.Captured.Contains(capturedTime) &&
		r.Accessed.Contains(accessTime) &&
		r.Period.Applies(capturedTime, accessTime)
}
