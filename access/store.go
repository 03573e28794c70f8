package access

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	uberatomic "go.uber.org/atomic"

	"github.com/nlevitt/outbackcdx/cdx"
	"github.com/nlevitt/outbackcdx/cmn/debug"
	"github.com/nlevitt/outbackcdx/store"
)

// ErrUnknownPolicy is returned by PutRule when the rule's PolicyID does
// not reference an existing policy.
var ErrUnknownPolicy = fmt.Errorf("access: unknown policy")

// Store persists Rules and Policies for one collection and maintains
// the in-memory prefix trie over rule SURTs.
type Store struct {
	// mu serializes PutRule/DeleteRule/PutPolicy; it is the single
	// writer lock guarding trie mutation, replacing an unsynchronized
	// remove-then-insert sequence with a lock-and-swap.
	mu sync.Mutex

	rules    *store.Family
	policies *store.Family

	nextRuleID   uberatomic.Int64
	nextPolicyID uberatomic.Int64
	insertSeq    uberatomic.Int64

	root atomic.Value // *node; swapped under mu, read lock-free

	byID map[int64]*Rule // mutated only under mu
}

// Open loads (or initializes) a rule/policy store backed by rules and
// policies, two Family views into the shared data store.
func Open(rules, policies *store.Family) (*Store, error) {
	s := &Store{rules: rules, policies: policies, byID: map[int64]*Rule{}}
	s.root.Store((*node)(nil))

	var maxPolicyID int64
	if err := policies.Ascend(func(key, value string) bool {
		id, ok := decodeID(key)
		if !ok {
			return true
		}
		if id > maxPolicyID {
			maxPolicyID = id
		}
		return true
	}); err != nil {
		return nil, err
	}
	s.nextPolicyID.Store(maxPolicyID + 1)

	if empty, err := s.policiesEmpty(); err != nil {
		return nil, err
	} else if empty {
		if err := s.seedDefaultPolicies(); err != nil {
			return nil, err
		}
	}

	var maxRuleID int64
	var loadErr error
	if err := rules.Ascend(func(key, value string) bool {
		id, ok := decodeID(key)
		if !ok {
			return true
		}
		var r Rule
		if err := jsoniter.Unmarshal([]byte(value), &r); err != nil {
			loadErr = err
			return false
		}
		s.byID[id] = &r
		if id > maxRuleID {
			maxRuleID = id
		}
		root := s.root.Load().(*node)
		for _, surt := range r.Surts {
			root = insert(root, sentinelKey(surt), ruleRef{rule: &r, seq: s.insertSeq.Inc()})
		}
		s.root.Store(root)
		return true
	}); err != nil {
		return nil, err
	}
	if loadErr != nil {
		return nil, loadErr
	}
	s.nextRuleID.Store(maxRuleID + 1)

	return s, nil
}

func (s *Store) policiesEmpty() (bool, error) {
	empty := true
	err := s.policies.Ascend(func(key, value string) bool {
		empty = false
		return false
	})
	return empty, err
}

func (s *Store) seedDefaultPolicies() error {
	defaults := []Policy{
		{Name: "Public", AccessPoints: []string{"public", "staff"}},
		{Name: "Staff Only", AccessPoints: []string{"staff"}},
		{Name: "No Access", AccessPoints: []string{}},
	}
	for _, p := range defaults {
		if _, err := s.putPolicyLocked(p); err != nil {
			return err
		}
	}
	return nil
}

func encodeID(id int64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return string(b[:])
}

func decodeID(key string) (int64, bool) {
	if len(key) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64([]byte(key))), true
}

// PutRule assigns r.ID if absent, validates r.PolicyID, persists r, and
// updates the prefix trie atomically from the caller's perspective. It
// returns the (possibly newly assigned) id.
func (s *Store) PutRule(r Rule) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.AssertMutexLocked(&s.mu)

	if _, ok, err := s.policyLocked(r.PolicyID); err != nil {
		return 0, err
	} else if !ok {
		return 0, ErrUnknownPolicy
	}

	old, updating := s.byID[r.ID]
	if r.ID == 0 {
		r.ID = s.nextRuleID.Inc() - 1
	}

	data, err := jsoniter.Marshal(r)
	if err != nil {
		return 0, err
	}
	if err := s.rules.Set(encodeID(r.ID), string(data)); err != nil {
		return 0, err
	}

	stored := r
	root := s.root.Load().(*node)
	if updating {
		for _, surt := range old.Surts {
			root = remove(root, sentinelKey(surt), stored.ID)
		}
	}
	seq := s.insertSeq.Inc()
	for _, surt := range stored.Surts {
		root = insert(root, sentinelKey(surt), ruleRef{rule: &stored, seq: seq})
	}
	s.root.Store(root)
	s.byID[stored.ID] = &stored

	return stored.ID, nil
}

// DeleteRule removes rule id from both the durable store and the
// prefix trie. It is idempotent: deleting a never-existed id returns
// (false, nil).
func (s *Store) DeleteRule(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.AssertMutexLocked(&s.mu)

	old, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	if _, err := s.rules.Delete(encodeID(id)); err != nil {
		return false, err
	}
	root := s.root.Load().(*node)
	for _, surt := range old.Surts {
		root = remove(root, sentinelKey(surt), id)
	}
	s.root.Store(root)
	delete(s.byID, id)
	return true, nil
}

func (s *Store) policyLocked(id int64) (Policy, bool, error) {
	val, ok, err := s.policies.Get(encodeID(id))
	if err != nil || !ok {
		return Policy{}, ok, err
	}
	var p Policy
	if err := jsoniter.Unmarshal([]byte(val), &p); err != nil {
		return Policy{}, false, err
	}
	return p, true, nil
}

// Policy looks up a policy by id.
func (s *Store) Policy(id int64) (Policy, bool, error) {
	return s.policyLocked(id)
}

func (s *Store) putPolicyLocked(p Policy) (int64, error) {
	if p.ID == 0 {
		p.ID = s.nextPolicyID.Inc() - 1
	}
	data, err := jsoniter.Marshal(p)
	if err != nil {
		return 0, err
	}
	if err := s.policies.Set(encodeID(p.ID), string(data)); err != nil {
		return 0, err
	}
	return p.ID, nil
}

// PutPolicy creates or updates a policy, returning its id.
func (s *Store) PutPolicy(p Policy) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.AssertMutexLocked(&s.mu)
	return s.putPolicyLocked(p)
}

// ListPolicies returns every persisted policy.
func (s *Store) ListPolicies() ([]Policy, error) {
	var out []Policy
	var unmarshalErr error
	err := s.policies.Ascend(func(key, value string) bool {
		var p Policy
		if err := jsoniter.Unmarshal([]byte(value), &p); err != nil {
			unmarshalErr = err
			return false
		}
		out = append(out, p)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, unmarshalErr
}

// RulesForSurt returns every rule any of whose stored prefixes is a
// prefix of the sentinel-prepended surt, unordered.
func (s *Store) RulesForSurt(surt string) []Rule {
	root := s.root.Load().(*node)
	entries := lookup(root, sentinelKey(surt))
	out := make([]Rule, 0, len(entries))
	seen := map[int64]bool{}
	for _, e := range entries {
		if seen[e.rule.ID] {
			continue
		}
		seen[e.rule.ID] = true
		out = append(out, *e.rule)
	}
	return out
}

// RuleForCapture selects the most-specific applicable rule for c at
// accessTime: longest matching prefix wins, ties broken by
// last-inserted.
func (s *Store) RuleForCapture(c cdx.Capture, accessTime time.Time) (Rule, bool) {
	capturedTime, err := c.Time()
	if err != nil {
		return Rule{}, false
	}
	root := s.root.Load().(*node)
	entries := lookup(root, sentinelKey(c.Urlkey))

	var best *matchEntry
	for i := range entries {
		e := &entries[i]
		if !e.rule.Matches(capturedTime, accessTime) {
			continue
		}
		if best == nil || e.depth > best.depth || (e.depth == best.depth && e.seq > best.seq) {
			best = e
		}
	}
	if best == nil {
		return Rule{}, false
	}
	return *best.rule, true
}

// Filter returns the per-request visibility predicate: a capture is
// visible iff no rule matches it, or the matching rule's policy
// contains accessPoint. A failure resolving the rule's policy is
// treated as a rejection, not a silent allow.
func (s *Store) Filter(accessPoint string, accessTime time.Time) cdx.Filter {
	return func(c cdx.Capture) bool {
		rule, matched := s.RuleForCapture(c, accessTime)
		if !matched {
			return true
		}
		policy, ok, err := s.Policy(rule.PolicyID)
		if err != nil || !ok {
			return false
		}
		for _, ap := range policy.AccessPoints {
			if ap == accessPoint {
				return true
			}
		}
		return false
	}
}
