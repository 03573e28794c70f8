package access

// sentinel is prepended to every key stored in or looked up against the
// trie: the trie implementation may reject the empty key, so the
// single-byte sentinel key represents "match everything."
// SURT form already begins with '(' for the authority component, so
// '(' doubles as the sentinel with no real-world key ever colliding
// with the bare one-byte sentinel itself.
const sentinel = '('

func sentinelKey(surt string) string {
	return string(rune(sentinel)) + surt
}

// ruleRef is one rule registered at a trie node, tagged with the
// insertion sequence number used to break specificity ties: on ties,
// last-inserted wins.
type ruleRef struct {
	rule *Rule
	seq  int64
}

// node is one level of the byte trie. The trie is immutable once
// published: every mutation builds new nodes along the changed path
// and shares the rest, so readers walking an old root concurrently
// with a writer never observe a partially updated structure: each
// mutation swaps in a new root via a copy-on-write path copy.
type node struct {
	children map[byte]*node
	rules    []ruleRef
}

func (n *node) child(b byte) *node {
	if n == nil {
		return nil
	}
	return n.children[b]
}

// cloneWithChild returns a shallow copy of n with child b replaced by
// next (n may be nil, meaning "no node here yet").
func cloneWithChild(n *node, b byte, next *node) *node {
	children := map[byte]*node{}
	var rules []ruleRef
	if n != nil {
		for k, v := range n.children {
			children[k] = v
		}
		rules = n.rules
	}
	children[b] = next
	return &node{children: children, rules: rules}
}

func cloneWithRules(n *node, rules []ruleRef) *node {
	children := map[byte]*node{}
	if n != nil {
		for k, v := range n.children {
			children[k] = v
		}
	}
	return &node{children: children, rules: rules}
}

// insert returns a new trie (sharing untouched subtrees with n) with
// ref registered at key.
func insert(n *node, key string, ref ruleRef) *node {
	if key == "" {
		rules := append(append([]ruleRef{}, nodeRules(n)...), ref)
		return cloneWithRules(n, rules)
	}
	b := key[0]
	child := insert(n.child(b), key[1:], ref)
	return cloneWithChild(n, b, child)
}

func nodeRules(n *node) []ruleRef {
	if n == nil {
		return nil
	}
	return n.rules
}

// remove returns a new trie with every ruleRef whose rule ID matches id
// removed from the node at key. If the node at key never existed, n is
// returned unchanged (by value-equal shape; no-op).
func remove(n *node, key string, id int64) *node {
	if n == nil {
		return nil
	}
	if key == "" {
		filtered := make([]ruleRef, 0, len(n.rules))
		for _, r := range n.rules {
			if r.rule.ID != id {
				filtered = append(filtered, r)
			}
		}
		return cloneWithRules(n, filtered)
	}
	b := key[0]
	existingChild := n.child(b)
	if existingChild == nil {
		return n
	}
	child := remove(existingChild, key[1:], id)
	return cloneWithChild(n, b, child)
}

// matchEntry is one rule found while walking the trie along a query
// key, tagged with the depth (prefix length) at which it matched - the
// primary specificity dimension when ranking matches.
type matchEntry struct {
	rule  *Rule
	depth int
	seq   int64
}

// lookup walks n along key, collecting every rule registered at a
// prefix of key: rules any of whose stored prefixes is a prefix of the
// sentinel-prepended surt.
func lookup(n *node, key string) []matchEntry {
	var out []matchEntry
	cur := n
	for depth := 0; ; depth++ {
		if cur == nil {
			break
		}
		for _, r := range cur.rules {
			out = append(out, matchEntry{rule: r.rule, depth: depth, seq: r.seq})
		}
		if depth == len(key) {
			break
		}
		cur = cur.child(key[depth])
	}
	return out
}
