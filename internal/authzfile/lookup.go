package authzfile

import "strings"

// Lookup walks t along path and returns allow/deny using the finalized
// bounds for early termination, per spec.md §4.5.
//
// path == nil means the caller asked "does the user have any such access
// anywhere" (spec.md §4.5's special case); it is answered directly from
// the root's max_rights without a walk.
func (t *Trie) Lookup(path *string, required Rights, recursive bool) bool {
	root := t.root
	if path == nil {
		return root.max.Has(required)
	}

	cur := root
	effective, min, max := root.effective, root.min, root.max

	for _, seg := range strings.FieldsFunc(*path, isSlash) {
		if !max.Has(required) {
			return false
		}
		if min.Has(required) {
			return true
		}
		if (min & required) == (max & required) {
			return min.Has(required)
		}

		child, ok := cur.children[seg]
		if !ok {
			min, max = effective, effective
			break
		}
		cur = child
		effective = child.effective
		min, max = child.min, child.max
	}

	if recursive {
		return min.Has(required)
	}
	return effective.Has(required)
}

// Root exposes the trie's root node for diagnostics (internal/explain).
func (t *Trie) Root() Node { return t.root.exported() }

// Walk returns the chain of nodes a non-short-circuited lookup of path
// would visit, root first, for use by internal/explain. It does not apply
// the A/B/C shortcuts; callers that need the actual decision should call
// Lookup.
func (t *Trie) Walk(path string) []Node {
	nodes := []Node{t.root.exported()}
	cur := t.root
	for _, seg := range strings.FieldsFunc(path, isSlash) {
		child, ok := cur.children[seg]
		if !ok {
			break
		}
		cur = child
		nodes = append(nodes, cur.exported())
	}
	return nodes
}
