package authzfile

import "strings"

// ruleEntry is one (match, value) pair, carried through from whichever
// selected section it was declared in.
type ruleEntry struct {
	match string
	value string
}

// Compile filters cfg's path-rule sections to those relevant to repo,
// evaluates each rule against principals to obtain an effective access
// mask, and returns the finalized trie, per spec.md §4.4.
//
// Config is assumed to have already passed Validate; Compile trusts that
// every match string, rights value, and path is well-formed.
func Compile(cfg *Config, repo string, principals PrincipalSet) *Trie {
	byPath := make(map[string][]ruleEntry)
	var pathOrder []string

	for _, name := range cfg.SectionNames() {
		if name == aliasesSectionName || name == groupsSectionName {
			continue
		}
		sectionRepo, path, ok := splitSectionName(name)
		if !ok {
			continue
		}
		if sectionRepo != "" && sectionRepo != repo {
			continue
		}
		section, _ := cfg.Section(name)
		if _, seen := byPath[path]; !seen {
			pathOrder = append(pathOrder, path)
		}
		for _, match := range section.Keys() {
			value, _ := section.Get(match)
			byPath[path] = append(byPath[path], ruleEntry{match: match, value: value})
		}
	}

	root := newNode("")
	for _, path := range pathOrder {
		mask := evaluateEntries(byPath[path], principals)
		insert(root, path, mask)
	}

	if root.own == nil {
		empty := noRights
		root.own = &empty
	}
	finalize(root, noRights)

	return &Trie{root: root}
}

// evaluateEntries folds a path's accumulated rule entries (possibly drawn
// from several qualifying sections) into one aggregate mask, per spec.md
// §4.4's "Rule evaluation within a selected section": strip inversion,
// test membership, union rights bits from every entry that applies.
func evaluateEntries(entries []ruleEntry, principals PrincipalSet) Rights {
	var mask Rights
	for _, e := range entries {
		token, inverted := stripInversion(e.match)
		in := principals.Contains(token)
		applies := in != inverted
		if !applies {
			continue
		}
		rights, err := ParseRights(e.value)
		if err != nil {
			// Config was validated before compilation; this indicates a
			// caller reused an unvalidated Config, which is a programmer
			// error, not a runtime condition to recover from.
			panic("authzfile: compile: " + err.Error())
		}
		mask |= rights
	}
	return mask
}

// stripInversion strips a leading '~' from a match string already known to
// be well-formed (Validate has run). It does not re-check group/alias
// existence; that is Validate's job.
func stripInversion(raw string) (token string, inverted bool) {
	if strings.HasPrefix(raw, "~") {
		return strings.TrimPrefix(raw, "~"), true
	}
	return raw, false
}

// insert walks the trie from the root, creating any missing child node per
// segment, and assigns mask as the leaf's own_access.
func insert(root *node, path string, mask Rights) {
	cur := root
	for _, seg := range strings.FieldsFunc(path, isSlash) {
		cur = cur.childOrCreate(seg)
	}
	if cur.own != nil {
		// Every qualifying section for a given path is merged into one
		// ruleEntry slice before insertion (see Compile), so this can only
		// fire if that invariant is broken -- a compiler bug, per spec.md
		// §4.4.
		panic("authzfile: compile: duplicate assignment to trie node " + path)
	}
	m := mask
	cur.own = &m
}

// finalize performs the single depth-first pass described in spec.md
// §4.4: own_access (or the inherited value) becomes this node's effective
// mask, min/max start equal to it, and a child's min/max fold into the
// parent's by intersection/union respectively.
func finalize(n *node, inherited Rights) {
	effective := inherited
	if n.own != nil {
		effective = *n.own
	}
	n.effective = effective
	n.min = effective
	n.max = effective

	for _, child := range n.children {
		finalize(child, effective)
		n.max |= child.max
		n.min &= child.min
	}
}

func isSlash(r rune) bool { return r == '/' }
