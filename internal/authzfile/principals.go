package authzfile

// PrincipalSet is the set of match-string tokens that identify a user (or
// anonymous access) for rule evaluation: the user name, their aliases,
// their transitive groups, and the built-in pseudo-principals.
type PrincipalSet struct {
	members map[string]struct{}
}

// Contains reports whether tok (a match string with any leading '~'
// already stripped) identifies this principal set.
func (p PrincipalSet) Contains(tok string) bool {
	_, ok := p.members[tok]
	return ok
}

// Members returns every token in the set. Order is unspecified.
func (p PrincipalSet) Members() []string {
	out := make([]string, 0, len(p.members))
	for m := range p.members {
		out = append(out, m)
	}
	return out
}

func newPrincipalSet() PrincipalSet {
	return PrincipalSet{members: make(map[string]struct{})}
}

// NewPrincipalSetFromMembers rebuilds a PrincipalSet from a flat token list,
// such as one retrieved from an external principal-set cache.
func NewPrincipalSetFromMembers(members []string) PrincipalSet {
	set := newPrincipalSet()
	for _, m := range members {
		set.add(m)
	}
	return set
}

func (p PrincipalSet) add(tok string) bool {
	if _, ok := p.members[tok]; ok {
		return false
	}
	p.members[tok] = struct{}{}
	return true
}

// ResolvePrincipals computes the principal set for a user against cfg, per
// spec.md §4.3. user == "" denotes an anonymous query.
func ResolvePrincipals(cfg *Config, user string) PrincipalSet {
	set := newPrincipalSet()

	if user == "" {
		set.add("*")
		set.add("$anonymous")
		return set
	}

	worklist := []string{user}
	set.add(user)

	if aliases, ok := cfg.Section(aliasesSectionName); ok {
		for _, alias := range aliases.Keys() {
			target, _ := aliases.Get(alias)
			if target == user {
				tok := "&" + alias
				if set.add(tok) {
					worklist = append(worklist, tok)
				}
			}
		}
	}

	// Reverse index: member token (exactly as written in a group's member
	// list) -> group tokens that declare it.
	reverse := make(map[string][]string)
	if groups, ok := cfg.Section(groupsSectionName); ok {
		for _, group := range groups.Keys() {
			raw, _ := groups.Get(group)
			groupTok := "@" + group
			for _, member := range splitMembers(raw) {
				reverse[member] = append(reverse[member], groupTok)
			}
		}
	}

	for len(worklist) > 0 {
		elem := worklist[0]
		worklist = worklist[1:]
		for _, parent := range reverse[elem] {
			if set.add(parent) {
				worklist = append(worklist, parent)
			}
		}
	}

	set.add("*")
	set.add("$authenticated")
	return set
}
