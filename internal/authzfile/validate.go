package authzfile

import "strings"

// Validate runs once per freshly loaded Config, before any query, per
// spec.md §4.2. It aborts on the first error.
func Validate(cfg *Config) error {
	groups, _ := cfg.Section(groupsSectionName)
	aliases, _ := cfg.Section(aliasesSectionName)

	if err := validateAliasMembers(aliases); err != nil {
		return err
	}
	if err := validateGroupsAcyclic(groups); err != nil {
		return err
	}
	if err := validateGroupMembers(groups, aliases); err != nil {
		return err
	}

	for _, name := range cfg.SectionNames() {
		if name == aliasesSectionName || name == groupsSectionName {
			continue
		}
		_, path, ok := splitSectionName(name)
		if !ok {
			// Not path-rule shaped (no leading '/' after an optional
			// "repo:" prefix) -- ignored, not an error.
			continue
		}
		if err := validateCanonicalPath(path); err != nil {
			return err
		}
		section, _ := cfg.Section(name)
		if err := validateRuleSection(section, groups, aliases); err != nil {
			return err
		}
	}
	return nil
}

func validateAliasMembers(aliases *Section) error {
	if aliases == nil {
		return nil
	}
	for _, key := range aliases.Keys() {
		if strings.TrimSpace(key) == "" {
			return newError(KindInvalidConfig, "aliases: empty alias name")
		}
	}
	return nil
}

// validateGroupsAcyclic walks the groups graph looking for a cycle,
// naming both endpoints when one is found.
func validateGroupsAcyclic(groups *Section) error {
	if groups == nil {
		return nil
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(groups.Keys()))

	var visit func(group, via string) error
	visit = func(group, via string) error {
		switch color[group] {
		case gray:
			return newError(KindInvalidConfig, "group cycle detected: %s -> %s", via, group)
		case black:
			return nil
		}
		color[group] = gray
		members, ok := groups.Get(group)
		if ok {
			for _, m := range splitMembers(members) {
				if sub, isGroup := strings.CutPrefix(m, "@"); isGroup {
					if _, defined := groups.Get(sub); !defined {
						continue // reported separately by validateGroupMembers
					}
					if err := visit(sub, group); err != nil {
						return err
					}
				}
			}
		}
		color[group] = black
		return nil
	}

	for _, g := range groups.Keys() {
		if color[g] == white {
			if err := visit(g, g); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateGroupMembers(groups, aliases *Section) error {
	if groups == nil {
		return nil
	}
	for _, key := range groups.Keys() {
		members, _ := groups.Get(key)
		for _, m := range splitMembers(members) {
			if err := validateMemberToken(m, groups, aliases); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateMemberToken checks a single group-member token (no '~' inversion
// is meaningful inside a group member list; inversion only applies to rule
// match strings).
func validateMemberToken(tok string, groups, aliases *Section) error {
	switch {
	case strings.HasPrefix(tok, "@"):
		name := strings.TrimPrefix(tok, "@")
		if groups == nil {
			return newError(KindInvalidConfig, "undefined group %q referenced", tok)
		}
		if _, ok := groups.Get(name); !ok {
			return newError(KindInvalidConfig, "undefined group %q referenced", tok)
		}
	case strings.HasPrefix(tok, "&"):
		name := strings.TrimPrefix(tok, "&")
		if aliases == nil {
			return newError(KindInvalidConfig, "undefined alias %q referenced", tok)
		}
		if _, ok := aliases.Get(name); !ok {
			return newError(KindInvalidConfig, "undefined alias %q referenced", tok)
		}
	case tok == "":
		return newError(KindInvalidConfig, "empty group member")
	}
	return nil
}

func validateRuleSection(section, groups, aliases *Section) error {
	for _, match := range section.Keys() {
		if _, _, err := normalizeMatch(match, groups, aliases); err != nil {
			return err
		}
		value, _ := section.Get(match)
		if _, err := ParseRights(value); err != nil {
			return err
		}
	}
	return nil
}

// normalizeMatch validates and decomposes a raw match string into its
// stripped token and inversion flag.
func normalizeMatch(raw string, groups, aliases *Section) (token string, inverted bool, err error) {
	if strings.HasPrefix(raw, "~~") {
		return "", false, newError(KindInvalidConfig, "double inversion not allowed: %q", raw)
	}
	if raw == "~*" {
		return "", false, newError(KindInvalidConfig, "~* matches nobody and is rejected")
	}
	token = raw
	if strings.HasPrefix(raw, "~") {
		inverted = true
		token = strings.TrimPrefix(raw, "~")
	}

	switch {
	case token == "*":
		// everyone
	case token == "$anonymous", token == "$authenticated":
		// pseudo-principals
	case strings.HasPrefix(token, "$"):
		return "", false, newError(KindInvalidConfig, "unrecognized pseudo-principal %q", token)
	case strings.HasPrefix(token, "@"):
		name := strings.TrimPrefix(token, "@")
		if groups == nil {
			return "", false, newError(KindInvalidConfig, "undefined group %q referenced", token)
		}
		if _, ok := groups.Get(name); !ok {
			return "", false, newError(KindInvalidConfig, "undefined group %q referenced", token)
		}
	case strings.HasPrefix(token, "&"):
		name := strings.TrimPrefix(token, "&")
		if aliases == nil {
			return "", false, newError(KindInvalidConfig, "undefined alias %q referenced", token)
		}
		if _, ok := aliases.Get(name); !ok {
			return "", false, newError(KindInvalidConfig, "undefined alias %q referenced", token)
		}
	case token == "":
		return "", false, newError(KindInvalidConfig, "empty match string")
	}
	return token, inverted, nil
}

// splitSectionName decomposes a section name into an optional repo part and
// a path part. ok is false when the section is not path-rule shaped (the
// part after an optional "repo:" prefix does not start with '/').
func splitSectionName(name string) (repo, path string, ok bool) {
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		repo, path = name[:idx], name[idx+1:]
	} else {
		path = name
	}
	if !strings.HasPrefix(path, "/") {
		return "", "", false
	}
	return repo, path, true
}

func validateCanonicalPath(path string) error {
	if path == "/" {
		return nil
	}
	if strings.HasSuffix(path, "/") {
		return newError(KindInvalidConfig, "non-canonical path %q: trailing slash", path)
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, seg := range segments {
		switch seg {
		case "":
			return newError(KindInvalidConfig, "non-canonical path %q: duplicate '/'", path)
		case ".", "..":
			return newError(KindInvalidConfig, "non-canonical path %q: illegal segment %q", path, seg)
		}
	}
	return nil
}

func splitMembers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
