package authzfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/l0p7/repoauthz/internal/reporef"
)

// Load reads an authz configuration from a local filesystem path or a
// "file://.../path/inside/repo" URL. When mustExist is false and the source
// is missing, Load returns an empty, valid Config rather than an error.
func Load(source string, mustExist bool) (*Config, error) {
	if strings.HasPrefix(source, "file://") || strings.Contains(source, "://") {
		return loadURL(source, mustExist)
	}

	f, err := os.Open(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !mustExist {
				return newConfig(), nil
			}
			return nil, wrapError(KindConfigNotFound, source, err, "authz source not found")
		}
		return nil, wrapError(KindConfigParse, source, err, "open authz source")
	}
	defer f.Close()

	cfg, err := parseInto(newConfig(), f, source)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadURL resolves a "file://.../path/inside/repo" URL to a repository root
// and a path inside it, then loads the file found there. Actual repository
// storage formats are out of scope; internal/reporef models only the
// walk-up-to-root-then-read shape the loader needs.
func loadURL(source string, mustExist bool) (*Config, error) {
	root, rel, err := reporef.Resolve(source)
	if err != nil {
		var rerr *reporef.Error
		if errors.As(err, &rerr) && rerr.Kind == reporef.KindIllegalTarget {
			return nil, wrapError(KindIllegalTarget, source, err, "url does not resolve to a file inside a repository")
		}
		if errors.Is(err, os.ErrNotExist) && !mustExist {
			return newConfig(), nil
		}
		return nil, wrapError(KindConfigNotFound, source, err, "resolve repository url")
	}

	contents, err := reporef.ReadFile(root, rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !mustExist {
				return newConfig(), nil
			}
			return nil, wrapError(KindConfigNotFound, source, err, "authz source not found in repository")
		}
		return nil, wrapError(KindIllegalTarget, source, err, "read authz source from repository")
	}

	return parseInto(newConfig(), strings.NewReader(contents), source)
}

// LoadMerged loads source and, if groupsSource is non-empty, merges its
// [groups] section in -- the same shape Watch's reload path and authzd's
// initial startup load both need, so it lives here once rather than twice.
func LoadMerged(source, groupsSource string, mustExist bool) (*Config, error) {
	cfg, err := Load(source, mustExist)
	if err != nil {
		return nil, err
	}
	if groupsSource == "" {
		return cfg, nil
	}

	groupsCfg, err := Load(groupsSource, true)
	if err != nil {
		return nil, err
	}
	if cfg.HasSection(groupsSectionName) {
		return nil, newError(KindInvalidConfig, "main config declares [groups] while a separate groups source is configured")
	}
	if gs, ok := groupsCfg.Section(groupsSectionName); ok {
		merged := cfg.upsertSection(groupsSectionName)
		for _, k := range gs.Keys() {
			v, _ := gs.Get(k)
			merged.set(k, v)
		}
	}
	return cfg, nil
}

// Parse parses an authz configuration from a stream. If groupsStream is
// non-nil, its "groups" section is merged into the main config's; it is an
// error for the main stream to also declare a "groups" section in that case.
func Parse(stream io.Reader, groupsStream io.Reader) (*Config, error) {
	cfg, err := parseInto(newConfig(), stream, "<config>")
	if err != nil {
		return nil, err
	}
	if groupsStream == nil {
		return cfg, nil
	}

	groupsOnly, err := parseInto(newConfig(), groupsStream, "<groups>")
	if err != nil {
		return nil, err
	}
	if cfg.HasSection(groupsSectionName) {
		return nil, newError(KindInvalidConfig, "main config declares [groups] while a separate groups source was also supplied")
	}
	if gs, ok := groupsOnly.Section(groupsSectionName); ok {
		merged := cfg.upsertSection(groupsSectionName)
		for _, k := range gs.Keys() {
			v, _ := gs.Get(k)
			merged.set(k, v)
		}
	}
	return cfg, nil
}

// parseInto runs the line-based authz grammar over r, accumulating into cfg.
// The grammar is intentionally hand-rolled: section/key ordering must be
// preserved and duplicate keys accumulate by union, neither of which a
// generic structured-config parser (koanf's included) is built to do.
func parseInto(cfg *Config, r io.Reader, source string) (*Config, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current *Section
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			continue
		}

		if strings.HasPrefix(trimmed, "[") {
			if !strings.HasSuffix(trimmed, "]") {
				return nil, wrapError(KindConfigParse, fmt.Sprintf("%s:%d", source, lineNo), nil, "unterminated section header %q", trimmed)
			}
			name := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			if name == "" {
				return nil, wrapError(KindConfigParse, fmt.Sprintf("%s:%d", source, lineNo), nil, "empty section name")
			}
			current = cfg.upsertSection(name)
			continue
		}

		if current == nil {
			return nil, wrapError(KindConfigParse, fmt.Sprintf("%s:%d", source, lineNo), nil, "entry %q outside of any section", trimmed)
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, wrapError(KindConfigParse, fmt.Sprintf("%s:%d", source, lineNo), nil, "malformed entry (expected key = value): %q", trimmed)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, wrapError(KindConfigParse, fmt.Sprintf("%s:%d", source, lineNo), nil, "empty key in entry %q", trimmed)
		}
		current.set(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapError(KindConfigParse, source, err, "read authz source")
	}
	return cfg, nil
}
