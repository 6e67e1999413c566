package authzfile

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Authz is an immutable, validated authz document plus a content-derived
// version identifier callers can use as part of a memoization key (see
// spec.md §4.6 and §5).
type Authz struct {
	cfg     *Config
	version string
}

// New validates cfg and wraps it for querying. The version is a stable hash
// over the config's contents so callers (internal/memocache) can detect a
// reload without comparing the whole structure.
func New(cfg *Config) (*Authz, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &Authz{cfg: cfg, version: fingerprint(cfg)}, nil
}

// Version identifies this Config's content for memoization keys.
func (a *Authz) Version() string { return a.version }

// Principals resolves the principal set for user ("" meaning anonymous).
func (a *Authz) Principals(user string) PrincipalSet {
	return ResolvePrincipals(a.cfg, user)
}

// Compile builds a finalized trie for (repo, principals).
func (a *Authz) Compile(repo string, principals PrincipalSet) *Trie {
	return Compile(a.cfg, repo, principals)
}

// CheckAccess is the top-level query interface from spec.md §4.6: resolve
// principals, compile the trie, and look up path. path == nil means "does
// the user have any such access anywhere" (spec.md §4.5's special case).
func (a *Authz) CheckAccess(repo string, path *string, user string, required Rights, recursive bool) (bool, error) {
	if path != nil && *path != "" && !strings.HasPrefix(*path, "/") {
		return false, newError(KindInvalidArgument, "path %q must start with '/'", *path)
	}
	principals := a.Principals(user)
	trie := a.Compile(repo, principals)
	return trie.Lookup(path, required, recursive), nil
}

// fingerprint hashes the config's sections, keys, and values in order, so
// two Configs with identical content (however loaded) produce the same
// version.
func fingerprint(cfg *Config) string {
	h := sha256.New()
	for _, name := range cfg.SectionNames() {
		h.Write([]byte("["))
		h.Write([]byte(name))
		h.Write([]byte("]\n"))
		section, _ := cfg.Section(name)
		for _, key := range section.Keys() {
			value, _ := section.Get(key)
			h.Write([]byte(key))
			h.Write([]byte("="))
			h.Write([]byte(value))
			h.Write([]byte("\n"))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
