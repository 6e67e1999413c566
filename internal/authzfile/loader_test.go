package authzfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOrderingAndAccumulation(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
[groups]
devs = alice, bob

[/trunk]
alice = r
alice = w
`), nil)
	require.NoError(t, err)

	section, ok := cfg.Section("/trunk")
	require.True(t, ok)
	value, ok := section.Get("alice")
	require.True(t, ok)
	rights, err := ParseRights(value)
	require.NoError(t, err)
	require.Equal(t, Read|Write, rights, "duplicate keys in one section accumulate by union")

	require.Equal(t, []string{"groups", "/trunk"}, cfg.SectionNames())
}

func TestParseMergesGroupsOnlySource(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
[/]
@devs = r
`), strings.NewReader(`
[groups]
devs = alice
`))
	require.NoError(t, err)

	groups, ok := cfg.Section("groups")
	require.True(t, ok)
	val, ok := groups.Get("devs")
	require.True(t, ok)
	require.Equal(t, "alice", val)
}

func TestParseRejectsGroupsInBothSources(t *testing.T) {
	_, err := Parse(strings.NewReader(`
[groups]
devs = alice
`), strings.NewReader(`
[groups]
devs = bob
`))
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidConfig))
}

func TestLoadMissingFileMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.conf"), true)
	require.Error(t, err)
	require.True(t, IsKind(err, KindConfigNotFound))
}

func TestLoadMissingFileOptional(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.conf"), false)
	require.NoError(t, err)
	require.Empty(t, cfg.SectionNames())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authz")
	require.NoError(t, os.WriteFile(path, []byte("[/]\n* = r\n"), 0o644))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	section, ok := cfg.Section("/")
	require.True(t, ok)
	val, ok := section.Get("*")
	require.True(t, ok)
	require.Equal(t, "r", val)
}

func TestParseMalformedEntry(t *testing.T) {
	_, err := Parse(strings.NewReader(`
[/]
not-an-entry
`), nil)
	require.Error(t, err)
	require.True(t, IsKind(err, KindConfigParse))
}

func TestParseEntryOutsideSection(t *testing.T) {
	_, err := Parse(strings.NewReader("alice = r\n"), nil)
	require.Error(t, err)
	require.True(t, IsKind(err, KindConfigParse))
}

func TestParseEmptyValueMeansNoRights(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
[/secret]
* =
`), nil)
	require.NoError(t, err)
	section, _ := cfg.Section("/secret")
	val, ok := section.Get("*")
	require.True(t, ok)
	rights, err := ParseRights(val)
	require.NoError(t, err)
	require.Equal(t, Rights(0), rights)
}
