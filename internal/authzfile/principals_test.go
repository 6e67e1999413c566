package authzfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePrincipalsTransitiveGroups(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
[groups]
devs = alice, bob, @leads
leads = carol

[aliases]
al = alice
`), nil)
	require.NoError(t, err)

	carol := ResolvePrincipals(cfg, "carol")
	require.True(t, carol.Contains("carol"))
	require.True(t, carol.Contains("@leads"))
	require.True(t, carol.Contains("@devs"), "carol should transitively inherit devs through leads")
	require.True(t, carol.Contains("*"))
	require.True(t, carol.Contains("$authenticated"))
	require.False(t, carol.Contains("$anonymous"))

	alice := ResolvePrincipals(cfg, "alice")
	require.True(t, alice.Contains("&al"))
	require.True(t, alice.Contains("@devs"))
	require.False(t, alice.Contains("@leads"))

	dave := ResolvePrincipals(cfg, "dave")
	require.False(t, dave.Contains("@devs"))
	require.True(t, dave.Contains("*"))
	require.True(t, dave.Contains("$authenticated"))

	anon := ResolvePrincipals(cfg, "")
	require.True(t, anon.Contains("*"))
	require.True(t, anon.Contains("$anonymous"))
	require.False(t, anon.Contains("$authenticated"))
}

func TestResolvePrincipalsIdempotent(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
[groups]
devs = alice, @leads
leads = alice
`), nil)
	require.NoError(t, err)

	first := ResolvePrincipals(cfg, "alice")
	second := ResolvePrincipals(cfg, "alice")
	require.ElementsMatch(t, first.Members(), second.Members())
}
