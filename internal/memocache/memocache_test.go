package memocache

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/l0p7/repoauthz/internal/authzfile"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, cfg string) *authzfile.Config {
	t.Helper()
	parsed, err := authzfile.Parse(strings.NewReader(cfg), nil)
	require.NoError(t, err)
	return parsed
}

func TestTrieCacheStoreLookup(t *testing.T) {
	cache := NewTrieCache(500 * time.Millisecond)
	parsed := mustParse(t, `
[/trunk]
alice = r
`)
	trie := authzfile.Compile(parsed, "project", authzfile.ResolvePrincipals(parsed, "alice"))

	cache.Store("v1/project/alice", trie)
	got, ok := cache.Lookup("v1/project/alice")
	require.True(t, ok)
	require.Same(t, trie, got)
	require.Equal(t, 1, cache.Size())
}

func TestTrieCacheExpiry(t *testing.T) {
	cache := NewTrieCache(10 * time.Millisecond)
	parsed := mustParse(t, `[/]`)
	trie := authzfile.Compile(parsed, "project", authzfile.ResolvePrincipals(parsed, ""))

	cache.Store("key", trie)
	time.Sleep(20 * time.Millisecond)

	_, ok := cache.Lookup("key")
	require.False(t, ok)
}

func TestTrieCacheDeletePrefix(t *testing.T) {
	cache := NewTrieCache(time.Minute)
	parsed := mustParse(t, `[/]`)
	trie := authzfile.Compile(parsed, "project", authzfile.ResolvePrincipals(parsed, ""))

	cache.Store("v1/project/alice", trie)
	cache.Store("v1/project/bob", trie)
	cache.Store("v2/project/alice", trie)

	cache.DeletePrefix("v1/")

	_, ok := cache.Lookup("v1/project/alice")
	require.False(t, ok)
	_, ok = cache.Lookup("v1/project/bob")
	require.False(t, ok)
	_, ok = cache.Lookup("v2/project/alice")
	require.True(t, ok)
	require.Equal(t, 1, cache.Size())
}

func TestMemoryPrincipalCacheStoreLookup(t *testing.T) {
	cache := NewMemoryPrincipalCache(500 * time.Millisecond)
	ctx := context.Background()

	entry := PrincipalEntry{Members: []string{"alice", "*", "$authenticated"}, StoredAt: time.Now().UTC()}
	entry.ExpiresAt = entry.StoredAt.Add(500 * time.Millisecond)
	require.NoError(t, cache.Store(ctx, "v1/alice", entry))

	got, ok, err := cache.Lookup(ctx, "v1/alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, entry.Members, got.Members)

	require.NoError(t, cache.DeletePrefix(ctx, "v1/"))
	_, ok, err = cache.Lookup(ctx, "v1/alice")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Close(ctx))
}

func TestMemoryPrincipalCacheExpiry(t *testing.T) {
	cache := NewMemoryPrincipalCache(10 * time.Millisecond)
	ctx := context.Background()

	entry := PrincipalEntry{Members: []string{"bob"}, StoredAt: time.Now().UTC()}
	entry.ExpiresAt = entry.StoredAt.Add(10 * time.Millisecond)
	require.NoError(t, cache.Store(ctx, "v1/bob", entry))

	time.Sleep(20 * time.Millisecond)
	_, ok, err := cache.Lookup(ctx, "v1/bob")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryPrincipalCacheDefaultsTTLWhenEntryOmitsExpiry(t *testing.T) {
	cache := NewMemoryPrincipalCache(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "v1/carol", PrincipalEntry{Members: []string{"carol"}}))

	got, ok, err := cache.Lookup(ctx, "v1/carol")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"carol"}, got.Members)

	time.Sleep(30 * time.Millisecond)
	_, ok, err = cache.Lookup(ctx, "v1/carol")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisPrincipalCacheStoreLookup(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	cache, err := NewRedisPrincipalCache(RedisConfig{Address: server.Addr()})
	require.NoError(t, err)
	ctx := context.Background()

	entry := PrincipalEntry{Members: []string{"alice", "*"}, StoredAt: time.Now().UTC()}
	entry.ExpiresAt = entry.StoredAt.Add(500 * time.Millisecond)
	require.NoError(t, cache.Store(ctx, "redis:alice", entry))

	got, ok, err := cache.Lookup(ctx, "redis:alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, entry.Members, got.Members)

	server.FastForward(time.Second)
	_, ok, err = cache.Lookup(ctx, "redis:alice")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Close(ctx))
}

func TestRedisPrincipalCacheRequiresAddress(t *testing.T) {
	_, err := NewRedisPrincipalCache(RedisConfig{})
	require.Error(t, err)
}
