package reporef

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRepo(t *testing.T, rel string, contents string) (root, file string) {
	t.Helper()
	root = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, RootMarker), []byte{}, 0o644))

	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
	return root, full
}

func TestResolveFindsDirectRoot(t *testing.T) {
	root, file := writeRepo(t, "authz.conf", "[/]\n")

	gotRoot, rel, err := Resolve("file://" + file)
	require.NoError(t, err)
	require.Equal(t, root, gotRoot)
	require.Equal(t, "authz.conf", rel)
}

func TestResolveWalksUpToRoot(t *testing.T) {
	root, file := writeRepo(t, filepath.Join("conf", "authz", "rules.conf"), "[/]\n")

	gotRoot, rel, err := Resolve("file://" + file)
	require.NoError(t, err)
	require.Equal(t, root, gotRoot)
	require.Equal(t, "conf/authz/rules.conf", rel)
}

func TestResolveRejectsDirectory(t *testing.T) {
	root, _ := writeRepo(t, "authz.conf", "[/]\n")

	_, _, err := Resolve("file://" + root)
	require.Error(t, err)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, KindIllegalTarget, rerr.Kind)
}

func TestResolveRejectsMissingRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "authz.conf")
	require.NoError(t, os.WriteFile(file, []byte("[/]\n"), 0o644))

	_, _, err := Resolve("file://" + file)
	require.Error(t, err)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, KindIllegalTarget, rerr.Kind)
}

func TestResolveRejectsNonFileScheme(t *testing.T) {
	_, _, err := Resolve("https://example.com/authz.conf")
	require.Error(t, err)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, KindIllegalTarget, rerr.Kind)
}

func TestResolveReturnsNotExistForMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Resolve("file://" + filepath.Join(dir, "missing.conf"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadFileReadsRelativeToRoot(t *testing.T) {
	root, _ := writeRepo(t, "authz.conf", "[/]\nalice = rw\n")

	contents, err := ReadFile(root, "authz.conf")
	require.NoError(t, err)
	require.Equal(t, "[/]\nalice = rw\n", contents)
}

func TestReadFileRejectsEscapingPaths(t *testing.T) {
	root, _ := writeRepo(t, "authz.conf", "[/]\n")

	_, err := ReadFile(root, "../outside.conf")
	require.Error(t, err)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, KindIllegalTarget, rerr.Kind)
}

func TestReadFileReturnsNotExistForMissingFile(t *testing.T) {
	root, _ := writeRepo(t, "authz.conf", "[/]\n")

	_, err := ReadFile(root, "missing.conf")
	require.True(t, errors.Is(err, os.ErrNotExist))
}
