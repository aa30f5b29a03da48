package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docindex-mcp/pkg/types"
)

func TestDiscover_DefaultExtensions(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "b.pdf", "x")
	createTestFile(t, dir, "a.md", "x")
	createTestFile(t, dir, "main.go", "x")
	createTestFile(t, dir, "archive.zip", "x")

	files, err := Discover(dir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "b.pdf")}, files)
}

func TestDiscover_EmptyDirectory(t *testing.T) {
	files, err := Discover(t.TempDir(), true, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

// TestDiscover_ExtensionFilter verifies matching is case-insensitive and
// accepts extensions without a leading dot
func TestDiscover_ExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "REPORT.PDF", "x")
	createTestFile(t, dir, "notes.txt", "x")

	files, err := Discover(dir, false, []string{"pdf"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "REPORT.PDF")}, files)
}

func TestDiscover_Recursive(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "top.txt", "x")
	createTestFile(t, dir, "a/one.txt", "x")
	createTestFile(t, dir, "a/b/two.txt", "x")

	flat, err := Discover(dir, false, nil)
	require.NoError(t, err)
	assert.Len(t, flat, 1)

	deep, err := Discover(dir, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a", "b", "two.txt"),
		filepath.Join(dir, "a", "one.txt"),
		filepath.Join(dir, "top.txt"),
	}, deep)
}

func TestDiscover_SkipHidden(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, ".secret.txt", "x")
	createTestFile(t, dir, ".git/config.txt", "x")
	createTestFile(t, dir, "visible.txt", "x")

	files, err := Discover(dir, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "visible.txt")}, files)
}

func TestDiscover_SkipSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := createTestFile(t, t.TempDir(), "outside.txt", "x")
	if err := os.Symlink(target, filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	createTestFile(t, dir, "real.txt", "x")

	files, err := Discover(dir, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "real.txt")}, files)
}

func TestDiscover_SymlinkedRoot(t *testing.T) {
	real := t.TempDir()
	createTestFile(t, real, "a.pdf", "x")
	createTestFile(t, real, "sub/b.pdf", "x")

	link := filepath.Join(t.TempDir(), "docs")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	flat, err := Discover(link, false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(link, "a.pdf")}, flat)

	deep, err := Discover(link, true, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(link, "a.pdf"),
		filepath.Join(link, "sub", "b.pdf"),
	}, deep)
}

func TestDiscover_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	_, err := Discover(missing, true, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPathNotFound)

	var de *types.DiscoveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, missing, de.Root)

	file := createTestFile(t, t.TempDir(), "a.txt", "x")
	_, err = Discover(file, false, nil)
	assert.ErrorIs(t, err, types.ErrNotDirectory)
}

func TestNormalizeExtensions(t *testing.T) {
	assert.Equal(t, []string{".pdf", ".md"}, NormalizeExtensions([]string{"PDF", " .md ", ""}))
	assert.Empty(t, NormalizeExtensions(nil))
}
