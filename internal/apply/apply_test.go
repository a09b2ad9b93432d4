package apply

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestApplyCopiesAndDeletes(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, src, "a.txt", "new file")
	writeFile(t, src, "sub/dir/b.txt", "nested")
	writeFile(t, dst, "c.txt", "to be deleted")

	sum, err := NewApplier(testLogger()).Apply(src, dst,
		[]string{"a.txt", "sub/dir/b.txt"},
		[]string{"c.txt"})
	require.NoError(t, err)

	assert.Equal(t, Summary{Copied: 2, Deleted: 1, Skipped: 0}, sum)

	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new file", string(data))

	data, err = os.ReadFile(filepath.Join(dst, "sub/dir/b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))

	_, err = os.Stat(filepath.Join(dst, "c.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyPreservesMetadata(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	path := writeFile(t, src, "tool.sh", "#!/bin/sh\n")
	require.NoError(t, os.Chmod(path, 0755))
	srcInfo, err := os.Stat(path)
	require.NoError(t, err)

	_, err = NewApplier(testLogger()).Apply(src, dst, []string{"tool.sh"}, nil)
	require.NoError(t, err)

	dstInfo, err := os.Stat(filepath.Join(dst, "tool.sh"))
	require.NoError(t, err)
	assert.Equal(t, srcInfo.Mode().Perm(), dstInfo.Mode().Perm())
	assert.True(t, srcInfo.ModTime().Equal(dstInfo.ModTime()))
}

func TestApplySkipsMissingSource(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, src, "exists.txt", "here")

	sum, err := NewApplier(testLogger()).Apply(src, dst,
		[]string{"exists.txt", "vanished.txt"}, nil)
	require.NoError(t, err)

	assert.Equal(t, Summary{Copied: 1, Deleted: 0, Skipped: 1}, sum)
}

func TestApplyDeleteAbsentIsNoop(t *testing.T) {
	sum, err := NewApplier(testLogger()).Apply(t.TempDir(), t.TempDir(),
		nil, []string{"never-existed.txt"})
	require.NoError(t, err)

	assert.Equal(t, Summary{}, sum)
}

func TestApplyIdempotent(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, src, "a.txt", "content a")
	writeFile(t, src, "b.txt", "content b")
	writeFile(t, dst, "old.txt", "stale")

	applier := NewApplier(testLogger())
	copyList := []string{"a.txt", "b.txt"}
	deleteList := []string{"old.txt"}

	first, err := applier.Apply(src, dst, copyList, deleteList)
	require.NoError(t, err)
	assert.Equal(t, Summary{Copied: 2, Deleted: 1}, first)

	// Second run finds identical content and absent delete targets: it
	// must not error, not change the tree, and report zero work.
	second, err := applier.Apply(src, dst, copyList, deleteList)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, second)

	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content a", string(data))
}

func TestApplyCopiesBeforeDeletes(t *testing.T) {
	// If the same path erroneously shows up in both lists the final state
	// must be "deleted".
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, src, "both.txt", "content")

	sum, err := NewApplier(testLogger()).Apply(src, dst,
		[]string{"both.txt"}, []string{"both.txt"})
	require.NoError(t, err)

	assert.Equal(t, Summary{Copied: 1, Deleted: 1}, sum)
	_, err = os.Stat(filepath.Join(dst, "both.txt"))
	assert.True(t, os.IsNotExist(err))
}
