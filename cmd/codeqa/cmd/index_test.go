package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeqa/codeqa/internal/index"
	"github.com/codeqa/codeqa/internal/store"
)

const testConfigYAML = `embeddings:
  provider: static
completion:
  provider: static
`

// newTestProject creates a small project on disk, configured for the
// offline static providers.
func newTestProject(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir()) // keep log files out of the real home

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".codeqa.yaml"), []byte(testConfigYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "auth.py"),
		[]byte("def login(user, password):\n    \"\"\"Validate login credentials.\"\"\"\n    return check(user, password)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "math.py"),
		[]byte("def add_numbers(a, b):\n    \"\"\"Add two numbers together.\"\"\"\n    return a + b\n"), 0o644))
	return root
}

// buildTestIndex indexes the project and returns its root.
func buildTestIndex(t *testing.T) string {
	t.Helper()
	root := newTestProject(t)

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	require.NoError(t, runIndex(t.Context(), cmd, root, true, false))
	return root
}

func TestIndexCmd_BuildsIndex(t *testing.T) {
	// Given: a project with two source files
	root := newTestProject(t)
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	// When: indexing it
	err := runIndex(t.Context(), cmd, root, true, false)

	// Then: a snapshot is published with both files chunked
	require.NoError(t, err)

	snap, err := index.OpenSnapshot(t.Context(), filepath.Join(root, ".codeqa"), store.BM25Config{})
	require.NoError(t, err)
	defer snap.Close()

	files, err := snap.Meta.FileCount(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, files)

	chunks, err := snap.ChunkCount(t.Context())
	require.NoError(t, err)
	assert.Greater(t, chunks, 0)
	assert.Equal(t, "static/fnv-256", snap.EmbedderModel)
}

func TestIndexCmd_ForceRebuild(t *testing.T) {
	// Given: an already indexed project
	root := buildTestIndex(t)
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	// When: rebuilding with --force
	err := runIndex(t.Context(), cmd, root, true, true)

	// Then: the rebuild succeeds and the index is still queryable
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Cleared existing index")

	snap, err := index.OpenSnapshot(t.Context(), filepath.Join(root, ".codeqa"), store.BM25Config{})
	require.NoError(t, err)
	defer snap.Close()

	files, err := snap.Meta.FileCount(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, files)
}

func TestIndexCmd_PathNotADirectory(t *testing.T) {
	root := newTestProject(t)
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	err := runIndex(t.Context(), cmd, filepath.Join(root, "auth.py"), true, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestClearIndexData(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "index"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "index", "metadata.db"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "index.staging"), 0o755))

	require.NoError(t, clearIndexData(dataDir))

	_, err := os.Stat(filepath.Join(dataDir, "index"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dataDir, "index.staging"))
	assert.True(t, os.IsNotExist(err))
}
