package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

func TestSearchCmd_TextOutput(t *testing.T) {
	// Given: an indexed project
	root := buildTestIndex(t)
	t.Chdir(root)
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	// When: searching for login handling
	err := runSearch(t.Context(), cmd, "validate login credentials", 5, false)

	// Then: the ranked list names the matching file with a score
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "auth.py")
	assert.Contains(t, output, "score")
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	root := buildTestIndex(t)
	t.Chdir(root)
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	err := runSearch(t.Context(), cmd, "add two numbers", 5, true)
	require.NoError(t, err)

	var results []searchResultJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "math.py", results[0].Path)
	assert.Greater(t, results[0].Score, 0.0)
	assert.Positive(t, results[0].StartLine)
}

func TestSearchCmd_NoIndex(t *testing.T) {
	root := newTestProject(t)
	t.Chdir(root)
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	err := runSearch(t.Context(), cmd, "anything", 5, false)
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeIndexNotBuilt, qaerrors.GetCode(err))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "def foo():", firstLine("def foo():\n    pass\n"))
	assert.Equal(t, "one line", firstLine("  one line  "))
	assert.Equal(t, "", firstLine("\n\n"))

	long := firstLine(strings.Repeat("y", 150))
	assert.Len(t, long, 103)
	assert.True(t, strings.HasSuffix(long, "..."))
}
