package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

func TestStatusCmd_TextOutput(t *testing.T) {
	// Given: an indexed project
	root := buildTestIndex(t)
	t.Chdir(root)
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	// When: showing status
	err := runStatus(t.Context(), cmd, false)

	// Then: counts, embedder identity, and the build counter appear
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Files:     2")
	assert.Contains(t, output, "static/fnv-256")
	assert.Contains(t, output, "consistent")
	assert.Contains(t, output, "index_builds")
}

func TestStatusCmd_JSONOutput(t *testing.T) {
	root := buildTestIndex(t)
	t.Chdir(root)
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	err := runStatus(t.Context(), cmd, true)
	require.NoError(t, err)

	var info statusInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, 2, info.Files)
	assert.Greater(t, info.Chunks, 0)
	assert.Equal(t, "static/fnv-256", info.EmbedderModel)
	assert.Equal(t, 256, info.Dimensions)
	assert.True(t, info.Consistent)
	assert.Equal(t, int64(1), info.Counters["index_builds"])
}

func TestStatusCmd_NoIndex(t *testing.T) {
	root := newTestProject(t)
	t.Chdir(root)
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	err := runStatus(t.Context(), cmd, false)
	require.Error(t, err)
	assert.Equal(t, qaerrors.ErrCodeIndexNotBuilt, qaerrors.GetCode(err))
}
