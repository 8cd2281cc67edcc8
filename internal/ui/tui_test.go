package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildModel_ProgressUpdatesView(t *testing.T) {
	m := newBuildModel("/tmp/project")

	updated, _ := m.Update(progressMsg{Stage: StageEmbedding, Current: 5, Total: 20})
	model := updated.(*buildModel)

	view := model.View()
	assert.Contains(t, view, "codeqa index")
	assert.Contains(t, view, "5/20")
	assert.Contains(t, view, "Embedding")
}

func TestBuildModel_CompleteQuits(t *testing.T) {
	m := newBuildModel("")

	updated, cmd := m.Update(completeMsg{Files: 3, Chunks: 9, Duration: time.Second})
	model := updated.(*buildModel)

	require.NotNil(t, cmd, "complete must schedule tea.Quit")
	assert.True(t, model.complete)
	assert.Contains(t, model.View(), "3 files, 9 chunks")
}

func TestBuildModel_QuitKeys(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c"} {
		t.Run(key, func(t *testing.T) {
			m := newBuildModel("")

			var msg tea.KeyMsg
			if key == "ctrl+c" {
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			} else {
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
			}
			updated, cmd := m.Update(msg)
			model := updated.(*buildModel)

			require.NotNil(t, cmd)
			assert.True(t, model.quitting)
			assert.Equal(t, "Cancelled.\n", model.View())
		})
	}
}

func TestBuildModel_ResizeClampsBar(t *testing.T) {
	m := newBuildModel("")

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 24, Height: 10})
	model := updated.(*buildModel)

	assert.GreaterOrEqual(t, model.bar.Width, 20)
}
