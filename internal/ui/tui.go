package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer drives a bubbletea program showing the pipeline stages,
// a progress bar and a spinner.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *buildModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates the interactive renderer. Call Start before
// sending updates.
func NewTUIRenderer(cfg Config) *TUIRenderer {
	model := newBuildModel(cfg.ProjectDir)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}
}

func (r *TUIRenderer) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program == nil {
		return nil
	}
	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		// Don't hang shutdown on an unresponsive terminal.
	}
	return nil
}

type progressMsg ProgressEvent
type completeMsg CompletionStats

// buildModel is the bubbletea model for a running build.
type buildModel struct {
	projectDir string
	styles     Styles
	spinner    spinner.Model
	bar        progress.Model
	width      int

	event    ProgressEvent
	complete bool
	stats    CompletionStats
	quitting bool
}

func newBuildModel(projectDir string) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent))

	bar := progress.New(
		progress.WithSolidFill(colorAccent),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &buildModel{
		projectDir: projectDir,
		styles:     DefaultStyles(),
		spinner:    s,
		bar:        bar,
		width:      80,
	}
}

func (m *buildModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(msg.Width-20, 60)
		if m.bar.Width < 20 {
			m.bar.Width = 20
		}

	case progressMsg:
		m.event = ProgressEvent(msg)
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *buildModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return fmt.Sprintf("%s %d files, %d chunks in %s\n",
			m.styles.Header.Render("Indexed"),
			m.stats.Files, m.stats.Chunks,
			m.stats.Duration.Round(100*time.Millisecond))
	}

	var b strings.Builder
	title := "codeqa index"
	if m.projectDir != "" {
		title = "codeqa index " + m.projectDir
	}
	b.WriteString(m.styles.Header.Render(title))
	b.WriteString("\n\n")
	b.WriteString(m.renderStages())
	b.WriteString("\n\n")

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	if m.event.Total > 0 {
		b.WriteString(m.bar.ViewAs(float64(m.event.Current) / float64(m.event.Total)))
		b.WriteString(m.styles.Label.Render(fmt.Sprintf(" %d/%d", m.event.Current, m.event.Total)))
	} else {
		b.WriteString(m.styles.Label.Render(m.event.Stage.String()))
	}
	if m.event.Message != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Label.Render(m.event.Message))
	}
	b.WriteString("\n")

	return m.styles.Panel.Render(b.String()) + "\n"
}

// renderStages shows the pipeline with the active stage highlighted.
func (m *buildModel) renderStages() string {
	stages := []Stage{StageScanning, StageChunking, StageEmbedding, StageWriting}
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		label := s.String()
		if s == m.event.Stage {
			parts = append(parts, m.styles.Active.Render("["+label+"]"))
		} else {
			parts = append(parts, m.styles.Stage.Render(label))
		}
	}
	return strings.Join(parts, m.styles.Stage.Render(" > "))
}
