package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/filegeek/filegeek-go/types"
)

// Messages sent from the indexing goroutine into the model.
type (
	indexProgressMsg types.Task
	indexDoneMsg     struct{ task *types.Task }
	indexErrMsg      struct{ err error }
)

// indexModel is the Bubble Tea model for a background indexing task.
// Progress reports move the bar forward; the model quits on the terminal
// state. There is no cancel binding: submitted work keeps running server-side.
type indexModel struct {
	fileName string

	spin  spinner.Model
	bar   progress.Model
	phase types.Phase

	task *types.Task
	err  error
	done bool
}

func newIndexModel(fileName string) indexModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = WarningStyle
	return indexModel{
		fileName: fileName,
		spin:     s,
		bar:      progress.New(progress.WithDefaultGradient()),
		phase:    types.PhaseQueued,
	}
}

// Init implements tea.Model.
func (m indexModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.
func (m indexModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case indexProgressMsg:
		task := types.Task(msg)
		m.phase = task.Phase
		return m, m.bar.SetPercent(float64(task.Progress) / 100)

	case indexDoneMsg:
		m.task = msg.task
		m.done = true
		return m, tea.Quit

	case indexErrMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		if b, ok := bar.(progress.Model); ok {
			m.bar = b
		}
		return m, cmd

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m indexModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Indexing " + m.fileName))
	b.WriteString("\n\n")
	b.WriteString(m.bar.View())
	b.WriteString("\n\n")
	b.WriteString(m.spin.View())
	b.WriteString(PhaseStyle(m.phase).Render(string(m.phase)))
	b.WriteString("\n")
	return b.String()
}

// RunIndex shows a live progress view for a document submission. The start
// function does the actual work and reports intermediate states through the
// onProgress callback; its return value becomes RunIndex's result.
func RunIndex(ctx context.Context, fileName string, start func(onProgress func(types.Task)) (*types.Task, error)) (*types.Task, error) {
	p := tea.NewProgram(newIndexModel(fileName), tea.WithContext(ctx))

	go func() {
		task, err := start(func(t types.Task) { p.Send(indexProgressMsg(t)) })
		if err != nil {
			p.Send(indexErrMsg{err: err})
			return
		}
		p.Send(indexDoneMsg{task: task})
	}()

	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, ctx.Err()
		}
		return nil, err
	}

	m, ok := final.(indexModel)
	if !ok {
		return nil, fmt.Errorf("unexpected model type from index view")
	}
	return m.task, m.err
}
