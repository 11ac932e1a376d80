package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/filegeek/filegeek-go/chat"
	"github.com/filegeek/filegeek-go/types"
)

// Asker runs questions against a session. Satisfied by *chat.Orchestrator.
type Asker interface {
	Ask(ctx context.Context, sessionID, question string, opts chat.AskOptions) (*types.Exchange, error)
	Cancel(sessionID string) bool
}

// Messages sent from the ask goroutine into the model.
type (
	askTextMsg      string
	askArtifactsMsg int
	askDoneMsg      struct{ exchange *types.Exchange }
	askErrMsg       struct{ err error }
)

// askKeys defines key bindings for the ask view.
type askKeys struct {
	Cancel key.Binding
}

var askKeyMap = askKeys{
	Cancel: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("ctrl+c", "cancel"),
	),
}

// askModel is the Bubble Tea model for a live answer stream.
// The view grows monotonically as text frames arrive; a cancel key press
// asks the orchestrator to stop and the model quits when the run returns.
type askModel struct {
	question string
	cancel   func() bool

	spin      spinner.Model
	text      string
	artifacts int
	canceling bool

	exchange *types.Exchange
	err      error
	done     bool
}

func newAskModel(question string, cancel func() bool) askModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = WarningStyle
	return askModel{
		question: question,
		cancel:   cancel,
		spin:     s,
	}
}

// Init implements tea.Model.
func (m askModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.
func (m askModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, askKeyMap.Cancel) && !m.canceling {
			m.canceling = true
			m.cancel()
		}
		return m, nil

	case askTextMsg:
		m.text = string(msg)
		return m, nil

	case askArtifactsMsg:
		m.artifacts = int(msg)
		return m, nil

	case askDoneMsg:
		m.exchange = msg.exchange
		m.done = true
		return m, tea.Quit

	case askErrMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit

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
func (m askModel) View() string {
	if m.done {
		// Final output is printed by the caller after the program exits.
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("? " + m.question))
	b.WriteString("\n\n")

	if m.text == "" {
		b.WriteString(m.spin.View())
		b.WriteString(MutedStyle.Render("thinking"))
	} else {
		b.WriteString(AnswerStyle.Render(m.text))
	}
	b.WriteString("\n")

	if m.artifacts > 0 {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("\n%d artifact(s) so far", m.artifacts)))
		b.WriteString("\n")
	}

	if m.canceling {
		b.WriteString(ErrorStyle.Render("\ncanceling"))
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render("ctrl+c to cancel"))
	b.WriteString("\n")
	return b.String()
}

// RunAsk streams an answer in a live view and returns the committed exchange.
//
// The sessionID must already be resolved: cancel is keyed by session, so an
// empty id could not be canceled mid-stream. A canceled run returns
// chat.ErrAskCanceled with a nil exchange.
func RunAsk(ctx context.Context, asker Asker, sessionID, question string, opts chat.AskOptions) (*types.Exchange, error) {
	model := newAskModel(question, func() bool { return asker.Cancel(sessionID) })
	p := tea.NewProgram(model, tea.WithContext(ctx))

	go func() {
		opts.OnText = func(text string) { p.Send(askTextMsg(text)) }
		opts.OnArtifacts = func(arts []types.Artifact) { p.Send(askArtifactsMsg(len(arts))) }

		ex, err := asker.Ask(ctx, sessionID, question, opts)
		if err != nil {
			p.Send(askErrMsg{err: err})
			return
		}
		p.Send(askDoneMsg{exchange: ex})
	}()

	final, err := p.Run()
	if err != nil {
		// Program-level failure (terminal teardown, ctx cancel). Make sure
		// the in-flight ask is released before returning.
		asker.Cancel(sessionID)
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, ctx.Err()
		}
		return nil, err
	}

	m, ok := final.(askModel)
	if !ok {
		return nil, errors.New("unexpected model type from ask view")
	}
	return m.exchange, m.err
}
