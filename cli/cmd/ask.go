package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/urfave/cli/v2"

	"github.com/filegeek/filegeek-go/chat"
	"github.com/filegeek/filegeek-go/cli/render"
	"github.com/filegeek/filegeek-go/cli/tui"
	"github.com/filegeek/filegeek-go/types"
)

// maxDerivedTitleLen bounds session titles derived from the first question.
const maxDerivedTitleLen = 48

// AskCommand returns the ask command.
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a question against a session's documents",
		ArgsUsage: "<question>",
		Flags: append(CommonFlags(),
			SessionFlag,
			PlainFlag,
			&cli.StringFlag{
				Name:  "model",
				Usage: "Model override (default: server's choice)",
			},
			&cli.BoolFlag{
				Name:  "deep-think",
				Usage: "Request the slower, higher-effort answer path",
			},
			&cli.BoolFlag{
				Name:  "no-stream",
				Usage: "Skip streaming, ask for the full answer in one response",
			},
		),
		Action: askAction,
	}
}

func askAction(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return cli.Exit("a question is required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	d, err := buildDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := c.Context

	// Resolve the session up front so cancel has a key to target.
	sessionID := c.String("session")
	created := false
	if sessionID == "" {
		sess, err := d.client.CreateSession(ctx, deriveTitle(question), "")
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = sess.ID
		created = true
	}

	opts := chat.AskOptions{
		DeepThink: c.Bool("deep-think") || d.cfg.Ask.DeepThink,
		Model:     c.String("model"),
		NoStream:  c.Bool("no-stream"),
	}
	if opts.Model == "" {
		opts.Model = d.cfg.Ask.Model
	}

	ex, askErr := askWithView(ctx, c, d, r, sessionID, question, opts)
	if askErr != nil {
		if errors.Is(askErr, chat.ErrAskCanceled) {
			return cli.Exit("canceled", 130)
		}
		var answerErr *chat.AnswerError
		if errors.As(askErr, &answerErr) {
			return cli.Exit(answerErr.Error(), 1)
		}
		return askErr
	}

	if created {
		fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	}

	return r.Answer(ex)
}

// askWithView runs the ask through the live TUI on a TTY, or directly with
// signal-driven cancel otherwise.
func askWithView(ctx context.Context, c *cli.Context, d *deps, r *render.Renderer, sessionID, question string, opts chat.AskOptions) (*types.Exchange, error) {
	if useTUI(c, r) {
		return tui.RunAsk(ctx, d.orch, sessionID, question, opts)
	}

	// Plain mode: first interrupt cancels the ask cooperatively.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		if _, ok := <-sigCh; ok {
			d.orch.Cancel(sessionID)
		}
	}()

	return d.orch.Ask(ctx, sessionID, question, opts)
}

// useTUI reports whether the live view should run: text format on a TTY,
// unless --plain opted out.
func useTUI(c *cli.Context, r *render.Renderer) bool {
	return r.Format() == render.FormatText && !c.Bool("plain") && render.IsTTY(os.Stdout)
}

// deriveTitle builds a session title from the first question.
func deriveTitle(question string) string {
	title := strings.TrimSpace(question)
	if utf8.RuneCountInString(title) <= maxDerivedTitleLen {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxDerivedTitleLen])) + "…"
}
