package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/filegeek/filegeek-go/cli/render"
	"github.com/filegeek/filegeek-go/history"
	"github.com/filegeek/filegeek-go/types"
)

// sessionRow is the thin list-view shape: enough to pick a session, nothing
// more.
type sessionRow struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Preview string `json:"preview"`
	Updated string `json:"updated"`
}

// SessionsCommand returns the sessions command with subcommands.
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage chat sessions",
		Subcommands: []*cli.Command{
			sessionsListCommand(),
			sessionsShowCommand(),
			sessionsCreateCommand(),
			sessionsDeleteCommand(),
			sessionsHistoryCommand(),
		},
	}
}

func sessionsListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List sessions",
		Flags:  CommonFlags(),
		Action: sessionsListAction,
	}
}

func sessionsListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	d, err := buildDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	sessions, err := d.client.ListSessions(c.Context)
	if err != nil {
		// Offline fallback: the cached list is stale but better than nothing.
		if d.cache != nil {
			cached, cacheErr := d.cache.Load()
			if cacheErr == nil && cached != nil {
				fmt.Fprintln(os.Stderr, "warning: backend unreachable, showing cached sessions")
				return r.Render(sessionRows(cached))
			}
		}
		return err
	}

	if d.cache != nil {
		if err := d.cache.Save(sessions); err != nil {
			d.logger.Warn("session cache save failed", map[string]any{"error": err.Error()})
		}
	}

	return r.Render(sessionRows(sessions))
}

func sessionsShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one session with its exchanges",
		ArgsUsage: "<session-id>",
		Flags:     CommonFlags(),
		Action:    sessionsShowAction,
	}
}

func sessionsShowAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	sessionID := c.Args().First()
	if sessionID == "" {
		return cli.Exit("a session id is required", 1)
	}

	d, err := buildDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	sess, err := d.client.GetSession(c.Context, sessionID)
	if err != nil {
		return err
	}

	return r.Render(sess)
}

func sessionsCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a session",
		Flags: append(CommonFlags(),
			&cli.StringFlag{
				Name:     "title",
				Usage:    "Session title",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "persona",
				Usage: "Answering persona",
			},
		),
		Action: sessionsCreateAction,
	}
}

func sessionsCreateAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	d, err := buildDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	sess, err := d.client.CreateSession(c.Context, c.String("title"), c.String("persona"))
	if err != nil {
		return err
	}

	invalidateCache(d)
	return r.Render(sess)
}

func sessionsDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a session",
		ArgsUsage: "<session-id>",
		Flags:     CommonFlags(),
		Action:    sessionsDeleteAction,
	}
}

func sessionsDeleteAction(c *cli.Context) error {
	sessionID := c.Args().First()
	if sessionID == "" {
		return cli.Exit("a session id is required", 1)
	}

	d, err := buildDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.client.DeleteSession(c.Context, sessionID); err != nil {
		return err
	}

	invalidateCache(d)
	fmt.Printf("deleted %s\n", sessionID)
	return nil
}

func sessionsHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show locally archived exchanges for a session",
		ArgsUsage: "<session-id>",
		Flags:     CommonFlags(),
		Action:    sessionsHistoryAction,
	}
}

func sessionsHistoryAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	sessionID := c.Args().First()
	if sessionID == "" {
		return cli.Exit("a session id is required", 1)
	}

	d, err := buildDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.archive == nil {
		return cli.Exit("local history is not configured (set history.path)", 1)
	}

	exchanges, err := d.archive.Exchanges(c.Context, sessionID)
	if err != nil {
		if errors.Is(err, history.ErrNoHistory) {
			return cli.Exit(fmt.Sprintf("no local history for session %s", sessionID), 1)
		}
		return err
	}

	if r.Format() != render.FormatText {
		return r.Render(exchanges)
	}
	for i := range exchanges {
		ex := &exchanges[i]
		fmt.Printf("? %s\n", ex.Question)
		if err := r.Answer(ex); err != nil {
			return err
		}
		fmt.Println()
	}
	return nil
}

func sessionRows(sessions []types.Session) []sessionRow {
	rows := make([]sessionRow, 0, len(sessions))
	for _, s := range sessions {
		updated := ""
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Format(time.RFC3339)
		}
		rows = append(rows, sessionRow{
			ID:      s.ID,
			Title:   s.Title,
			Preview: s.Preview,
			Updated: updated,
		})
	}
	return rows
}

func invalidateCache(d *deps) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Invalidate(); err != nil {
		d.logger.Warn("session cache invalidation failed", map[string]any{"error": err.Error()})
	}
}
