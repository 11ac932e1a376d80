package cmd

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
)

// FeedbackCommand returns the feedback command: rate an answer by its
// message id.
func FeedbackCommand() *cli.Command {
	return &cli.Command{
		Name:      "feedback",
		Usage:     "Rate an answer as helpful or unhelpful",
		ArgsUsage: "<message-id>",
		Flags: append(CommonFlags(),
			&cli.BoolFlag{
				Name:  "helpful",
				Usage: "Mark the answer helpful (default)",
			},
			&cli.BoolFlag{
				Name:  "unhelpful",
				Usage: "Mark the answer unhelpful",
			},
			&cli.StringFlag{
				Name:  "comment",
				Usage: "Free-form feedback comment",
			},
		),
		Action: feedbackAction,
	}
}

func feedbackAction(c *cli.Context) error {
	raw := c.Args().First()
	if raw == "" {
		return cli.Exit("a message id is required", 1)
	}
	messageID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid message id: %q", raw), 1)
	}

	if c.Bool("helpful") && c.Bool("unhelpful") {
		return cli.Exit("pass --helpful or --unhelpful, not both", 1)
	}
	helpful := !c.Bool("unhelpful")

	d, err := buildDeps(c)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.client.Feedback(c.Context, messageID, helpful, c.String("comment")); err != nil {
		return err
	}

	fmt.Println("feedback recorded")
	return nil
}
