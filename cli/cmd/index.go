package cmd

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/filegeek/filegeek-go/api"
	"github.com/filegeek/filegeek-go/chat"
	"github.com/filegeek/filegeek-go/cli/render"
	"github.com/filegeek/filegeek-go/cli/tui"
	"github.com/filegeek/filegeek-go/iox"
	"github.com/filegeek/filegeek-go/types"
	"github.com/filegeek/filegeek-go/upload"
)

// IndexCommand returns the index command: upload a document into a session
// and follow the indexing task to completion.
func IndexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Index a document into a session",
		ArgsUsage: "<file>",
		Flags: append(CommonFlags(),
			SessionFlag,
			PlainFlag,
			&cli.StringFlag{
				Name:  "file-url",
				Usage: "URL of an already-hosted file (skips the upload)",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Override the stored file name",
			},
			&cli.StringFlag{
				Name:  "file-type",
				Usage: "Override the file type (default: from extension)",
			},
			&cli.BoolFlag{
				Name:  "async",
				Usage: "Submit and print the task id without waiting",
			},
		),
		Action: indexAction,
	}
}

func indexAction(c *cli.Context) error {
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

	sessionID := c.String("session")
	if sessionID == "" {
		return cli.Exit("--session is required", 1)
	}

	req, err := resolveSubmitRequest(ctx, c, d, sessionID)
	if err != nil {
		return err
	}

	if c.Bool("async") {
		return submitAsync(ctx, d, r, sessionID, req)
	}

	var task *types.Task
	if useTUI(c, r) {
		task, err = tui.RunIndex(ctx, req.FileName, func(onProgress func(types.Task)) (*types.Task, error) {
			return submitAndWait(ctx, d.orch, sessionID, req, onProgress)
		})
	} else {
		task, err = submitAndWait(ctx, d.orch, sessionID, req, func(t types.Task) {
			fmt.Fprintf(os.Stderr, "%s (%d%%)\n", t.Phase, t.Progress)
		})
	}
	if err != nil {
		var indexErr *chat.IndexError
		if errors.As(err, &indexErr) {
			return cli.Exit(indexErr.Error(), 1)
		}
		return err
	}

	return r.Task(task)
}

// resolveSubmitRequest builds the submission from either a local file
// (uploaded to object storage first) or an already-hosted URL.
func resolveSubmitRequest(ctx context.Context, c *cli.Context, d *deps, sessionID string) (api.SubmitRequest, error) {
	fileURL := c.String("file-url")
	localPath := c.Args().First()

	switch {
	case fileURL != "" && localPath != "":
		return api.SubmitRequest{}, cli.Exit("pass either a file path or --file-url, not both", 1)
	case fileURL == "" && localPath == "":
		return api.SubmitRequest{}, cli.Exit("a file path or --file-url is required", 1)
	}

	name := c.String("name")
	if fileURL != "" {
		if name == "" {
			name = path.Base(fileURL)
		}
		return api.SubmitRequest{
			FileName: name,
			FileType: resolveFileType(c.String("file-type"), name),
			FileURL:  fileURL,
		}, nil
	}

	if name == "" {
		name = filepath.Base(localPath)
	}

	if d.cfg.Upload.Bucket == "" {
		return api.SubmitRequest{}, cli.Exit("uploading a local file requires upload.bucket in the config", 1)
	}

	uploader, err := upload.NewS3(ctx, upload.S3Config{
		Bucket:        d.cfg.Upload.Bucket,
		Prefix:        d.cfg.Upload.Prefix,
		Region:        d.cfg.Upload.Region,
		Endpoint:      d.cfg.Upload.Endpoint,
		UsePathStyle:  d.cfg.Upload.S3PathStyle,
		PublicBaseURL: d.cfg.Upload.PublicBaseURL,
	})
	if err != nil {
		return api.SubmitRequest{}, err
	}
	defer iox.DiscardClose(uploader)

	f, err := os.Open(localPath)
	if err != nil {
		return api.SubmitRequest{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer iox.DiscardClose(f)

	url, err := uploader.Upload(ctx, sessionID, name, contentTypeOf(name), f)
	if err != nil {
		return api.SubmitRequest{}, fmt.Errorf("upload %s: %w", name, err)
	}

	return api.SubmitRequest{
		FileName: name,
		FileType: resolveFileType(c.String("file-type"), name),
		FileURL:  url,
	}, nil
}

// submitAsync submits without waiting and reports the task id. A server that
// takes the synchronous path completes immediately; report the document then.
func submitAsync(ctx context.Context, d *deps, r *render.Renderer, sessionID string, req api.SubmitRequest) error {
	sub, err := d.orch.SubmitDocument(ctx, sessionID, req, nil)
	if err != nil {
		var indexErr *chat.IndexError
		if errors.As(err, &indexErr) {
			return cli.Exit(indexErr.Error(), 1)
		}
		return err
	}

	if sub.TaskID == "" {
		doc, err := sub.Result()
		if err != nil {
			return err
		}
		return r.Task(&types.Task{Phase: types.PhaseCompleted, Progress: 100, Document: doc})
	}

	return r.Render(map[string]string{"task_id": sub.TaskID})
}

// submitAndWait submits the document and blocks until the submission reaches
// its outcome, normalizing both server paths onto a terminal Task.
func submitAndWait(ctx context.Context, orch *chat.Orchestrator, sessionID string, req api.SubmitRequest, onProgress func(types.Task)) (*types.Task, error) {
	sub, err := orch.SubmitDocument(ctx, sessionID, req, onProgress)
	if err != nil {
		return nil, err
	}

	if sub.TaskID != "" {
		select {
		case <-sub.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	doc, err := sub.Result()
	if err != nil {
		return nil, err
	}
	return &types.Task{
		ID:       sub.TaskID,
		Phase:    types.PhaseCompleted,
		Progress: 100,
		Document: doc,
	}, nil
}

// resolveFileType returns the explicit type or derives it from the file
// extension.
func resolveFileType(explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// contentTypeOf maps a file name to a MIME type for the upload.
func contentTypeOf(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
