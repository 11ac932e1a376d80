package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/filegeek/filegeek-go/api"
	"github.com/filegeek/filegeek-go/auth"
	"github.com/filegeek/filegeek-go/chat"
	"github.com/filegeek/filegeek-go/cli/config"
	"github.com/filegeek/filegeek-go/history"
	"github.com/filegeek/filegeek-go/iox"
	"github.com/filegeek/filegeek-go/log"
	"github.com/filegeek/filegeek-go/metrics"
	"github.com/filegeek/filegeek-go/push"
	"github.com/filegeek/filegeek-go/push/redispush"
	"github.com/filegeek/filegeek-go/track"
)

// deps is the wired protocol stack for one command invocation.
type deps struct {
	cfg       *config.Config
	logger    *log.Logger
	collector *metrics.Collector

	client     *api.Client
	subscriber push.Subscriber // nil when push is disabled
	tracker    *track.Tracker
	archive    *history.Archive // nil when local history is disabled
	cache      *history.Cache   // nil when the session cache is disabled
	orch       *chat.Orchestrator
}

// Close releases connections. Safe to call on a partially built deps.
func (d *deps) Close() {
	if d.subscriber != nil {
		iox.DiscardClose(d.subscriber)
	}
	if d.archive != nil {
		iox.DiscardClose(d.archive)
	}
	if d.client != nil {
		iox.DiscardClose(d.client)
	}
}

// buildDeps loads config and wires the full stack: API client, push
// subscriber, progress tracker, local history, and the orchestrator.
func buildDeps(c *cli.Context) (*deps, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	d := &deps{
		cfg:       cfg,
		logger:    log.Nop(),
		collector: metrics.NewCollector("cli"),
	}
	if c.Bool("verbose") {
		d.logger = log.NewLogger("filegeek")
	}

	baseURL := cfg.Backend.URL
	if baseURL == "" {
		baseURL = os.Getenv("FILEGEEK_URL")
	}
	if baseURL == "" {
		return nil, cli.Exit("backend URL is not configured (set backend.url or FILEGEEK_URL)", 1)
	}

	token := cfg.Backend.Token
	if token == "" {
		token = os.Getenv("FILEGEEK_TOKEN")
	}
	var tokens auth.TokenProvider = auth.Anonymous
	if token != "" {
		tokens = auth.Static(token)
	}

	apiCfg := api.Config{
		BaseURL: baseURL,
		Tokens:  tokens,
		Timeout: cfg.Backend.Timeout.Duration,
		Logger:  d.logger,
	}
	if cfg.Backend.Retries != nil {
		apiCfg.Retries = *cfg.Backend.Retries
	} else {
		apiCfg.Retries = api.DefaultRetries
	}

	d.client, err = api.New(apiCfg)
	if err != nil {
		return nil, err
	}

	if cfg.Push.RedisURL != "" {
		sub, err := redispush.New(redispush.Config{
			URL:           cfg.Push.RedisURL,
			ChannelPrefix: cfg.Push.ChannelPrefix,
			Logger:        d.logger,
			Collector:     d.collector,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.subscriber = sub
	}

	d.tracker, err = track.New(d.client, d.subscriber, track.Config{
		FallbackTimer:     cfg.Track.FallbackTimer.Duration,
		PollInterval:      cfg.Track.PollInterval.Duration,
		PollFailureBudget: cfg.Track.PollFailures,
		Logger:            d.logger,
		Collector:         d.collector,
	})
	if err != nil {
		d.Close()
		return nil, err
	}

	if cfg.History.Path != "" {
		d.archive, err = history.NewArchive(history.Config{Dataset: cfg.History.Dataset}, cfg.History.Path)
		if err != nil {
			d.Close()
			return nil, err
		}
	}
	if cfg.History.CachePath != "" {
		d.cache, err = history.NewCache(cfg.History.CachePath)
		if err != nil {
			d.Close()
			return nil, err
		}
	}

	chatCfg := chat.Config{
		Backend:   d.client,
		Tracker:   d.tracker,
		Logger:    d.logger,
		Collector: d.collector,
	}
	if d.archive != nil {
		chatCfg.Archive = d.archive
	}
	if d.cache != nil {
		cache := d.cache
		logger := d.logger
		chatCfg.OnStale = func(sessionID string) {
			if err := cache.Invalidate(); err != nil {
				logger.Warn("session cache invalidation failed", map[string]any{
					"session_id": sessionID,
					"error":      err.Error(),
				})
			}
		}
	}

	d.orch, err = chat.New(chatCfg)
	if err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

// loadConfig reads the config file named by --config, falling back to the
// default location. A missing default file yields an empty config; a missing
// explicit file is an error.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}

	path, err := defaultConfigPath()
	if err != nil {
		return &config.Config{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "filegeek", "filegeek.yaml"), nil
}
