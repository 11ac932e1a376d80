package config

import (
	"fmt"
	"time"
)

// Config represents a filegeek.yaml configuration file.
// All values are optional and act as defaults for filegeek flags.
// CLI flags always override config values.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Push    PushConfig    `yaml:"push"`
	Track   TrackConfig   `yaml:"track"`
	Upload  UploadConfig  `yaml:"upload"`
	History HistoryConfig `yaml:"history"`
	Ask     AskConfig     `yaml:"ask"`
}

// BackendConfig holds backend connection defaults from the config file.
type BackendConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// PushConfig holds push-channel defaults from the config file.
// An empty RedisURL disables push; tracking then runs on polling alone.
type PushConfig struct {
	RedisURL      string `yaml:"redis_url"`
	ChannelPrefix string `yaml:"channel_prefix,omitempty"`
}

// TrackConfig holds progress-tracking defaults from the config file.
type TrackConfig struct {
	FallbackTimer Duration `yaml:"fallback_timer,omitempty"`
	PollInterval  Duration `yaml:"poll_interval,omitempty"`
	PollFailures  int      `yaml:"poll_failures,omitempty"`
}

// UploadConfig holds object-storage defaults from the config file.
type UploadConfig struct {
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix,omitempty"`
	Region        string `yaml:"region,omitempty"`
	Endpoint      string `yaml:"endpoint,omitempty"`
	S3PathStyle   bool   `yaml:"s3_path_style,omitempty"`
	PublicBaseURL string `yaml:"public_base_url,omitempty"`
}

// HistoryConfig holds local history defaults from the config file.
type HistoryConfig struct {
	// Path is the archive root directory. Empty disables local history.
	Path string `yaml:"path"`
	// Dataset overrides the archive dataset name.
	Dataset string `yaml:"dataset,omitempty"`
	// CachePath is the session-list cache file. Empty disables the cache.
	CachePath string `yaml:"cache_path,omitempty"`
}

// AskConfig holds default ask options from the config file.
type AskConfig struct {
	Model     string `yaml:"model,omitempty"`
	DeepThink bool   `yaml:"deep_think,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
