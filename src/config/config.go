// Package config resolves client settings from a .env file, an optional YAML
// file and STUDIO_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HistoryTimeout time.Duration `yaml:"history_timeout"`
	// SyncInterval re-fetches the open conversation periodically; zero disables it.
	SyncInterval time.Duration `yaml:"sync_interval"`

	VideoModel       string `yaml:"video_model"`
	VideoAspectRatio string `yaml:"video_aspect_ratio"`
	VideoResolution  string `yaml:"video_resolution"`
	AvatarID         string `yaml:"avatar_id"`

	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	DownloadDir string `yaml:"download_dir"`
}

func Default() Config {
	return Config{
		BaseURL:          "http://localhost:8080/api",
		RequestTimeout:   10 * time.Minute,
		HistoryTimeout:   30 * time.Second,
		VideoModel:       studio.DefaultVideoModel,
		VideoAspectRatio: "16:9",
		VideoResolution:  "720p",
		LogLevel:         "info",
		DownloadDir:      ".",
	}
}

// Video returns the initial video settings.
func (c Config) Video() studio.VideoParams {
	return studio.VideoParams{
		Model:       c.VideoModel,
		AspectRatio: c.VideoAspectRatio,
		Resolution:  c.VideoResolution,
	}
}

// Load builds the configuration. path may be empty, in which case
// STUDIO_CONFIG is consulted; a missing .env is not an error.
func Load(path string) (Config, error) {
	envFile := os.Getenv("STUDIO_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("STUDIO_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"STUDIO_BASE_URL":           &c.BaseURL,
		"STUDIO_TOKEN":              &c.Token,
		"STUDIO_VIDEO_MODEL":        &c.VideoModel,
		"STUDIO_VIDEO_ASPECT_RATIO": &c.VideoAspectRatio,
		"STUDIO_VIDEO_RESOLUTION":   &c.VideoResolution,
		"STUDIO_AVATAR_ID":          &c.AvatarID,
		"STUDIO_LOG_LEVEL":          &c.LogLevel,
		"STUDIO_LOG_FILE":           &c.LogFile,
		"STUDIO_DOWNLOAD_DIR":       &c.DownloadDir,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	durs := map[string]*time.Duration{
		"STUDIO_REQUEST_TIMEOUT": &c.RequestTimeout,
		"STUDIO_HISTORY_TIMEOUT": &c.HistoryTimeout,
		"STUDIO_SYNC_INTERVAL":   &c.SyncInterval,
	}
	for key, dst := range durs {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

// parseDuration accepts Go durations and bare numbers of seconds.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := cast.ToIntE(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return cast.ToDurationE(v)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("config: base_url is required")
	}
	if c.RequestTimeout <= 0 || c.HistoryTimeout <= 0 {
		return errors.New("config: timeouts must be positive")
	}
	if c.SyncInterval < 0 {
		return errors.New("config: sync_interval must not be negative")
	}
	if c.VideoModel == "" {
		return errors.New("config: video_model is required")
	}
	return nil
}
