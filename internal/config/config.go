// Package config reads the settings of a run out of json5 files.
package config

import (
	"coursepilot/internal/components/configutil"
	"coursepilot/internal/lms"
	"coursepilot/internal/lms/extract"
	"coursepilot/internal/lms/session"
	"coursepilot/internal/notify"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"
)

const (
	DefaultPath          = "config.json5"
	DefaultQuizPauseMs   = 3000
	DefaultMaxPasses     = 10
	DefaultTimeout       = 30
	DefaultWatchSchedule = "@every 30m"
)

var ErrMissingCourse = errors.New("no course url configured")

type Config struct {
	BaseUrl   string `json:"base_url"`
	CourseUrl string `json:"course_url"`
	// Cookies is either a raw `Cookie` header or an object of cookie names to values.
	Cookies any `json:"cookies"`

	// MaxRetries of 0 uses the client default, a negative value disables retrying.
	MaxRetries   int      `json:"max_retries"`
	TriggerWords []string `json:"trigger_words"`
	// QuizPauseMs is the wait between quizzes, a negative value disables it.
	QuizPauseMs         int     `json:"quiz_pause_ms"`
	MaxPasses           int     `json:"max_passes"`
	ResourceConcurrency int     `json:"resource_concurrency"`
	RequestsPerSecond   float64 `json:"requests_per_second"`
	TimeoutSeconds      int     `json:"timeout_seconds"`
	CloudflareBypass    bool    `json:"cloudflare_bypass"`
	UserAgent           string  `json:"user_agent"`

	Smtp          notify.SmtpConfig `json:"smtp"`
	PerfStats     bool              `json:"perf_stats"`
	WatchSchedule string            `json:"watch_schedule"`
	// DumpDir writes every http exchange to a file in this directory.
	DumpDir string `json:"dump_dir"`
}

// WithDefaults fills every unset field with its default.
func (c Config) WithDefaults() Config {
	if c.BaseUrl == "" {
		c.BaseUrl = lms.DefaultBaseUrl
	}
	if len(c.TriggerWords) == 0 {
		c.TriggerWords = extract.DefaultTriggerWords
	}
	if c.QuizPauseMs == 0 {
		c.QuizPauseMs = DefaultQuizPauseMs
	}
	if c.MaxPasses <= 0 {
		c.MaxPasses = DefaultMaxPasses
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeout
	}
	if c.WatchSchedule == "" {
		c.WatchSchedule = DefaultWatchSchedule
	}
	return c
}

// Load reads the config at path merged with its `.local` override. A missing file is not an
// error, the defaults are returned instead.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	config, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config file found, using defaults", "path", path)
		return Config{}.WithDefaults(), nil
	}
	if err != nil {
		return Config{}, err
	}
	return config.WithDefaults(), nil
}

func (c Config) QuizPause() time.Duration {
	return time.Duration(c.QuizPauseMs) * time.Millisecond
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Session builds the session out of the configured cookies.
func (c Config) Session() (session.Session, error) {
	switch cookies := c.Cookies.(type) {
	case nil:
		return session.Session{}, nil
	case string:
		return session.FromCookieHeader(cookies)
	case map[string]any:
		values := make(map[string]string, len(cookies))
		for name, value := range cookies {
			values[name] = fmt.Sprint(value)
		}
		return session.FromMap(values), nil
	case map[string]string:
		return session.FromMap(cookies), nil
	default:
		return session.Session{}, fmt.Errorf("cookies must be a string or an object, got %T", c.Cookies)
	}
}

// Validate checks the fields a run cannot go without.
func (c Config) Validate() error {
	if c.CourseUrl == "" {
		return ErrMissingCourse
	}
	if _, err := url.Parse(c.BaseUrl); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if _, err := url.Parse(c.CourseUrl); err != nil {
		return fmt.Errorf("course_url: %w", err)
	}
	if c.ResourceConcurrency < 0 {
		return fmt.Errorf("resource_concurrency must not be negative")
	}
	return nil
}
