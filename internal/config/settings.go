package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	logx "vknotify/pkg/logx"
)

// MinRetryDelay is the shortest pause allowed before resubmitting a
// rate-limited chunk.
const MinRetryDelay = 500 * time.Millisecond

// Settings are the runtime knobs read from the environment. CLI flags take
// precedence; see the vknotify command.
//
// Durations are Go duration strings (e.g. "500ms", "10s").
//
// Defaults:
//   - api_url: the production endpoint
//   - http_timeout: "30s" ("0s" disables)
//   - retry_delay: "500ms" (never below 500ms)
//   - rate_per_sec: 3 (0 disables pacing)
//   - storage_driver: "none"
type Settings struct {
	AppsFile      string `env:"VKNOTIFY_APPS_FILE"`
	APIURL        string `env:"VKNOTIFY_API_URL"        envDefault:"http://api.vkontakte.ru/api.php"`
	LogLevel      string `env:"VKNOTIFY_LOG_LEVEL"      envDefault:"info"`
	LogFile       string `env:"VKNOTIFY_LOG_FILE"`
	HTTPTimeout   string `env:"VKNOTIFY_HTTP_TIMEOUT"   envDefault:"30s"`
	RetryDelay    string `env:"VKNOTIFY_RETRY_DELAY"    envDefault:"500ms"`
	RatePerSec    int    `env:"VKNOTIFY_RATE_PER_SEC"   envDefault:"3"`
	StorageDriver string `env:"VKNOTIFY_STORAGE_DRIVER" envDefault:"none"`
	StoragePath   string `env:"VKNOTIFY_STORAGE_PATH"`
}

// LoadSettings reads Settings from the process environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("environment: %w", err)
	}
	return s, nil
}

// LoadSettingsFrom reads Settings from the given variables instead of the
// process environment.
func LoadSettingsFrom(vars map[string]string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: vars}); err != nil {
		return Settings{}, fmt.Errorf("environment: %w", err)
	}
	return s, nil
}

// Runtime is Settings with durations parsed and values validated.
type Runtime struct {
	AppsFile      string
	APIURL        string
	LogLevel      string
	LogFile       string
	HTTPTimeout   time.Duration
	RetryDelay    time.Duration
	RatePerSec    int
	StorageDriver string
	StoragePath   string
}

// Resolve validates s and parses its duration fields.
func (s Settings) Resolve() (Runtime, error) {
	timeout, err := ParseDurationField("http_timeout", s.HTTPTimeout)
	if err != nil {
		return Runtime{}, err
	}
	retry, err := ParseDurationOrDefault("retry_delay", s.RetryDelay, MinRetryDelay)
	if err != nil {
		return Runtime{}, err
	}
	if retry < MinRetryDelay {
		retry = MinRetryDelay
	}
	if s.RatePerSec < 0 {
		return Runtime{}, fmt.Errorf("rate_per_sec: must be >= 0, got %d", s.RatePerSec)
	}
	level := strings.TrimSpace(s.LogLevel)
	if level == "" {
		level = "info"
	}
	if _, ok := logx.ParseLevel(level); !ok {
		return Runtime{}, fmt.Errorf("log_level: unknown level %q", s.LogLevel)
	}
	driver := strings.ToLower(strings.TrimSpace(s.StorageDriver))
	switch driver {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return Runtime{}, fmt.Errorf("storage_driver: unknown driver %q", s.StorageDriver)
	}
	return Runtime{
		AppsFile:      strings.TrimSpace(s.AppsFile),
		APIURL:        strings.TrimSpace(s.APIURL),
		LogLevel:      level,
		LogFile:       strings.TrimSpace(s.LogFile),
		HTTPTimeout:   timeout,
		RetryDelay:    retry,
		RatePerSec:    s.RatePerSec,
		StorageDriver: driver,
		StoragePath:   ExpandHome(strings.TrimSpace(s.StoragePath)),
	}, nil
}
