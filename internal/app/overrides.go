package app

import (
	"strings"

	"vknotify/internal/config"
)

// Overrides are command-line values that take precedence over the
// environment. Empty strings and a nil Rate leave the setting alone.
type Overrides struct {
	AppsFile   string
	APIURL     string
	LogLevel   string
	RetryDelay string
	Timeout    string
	Rate       *int
}

func (o Overrides) apply(s *config.Settings) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&s.AppsFile, o.AppsFile)
	set(&s.APIURL, o.APIURL)
	set(&s.LogLevel, o.LogLevel)
	set(&s.RetryDelay, o.RetryDelay)
	set(&s.HTTPTimeout, o.Timeout)
	if o.Rate != nil {
		s.RatePerSec = *o.Rate
	}
}
