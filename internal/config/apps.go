package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"vknotify/internal/vkapi"
)

// DefaultAppsFile is the apps file location relative to the home directory.
const DefaultAppsFile = ".vk_apps"

var (
	ErrAppNotFound      = errors.New("app not found")
	ErrAPIIDMissing     = errors.New("api_id not specified")
	ErrAPISecretMissing = errors.New("api_secret not specified")
)

// AppCredentials is what the dispatcher needs to sign requests for one app.
type AppCredentials = vkapi.Credentials

// ConfigProvider resolves an application name to its credentials.
type ConfigProvider interface {
	Credentials(app string) (AppCredentials, error)
	Apps() []string
}

// ConfigError is returned when the apps file is unreadable or an app is
// unknown or incomplete.
type ConfigError struct {
	Path string
	App  string
	Err  error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.App != "" {
		fmt.Fprintf(&b, " app %q", e.App)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// appID accepts both `api_id: 123` and `api_id: "123"`.
type appID struct {
	set   bool
	value int64
}

func (a *appID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("api_id: invalid integer %s", string(b))
	}
	a.set = true
	a.value = v
	return nil
}

// appSecret accepts any scalar: `api_secret: 123456` is the string "123456".
type appSecret string

func (a *appSecret) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		return nil
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*a = appSecret(v)
		return nil
	case s == "true" || s == "false" || (len(s) > 0 && (s[0] == '-' || (s[0] >= '0' && s[0] <= '9'))):
		*a = appSecret(s)
		return nil
	default:
		return fmt.Errorf("api_secret: expected a scalar, got %s", s)
	}
}

// appEntry is one app's section. Keys other than api_id and api_secret are
// ignored.
type appEntry struct {
	APIID     appID     `json:"api_id"`
	APISecret appSecret `json:"api_secret"`
}

// AppsFile is a ConfigProvider backed by a YAML (or JSON) file:
//
//	app_name:
//	  api_id: 123
//	  api_secret: foo
//
// Entries are decoded one at a time on lookup, so a malformed entry only
// affects its own app.
type AppsFile struct {
	path string
	apps map[string]json.RawMessage
}

// DefaultAppsPath returns ~/.vk_apps.
func DefaultAppsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultAppsFile
	}
	return filepath.Join(home, DefaultAppsFile)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// LoadApps reads and decodes the apps file. An empty path means
// DefaultAppsPath.
func LoadApps(path string) (*AppsFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultAppsPath()
	}
	path = ExpandHome(path)

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	apps, err := parseApps(path, b)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return &AppsFile{path: path, apps: apps}, nil
}

func parseApps(path string, data []byte) (map[string]json.RawMessage, error) {
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	var apps map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(jb))
	if err := dec.Decode(&apps); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("invalid apps file: trailing data")
		}
		return nil, err
	}
	if apps == nil {
		apps = map[string]json.RawMessage{}
	}
	return apps, nil
}

func (f *AppsFile) Path() string { return f.path }

// Apps returns the configured application names, sorted.
func (f *AppsFile) Apps() []string {
	out := make([]string, 0, len(f.apps))
	for name := range f.apps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Credentials returns the credentials for app. Both api_id and api_secret
// must be present; when both are missing the error names both.
func (f *AppsFile) Credentials(app string) (AppCredentials, error) {
	raw, ok := f.apps[app]
	if !ok {
		return AppCredentials{}, &ConfigError{Path: f.path, App: app, Err: ErrAppNotFound}
	}
	var e appEntry
	if s := bytes.TrimSpace(raw); len(s) > 0 && !bytes.Equal(s, []byte("null")) {
		if err := json.Unmarshal(s, &e); err != nil {
			return AppCredentials{}, &ConfigError{Path: f.path, App: app, Err: err}
		}
	}

	var merr *multierror.Error
	if !e.APIID.set {
		merr = multierror.Append(merr, ErrAPIIDMissing)
	} else if e.APIID.value <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("api_id must be positive, got %d", e.APIID.value))
	}
	if strings.TrimSpace(string(e.APISecret)) == "" {
		merr = multierror.Append(merr, ErrAPISecretMissing)
	}
	if merr != nil {
		merr.ErrorFormat = joinErrors
		return AppCredentials{}, &ConfigError{Path: f.path, App: app, Err: merr}
	}
	return AppCredentials{APIID: e.APIID.value, APISecret: string(e.APISecret)}, nil
}

func joinErrors(es []error) string {
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// StaticProvider is an in-memory ConfigProvider.
type StaticProvider map[string]AppCredentials

func (p StaticProvider) Credentials(app string) (AppCredentials, error) {
	c, ok := p[app]
	if !ok {
		return AppCredentials{}, &ConfigError{App: app, Err: ErrAppNotFound}
	}
	return c, nil
}

func (p StaticProvider) Apps() []string {
	out := make([]string, 0, len(p))
	for name := range p {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
