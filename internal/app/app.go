package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"vknotify/internal/config"
	"vknotify/internal/dispatch"
	"vknotify/internal/recipients"
	"vknotify/internal/storage"
	"vknotify/internal/vkapi"
	logx "vknotify/pkg/logx"
)

// Options wires an App. Zero values select the process environment, the
// apps file from settings and the default HTTP client.
type Options struct {
	// Env replaces the process environment when non-nil.
	Env       map[string]string
	Overrides Overrides

	// Provider replaces the apps file.
	Provider config.ConfigProvider
	// HTTP replaces the default http.Client.
	HTTP vkapi.HTTPDoer
	// Logger replaces the configured logging service.
	Logger logx.Logger

	// Stdout receives progress lines. Defaults to os.Stdout.
	Stdout io.Writer
}

type App struct {
	rt     config.Runtime
	log    logx.Logger
	logs   *logx.Service
	stdout io.Writer

	provider config.ConfigProvider
	http     vkapi.HTTPDoer
}

// New resolves settings and sets up logging. The apps file is read lazily.
func New(opts Options) (*App, error) {
	var (
		s   config.Settings
		err error
	)
	if opts.Env != nil {
		s, err = config.LoadSettingsFrom(opts.Env)
	} else {
		s, err = config.LoadSettings()
	}
	if err != nil {
		return nil, &config.ConfigError{Err: err}
	}
	opts.Overrides.apply(&s)

	rt, err := s.Resolve()
	if err != nil {
		return nil, &config.ConfigError{Err: err}
	}

	a := &App{
		rt:       rt,
		stdout:   opts.Stdout,
		provider: opts.Provider,
		http:     opts.HTTP,
	}
	if a.stdout == nil {
		a.stdout = logx.Stdout()
	}

	if !opts.Logger.IsZero() {
		a.log = opts.Logger
	} else {
		a.logs, a.log = logx.New(logx.Config{
			Level:   rt.LogLevel,
			Console: true,
			File: logx.FileConfig{
				Enabled: rt.LogFile != "",
				Path:    rt.LogFile,
			},
		})
	}
	return a, nil
}

// Runtime returns the resolved settings.
func (a *App) Runtime() config.Runtime { return a.rt }

func (a *App) Logger() logx.Logger { return a.log }

// Close releases the log file, if any.
func (a *App) Close() error {
	if a.logs == nil {
		return nil
	}
	return a.logs.Close()
}

func (a *App) configProvider() (config.ConfigProvider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	f, err := config.LoadApps(a.rt.AppsFile)
	if err != nil {
		return nil, err
	}
	a.provider = f
	return f, nil
}

// SendRequest names what to send and to whom. An empty Message is sent
// as is.
type SendRequest struct {
	App       string
	UsersFile string
	Message   string
}

// Report is the outcome of Send.
type Report struct {
	RunID  string
	Status StopReason
	Result dispatch.Result
}

// Send runs one broadcast: resolve credentials, read recipients, dispatch
// and record the run. The returned error keeps its concrete type so the
// caller can map it to an exit code.
func (a *App) Send(ctx context.Context, req SendRequest) (Report, error) {
	if strings.TrimSpace(req.App) == "" || strings.TrimSpace(req.UsersFile) == "" {
		return Report{}, ErrUsage
	}

	provider, err := a.configProvider()
	if err != nil {
		return Report{}, err
	}
	creds, err := provider.Credentials(req.App)
	if err != nil {
		return Report{}, err
	}

	uids, err := recipients.ReadFile(config.ExpandHome(req.UsersFile))
	if err != nil {
		return Report{}, err
	}

	copts := []vkapi.ClientOption{
		vkapi.WithTimeout(a.rt.HTTPTimeout),
		vkapi.WithLogger(a.log.With(logx.String("comp", "vkapi"))),
	}
	if a.http != nil {
		copts = append(copts, vkapi.WithHTTPClient(a.http))
	}
	client, err := vkapi.NewClient(a.rt.APIURL, copts...)
	if err != nil {
		return Report{}, &config.ConfigError{Err: err}
	}

	store, err := a.openStore()
	if err != nil {
		return Report{}, err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	runID := uuid.NewString()
	log := a.log.With(logx.String("run", runID), logx.String("app", req.App))

	d := dispatch.New(dispatch.Config{
		RetryDelay: a.rt.RetryDelay,
		RatePerSec: a.rt.RatePerSec,
	}, nil, client, dispatch.NewProgressReporter(a.stdout), log.With(logx.String("comp", "dispatch")))

	log.Info("run started",
		logx.Int("total", len(uids)),
		logx.Int("chunks", (len(uids)+dispatch.ChunkSize-1)/dispatch.ChunkSize),
		logx.String("endpoint", client.Endpoint()),
		logx.Bool("paced", a.rt.RatePerSec > 0),
	)

	started := time.Now()
	res, runErr := d.Run(ctx, creds, uids, req.Message)
	status := stopReasonOf(ctx, runErr)

	fields := []logx.Field{
		logx.String("status", string(status)),
		logx.Int("complete", res.Complete),
		logx.Int("total", res.Total),
		logx.Int("retries", res.Retries),
		logx.Duration("took", res.Duration),
	}
	if runErr != nil {
		log.Warn("run stopped", append(fields, logx.Err(runErr))...)
	} else {
		log.Info("run finished", fields...)
	}

	if store != nil {
		rec := storage.RunRecord{
			ID:         runID,
			App:        req.App,
			APIID:      creds.APIID,
			StartedAt:  started,
			FinishedAt: started.Add(res.Duration),
			Total:      res.Total,
			Complete:   res.Complete,
			Chunks:     res.Chunks,
			Retries:    res.Retries,
			Status:     string(status),
		}
		if runErr != nil {
			rec.Error = runErr.Error()
		}
		// the run itself is over; a cancelled ctx must not lose the record
		if err := store.AppendRun(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn("failed to record run", logx.Err(err))
		}
	}

	return Report{RunID: runID, Status: status, Result: res}, runErr
}

// AppInfo describes one configured app. Secrets are never exposed.
type AppInfo struct {
	Name  string
	APIID int64
	Err   error
}

// Apps lists the configured apps in name order.
func (a *App) Apps() ([]AppInfo, error) {
	provider, err := a.configProvider()
	if err != nil {
		return nil, err
	}
	names := provider.Apps()
	out := make([]AppInfo, 0, len(names))
	for _, name := range names {
		info := AppInfo{Name: name}
		creds, err := provider.Credentials(name)
		if err != nil {
			info.Err = err
		} else {
			info.APIID = creds.APIID
		}
		out = append(out, info)
	}
	return out, nil
}

// Runs returns the most recent recorded runs, newest first.
func (a *App) Runs(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("run history: %w (set VKNOTIFY_STORAGE_DRIVER)", storage.ErrDisabled)
	}
	defer func() { _ = store.Close() }()
	return store.ListRuns(ctx, limit)
}

func (a *App) openStore() (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(a.rt)
	if err != nil {
		return nil, &config.ConfigError{Err: err}
	}
	if !enabled {
		return nil, nil
	}
	st, err := storage.Open(sc, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	return st, nil
}

// ErrUsage is returned when a required send argument is missing.
var ErrUsage = errors.New("users file, message and app are required")
