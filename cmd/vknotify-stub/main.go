package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vknotify/internal/config"
	"vknotify/internal/stubapi"
	logx "vknotify/pkg/logx"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		cancel()
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		addr     string
		appsFile string
		every    int
		failUID  int64
		failCode int
		failMsg  string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:           "vknotify-stub",
		Short:         "Serve a local stand-in for the notification API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logx.NewConsole(logLevel)

			provider, err := config.LoadApps(appsFile)
			if err != nil {
				return err
			}
			apps := make(map[int64]string)
			for _, name := range provider.Apps() {
				creds, err := provider.Credentials(name)
				if err != nil {
					log.Warn("skipping app", logx.String("app", name), logx.Err(err))
					continue
				}
				apps[creds.APIID] = creds.APISecret
			}

			srv := stubapi.New(stubapi.Config{
				Apps:           apps,
				RateLimitEvery: every,
				FailUID:        failUID,
				FailCode:       failCode,
				FailMsg:        failMsg,
			}, log)

			hs := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errc := make(chan error, 1)
			go func() { errc <- hs.ListenAndServe() }()
			log.Info("stub api listening",
				logx.String("url", "http://"+addr+stubapi.Path),
				logx.Int("apps", len(apps)),
				logx.Int("rate_limit_every", every),
			)

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := hs.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			st := srv.Stats()
			log.Info("stub api stopped",
				logx.Int("requests", st.Requests),
				logx.Int("delivered", st.Delivered),
				logx.Int("rate_limited", st.RateLimited),
				logx.Int("rejected", st.Rejected),
			)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	f.StringVar(&appsFile, "config", "", "apps file (default ~/.vk_apps)")
	f.IntVar(&every, "rate-limit-every", 0, "answer every Nth request with error 6, 0 disables")
	f.Int64Var(&failUID, "fail-uid", 0, "reject any request containing this uid")
	f.IntVar(&failCode, "fail-code", 15, "error code used with --fail-uid")
	f.StringVar(&failMsg, "fail-msg", "Access denied", "error message used with --fail-uid")
	f.StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")
	cmd.Example = "  vknotify-stub --addr 127.0.0.1:8080 --rate-limit-every 3"
	return cmd
}
