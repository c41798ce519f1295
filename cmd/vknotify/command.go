package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vknotify/internal/app"
)

var version = "dev"

const longHelp = `Send a notification to every user listed in a file, 100 users per request.

The users file holds one numeric user id per line. Credentials come from the
apps file (default ~/.vk_apps):

  app_name:
    api_id: 123
    api_secret: foo

Environment: VKNOTIFY_APPS_FILE, VKNOTIFY_API_URL, VKNOTIFY_LOG_LEVEL,
VKNOTIFY_LOG_FILE, VKNOTIFY_HTTP_TIMEOUT, VKNOTIFY_RETRY_DELAY,
VKNOTIFY_RATE_PER_SEC, VKNOTIFY_STORAGE_DRIVER, VKNOTIFY_STORAGE_PATH.
Flags take precedence.`

type rootFlags struct {
	users   string
	message string
	appName string

	overrides app.Overrides
	rate      int
}

func NewRootCommand() *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "vknotify -u USERS_FILE -m MESSAGE -a APP",
		Short: "Broadcast a notification to a list of users",
		Long:  longHelp,
		Example: `  vknotify -u users.txt -m "New level unlocked" -a mygame
  vknotify -u users.txt -m "Hi" -a mygame --rate 0 --log-level debug`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.users == "" || f.appName == "" || !cmd.Flags().Changed("message") {
				_ = cmd.Help()
				return app.ErrUsage
			}
			a, err := newApp(cmd, &f)
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.Send(cmd.Context(), app.SendRequest{
				App:       f.appName,
				UsersFile: f.users,
				Message:   f.message,
			})
			return err
		},
	}

	cmd.Flags().StringVarP(&f.users, "users", "u", "", "file with one user id per line")
	cmd.Flags().StringVarP(&f.message, "message", "m", "", "notification text")
	cmd.Flags().StringVarP(&f.appName, "app", "a", "", "application name from the apps file")

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.overrides.AppsFile, "config", "", "apps file (default ~/.vk_apps)")
	pf.StringVar(&f.overrides.APIURL, "api-url", "", "API endpoint")
	pf.StringVar(&f.overrides.LogLevel, "log-level", "", "trace|debug|info|warn|error")
	pf.IntVar(&f.rate, "rate", 0, "max requests per second, 0 disables pacing (default 3)")
	pf.StringVar(&f.overrides.RetryDelay, "retry-delay", "", "pause before resending a rate-limited chunk (min 500ms)")
	pf.StringVar(&f.overrides.Timeout, "timeout", "", "HTTP timeout per request, 0 disables (default 30s)")

	cmd.AddCommand(
		newAppsCommand(&f),
		newRunsCommand(&f),
		newVersionCommand(),
	)
	return cmd
}

func newApp(cmd *cobra.Command, f *rootFlags) (*app.App, error) {
	o := f.overrides
	if cmd.Flags().Changed("rate") {
		rate := f.rate
		o.Rate = &rate
	}
	return app.New(app.Options{
		Overrides: o,
		Stdout:    cmd.OutOrStdout(),
	})
}

func newAppsCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List configured applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			apps, err := a.Apps()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "APP\tAPI_ID\tSTATUS")
			for _, info := range apps {
				id, status := strconv.FormatInt(info.APIID, 10), "ok"
				if info.Err != nil {
					id, status = "-", unwrapConfig(info.Err)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, id, status)
			}
			return tw.Flush()
		},
	}
}

func newRunsCommand(f *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent runs from the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tAPP\tSTATUS\tCOMPLETE\tRETRIES\tID\tERROR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.App, r.Status, r.Complete, r.Total, r.Retries, r.ID, r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show, 0 for all")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vknotify %s\n", version)
		},
	}
}

// unwrapConfig drops the path/app prefix of a config error for table output.
func unwrapConfig(err error) string {
	if u := errors.Unwrap(err); u != nil {
		return u.Error()
	}
	return err.Error()
}
