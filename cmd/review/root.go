package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"specimenreview/config"
	"specimenreview/notify"
	"specimenreview/orchestrator"
	"specimenreview/recordstore"
)

// app carries the per-invocation wiring shared by every subcommand.
type app struct {
	apiURL   string
	token    string
	noColor  bool
	logLevel string

	log  *logrus.Logger
	orch *orchestrator.Orchestrator
}

func (a *app) connect(stderr io.Writer) {
	if a.noColor {
		color.NoColor = true
	}
	a.log = config.NewLogger(a.logLevel, "text")
	a.log.SetOutput(stderr)

	client := recordstore.New(a.apiURL, recordstore.WithToken(a.token))
	a.orch = orchestrator.New(client).WithLogger(a.log)
}

// notifier prints to the terminal and mirrors every message into the log.
func (a *app) notifier(w io.Writer) notify.Notifier {
	return notify.Multi{newColorNotifier(w), notify.NewLogNotifier(a.log)}
}

func newRootCmd() *cobra.Command {
	defaults := config.Config{}
	if _, err := config.LoadEnv(config.DefaultEnvFiles); err == nil {
		if cfg, err := config.Parse(); err == nil {
			defaults = *cfg
		}
	}
	if defaults.Client.APIURL == "" {
		defaults.Client.APIURL = "http://localhost:8080"
	}

	a := &app{}
	cmd := &cobra.Command{
		Use:           "review",
		Short:         "Review specimen records against the mock record API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.connect(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.apiURL, "api-url", defaults.Client.APIURL, "Base URL of the record API (REVIEW_API_URL)")
	flags.StringVar(&a.token, "token", defaults.Client.APIToken, "Bearer token for the record API (REVIEW_API_TOKEN)")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable coloured output")
	flags.StringVar(&a.logLevel, "log-level", logrus.WarnLevel.String(), "Log level for client diagnostics")

	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newCountsCmd(a))
	cmd.AddCommand(newEditCmd(a))
	cmd.AddCommand(newShellCmd(a))
	cmd.AddCommand(newTokenCmd(defaults.Auth))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
