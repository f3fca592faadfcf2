package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"specimenreview/auth"
	"specimenreview/config"
	"specimenreview/specimen"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [all|pending|approved|flagged|needs_revision]",
		Short: "List records, optionally filtered by status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilterArg(args)
			if err != nil {
				return err
			}
			if err := a.orch.Fetch(cmd.Context()); err != nil {
				renderLoadError(cmd.OutOrStdout(), err)
				return err
			}
			renderList(cmd.OutOrStdout(), a.orch.View(filter))
			return nil
		},
	}
}

func newCountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show the number of records per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.orch.Fetch(cmd.Context()); err != nil {
				renderLoadError(cmd.OutOrStdout(), err)
				return err
			}
			renderCounts(cmd.OutOrStdout(), a.orch.View(specimen.FilterAll).Counts)
			return nil
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <status> [note...]",
		Short: "Change the status (and note) of one record",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.orch.Fetch(cmd.Context()); err != nil {
				renderLoadError(cmd.OutOrStdout(), err)
				return err
			}
			note, hasNote := noteArg(args[2:])
			return editRecord(cmd.Context(), a.orch, a.notifier(cmd.OutOrStdout()), args[0], args[1], note, hasNote)
		},
	}
}

func newTokenCmd(defaults config.AuthOptions) *cobra.Command {
	var (
		secret   string
		reviewer string
	)
	ttl := defaults.TokenTTL

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the record API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("token: --secret or AUTH_JWT_SECRET is required")
			}
			token, err := auth.NewService(secret, ttl).Issue(reviewer)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", defaults.JWTSecret, "HMAC secret shared with the API (AUTH_JWT_SECRET)")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer name carried in the token (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", ttl, "Token lifetime")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func parseFilterArg(args []string) (specimen.Filter, error) {
	if len(args) == 0 {
		return specimen.FilterAll, nil
	}
	return specimen.ParseFilter(args[0])
}

// noteArg joins the trailing words into a note; no words means no note given.
func noteArg(words []string) (string, bool) {
	if len(words) == 0 {
		return "", false
	}
	return strings.Join(words, " "), true
}
