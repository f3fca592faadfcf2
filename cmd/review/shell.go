package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"specimenreview/notify"
	"specimenreview/orchestrator"
	"specimenreview/specimen"
)

const shellHelp = `commands:
  list [filter]                 show records (all|pending|approved|flagged|needs_revision)
  counts                        records per status
  edit <id> <status> [note...]  change a record
  history                       status changes made this session
  clear-history                 forget the session history
  refresh                       reload records from the API
  help                          this text
  quit                          leave the shell`

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive review session with a session history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context(), a.orch, a.notifier(cmd.OutOrStdout()), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

type shell struct {
	orch     *orchestrator.Orchestrator
	notifier notify.Notifier
	out      io.Writer
	filter   specimen.Filter
}

func runShell(ctx context.Context, orch *orchestrator.Orchestrator, n notify.Notifier, in io.Reader, out io.Writer) error {
	s := &shell{orch: orch, notifier: n, out: out, filter: specimen.FilterAll}

	cancel := orch.Subscribe(func(st orchestrator.State) {
		if st.Loading {
			fmt.Fprintln(out, "loading...")
		}
	})
	defer cancel()

	if err := orch.Fetch(ctx); err != nil {
		renderLoadError(out, err)
	} else {
		renderList(out, orch.View(s.filter))
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "review> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if done := s.dispatch(ctx, fields[0], fields[1:]); done {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *shell) dispatch(ctx context.Context, name string, args []string) (quit bool) {
	switch name {
	case "quit", "exit":
		return true
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "list", "ls":
		if len(args) > 0 {
			filter, err := specimen.ParseFilter(args[0])
			if err != nil {
				fmt.Fprintln(s.out, err)
				return false
			}
			s.filter = filter
		}
		s.renderRecords()
	case "counts":
		renderCounts(s.out, s.orch.View(specimen.FilterAll).Counts)
	case "edit":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "usage: edit <id> <status> [note...]")
			return false
		}
		note, hasNote := noteArg(args[2:])
		if err := editRecord(ctx, s.orch, s.notifier, args[0], args[1], note, hasNote); err == nil {
			s.renderRecords()
		}
	case "history":
		renderHistory(s.out, s.orch.Snapshot().History)
	case "clear-history":
		s.orch.ClearHistory()
		fmt.Fprintln(s.out, "History cleared.")
	case "refresh":
		if err := s.orch.Refresh(ctx); err != nil {
			renderLoadError(s.out, err)
			return false
		}
		s.renderRecords()
	default:
		fmt.Fprintf(s.out, "unknown command %q (try help)\n", name)
	}
	return false
}

func (s *shell) renderRecords() {
	if st := s.orch.Snapshot(); st.Error != "" && len(st.Records) == 0 {
		fmt.Fprintln(s.out, st.Error)
		return
	}
	renderList(s.out, s.orch.View(s.filter))
}
