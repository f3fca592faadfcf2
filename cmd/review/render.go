package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"specimenreview/orchestrator"
	"specimenreview/specimen"
)

var statusColors = map[specimen.Status]*color.Color{
	specimen.StatusPending:       color.New(color.FgYellow),
	specimen.StatusApproved:      color.New(color.FgGreen),
	specimen.StatusFlagged:       color.New(color.FgRed, color.Bold),
	specimen.StatusNeedsRevision: color.New(color.FgMagenta),
}

func statusBadge(s specimen.Status) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(s.Label())
	}
	return s.Label()
}

func renderList(w io.Writer, d orchestrator.Dashboard) {
	if len(d.Records) == 0 {
		fmt.Fprintf(w, "No records match filter %q.\n", d.Filter)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tNOTE")
	for _, r := range d.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, statusBadge(r.Status), r.Note)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d of %d records (%s)\n", len(d.Records), total(d.Counts), d.Filter)
}

func renderCounts(w io.Writer, counts map[specimen.Status]int) {
	for _, s := range specimen.AllStatuses() {
		fmt.Fprintf(w, "%-16s %d\n", statusBadge(s)+":", counts[s])
	}
	fmt.Fprintf(w, "%-16s %d\n", "Total:", total(counts))
}

func renderHistory(w io.Writer, history []specimen.HistoryEntry) {
	if len(history) == 0 {
		fmt.Fprintln(w, "No status changes this session.")
		return
	}
	for _, h := range history {
		line := fmt.Sprintf("%s  %s  %s -> %s", h.Timestamp.Format(time.RFC3339), h.ID, statusBadge(h.PreviousStatus), statusBadge(h.NewStatus))
		if h.Note != "" {
			line += "  " + fmt.Sprintf("%q", h.Note)
		}
		fmt.Fprintln(w, line)
	}
}

func renderLoadError(w io.Writer, err error) {
	color.New(color.FgRed).Fprintf(w, "Could not load records: %v\n", err)
	fmt.Fprintln(w, "Run `refresh` (or the command again) to retry.")
}

func total(counts map[specimen.Status]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

// colorNotifier prints editor notifications to the terminal.
type colorNotifier struct {
	w io.Writer
}

func newColorNotifier(w io.Writer) *colorNotifier {
	return &colorNotifier{w: w}
}

func (n *colorNotifier) Success(message string) {
	color.New(color.FgGreen).Fprintf(n.w, "✓ %s\n", message)
}

func (n *colorNotifier) Error(message string) {
	color.New(color.FgRed).Fprintf(n.w, "✗ %s\n", message)
}
