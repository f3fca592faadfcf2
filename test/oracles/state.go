package oracles

import (
	"fmt"

	"specimenreview/orchestrator"
	"specimenreview/specimen"
)

// StateOracle inspects an orchestrator snapshot and its derived views.
type StateOracle struct {
	Name  string
	Check func(st orchestrator.State, views map[specimen.Filter]orchestrator.Dashboard) string
}

func StateOracles() []StateOracle {
	return []StateOracle{
		{
			Name: "S1_counts_cover_all_statuses",
			Check: func(st orchestrator.State, views map[specimen.Filter]orchestrator.Dashboard) string {
				counts := views[specimen.FilterAll].Counts
				if len(counts) != len(specimen.AllStatuses()) {
					return fmt.Sprintf("counts has %d keys", len(counts))
				}
				sum := 0
				for _, n := range counts {
					sum += n
				}
				if sum != len(views[specimen.FilterAll].Records) {
					return fmt.Sprintf("counts sum %d != %d records", sum, len(views[specimen.FilterAll].Records))
				}
				return ""
			},
		},
		{
			Name: "S2_filter_subset_in_order",
			Check: func(st orchestrator.State, views map[specimen.Filter]orchestrator.Dashboard) string {
				all := views[specimen.FilterAll]
				for filter, d := range views {
					if d.Version != all.Version || filter == specimen.FilterAll {
						continue
					}
					j := 0
					for _, r := range d.Records {
						if specimen.Filter(r.Status) != filter {
							return fmt.Sprintf("filter %s returned %s record %s", filter, r.Status, r.ID)
						}
						for j < len(all.Records) && all.Records[j].ID != r.ID {
							j++
						}
						if j == len(all.Records) {
							return fmt.Sprintf("filter %s record %s out of order or missing", filter, r.ID)
						}
						j++
					}
					if len(d.Records) != all.Counts[specimen.Status(filter)] {
						return fmt.Sprintf("filter %s has %d records, count says %d", filter, len(d.Records), all.Counts[specimen.Status(filter)])
					}
				}
				return ""
			},
		},
		{
			Name: "S3_unique_record_ids",
			Check: func(st orchestrator.State, _ map[specimen.Filter]orchestrator.Dashboard) string {
				seen := make(map[string]bool, len(st.Records))
				for _, r := range st.Records {
					if seen[r.ID] {
						return "duplicate id " + r.ID
					}
					seen[r.ID] = true
				}
				return ""
			},
		},
		{
			Name: "S4_history_newest_first_and_real_transitions",
			Check: func(st orchestrator.State, _ map[specimen.Filter]orchestrator.Dashboard) string {
				for i, h := range st.History {
					if h.PreviousStatus == h.NewStatus {
						return fmt.Sprintf("history entry %d for %s has no transition", i, h.ID)
					}
					if i > 0 && h.Timestamp.After(st.History[i-1].Timestamp) {
						return fmt.Sprintf("history entry %d newer than entry %d", i, i-1)
					}
				}
				return ""
			},
		},
		{
			Name: "S5_note_present_when_required",
			Check: func(st orchestrator.State, _ map[specimen.Filter]orchestrator.Dashboard) string {
				return missingNote(st.Records)
			},
		},
	}
}

// CheckState runs every state oracle and returns the first failure.
func CheckState(orch *orchestrator.Orchestrator) (string, string) {
	st := orch.Snapshot()
	views := make(map[specimen.Filter]orchestrator.Dashboard, 5)
	views[specimen.FilterAll] = orch.View(specimen.FilterAll)
	for _, s := range specimen.AllStatuses() {
		views[specimen.FilterFor(s)] = orch.View(specimen.FilterFor(s))
	}
	for _, o := range StateOracles() {
		if detail := o.Check(st, views); detail != "" {
			return o.Name, detail
		}
	}
	return "", ""
}

func missingNote(records []specimen.Record) string {
	for _, r := range records {
		if r.Status.RequiresNote() && r.Note == "" {
			return fmt.Sprintf("record %s is %s without a note", r.ID, r.Status)
		}
	}
	return ""
}
