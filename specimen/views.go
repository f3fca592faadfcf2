package specimen

import (
	"fmt"
	"strings"
)

// Filter selects records by status. FilterAll keeps every record.
type Filter string

const FilterAll Filter = "all"

// FilterFor returns the filter matching a single status.
func FilterFor(s Status) Filter {
	return Filter(s)
}

// ParseFilter accepts "all" (or an empty string) and any valid status.
func ParseFilter(raw string) (Filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == string(FilterAll) {
		return FilterAll, nil
	}
	s, err := ParseStatus(raw)
	if err != nil {
		return "", fmt.Errorf("specimen: invalid filter: %w", err)
	}
	return FilterFor(s), nil
}

// FilterByStatus returns the records whose status matches filter, preserving
// their relative order. The result never aliases the input slice.
func FilterByStatus(records []Record, filter Filter) []Record {
	if filter == FilterAll || filter == "" {
		out := make([]Record, len(records))
		copy(out, records)
		return out
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if Filter(rec.Status) == filter {
			out = append(out, rec)
		}
	}
	return out
}

// CountByStatus counts records per status. All known statuses are present in
// the result, zero when absent.
func CountByStatus(records []Record) map[Status]int {
	counts := make(map[Status]int, 4)
	for _, s := range AllStatuses() {
		counts[s] = 0
	}
	for _, rec := range records {
		counts[rec.Status]++
	}
	return counts
}
