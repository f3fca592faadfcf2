package orchestrator

import (
	"sync"

	"specimenreview/specimen"
)

// Dashboard is the derived view for one filter: the filtered records and the
// per-status counts over the whole collection.
type Dashboard struct {
	Filter  specimen.Filter
	Records []specimen.Record
	Counts  map[specimen.Status]int
	Version uint64
}

func (d Dashboard) clone() Dashboard {
	out := d
	out.Records = cloneRecords(d.Records)
	out.Counts = make(map[specimen.Status]int, len(d.Counts))
	for k, v := range d.Counts {
		out.Counts[k] = v
	}
	return out
}

// viewCache memoizes dashboards for a single state version. Any version change
// drops every entry.
type viewCache struct {
	mu       sync.Mutex
	version  uint64
	entries  map[specimen.Filter]Dashboard
	computed int
}

func (c *viewCache) lookup(version uint64, filter specimen.Filter) (Dashboard, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil || c.version != version {
		return Dashboard{}, false
	}
	d, ok := c.entries[filter]
	return d, ok
}

func (c *viewCache) store(d Dashboard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil || c.version != d.Version {
		c.entries = make(map[specimen.Filter]Dashboard, 5)
		c.version = d.Version
	}
	c.entries[d.Filter] = d
	c.computed++
}

// View returns the derived dashboard for filter, recomputed whenever the state
// version has moved since the last call.
func (o *Orchestrator) View(filter specimen.Filter) Dashboard {
	if filter == "" {
		filter = specimen.FilterAll
	}

	o.mu.RLock()
	version := o.state.Version
	d, ok := o.views.lookup(version, filter)
	if !ok {
		d = Dashboard{
			Filter:  filter,
			Records: specimen.FilterByStatus(o.state.Records, filter),
			Counts:  specimen.CountByStatus(o.state.Records),
			Version: version,
		}
		o.views.store(d)
	}
	o.mu.RUnlock()

	return d.clone()
}
