package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specimenreview/specimen"
)

func TestView_FilterAndCounts(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	all := o.View(specimen.FilterAll)
	assert.Len(t, all.Records, 2)
	assert.Equal(t, map[specimen.Status]int{
		specimen.StatusPending:       1,
		specimen.StatusApproved:      1,
		specimen.StatusFlagged:       0,
		specimen.StatusNeedsRevision: 0,
	}, all.Counts)

	pending := o.View(specimen.FilterFor(specimen.StatusPending))
	require.Len(t, pending.Records, 1)
	assert.Equal(t, "1", pending.Records[0].ID)

	empty := o.View("")
	assert.Equal(t, specimen.FilterAll, empty.Filter)
}

func TestView_MemoizedPerVersion(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	o.View(specimen.FilterAll)
	o.View(specimen.FilterAll)
	o.View(specimen.FilterFor(specimen.StatusApproved))
	assert.Equal(t, 2, o.views.computed)

	_, err := o.Update(context.Background(), "1", specimen.Updates{Status: statusPtr(specimen.StatusApproved)})
	require.NoError(t, err)

	d := o.View(specimen.FilterFor(specimen.StatusApproved))
	assert.Equal(t, 3, o.views.computed)
	assert.Len(t, d.Records, 2)
	assert.Equal(t, 2, d.Counts[specimen.StatusApproved])
	assert.Equal(t, o.Snapshot().Version, d.Version)
}

func TestView_ResultIsACopy(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	d := o.View(specimen.FilterAll)
	d.Records[0].Name = "changed"
	d.Counts[specimen.StatusPending] = 99

	again := o.View(specimen.FilterAll)
	assert.Equal(t, "Femur", again.Records[0].Name)
	assert.Equal(t, 1, again.Counts[specimen.StatusPending])
}
