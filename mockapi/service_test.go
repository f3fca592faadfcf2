package mockapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specimenreview/specimen"
)

type fakeObserver struct {
	mu      sync.Mutex
	patches []string
	counts  []map[specimen.Status]int
}

func (f *fakeObserver) ObserveRecords(records []specimen.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, specimen.CountByStatus(records))
}

func (f *fakeObserver) ObservePatch(result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, result)
}

func newTestService(t *testing.T) (*Service, *fakeObserver) {
	t.Helper()
	repo, err := NewMemoryRepository(sampleRecords())
	require.NoError(t, err)
	obs := &fakeObserver{}
	return NewService(repo).WithObserver(obs), obs
}

func TestService_PatchValidation(t *testing.T) {
	svc, obs := newTestService(t)
	ctx := context.Background()

	_, err := svc.Patch(ctx, "", specimen.Updates{Status: statusPtr(specimen.StatusApproved)})
	assert.True(t, errors.Is(err, ErrInvalidPatch))

	_, err = svc.Patch(ctx, "a", specimen.Updates{})
	assert.True(t, errors.Is(err, ErrInvalidPatch))

	_, err = svc.Patch(ctx, "a", specimen.Updates{Status: statusPtr("archived")})
	assert.True(t, errors.Is(err, ErrInvalidPatch))
	assert.True(t, errors.Is(err, specimen.ErrInvalidStatus))

	assert.Equal(t, []string{"invalid", "invalid", "invalid"}, obs.patches)
}

func TestService_PatchObservesOutcome(t *testing.T) {
	svc, obs := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Patch(ctx, "a", specimen.Updates{Status: statusPtr(specimen.StatusApproved)})
	require.NoError(t, err)
	assert.Equal(t, specimen.StatusApproved, rec.Status)

	_, err = svc.Patch(ctx, "nope", specimen.Updates{Status: statusPtr(specimen.StatusApproved)})
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, []string{"ok", "not_found"}, obs.patches)
	require.NotEmpty(t, obs.counts)
	last := obs.counts[len(obs.counts)-1]
	assert.Equal(t, 2, last[specimen.StatusApproved])
	assert.Equal(t, 0, last[specimen.StatusPending])
}

func TestService_InjectedFailure(t *testing.T) {
	svc, obs := newTestService(t)
	svc.WithFailureRate(0.5)

	rolls := []float64{0.1, 0.9}
	svc.WithRoll(func() float64 {
		r := rolls[0]
		rolls = rolls[1:]
		return r
	})

	_, err := svc.List(context.Background())
	assert.True(t, errors.Is(err, ErrInjectedFailure))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Empty(t, obs.patches)
}

func TestService_LatencyHonoursContext(t *testing.T) {
	svc, _ := newTestService(t)
	svc.WithLatency(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := svc.List(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestService_Seed(t *testing.T) {
	svc, obs := newTestService(t)
	require.NoError(t, svc.Seed(context.Background(), []specimen.Record{
		{ID: "only", Name: "Only", Status: specimen.StatusFlagged},
	}))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "only", list[0].ID)
	assert.Equal(t, 1, obs.counts[0][specimen.StatusFlagged])
}
