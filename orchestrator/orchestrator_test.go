package orchestrator

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

type updateCall struct {
	ID      string
	Updates specimen.Updates
}

type fakeStore struct {
	mu        sync.Mutex
	records   []specimen.Record
	fetchErr  error
	updateErr error
	calls     []updateCall
	onFetch   func()
	onUpdate  func(id string)
}

func (f *fakeStore) FetchAll(_ context.Context) ([]specimen.Record, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return cloneRecords(f.records), nil
}

func (f *fakeStore) Update(_ context.Context, id string, u specimen.Updates) (specimen.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, updateCall{ID: id, Updates: u})
	err := f.updateErr
	f.mu.Unlock()

	if f.onUpdate != nil {
		f.onUpdate(id)
	}
	if err != nil {
		return specimen.Record{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID != id {
			continue
		}
		if u.Status != nil {
			f.records[i].Status = *u.Status
		}
		if u.Note != nil {
			f.records[i].Note = *u.Note
		}
		return f.records[i], nil
	}
	return specimen.Record{}, errors.New("failed to update record: Not Found")
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func twoRecords() []specimen.Record {
	return []specimen.Record{
		{ID: "1", Name: "Femur", Description: "left femur", Status: specimen.StatusPending},
		{ID: "2", Name: "Tibia", Description: "right tibia", Status: specimen.StatusApproved},
	}
}

func statusPtr(s specimen.Status) *specimen.Status { return &s }
func notePtr(n string) *string                     { return &n }

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func loaded(t *testing.T, store *fakeStore) *Orchestrator {
	t.Helper()
	o := New(store).WithClock(func() time.Time { return fixedNow })
	require.NoError(t, o.Fetch(context.Background()))
	return o
}

func TestFetch_ReplacesRecordsAndReleasesLoading(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := New(store)

	var loadingDuringCall bool
	store.onFetch = func() { loadingDuringCall = o.Snapshot().Loading }

	require.NoError(t, o.Fetch(context.Background()))

	assert.True(t, loadingDuringCall)
	snap := o.Snapshot()
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, twoRecords(), snap.Records)
}

func TestFetch_FailureSetsErrorAndKeepsRecords(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	store.fetchErr = errors.New("failed to fetch records: Service Unavailable")
	err := o.Fetch(context.Background())

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	snap := o.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, "failed to fetch records: Service Unavailable", snap.Error)
	assert.Equal(t, twoRecords(), snap.Records)
}

func TestRefresh_RecoversFromFailedLoad(t *testing.T) {
	store := &fakeStore{records: twoRecords(), fetchErr: errors.New("failed to fetch records: Bad Gateway")}
	o := New(store)

	require.Error(t, o.Fetch(context.Background()))
	assert.NotEmpty(t, o.Snapshot().Error)

	store.fetchErr = nil
	require.NoError(t, o.Refresh(context.Background()))

	snap := o.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Len(t, snap.Records, 2)
}

func TestUpdate_TwoRecordScenario(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	rec, err := o.Update(context.Background(), "1", specimen.Updates{
		Status: statusPtr(specimen.StatusFlagged),
		Note:   notePtr("review"),
	})
	require.NoError(t, err)
	assert.Equal(t, specimen.StatusFlagged, rec.Status)

	snap := o.Snapshot()
	require.Len(t, snap.Records, 2)
	assert.Equal(t, specimen.StatusFlagged, snap.Records[0].Status)
	assert.Equal(t, "review", snap.Records[0].Note)
	assert.Equal(t, twoRecords()[1], snap.Records[1])

	require.Len(t, snap.History, 1)
	assert.Equal(t, specimen.HistoryEntry{
		ID:             "1",
		PreviousStatus: specimen.StatusPending,
		NewStatus:      specimen.StatusFlagged,
		Note:           "review",
		Timestamp:      fixedNow,
	}, snap.History[0])
}

func TestUpdate_UnchangedStatusAddsNoHistory(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	_, err := o.Update(context.Background(), "1", specimen.Updates{
		Status: statusPtr(specimen.StatusPending),
		Note:   notePtr("still waiting on the lab"),
	})
	require.NoError(t, err)

	_, err = o.Update(context.Background(), "2", specimen.Updates{Note: notePtr("looks fine")})
	require.NoError(t, err)

	snap := o.Snapshot()
	assert.Empty(t, snap.History)
	assert.Equal(t, "still waiting on the lab", snap.Records[0].Note)
	assert.Equal(t, "looks fine", snap.Records[1].Note)
}

func TestUpdate_HistoryIsNewestFirst(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)
	ctx := context.Background()

	_, err := o.Update(ctx, "1", specimen.Updates{Status: statusPtr(specimen.StatusFlagged), Note: notePtr("x")})
	require.NoError(t, err)
	_, err = o.Update(ctx, "1", specimen.Updates{Status: statusPtr(specimen.StatusApproved)})
	require.NoError(t, err)

	history := o.Snapshot().History
	require.Len(t, history, 2)
	assert.Equal(t, specimen.StatusFlagged, history[0].PreviousStatus)
	assert.Equal(t, specimen.StatusApproved, history[0].NewStatus)
	assert.Empty(t, history[0].Note)
	assert.Equal(t, specimen.StatusPending, history[1].PreviousStatus)
	assert.Equal(t, specimen.StatusFlagged, history[1].NewStatus)
	assert.Equal(t, "x", history[1].Note)
}

func TestUpdate_FailureLeavesStateUntouched(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)
	_, err := o.Update(context.Background(), "2", specimen.Updates{Status: statusPtr(specimen.StatusFlagged), Note: notePtr("a")})
	require.NoError(t, err)
	before := o.Snapshot()

	store.updateErr = errors.New("failed to update record: Internal Server Error")
	_, err = o.Update(context.Background(), "1", specimen.Updates{Status: statusPtr(specimen.StatusFlagged), Note: notePtr("b")})

	var updErr *UpdateError
	require.ErrorAs(t, err, &updErr)
	assert.Equal(t, "1", updErr.ID)
	assert.Equal(t, "failed to update record: Internal Server Error", err.Error())

	after := o.Snapshot()
	assert.Equal(t, before.Records, after.Records)
	assert.Equal(t, before.History, after.History)
	assert.Equal(t, "failed to update record: Internal Server Error", after.Error)
}

func TestUpdate_ClearsPreviousError(t *testing.T) {
	store := &fakeStore{records: twoRecords(), updateErr: errors.New("failed to update record: Bad Gateway")}
	o := loaded(t, store)

	_, err := o.Update(context.Background(), "1", specimen.Updates{Note: notePtr("n")})
	require.Error(t, err)
	require.NotEmpty(t, o.Snapshot().Error)

	store.updateErr = nil
	_, err = o.Update(context.Background(), "1", specimen.Updates{Note: notePtr("n")})
	require.NoError(t, err)
	assert.Empty(t, o.Snapshot().Error)
}

func TestUpdate_UnknownRecordAddsNoHistory(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	// The server knows a record the session has not loaded yet.
	store.mu.Lock()
	store.records = append(store.records, specimen.Record{ID: "3", Status: specimen.StatusPending})
	store.mu.Unlock()

	_, err := o.Update(context.Background(), "3", specimen.Updates{Status: statusPtr(specimen.StatusApproved)})
	require.NoError(t, err)

	snap := o.Snapshot()
	assert.Len(t, snap.Records, 2)
	assert.Empty(t, snap.History)
}

func TestUpdate_SameRecordIsSerialized(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	entered := make(chan string, 2)
	unblock := make(chan struct{})
	var once sync.Once
	store.onUpdate = func(id string) {
		entered <- id
		once.Do(func() { <-unblock })
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := o.Update(context.Background(), "1", specimen.Updates{Status: statusPtr(specimen.StatusFlagged), Note: notePtr("first")})
		assert.NoError(t, err)
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := o.Update(context.Background(), "1", specimen.Updates{Status: statusPtr(specimen.StatusApproved)})
		assert.NoError(t, err)
	}()

	select {
	case <-entered:
		t.Fatal("second update for the same record reached the store before the first finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	wg.Wait()

	history := o.Snapshot().History
	require.Len(t, history, 2)
	assert.Equal(t, specimen.StatusFlagged, history[0].PreviousStatus)
	assert.Equal(t, specimen.StatusApproved, history[0].NewStatus)
	assert.Equal(t, specimen.StatusPending, history[1].PreviousStatus)
}

func TestUpdate_DifferentRecordsRunConcurrently(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})
	store.onUpdate = func(string) {
		arrived.Done()
		<-release
	}

	done := make(chan error, 2)
	go func() {
		_, err := o.Update(context.Background(), "1", specimen.Updates{Status: statusPtr(specimen.StatusApproved)})
		done <- err
	}()
	go func() {
		_, err := o.Update(context.Background(), "2", specimen.Updates{Status: statusPtr(specimen.StatusPending)})
		done <- err
	}()

	both := make(chan struct{})
	go func() {
		arrived.Wait()
		close(both)
	}()
	select {
	case <-both:
	case <-time.After(2 * time.Second):
		t.Fatal("updates for different records did not overlap")
	}
	close(release)

	require.NoError(t, <-done)
	require.NoError(t, <-done)
	assert.Len(t, o.Snapshot().History, 2)
}

func TestUpdate_CancelledWhileWaiting(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	release, err := o.lockRecord(context.Background(), "1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Update(ctx, "1", specimen.Updates{Note: notePtr("x")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.callCount())
}

func TestClearHistory(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)
	_, err := o.Update(context.Background(), "1", specimen.Updates{Status: statusPtr(specimen.StatusApproved)})
	require.NoError(t, err)
	require.Len(t, o.Snapshot().History, 1)

	o.ClearHistory()
	assert.Empty(t, o.Snapshot().History)

	o.ClearHistory()
	assert.Empty(t, o.Snapshot().History)
}

func TestSnapshot_IsACopy(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := loaded(t, store)

	snap := o.Snapshot()
	snap.Records[0].Status = specimen.StatusFlagged

	assert.Equal(t, specimen.StatusPending, o.Snapshot().Records[0].Status)
}

func TestSubscribe(t *testing.T) {
	store := &fakeStore{records: twoRecords()}
	o := New(store)

	var mu sync.Mutex
	var seen []State
	cancel := o.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.NoError(t, o.Fetch(context.Background()))

	mu.Lock()
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	n := len(seen)
	mu.Unlock()
	assert.False(t, last.Loading)
	assert.Len(t, last.Records, 2)
	assert.Equal(t, o.Snapshot().Version, last.Version)

	cancel()
	o.ClearHistory()
	mu.Lock()
	assert.Len(t, seen, n)
	mu.Unlock()
}
