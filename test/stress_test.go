package test

import (
	"context"
	"errors"
	"flag"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"specimenreview/mockapi"
	"specimenreview/orchestrator"
	"specimenreview/recordstore"
	"specimenreview/test/actors"
	"specimenreview/test/chaos"
	"specimenreview/test/infra"
	"specimenreview/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 3*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent reviewers")
	flRecords     = flag.Int("records", 12, "number of seeded records")
	flChaos       = flag.Float64("chaos", 0.1, "fraction of client requests failed by the chaos transport")
	flSeed        = flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flPostgres    = flag.Bool("postgres", false, "back the mock API with Postgres (container unless -dsn or STRESS_TEST_PG_DSN)")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func TestReviewDeskConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	t.Logf("seed=%d", seed)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	repo, pool := openRepository(t, ctx)
	backend, err := infra.StartBackend(ctx, repo, infra.StressRecords(*flRecords))
	require.NoError(t, err)
	defer backend.Close()

	flaky := chaos.NewFlakyTransport(backend.Server.Client().Transport, *flChaos, seed)
	client := recordstore.New(backend.URL(), recordstore.WithHTTPClient(&http.Client{Transport: flaky, Timeout: 5 * time.Second}))
	orch := orchestrator.New(client)

	require.Eventually(t, func() bool { return orch.Fetch(ctx) == nil }, 5*time.Second, 10*time.Millisecond)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	tally := &actors.Tally{}
	var loadFailures atomic.Int64

	for i := 0; i < *flConcurrency; i++ {
		rng := rand.New(rand.NewPCG(seed, uint64(i)))
		g.Go(func() error { return actors.Reviewer(ctx2, orch, rng, tally, stop) })
	}
	refreshRNG := rand.New(rand.NewPCG(seed, 1000))
	g.Go(func() error { return actors.Refresher(ctx2, orch, refreshRNG, &loadFailures, stop) })
	historyRNG := rand.New(rand.NewPCG(seed, 2000))
	g.Go(func() error { return actors.Historian(ctx2, orch, historyRNG, stop) })
	if pool != nil {
		go chaos.TerminateRandomBackend(ctx2, pool, infra.ApplicationName, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx2.Done():
			break loop
		case <-ticker.C:
			if name, detail := oracles.CheckState(orch); name != "" {
				close(stop)
				_ = g.Wait()
				t.Fatalf("oracle %s failed: %s (seed=%d)", name, detail, seed)
			}
			if pool != nil {
				name, row, err := oracles.Run(ctx2, pool)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						break loop
					}
					t.Logf("oracle query warning: %v", err)
					continue
				}
				if name != "" {
					close(stop)
					_ = g.Wait()
					t.Fatalf("oracle %s failed. First row: %s (seed=%d)", name, row, seed)
				}
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v (seed=%d)", err, seed)
		}
	}
	t.Logf("%s load_failures=%d injected=%d", tally, loadFailures.Load(), flaky.Injected())

	// Converge: with chaos off, a refresh must reproduce the backend exactly.
	flaky.Disable()
	require.NoError(t, orch.Refresh(ctx))
	want, err := backend.Service.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, orch.Snapshot().Records)

	assert.Equal(t, tally.Failed.Load(), tally.Notified.Load(), "every failed save notifies once")

	name, detail := oracles.CheckState(orch)
	assert.Empty(t, name, detail)
	assert.Positive(t, tally.Saved.Load(), "no update ever succeeded")
}

func openRepository(t *testing.T, ctx context.Context) (mockapi.Repository, *pgxpool.Pool) {
	t.Helper()
	if !*flPostgres && *flDSN == "" && os.Getenv("STRESS_TEST_PG_DSN") == "" {
		repo, err := mockapi.NewMemoryRepository(nil)
		require.NoError(t, err)
		return repo, nil
	}

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared = true
	)
	switch {
	case *flDSN != "" || os.Getenv("STRESS_TEST_PG_DSN") != "":
		pgC, dsn, err = infra.StartPostgres16(ctx, *flDSN)
	case dockerAvailable(ctx):
		pgC, dsn, err = infra.StartPostgres16(ctx, "")
		usedShared = false
	default:
		dsn, err = infra.InitLocalDatabase(ctx)
		pgC = &infra.PGContainer{}
		usedShared = false
	}
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	})
	return mockapi.NewPGRepository(pool), pool
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
