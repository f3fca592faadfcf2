package chaos

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FlakyTransport fails a fraction of requests with a synthetic 503 before
// they reach the server. Disable turns it into a pass-through.
type FlakyTransport struct {
	Base     http.RoundTripper
	Rate     float64
	mu       sync.Mutex
	rng      *rand.Rand
	disabled atomic.Bool
	injected atomic.Int64
}

func NewFlakyTransport(base http.RoundTripper, rate float64, seed uint64) *FlakyTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &FlakyTransport{Base: base, Rate: rate, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (t *FlakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.disabled.Load() && t.roll() < t.Rate {
		t.injected.Add(1)
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return &http.Response{
			Status:     "503 Service Unavailable",
			StatusCode: http.StatusServiceUnavailable,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"error":"chaos"}`)),
			Request:    req,
		}, nil
	}
	return t.Base.RoundTrip(req)
}

func (t *FlakyTransport) Disable() { t.disabled.Store(true) }

// Injected reports how many requests were failed on purpose.
func (t *FlakyTransport) Injected() int64 { return t.injected.Load() }

func (t *FlakyTransport) roll() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.Float64()
}

// TerminateRandomBackend periodically kills one of the stress run's own
// Postgres connections so the pool has to reconnect mid-run.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, appName string, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.IntN(5) == 0 {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
                                       WHERE datname = current_database() AND pid <> pg_backend_pid() AND application_name = $1
                                       ORDER BY random() LIMIT 1`, appName)
			}
		}
	}
}
