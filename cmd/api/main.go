package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"specimenreview/auth"
	"specimenreview/config"
	"specimenreview/db"
	"specimenreview/metrics"
	"specimenreview/mockapi"
	"specimenreview/specimen"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.WithError(err).Fatal("listen")
	}
	if err := run(ctx, cfg, log, lis); err != nil {
		log.WithError(err).Fatal("mock api stopped")
	}
}

// run serves the mock API on lis until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log *logrus.Logger, lis net.Listener) error {
	repo, closeRepo, err := openRepository(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeRepo()

	handler, err := buildHandler(ctx, cfg, log, repo)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":   lis.Addr().String(),
			"driver": cfg.Store.Driver,
			"auth":   cfg.Auth.Enabled(),
		}).Info("mock api listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildHandler seeds the repository and wires service, metrics and auth.
func buildHandler(ctx context.Context, cfg *config.Config, log *logrus.Logger, repo mockapi.Repository) (http.Handler, error) {
	collector := metrics.New()
	svc := mockapi.NewService(repo).
		WithLogger(log).
		WithObserver(collector).
		WithLatency(cfg.Mock.Latency).
		WithFailureRate(cfg.Mock.FailureRate)

	seed, err := mockapi.LoadSeed(cfg.Store.SeedFile)
	if err != nil {
		return nil, err
	}
	if err := seedIfEmpty(ctx, svc, repo, seed); err != nil {
		return nil, err
	}

	opts := mockapi.HandlerOptions{
		Log:            log,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        collector,
		MetricsPath:    cfg.MetricsPath,
	}
	if cfg.Auth.Enabled() {
		opts.Verifier = auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}
	return mockapi.NewHandler(svc, opts), nil
}

// seedIfEmpty keeps rows that already exist in a persistent store.
func seedIfEmpty(ctx context.Context, svc *mockapi.Service, repo mockapi.Repository, seed []specimen.Record) error {
	existing, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("inspect store: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	return svc.Seed(ctx, seed)
}

func openRepository(ctx context.Context, opts config.StoreOptions) (mockapi.Repository, func(), error) {
	switch opts.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap database pool: %w", err)
		}
		if err := db.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return mockapi.NewPGRepository(pool), pool.Close, nil

	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := db.MigrateSQLite(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return mockapi.NewSQLRepository(conn), func() { _ = conn.Close() }, nil

	default:
		repo, err := mockapi.NewMemoryRepository(nil)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}
}
