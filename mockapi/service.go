package mockapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"specimenreview/specimen"
)

var (
	// ErrInvalidPatch signals a patch request that cannot be applied as given.
	ErrInvalidPatch = errors.New("mockapi: invalid patch")
	// ErrInjectedFailure is returned when simulated backend failure triggers.
	ErrInjectedFailure = errors.New("mockapi: injected failure")
)

// Observer receives collection and patch outcomes. *metrics.Collector satisfies it.
type Observer interface {
	ObserveRecords(records []specimen.Record)
	ObservePatch(result string)
}

type nopObserver struct{}

func (nopObserver) ObserveRecords([]specimen.Record) {}
func (nopObserver) ObservePatch(string)              {}

// Service fronts a Repository with validation and optional simulated latency
// and failures.
type Service struct {
	repo        Repository
	log         *logrus.Logger
	observer    Observer
	latency     time.Duration
	failureRate float64
	roll        func() float64
}

func NewService(repo Repository) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Service{
		repo:     repo,
		log:      log,
		observer: nopObserver{},
		roll:     rand.Float64,
	}
}

func (s *Service) WithLogger(log *logrus.Logger) *Service {
	if log != nil {
		s.log = log
	}
	return s
}

func (s *Service) WithObserver(o Observer) *Service {
	if o != nil {
		s.observer = o
	}
	return s
}

// WithLatency delays every call by d.
func (s *Service) WithLatency(d time.Duration) *Service {
	s.latency = d
	return s
}

// WithFailureRate makes a fraction of calls fail with ErrInjectedFailure.
func (s *Service) WithFailureRate(rate float64) *Service {
	s.failureRate = rate
	return s
}

func (s *Service) WithRoll(roll func() float64) *Service {
	s.roll = roll
	return s
}

// List returns every record in insertion order.
func (s *Service) List(ctx context.Context) ([]specimen.Record, error) {
	if err := s.simulate(ctx, "list"); err != nil {
		return nil, err
	}

	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	s.observer.ObserveRecords(records)
	return records, nil
}

// Patch validates and applies a partial update to a single record.
func (s *Service) Patch(ctx context.Context, id string, updates specimen.Updates) (specimen.Record, error) {
	if err := validatePatch(id, updates); err != nil {
		s.observer.ObservePatch("invalid")
		return specimen.Record{}, err
	}
	if err := s.simulate(ctx, "patch"); err != nil {
		s.observer.ObservePatch("failed")
		return specimen.Record{}, err
	}

	rec, err := s.repo.Patch(ctx, id, updates)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.observer.ObservePatch("not_found")
		} else {
			s.observer.ObservePatch("failed")
		}
		return specimen.Record{}, err
	}
	s.observer.ObservePatch("ok")

	if records, err := s.repo.List(ctx); err == nil {
		s.observer.ObserveRecords(records)
	}

	s.log.WithFields(logrus.Fields{
		"id":     rec.ID,
		"status": rec.Status,
	}).Info("record patched")
	return rec, nil
}

// Seed replaces the collection with records.
func (s *Service) Seed(ctx context.Context, records []specimen.Record) error {
	if err := s.repo.Replace(ctx, records); err != nil {
		return err
	}
	s.observer.ObserveRecords(records)
	s.log.WithField("records", len(records)).Info("records seeded")
	return nil
}

func validatePatch(id string, updates specimen.Updates) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidPatch)
	}
	if updates.Empty() {
		return fmt.Errorf("%w: no fields to update", ErrInvalidPatch)
	}
	if updates.Status != nil && !updates.Status.Valid() {
		return fmt.Errorf("%w: %w %q", ErrInvalidPatch, specimen.ErrInvalidStatus, *updates.Status)
	}
	return nil
}

func (s *Service) simulate(ctx context.Context, op string) error {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if s.failureRate > 0 && s.roll() < s.failureRate {
		s.log.WithField("op", op).Warn("injecting backend failure")
		return ErrInjectedFailure
	}
	return nil
}
