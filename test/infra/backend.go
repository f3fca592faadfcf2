package infra

import (
	"context"
	"fmt"
	"net/http/httptest"

	"specimenreview/mockapi"
	"specimenreview/specimen"
)

// Backend is a running mock record API over some repository.
type Backend struct {
	Server  *httptest.Server
	Service *mockapi.Service
}

// StartBackend seeds repo and serves it over an httptest server.
func StartBackend(ctx context.Context, repo mockapi.Repository, records []specimen.Record) (*Backend, error) {
	svc := mockapi.NewService(repo)
	if err := svc.Seed(ctx, records); err != nil {
		return nil, fmt.Errorf("seed backend: %w", err)
	}
	srv := httptest.NewServer(mockapi.NewHandler(svc, mockapi.HandlerOptions{}))
	return &Backend{Server: srv, Service: svc}, nil
}

func (b *Backend) URL() string { return b.Server.URL }

func (b *Backend) Close() { b.Server.Close() }

// StressRecords generates n records; flagged and needs_revision ones carry a note.
func StressRecords(n int) []specimen.Record {
	statuses := specimen.AllStatuses()
	out := make([]specimen.Record, n)
	for i := range out {
		s := statuses[i%len(statuses)]
		out[i] = specimen.Record{
			ID:          fmt.Sprintf("stress-%03d", i),
			Name:        fmt.Sprintf("Specimen %d", i),
			Description: "generated",
			Status:      s,
		}
		if s.RequiresNote() {
			out[i].Note = "seeded justification"
		}
	}
	return out
}
