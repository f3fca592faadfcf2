package mockapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"specimenreview/specimen"
)

// PGPool abstracts pgxpool.Pool for testability.
type PGPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository stores records in the specimen_records table of a Postgres database.
type PGRepository struct {
	pool PGPool
}

func NewPGRepository(pool PGPool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) List(ctx context.Context) ([]specimen.Record, error) {
	const listSQL = `
SELECT id, name, description, status, note
FROM specimen_records
ORDER BY position, id;
`
	rows, err := r.pool.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("mockapi: list records: %w", err)
	}
	defer rows.Close()

	records := []specimen.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("mockapi: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mockapi: list records: %w", err)
	}
	return records, nil
}

func (r *PGRepository) Patch(ctx context.Context, id string, updates specimen.Updates) (specimen.Record, error) {
	const patchSQL = `
UPDATE specimen_records
SET status = COALESCE($2, status),
    note = COALESCE($3, note)
WHERE id = $1
RETURNING id, name, description, status, note;
`
	rec, err := scanRecord(r.pool.QueryRow(ctx, patchSQL, id, statusArg(updates.Status), updates.Note))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return specimen.Record{}, ErrNotFound
		}
		return specimen.Record{}, fmt.Errorf("mockapi: patch record: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) Replace(ctx context.Context, records []specimen.Record) error {
	if err := checkUnique(records); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("mockapi: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM specimen_records`); err != nil {
		return fmt.Errorf("mockapi: clear records: %w", err)
	}

	const insertSQL = `
INSERT INTO specimen_records (position, id, name, description, status, note)
VALUES ($1, $2, $3, $4, $5, $6);
`
	for i, rec := range records {
		if _, err := tx.Exec(ctx, insertSQL, i, rec.ID, rec.Name, rec.Description, string(rec.Status), rec.Note); err != nil {
			return fmt.Errorf("mockapi: insert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("mockapi: commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (specimen.Record, error) {
	var (
		rec    specimen.Record
		status string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &status, &rec.Note); err != nil {
		return specimen.Record{}, err
	}
	rec.Status = specimen.Status(status)
	return rec, nil
}

func statusArg(s *specimen.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
