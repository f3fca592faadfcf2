package mockapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"specimenreview/specimen"
)

// SQLRepository stores records in a SQLite database opened with db.OpenSQLite.
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) List(ctx context.Context) ([]specimen.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, status, note FROM specimen_records ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("mockapi: list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (r *SQLRepository) Patch(ctx context.Context, id string, updates specimen.Updates) (specimen.Record, error) {
	const patchSQL = `
UPDATE specimen_records
SET status = COALESCE(?, status),
    note = COALESCE(?, note)
WHERE id = ?
RETURNING id, name, description, status, note`

	var status, note sql.NullString
	if updates.Status != nil {
		status = sql.NullString{String: string(*updates.Status), Valid: true}
	}
	if updates.Note != nil {
		note = sql.NullString{String: *updates.Note, Valid: true}
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx, patchSQL, status, note, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return specimen.Record{}, ErrNotFound
		}
		return specimen.Record{}, fmt.Errorf("mockapi: patch record: %w", err)
	}
	return rec, nil
}

func (r *SQLRepository) Replace(ctx context.Context, records []specimen.Record) (retErr error) {
	if err := checkUnique(records); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mockapi: begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM specimen_records`); err != nil {
		return fmt.Errorf("mockapi: clear records: %w", err)
	}
	for i, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO specimen_records (position, id, name, description, status, note) VALUES (?, ?, ?, ?, ?, ?)`,
			i, rec.ID, rec.Name, rec.Description, string(rec.Status), rec.Note,
		); err != nil {
			return fmt.Errorf("mockapi: insert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mockapi: commit tx: %w", err)
	}
	return nil
}
