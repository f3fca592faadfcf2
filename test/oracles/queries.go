package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All lists the invariants checked directly against the Postgres record store.
func All() []Oracle {
	return []Oracle{
		{
			Name: "P1_known_status",
			SQL: `SELECT id, status FROM specimen_records
                  WHERE status NOT IN ('pending','approved','flagged','needs_revision')`,
		},
		{
			Name: "P2_note_when_required",
			SQL: `SELECT id, status FROM specimen_records
                  WHERE status IN ('flagged','needs_revision') AND note = ''`,
		},
		{
			Name: "P3_unique_position",
			SQL: `SELECT position, COUNT(*) FROM specimen_records
                  GROUP BY position HAVING COUNT(*) > 1`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
