// Package postgres persists mining runs and their itemsets in PostgreSQL.
// Items are stored as INTEGER[] columns through lib/pq array support.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS mining_runs (
	id           TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	min_utility  BIGINT NOT NULL,
	status       TEXT NOT NULL,
	itemsets     INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS mined_itemsets (
	run_id      TEXT NOT NULL REFERENCES mining_runs(id) ON DELETE CASCADE,
	items       INTEGER[] NOT NULL,
	length      INTEGER NOT NULL,
	utility     BIGINT NOT NULL,
	support     INTEGER NOT NULL,
	min_period  INTEGER,
	max_period  INTEGER,
	avg_period  DOUBLE PRECISION,
	generator   BOOLEAN,
	PRIMARY KEY (run_id, items)
);
CREATE INDEX IF NOT EXISTS idx_mined_itemsets_utility ON mined_itemsets (run_id, utility DESC);
`

// Run statuses stored in mining_runs.status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
)

// RunInfo describes a run row.
type RunInfo struct {
	ID         string
	Mode       string
	MinUtility int64
	Status     string
	Itemsets   int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Store is the persistence surface the Sink depends on.
type Store interface {
	CreateRun(ctx context.Context, run RunInfo) error
	InsertItemsets(ctx context.Context, runID string, recs []itemset.Itemset) error
	FinishRun(ctx context.Context, runID string, count int) error
	DeleteRun(ctx context.Context, runID string) error
}

// Repository implements Store on a postgres.Client.
type Repository struct {
	client *postgres.Client
}

func NewRepository(client *postgres.Client) *Repository {
	return &Repository{client: client}
}

// Migrate creates the tables if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating result schema: %w", err)
	}
	return nil
}

func (r *Repository) CreateRun(ctx context.Context, run RunInfo) error {
	_, err := r.client.DB.ExecContext(ctx,
		`INSERT INTO mining_runs (id, mode, min_utility, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Mode, run.MinUtility, StatusRunning, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", run.ID, err)
	}
	return nil
}

// InsertItemsets writes recs in one transaction.
func (r *Repository) InsertItemsets(ctx context.Context, runID string, recs []itemset.Itemset) error {
	return r.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO mined_itemsets
				(run_id, items, length, utility, support, min_period, max_period, avg_period, generator)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, items) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing itemset insert: %w", err)
		}
		defer stmt.Close()
		for _, rec := range recs {
			items := make([]int64, len(rec.Items))
			for i, it := range rec.Items {
				items[i] = int64(it)
			}
			var minPer, maxPer sql.NullInt64
			var avgPer sql.NullFloat64
			if rec.MaxPeriod > 0 {
				minPer = sql.NullInt64{Int64: int64(rec.MinPeriod), Valid: true}
				maxPer = sql.NullInt64{Int64: int64(rec.MaxPeriod), Valid: true}
				avgPer = sql.NullFloat64{Float64: rec.AvgPeriod, Valid: true}
			}
			var gen sql.NullBool
			if rec.Generator != nil {
				gen = sql.NullBool{Bool: *rec.Generator, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, runID, pq.Array(items), len(items),
				rec.Utility, rec.Support, minPer, maxPer, avgPer, gen); err != nil {
				return fmt.Errorf("inserting itemset %s: %w", rec.Key(), err)
			}
		}
		return nil
	})
}

func (r *Repository) FinishRun(ctx context.Context, runID string, count int) error {
	_, err := r.client.DB.ExecContext(ctx,
		`UPDATE mining_runs SET status = $2, itemsets = $3, finished_at = $4 WHERE id = $1`,
		runID, StatusCompleted, count, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	return nil
}

// DeleteRun removes a run and, by cascade, its itemsets.
func (r *Repository) DeleteRun(ctx context.Context, runID string) error {
	if _, err := r.client.DB.ExecContext(ctx, `DELETE FROM mining_runs WHERE id = $1`, runID); err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	return nil
}

// GetRun loads a run row. It returns sql.ErrNoRows for an unknown id.
func (r *Repository) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	var run RunInfo
	var finished sql.NullTime
	err := r.client.DB.QueryRowContext(ctx,
		`SELECT id, mode, min_utility, status, itemsets, started_at, finished_at FROM mining_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Mode, &run.MinUtility, &run.Status, &run.Itemsets, &run.StartedAt, &finished)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// ListItemsets returns the itemsets of a run by descending utility, then
// length and items.
func (r *Repository) ListItemsets(ctx context.Context, runID string, limit int) ([]itemset.Itemset, error) {
	rows, err := r.client.DB.QueryContext(ctx, `
		SELECT items, utility, support, min_period, max_period, avg_period, generator
		FROM mined_itemsets WHERE run_id = $1
		ORDER BY utility DESC, length, items
		LIMIT $2`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing itemsets of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []itemset.Itemset
	for rows.Next() {
		var items pq.Int64Array
		var rec itemset.Itemset
		var minPer, maxPer sql.NullInt64
		var avgPer sql.NullFloat64
		var gen sql.NullBool
		if err := rows.Scan(&items, &rec.Utility, &rec.Support, &minPer, &maxPer, &avgPer, &gen); err != nil {
			return nil, fmt.Errorf("scanning itemset: %w", err)
		}
		rec.Items = make([]int, len(items))
		for i, it := range items {
			rec.Items[i] = int(it)
		}
		rec.MinPeriod = int(minPer.Int64)
		rec.MaxPeriod = int(maxPer.Int64)
		rec.AvgPeriod = avgPer.Float64
		if gen.Valid {
			g := gen.Bool
			rec.Generator = &g
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
