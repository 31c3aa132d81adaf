// Package postgres implements the validation-run repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/reconcile"
	"github.com/storefrontlabs/pricewatch/internal/store"
)

// pgxPool is the slice of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ResultsStore persists validation runs and their per-product rows.
type ResultsStore struct {
	pool   pgxPool
	logger *zap.Logger
}

// NewResultsStore connects a pool to the given DSN and pings it.
func NewResultsStore(ctx context.Context, dsn string, logger *zap.Logger) (*ResultsStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect results store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping results store: %w", err)
	}
	return NewResultsStoreWithPool(pool, logger), nil
}

// NewResultsStoreWithPool wraps an existing pool; used by tests.
func NewResultsStoreWithPool(pool pgxPool, logger *zap.Logger) *ResultsStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsStore{pool: pool, logger: logger}
}

const insertRunSQL = `
INSERT INTO validation_runs
	(id, status, started_at, finished_at, report_uri,
	 total, passed, failed, missing_actual, missing_expected, pass_rate)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const insertRowSQL = `
INSERT INTO validation_results
	(run_id, product_name, scraped_name, category, pricing_level, province,
	 store_name, expected_price, actual_price, difference, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// SaveRun writes the run header and every result row in one transaction.
func (s *ResultsStore) SaveRun(ctx context.Context, run store.ValidationRun, rows []reconcile.Row) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save run %s: begin: %w", run.ID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, insertRunSQL,
		run.ID, string(run.Status), run.StartedAt, run.FinishedAt, run.ReportURI,
		run.Total, run.Passed, run.Failed, run.MissingActual, run.MissingExpected, run.PassRate,
	)
	if err != nil {
		return fmt.Errorf("save run %s: insert run: %w", run.ID, err)
	}

	for _, row := range rows {
		_, err = tx.Exec(ctx, insertRowSQL,
			run.ID, row.ProductName, nullString(row.ScrapedName), row.Category,
			nullString(string(row.Level)), nullString(row.Province), nullString(row.StoreName),
			decimalString(row.Expected), decimalString(row.Actual), decimalString(row.Difference),
			string(row.Status),
		)
		if err != nil {
			return fmt.Errorf("save run %s: insert row %q: %w", run.ID, row.ProductName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("save run %s: commit: %w", run.ID, err)
	}
	s.logger.Debug("validation run persisted", zap.String("run_id", run.ID), zap.Int("rows", len(rows)))
	return nil
}

const selectRunSQL = `
SELECT id, status, started_at, finished_at, report_uri,
       total, passed, failed, missing_actual, missing_expected, pass_rate
FROM validation_runs
WHERE id = $1`

// GetRun loads one run header by id.
func (s *ResultsStore) GetRun(ctx context.Context, id string) (store.ValidationRun, error) {
	var run store.ValidationRun
	err := s.pool.QueryRow(ctx, selectRunSQL, id).Scan(
		&run.ID, &run.Status, &run.StartedAt, &run.FinishedAt, &run.ReportURI,
		&run.Total, &run.Passed, &run.Failed, &run.MissingActual, &run.MissingExpected, &run.PassRate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ValidationRun{}, store.ErrNotFound
	}
	if err != nil {
		return store.ValidationRun{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

const listRunsSQL = `
SELECT id, status, started_at, finished_at, report_uri,
       total, passed, failed, missing_actual, missing_expected, pass_rate
FROM validation_runs
ORDER BY finished_at DESC
LIMIT $1`

// ListRuns returns the most recent runs, newest first.
func (s *ResultsStore) ListRuns(ctx context.Context, limit int) ([]store.ValidationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []store.ValidationRun
	for rows.Next() {
		var run store.ValidationRun
		err := rows.Scan(
			&run.ID, &run.Status, &run.StartedAt, &run.FinishedAt, &run.ReportURI,
			&run.Total, &run.Passed, &run.Failed, &run.MissingActual, &run.MissingExpected, &run.PassRate,
		)
		if err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// Close releases the underlying pool.
func (s *ResultsStore) Close() {
	s.pool.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decimalString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
