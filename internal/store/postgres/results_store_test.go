package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/pricewatch/internal/jobs"
	"github.com/storefrontlabs/pricewatch/internal/reconcile"
	"github.com/storefrontlabs/pricewatch/internal/store"
)

func sampleRun() store.ValidationRun {
	return store.ValidationRun{
		ID:         "0190f5a2-7b6e-7c1d-9f3a-2b4c6d8e0f12",
		Status:     jobs.StatusCompleted,
		StartedAt:  time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, 11, 3, 12, 10, 0, 0, time.UTC),
		ReportURI:  "gs://pricewatch/reports/2025-11-03/run.json",
		Total:      2,
		Passed:     1,
		Failed:     1,
		PassRate:   "50.00%",
	}
}

func TestSaveRunCommitsRunAndRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := sampleRun()
	expected := decimal.RequireFromString("15.99")
	actual := decimal.RequireFromString("16.50")
	diff := decimal.RequireFromString("0.51")
	rows := []reconcile.Row{
		{
			ProductName: "Classic Pepperoni",
			Category:    "pizzas",
			Level:       "PL1",
			Province:    "BC",
			StoreName:   "Vancouver Broadway",
			Expected:    &expected,
			Actual:      &actual,
			Difference:  &diff,
			Status:      reconcile.StatusFail,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO validation_runs").
		WithArgs(run.ID, "COMPLETED", run.StartedAt, run.FinishedAt, run.ReportURI,
			2, 1, 1, 0, 0, "50.00%").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO validation_results").
		WithArgs(run.ID, "Classic Pepperoni", nil, "pizzas", "PL1", "BC",
			"Vancouver Broadway", "15.99", "16.5", "0.51", "FAIL").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	s := NewResultsStoreWithPool(mock, nil)
	require.NoError(t, s.SaveRun(context.Background(), run, rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackOnRowFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := sampleRun()
	rows := []reconcile.Row{{ProductName: "Classic Pepperoni", Category: "pizzas", Status: reconcile.StatusMissingActual}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO validation_runs").
		WithArgs(run.ID, "COMPLETED", run.StartedAt, run.FinishedAt, run.ReportURI,
			2, 1, 1, 0, 0, "50.00%").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO validation_results").
		WithArgs(run.ID, "Classic Pepperoni", nil, "pizzas", nil, nil,
			nil, nil, nil, nil, "MISSING_ACTUAL").
		WillReturnError(pgx.ErrTxClosed)
	mock.ExpectRollback()

	s := NewResultsStoreWithPool(mock, nil)
	require.Error(t, s.SaveRun(context.Background(), run, rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := sampleRun()
	mock.ExpectQuery("SELECT (.+) FROM validation_runs").
		WithArgs(run.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "status", "started_at", "finished_at", "report_uri",
			"total", "passed", "failed", "missing_actual", "missing_expected", "pass_rate",
		}).AddRow(run.ID, "COMPLETED", run.StartedAt, run.FinishedAt, run.ReportURI,
			2, 1, 1, 0, 0, "50.00%"))

	s := NewResultsStoreWithPool(mock, nil)
	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, run, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM validation_runs").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	s := NewResultsStoreWithPool(mock, nil)
	_, err = s.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := sampleRun()
	mock.ExpectQuery("SELECT (.+) FROM validation_runs").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "status", "started_at", "finished_at", "report_uri",
			"total", "passed", "failed", "missing_actual", "missing_expected", "pass_rate",
		}).AddRow(run.ID, "COMPLETED", run.StartedAt, run.FinishedAt, run.ReportURI,
			2, 1, 1, 0, 0, "50.00%"))

	s := NewResultsStoreWithPool(mock, nil)
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, run.ID, runs[0].ID)
}
