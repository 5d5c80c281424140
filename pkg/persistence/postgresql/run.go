package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const runColumns = `
	id
  , journey_id
  , journey_name
  , channel
  , status
  , total
  , processed
  , error
  , created_at
  , started_at
  , ended_at
`

func (r *RunRepository) Runs(ctx context.Context, status models.RunStatus) ([]*models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs"
	args := []any{}

	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (r *RunRepository) RunByID(ctx context.Context, id string) (*models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE id = $1"

	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

func (r *RunRepository) SaveRun(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (id, journey_id, journey_name, channel, status, total, processed, error, created_at, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			processed = EXCLUDED.processed,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.JourneyID, nullString(run.JourneyName), nullString(run.Channel),
		run.Status, run.Total, run.Processed, nullString(run.Error),
		run.CreatedAt, run.StartedAt, run.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	return nil
}

func (r *RunRepository) scanRun(row rowScanner) (*models.Run, error) {
	var (
		run         models.Run
		journeyName sql.NullString
		channel     sql.NullString
		runError    sql.NullString
		startedAt   sql.NullTime
		endedAt     sql.NullTime
	)

	err := row.Scan(&run.ID, &run.JourneyID, &journeyName, &channel, &run.Status,
		&run.Total, &run.Processed, &runError, &run.CreatedAt, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}

	run.JourneyName = journeyName.String
	run.Channel = channel.String
	run.Error = runError.String

	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}

	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}

	return &run, nil
}
