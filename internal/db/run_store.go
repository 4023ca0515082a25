package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/localizer/internal/mcl"
	"github.com/banshee-data/localizer/internal/session"
)

// Timestamps are stored as RFC3339 strings so rows read the same in the
// tailsql console as in the API.
const timeLayout = time.RFC3339Nano

// CreateRun inserts a new run row with status 'running'.
func (db *DB) CreateRun(rec *session.RunRecord) error {
	query := `
		INSERT INTO runs (
			run_id, source, map_name, particle_count, seed,
			started_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		rec.ID,
		rec.Source,
		rec.MapName,
		rec.ParticleCount,
		int64(rec.Seed),
		rec.StartedAt.UTC().Format(timeLayout),
		session.StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", rec.ID, err)
	}

	return nil
}

// FinishRun records the terminal state of a run: status, step counts,
// cumulative errors, and the finish timestamp.
func (db *DB) FinishRun(rec *session.RunRecord) error {
	if rec.FinishedAt == nil {
		now := time.Now().UTC()
		rec.FinishedAt = &now
	}

	query := `
		UPDATE runs SET
			finished_at = ?,
			status = ?,
			steps = ?,
			degenerate_resamples = ?,
			error_x = ?,
			error_y = ?,
			error_theta = ?,
			error_message = ?
		WHERE run_id = ?
	`

	result, err := db.DB.Exec(
		query,
		rec.FinishedAt.UTC().Format(timeLayout),
		rec.Status,
		rec.Steps,
		rec.DegenerateResamples,
		rec.ErrorX,
		rec.ErrorY,
		rec.ErrorTheta,
		rec.ErrorMessage,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", rec.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found", rec.ID)
	}

	return nil
}

// InsertEstimate appends one per-step estimate row for a run.
func (db *DB) InsertEstimate(est *session.StepEstimate) error {
	query := `
		INSERT INTO run_estimates (
			run_id, step, best_x, best_y, best_theta, max_weight,
			degenerate, truth_x, truth_y, truth_theta,
			error_x, error_y, error_theta,
			associations, sense_x, sense_y
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	degenerateInt := 0
	if est.Degenerate {
		degenerateInt = 1
	}

	var truthX, truthY, truthTheta *float64
	if est.Truth != nil {
		truthX = &est.Truth.X
		truthY = &est.Truth.Y
		truthTheta = &est.Truth.Theta
	}

	_, err := db.DB.Exec(
		query,
		est.RunID,
		est.Step,
		est.Best.X,
		est.Best.Y,
		est.Best.Theta,
		est.MaxWeight,
		degenerateInt,
		truthX,
		truthY,
		truthTheta,
		est.ErrorX,
		est.ErrorY,
		est.ErrorTheta,
		est.Associations,
		est.SenseX,
		est.SenseY,
	)
	if err != nil {
		return fmt.Errorf("failed to insert estimate for run %s step %d: %w", est.RunID, est.Step, err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(id string) (*session.RunRecord, error) {
	query := `
		SELECT
			run_id, source, map_name, particle_count, seed,
			started_at, finished_at, status, steps,
			degenerate_resamples, error_x, error_y, error_theta,
			error_message
		FROM runs
		WHERE run_id = ?
	`

	rec, err := scanRun(db.DB.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	return rec, nil
}

// ListRuns returns the most recent runs, newest first. A limit of 0
// defaults to 50.
func (db *DB) ListRuns(limit int) ([]*session.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT
			run_id, source, map_name, particle_count, seed,
			started_at, finished_at, status, steps,
			degenerate_resamples, error_x, error_y, error_theta,
			error_message
		FROM runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?
	`

	rows, err := db.DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var recs []*session.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return recs, nil
}

// GetEstimates returns the per-step estimates for a run in step order.
// A limit of 0 returns all steps.
func (db *DB) GetEstimates(runID string, limit int) ([]*session.StepEstimate, error) {
	query := `
		SELECT
			run_id, step, best_x, best_y, best_theta, max_weight,
			degenerate, truth_x, truth_y, truth_theta,
			error_x, error_y, error_theta,
			associations, sense_x, sense_y
		FROM run_estimates
		WHERE run_id = ?
		ORDER BY step ASC
	`
	args := []any{runID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get estimates for run %s: %w", runID, err)
	}
	defer rows.Close()

	var ests []*session.StepEstimate
	for rows.Next() {
		var est session.StepEstimate
		var degenerateInt int
		var truthX, truthY, truthTheta sql.NullFloat64

		err := rows.Scan(
			&est.RunID,
			&est.Step,
			&est.Best.X,
			&est.Best.Y,
			&est.Best.Theta,
			&est.MaxWeight,
			&degenerateInt,
			&truthX,
			&truthY,
			&truthTheta,
			&est.ErrorX,
			&est.ErrorY,
			&est.ErrorTheta,
			&est.Associations,
			&est.SenseX,
			&est.SenseY,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}

		est.Degenerate = degenerateInt != 0
		if truthX.Valid && truthY.Valid && truthTheta.Valid {
			est.Truth = &mcl.Pose{X: truthX.Float64, Y: truthY.Float64, Theta: truthTheta.Float64}
		}

		ests = append(ests, &est)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate estimates: %w", err)
	}

	return ests, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*session.RunRecord, error) {
	var rec session.RunRecord
	var seed int64
	var startedAt string
	var finishedAt sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.Source,
		&rec.MapName,
		&rec.ParticleCount,
		&seed,
		&startedAt,
		&finishedAt,
		&rec.Status,
		&rec.Steps,
		&rec.DegenerateResamples,
		&rec.ErrorX,
		&rec.ErrorY,
		&rec.ErrorTheta,
		&rec.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	rec.Seed = uint64(seed)
	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at %q: %w", startedAt, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at %q: %w", finishedAt.String, err)
		}
		rec.FinishedAt = &t
	}

	return &rec, nil
}
