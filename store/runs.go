package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielmmetz/hn-apicheck/check"
)

// Run is one execution of the check suite.
type Run struct {
	ID         int64  `json:"id"`
	BaseURL    string `json:"base_url"`
	Trigger    string `json:"trigger"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt *int64 `json:"finished_at"`
	check.Summary
	Results []check.Result `json:"results,omitempty"`
}

type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Create records the start of a run and returns its ID.
func (s *RunStore) Create(ctx context.Context, baseURL, trigger string, startedAt int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (base_url, "trigger", started_at) VALUES (?, ?, ?)`,
		baseURL, trigger, startedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddResult stores the result at position seq of a run.
func (s *RunStore) AddResult(ctx context.Context, runID int64, seq int, r check.Result) error {
	var observed *string
	if len(r.Observed) > 0 {
		b, err := json.Marshal(r.Observed)
		if err != nil {
			return fmt.Errorf("encode observed values: %w", err)
		}
		v := string(b)
		observed = &v
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (run_id, seq, group_name, name, outcome, message, observed, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, r.Group, r.Name, string(r.Outcome), r.Message, observed,
		r.Started.Unix(), r.Duration.Milliseconds())
	return err
}

// Finish stamps the end time and outcome counts of a run.
func (s *RunStore) Finish(ctx context.Context, runID, finishedAt int64, sum check.Summary) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, passed = ?, failed = ?, skipped = ?, errored = ?
		WHERE id = ?`,
		finishedAt, sum.Passed, sum.Failed, sum.Skipped, sum.Errored, runID)
	return err
}

const runColumns = `id, base_url, "trigger", started_at, finished_at, passed, failed, skipped, errored`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.BaseURL, &r.Trigger, &r.StartedAt, &r.FinishedAt,
		&r.Passed, &r.Failed, &r.Skipped, &r.Errored); err != nil {
		return nil, err
	}
	return &r, nil
}

// Latest returns the most recently finished run, or nil if there is none.
func (s *RunStore) Latest(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE finished_at IS NOT NULL ORDER BY id DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// List returns up to limit runs, newest first, without results.
func (s *RunStore) List(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns a run with its results in check order, or nil if unknown.
func (s *RunStore) Get(ctx context.Context, id int64) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT group_name, name, outcome, message, observed, started_at, duration_ms
		FROM results WHERE run_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	r.Results = []check.Result{}
	for rows.Next() {
		var (
			res        check.Result
			outcome    string
			observed   *string
			started    int64
			durationMS int64
		)
		if err := rows.Scan(&res.Group, &res.Name, &outcome, &res.Message, &observed, &started, &durationMS); err != nil {
			return nil, err
		}
		res.Outcome = check.Outcome(outcome)
		res.Started = time.Unix(started, 0)
		res.Duration = time.Duration(durationMS) * time.Millisecond
		if observed != nil {
			if err := json.Unmarshal([]byte(*observed), &res.Observed); err != nil {
				return nil, fmt.Errorf("decode observed values for run %d: %w", id, err)
			}
		}
		r.Results = append(r.Results, res)
	}
	return r, rows.Err()
}

// DeleteBefore removes runs started before cutoff along with their results.
func (s *RunStore) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *RunStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

func (s *RunStore) Vacuum() error {
	_, err := s.db.Exec(`VACUUM`)
	return err
}
