package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dharsanguruparan/certdossier/internal/model"
)

const runColumns = `id, case_id, subject_type, state, outcomes, errors, COALESCE(dossier_name,''), created_at, updated_at, finished_at`

// SaveRun upserts a ledger entry. The creation time of an existing row is kept.
func (r *Repository) SaveRun(ctx context.Context, run *model.Run) error {
	outcomes, err := json.Marshal(nonNil(run.Outcomes))
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	errs, err := json.Marshal(nonNil(run.Errors))
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO certificate_runs (id, case_id, subject_type, state, outcomes, errors, dossier_name, created_at, updated_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			outcomes = EXCLUDED.outcomes,
			errors = EXCLUDED.errors,
			dossier_name = EXCLUDED.dossier_name,
			updated_at = EXCLUDED.updated_at,
			finished_at = EXCLUDED.finished_at
	`, run.ID, run.CaseID, run.SubjectType, string(run.State), outcomes, errs, run.DossierName,
		run.CreatedAt.UTC(), run.UpdatedAt.UTC(), run.FinishedAt)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun returns a ledger entry by id.
func (r *Repository) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM certificate_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("select run: %w", err)
	}
	return run, nil
}

// ListRuns returns the runs of a case, newest first.
func (r *Repository) ListRuns(ctx context.Context, caseID int64) ([]model.Run, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+`
		FROM certificate_runs WHERE case_id = $1
		ORDER BY created_at DESC, id DESC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()
	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the newest run of a case.
func (r *Repository) LatestRun(ctx context.Context, caseID int64) (*model.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+`
		FROM certificate_runs WHERE case_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, caseID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("runs of case %d: %w", caseID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("select latest run: %w", err)
	}
	return run, nil
}

func scanRun(row scanner) (*model.Run, error) {
	var (
		run      model.Run
		state    string
		outcomes []byte
		errs     []byte
		finished sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.CaseID, &run.SubjectType, &state, &outcomes, &errs,
		&run.DossierName, &run.CreatedAt, &run.UpdatedAt, &finished); err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	if err := json.Unmarshal(outcomes, &run.Outcomes); err != nil {
		return nil, fmt.Errorf("decode outcomes: %w", err)
	}
	if err := json.Unmarshal(errs, &run.Errors); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	run.FinishedAt = optionalTime(finished)
	return &run, nil
}

func optionalTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
