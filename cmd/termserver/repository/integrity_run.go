package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinterm/termserver/cmd/termserver/models"
	"github.com/clinterm/termserver/common/db"
)

// IntegrityRunRepository handles database operations for the integrity run log
type IntegrityRunRepository struct {
	db *db.DB
}

// NewIntegrityRunRepository creates a new integrity run repository
func NewIntegrityRunRepository(db *db.DB) *IntegrityRunRepository {
	return &IntegrityRunRepository{db: db}
}

// Record inserts a completed run
func (r *IntegrityRunRepository) Record(ctx context.Context, run *models.IntegrityRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	query := `
		INSERT INTO integrity_run (id, branch_path, check_kind, stated, duration_ms, issue_count, clean, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`

	_, err := r.db.Exec(ctx, query,
		run.ID,
		run.BranchPath,
		run.Check,
		run.Stated,
		run.DurationMS,
		run.IssueCount,
		run.Clean,
	)

	if err != nil {
		return fmt.Errorf("failed to record integrity run: %w", err)
	}

	return nil
}

// ListByBranch retrieves the most recent runs for a branch, newest first
func (r *IntegrityRunRepository) ListByBranch(ctx context.Context, branchPath string, limit int) ([]*models.IntegrityRun, error) {
	query := `
		SELECT id, branch_path, check_kind, stated, duration_ms, issue_count, clean, created_at
		FROM integrity_run
		WHERE branch_path = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, branchPath, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrity runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.IntegrityRun
	for rows.Next() {
		run := &models.IntegrityRun{}
		err := rows.Scan(
			&run.ID,
			&run.BranchPath,
			&run.Check,
			&run.Stated,
			&run.DurationMS,
			&run.IssueCount,
			&run.Clean,
			&run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integrity run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read integrity runs: %w", err)
	}

	return runs, nil
}
