package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckKind names an integrity check variant
type CheckKind string

// Check kinds
const (
	CheckKindFull    CheckKind = "full"
	CheckKindChanged CheckKind = "changed"
	CheckKindTask    CheckKind = "task"
)

// IntegrityRun records one completed integrity check
// Maps to: integrity_run table
type IntegrityRun struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BranchPath string    `db:"branch_path" json:"branch_path"`
	Check      CheckKind `db:"check_kind" json:"check"`
	Stated     *bool     `db:"stated" json:"stated,omitempty"`
	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	IssueCount int       `db:"issue_count" json:"issue_count"`
	Clean      bool      `db:"clean" json:"clean"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
