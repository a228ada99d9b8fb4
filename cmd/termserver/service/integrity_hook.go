package service

import (
	"context"

	"github.com/google/cel-go/cel"

	"github.com/clinterm/termserver/common/branch"
	"github.com/clinterm/termserver/common/logger"
	"github.com/clinterm/termserver/common/metrics"
	"github.com/clinterm/termserver/common/store"
	"github.com/clinterm/termserver/common/store/filter"
)

// IntegrityCommitHook re-runs the changed-only check before a content
// commit completes and clears the branch's integrity flag on a clean
// result. Probe failures are logged and swallowed: a failing check must
// never block a legitimate commit.
type IntegrityCommitHook struct {
	integrity      *IntegrityService
	skipExpression string
	guard          *filter.Evaluator
	log            *logger.Logger
}

// NewIntegrityCommitHook creates the pre-commit listener. skipExpression is
// an optional CEL predicate over {path, rebase}; commits matching it are
// not checked.
func NewIntegrityCommitHook(integrity *IntegrityService, skipExpression string, log *logger.Logger) (*IntegrityCommitHook, error) {
	hook := &IntegrityCommitHook{
		integrity:      integrity,
		skipExpression: skipExpression,
		log:            log,
	}
	if skipExpression != "" {
		guard, err := filter.NewEvaluator(map[string]*cel.Type{
			"path":   cel.StringType,
			"rebase": cel.BoolType,
		})
		if err != nil {
			return nil, err
		}
		// Compile eagerly so a bad expression fails at startup, not on the
		// first commit
		if _, err := guard.EvaluateBool(skipExpression, map[string]any{"path": branch.Root, "rebase": false}); err != nil {
			return nil, err
		}
		hook.guard = guard
	}
	return hook, nil
}

// PreCommitCompletion implements store.CommitListener
func (h *IntegrityCommitHook) PreCommitCompletion(ctx context.Context, commit *store.Commit) error {
	if commit.IsRebase() {
		return nil
	}
	b := commit.Branch()
	if h.skipByGuard(b.Path, commit.IsRebase()) {
		metrics.HookRuns.WithLabelValues("skipped").Inc()
		return nil
	}
	if b.InternalValue(branch.IntegrityIssueMetadataKey) != "true" {
		return nil
	}
	if b.IsRoot() {
		// The changed-only check is rejected on the root branch; nothing to
		// do here
		return nil
	}

	criteria := h.integrity.store.BranchCriteriaIncludingOpenCommit(commit)
	report, err := h.integrity.findChangedComponentsWithBadIntegrity(ctx, criteria, b)
	if err != nil {
		h.log.Error("integrity check did not complete successfully", "branch", b.Path, "error", err)
		metrics.HookRuns.WithLabelValues("error").Inc()
		return nil
	}
	if report.IsEmpty() {
		b.RemoveInternalValue(branch.IntegrityIssueMetadataKey)
		h.log.Info("no integrity issue found after commit",
			"branch", b.Path,
			"commit", commit.Timepoint(),
		)
		metrics.HookRuns.WithLabelValues("cleared").Inc()
	} else {
		metrics.HookRuns.WithLabelValues("still_dirty").Inc()
	}
	return nil
}

func (h *IntegrityCommitHook) skipByGuard(path string, rebase bool) bool {
	if h.guard == nil {
		return false
	}
	skip, err := h.guard.EvaluateBool(h.skipExpression, map[string]any{
		"path":   path,
		"rebase": rebase,
	})
	if err != nil {
		h.log.Error("integrity hook skip expression failed", "error", err)
		return false
	}
	return skip
}
