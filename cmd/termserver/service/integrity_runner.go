package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinterm/termserver/cmd/termserver/models"
	"github.com/clinterm/termserver/common/cache"
	"github.com/clinterm/termserver/common/logger"
	common "github.com/clinterm/termserver/common/models"
)

// RunRecorder persists completed runs to the run log. Recording failures
// are reported but never fail the check itself.
type RunRecorder interface {
	Record(ctx context.Context, run *models.IntegrityRun) error
}

// IntegrityRunner wraps the checker for the request path: report caching by
// branch head, and run-log recording. The checker itself stays cache-free;
// reports are cached under the branch head timestamp so any commit misses
// the cache naturally.
type IntegrityRunner struct {
	integrity *IntegrityService
	branches  *BranchService
	cache     cache.Cache
	cacheTTL  time.Duration
	runs      RunRecorder
	log       *logger.Logger
}

// NewIntegrityRunner creates a new runner. cache and runs may be nil to
// disable caching or run recording.
func NewIntegrityRunner(
	integrity *IntegrityService,
	branches *BranchService,
	reportCache cache.Cache,
	cacheTTL time.Duration,
	runs RunRecorder,
	log *logger.Logger,
) *IntegrityRunner {
	return &IntegrityRunner{
		integrity: integrity,
		branches:  branches,
		cache:     reportCache,
		cacheTTL:  cacheTTL,
		runs:      runs,
		log:       log,
	}
}

// RunFull runs the full check on a branch
func (r *IntegrityRunner) RunFull(ctx context.Context, branchPath string, stated bool) (*common.IntegrityReport, error) {
	b, err := r.branches.FindBranchOrThrow(ctx, branchPath)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	report, err := r.integrity.FindAllComponentsWithBadIntegrity(ctx, b, stated)
	if err != nil {
		return nil, err
	}
	r.record(ctx, &models.IntegrityRun{
		BranchPath: branchPath,
		Check:      models.CheckKindFull,
		Stated:     &stated,
		DurationMS: time.Since(started).Milliseconds(),
		IssueCount: report.IssueCount(),
		Clean:      report.IsEmpty(),
	})
	return report, nil
}

// RunChanged runs the changed-only check, serving from the report cache
// when the branch head has not moved
func (r *IntegrityRunner) RunChanged(ctx context.Context, branchPath string) (*common.IntegrityReport, error) {
	b, err := r.branches.FindBranchOrThrow(ctx, branchPath)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("integrity:%s:%d", b.Path, b.HeadTimestamp)
	if r.cache != nil {
		if cached, hit, err := r.cache.Get(ctx, cacheKey); err == nil && hit {
			report := &common.IntegrityReport{}
			if err := json.Unmarshal(cached, report); err == nil {
				r.log.Debug("integrity report served from cache", "branch", branchPath)
				return report, nil
			}
		}
	}

	started := time.Now()
	report, err := r.integrity.FindChangedComponentsWithBadIntegrity(ctx, b)
	if err != nil {
		return nil, err
	}
	r.record(ctx, &models.IntegrityRun{
		BranchPath: branchPath,
		Check:      models.CheckKindChanged,
		DurationMS: time.Since(started).Milliseconds(),
		IssueCount: report.IssueCount(),
		Clean:      report.IsEmpty(),
	})

	if r.cache != nil {
		if serialized, err := json.Marshal(report); err == nil {
			if err := r.cache.Set(ctx, cacheKey, serialized, r.cacheTTL); err != nil {
				r.log.Warn("failed to cache integrity report", "branch", branchPath, "error", err)
			}
		}
	}
	return report, nil
}

// RunTask runs the task+extension differential check
func (r *IntegrityRunner) RunTask(ctx context.Context, taskBranchPath, extensionMainPath string) (*common.IntegrityReport, error) {
	taskBranch, err := r.branches.FindBranchOrThrow(ctx, taskBranchPath)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	report, err := r.integrity.FindChangedComponentsWithBadIntegrityOnTask(ctx, taskBranch, extensionMainPath)
	if err != nil {
		return nil, err
	}
	r.record(ctx, &models.IntegrityRun{
		BranchPath: taskBranchPath,
		Check:      models.CheckKindTask,
		DurationMS: time.Since(started).Milliseconds(),
		IssueCount: report.IssueCount(),
		Clean:      report.IsEmpty(),
	})
	return report, nil
}

func (r *IntegrityRunner) record(ctx context.Context, run *models.IntegrityRun) {
	if r.runs == nil {
		return
	}
	if err := r.runs.Record(ctx, run); err != nil {
		r.log.Warn("failed to record integrity run", "branch", run.BranchPath, "error", err)
	}
}
