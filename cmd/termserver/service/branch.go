package service

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/clinterm/termserver/common/branch"
	"github.com/clinterm/termserver/common/logger"
	"github.com/clinterm/termserver/common/store"
)

// BranchService handles branch lookup and metadata persistence
type BranchService struct {
	store store.VersionControl
	log   *logger.Logger
}

// NewBranchService creates a new branch service
func NewBranchService(versionControl store.VersionControl, log *logger.Logger) *BranchService {
	return &BranchService{
		store: versionControl,
		log:   log,
	}
}

// FindBranchOrThrow returns the branch or fails when the path is unknown
func (s *BranchService) FindBranchOrThrow(ctx context.Context, path string) (*branch.Branch, error) {
	b, err := s.store.FindBranch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("find branch %s: %w", path, err)
	}
	return b, nil
}

// UpdateMetadata replaces the branch metadata
func (s *BranchService) UpdateMetadata(ctx context.Context, path string, metadata branch.Metadata) error {
	if err := s.store.UpdateMetadata(ctx, path, metadata); err != nil {
		return fmt.Errorf("update metadata on %s: %w", path, err)
	}
	s.log.Info("branch metadata updated", "branch", path)
	return nil
}

// PatchMetadata applies a JSON merge patch to the branch metadata and
// persists the result
func (s *BranchService) PatchMetadata(ctx context.Context, path string, mergePatch []byte) (*branch.Branch, error) {
	b, err := s.FindBranchOrThrow(ctx, path)
	if err != nil {
		return nil, err
	}

	current, err := json.Marshal(b.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata on %s: %w", path, err)
	}

	merged, err := jsonpatch.MergePatch(current, mergePatch)
	if err != nil {
		return nil, fmt.Errorf("merge patch metadata on %s: %w", path, err)
	}

	var metadata branch.Metadata
	if err := json.Unmarshal(merged, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal merged metadata on %s: %w", path, err)
	}

	if err := s.UpdateMetadata(ctx, path, metadata); err != nil {
		return nil, err
	}
	b.Metadata = metadata
	return b, nil
}
