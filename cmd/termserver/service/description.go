package service

import (
	"context"
	"fmt"

	"github.com/clinterm/termserver/common/ids"
	"github.com/clinterm/termserver/common/logger"
	"github.com/clinterm/termserver/common/models"
	"github.com/clinterm/termserver/common/store"
)

// DescriptionJoiner populates display terms on concept descriptors.
// The integrity checker holds this by interface so the report assembly does
// not depend on how terms are stored.
type DescriptionJoiner interface {
	JoinActiveDescriptions(ctx context.Context, branchPath string, miniMap map[int64]*models.ConceptMini) error
}

// DescriptionService joins FSN and preferred terms onto concept descriptors
type DescriptionService struct {
	store   store.VersionControl
	fsnType int64
	log     *logger.Logger
}

// NewDescriptionService creates a new description service
func NewDescriptionService(versionControl store.VersionControl, log *logger.Logger) *DescriptionService {
	return &DescriptionService{
		store:   versionControl,
		fsnType: models.FSNType,
		log:     log,
	}
}

// JoinActiveDescriptions fills FSN and PT on every descriptor in the map
// from the branch-visible active descriptions. Concepts without terms are
// left untouched.
func (s *DescriptionService) JoinActiveDescriptions(ctx context.Context, branchPath string, miniMap map[int64]*models.ConceptMini) error {
	if len(miniMap) == 0 {
		return nil
	}

	criteria, err := s.store.BranchCriteria(ctx, branchPath)
	if err != nil {
		return fmt.Errorf("criteria for %s: %w", branchPath, err)
	}

	conceptIDs := ids.NewSet(len(miniMap))
	for conceptID := range miniMap {
		conceptIDs.Add(conceptID)
	}

	stream, err := s.store.StreamDescriptions(ctx, store.DescriptionQuery{
		Criteria:    criteria,
		Active:      store.Bool(true),
		ConceptIDIn: conceptIDs,
	})
	if err != nil {
		return fmt.Errorf("stream descriptions on %s: %w", branchPath, err)
	}
	defer stream.Close()

	for {
		description, ok := stream.Next()
		if !ok {
			break
		}
		mini := miniMap[description.ConceptID]
		if mini == nil {
			continue
		}
		if description.TypeID == s.fsnType {
			mini.FSN = description.Term
		} else if description.Preferred {
			mini.PT = description.Term
		}
	}
	return stream.Err()
}
