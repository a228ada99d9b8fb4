package service

import (
	"context"
	"fmt"

	"github.com/clinterm/termserver/common/ids"
	"github.com/clinterm/termserver/common/logger"
	"github.com/clinterm/termserver/common/store"
)

// ConceptService handles concept-level queries
type ConceptService struct {
	store store.ComponentStore
	log   *logger.Logger
}

// NewConceptService creates a new concept service
func NewConceptService(componentStore store.ComponentStore, log *logger.Logger) *ConceptService {
	return &ConceptService{
		store: componentStore,
		log:   log,
	}
}

// FindAllActiveConcepts streams every active concept under the criteria
// into a dense identifier set. Only identifiers are projected, so the
// working set stays one int64 per concept even on branches with millions of
// concepts.
func (s *ConceptService) FindAllActiveConcepts(ctx context.Context, criteria store.BranchCriteria) (*ids.Set, error) {
	stream, err := s.store.StreamConcepts(ctx, store.ConceptQuery{
		Criteria: criteria,
		Active:   store.Bool(true),
		IDOnly:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("stream active concepts: %w", err)
	}
	set, err := store.CollectConceptIDs(stream)
	if err != nil {
		return nil, fmt.Errorf("collect active concepts: %w", err)
	}
	return set, nil
}
