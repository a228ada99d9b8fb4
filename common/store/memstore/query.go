package memstore

import (
	"context"
	"fmt"

	"github.com/clinterm/termserver/common/branch"
	"github.com/clinterm/termserver/common/models"
	"github.com/clinterm/termserver/common/store"
)

// sliceStream yields a materialized result set. Close is idempotent;
// context cancellation surfaces through Err and stops iteration.
type sliceStream[T any] struct {
	ctx    context.Context
	items  []T
	idx    int
	err    error
	closed bool
}

func (s *sliceStream[T]) Next() (T, bool) {
	var zero T
	if s.closed || s.err != nil {
		return zero, false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = fmt.Errorf("%w: %v", store.ErrStore, err)
		return zero, false
	}
	if s.idx >= len(s.items) {
		return zero, false
	}
	item := s.items[s.idx]
	s.idx++
	return item, true
}

func (s *sliceStream[T]) Err() error {
	return s.err
}

func (s *sliceStream[T]) Close() {
	s.closed = true
}

// selector picks one entity type's versioned container off a branch
type selector[K comparable, T any] func(*branchState) *versioned[K, T]

// collectVisible walks the branch ancestry, newest level first masking
// ancestor content. t caps this level's own writes; ancestor levels are
// capped by the lesser of t and each level's base timestamp.
func collectVisible[K comparable, T any](s *Store, path string, t int64, sel selector[K, T]) (map[K]T, error) {
	b, err := s.branchOrErr(path)
	if err != nil {
		return nil, err
	}

	var result map[K]T
	if parentPath, ok := branch.ParentPath(path); ok {
		result, err = collectVisible(s, parentPath, minInt64(t, b.meta.BaseTimestamp), sel)
		if err != nil {
			return nil, err
		}
	} else {
		result = map[K]T{}
	}

	for key, versions := range sel(b).docs {
		entry, ok := latestAt(versions, t)
		if !ok {
			continue
		}
		if entry.deleted {
			delete(result, key)
		} else {
			result[key] = entry.doc
		}
	}
	return result, nil
}

// collectChanged returns the branch's own unpromoted writes, and the keys
// of its deletion tombstones when includeDeletions is set
func collectChanged[K comparable, T any](s *Store, path string, includeDeletions bool, sel selector[K, T]) (map[K]T, map[K]struct{}, error) {
	b, err := s.branchOrErr(path)
	if err != nil {
		return nil, nil, err
	}

	docs := map[K]T{}
	deleted := map[K]struct{}{}
	for key, versions := range sel(b).docs {
		entry, ok := latestAt(versions, b.meta.HeadTimestamp)
		if !ok {
			continue
		}
		if entry.deleted {
			if includeDeletions {
				deleted[key] = struct{}{}
			}
		} else {
			docs[key] = entry.doc
		}
	}
	return docs, deleted, nil
}

// resolve evaluates a criteria into a key-to-document map plus deletion
// keys. overlay applies an open commit's staged writes for the entity type.
func resolve[K comparable, T any](
	s *Store,
	criteria store.BranchCriteria,
	sel selector[K, T],
	overlay func(map[K]T, *store.Commit),
) (map[K]T, map[K]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kind, path, commit := criteria.Resolve()
	switch kind {
	case store.CriteriaVisible:
		b, err := s.branchOrErr(path)
		if err != nil {
			return nil, nil, err
		}
		docs, err := collectVisible(s, path, b.meta.HeadTimestamp, sel)
		if err != nil {
			return nil, nil, err
		}
		if commit != nil {
			overlay(docs, commit)
		}
		return docs, nil, nil
	case store.CriteriaUnpromotedChanges:
		docs, _, err := collectChanged(s, path, false, sel)
		return docs, nil, err
	case store.CriteriaUnpromotedChangesAndDeletions:
		docs, deleted, err := collectChanged(s, path, true, sel)
		return docs, deleted, err
	default:
		return nil, nil, fmt.Errorf("unknown criteria kind %d", kind)
	}
}

func conceptSel(b *branchState) *versioned[int64, *models.Concept]           { return b.concepts }
func relationshipSel(b *branchState) *versioned[int64, *models.Relationship] { return b.relationships }
func memberSel(b *branchState) *versioned[string, *models.ReferenceSetMember] {
	return b.members
}
func queryConceptSel(b *branchState) *versioned[store.QueryConceptKey, *models.QueryConcept] {
	return b.queryConcepts
}
func descriptionSel(b *branchState) *versioned[int64, *models.Description] { return b.descriptions }

func overlayConcepts(docs map[int64]*models.Concept, c *store.Commit) {
	for id, doc := range c.ConceptWrites() {
		docs[id] = doc
	}
	for id := range c.ConceptDeletes() {
		delete(docs, id)
	}
}

func overlayRelationships(docs map[int64]*models.Relationship, c *store.Commit) {
	for id, doc := range c.RelationshipWrites() {
		docs[id] = doc
	}
	for id := range c.RelationshipDeletes() {
		delete(docs, id)
	}
}

func overlayMembers(docs map[string]*models.ReferenceSetMember, c *store.Commit) {
	for id, doc := range c.MemberWrites() {
		docs[id] = doc
	}
	for id := range c.MemberDeletes() {
		delete(docs, id)
	}
}

func overlayQueryConcepts(docs map[store.QueryConceptKey]*models.QueryConcept, c *store.Commit) {
	for key, doc := range c.QueryConceptWrites() {
		docs[key] = doc
	}
	for key := range c.QueryConceptDeletes() {
		delete(docs, key)
	}
}

func overlayDescriptions(docs map[int64]*models.Description, c *store.Commit) {
	for id, doc := range c.DescriptionWrites() {
		docs[id] = doc
	}
	for id := range c.DescriptionDeletes() {
		delete(docs, id)
	}
}

// StreamConcepts streams concepts matching the query. With an
// unpromoted-changes-and-deletions criteria, deletion tombstones surface as
// identifier-only records.
func (s *Store) StreamConcepts(ctx context.Context, query store.ConceptQuery) (store.Stream[*models.Concept], error) {
	docs, deleted, err := resolve(s, query.Criteria, conceptSel, overlayConcepts)
	if err != nil {
		return nil, err
	}

	var items []*models.Concept
	for _, doc := range docs {
		if query.Active != nil && doc.Active != *query.Active {
			continue
		}
		if query.ConceptIDIn != nil && !query.ConceptIDIn.Contains(doc.ConceptID) {
			continue
		}
		if query.IDOnly {
			items = append(items, &models.Concept{ConceptID: doc.ConceptID})
		} else {
			items = append(items, copyConcept(doc))
		}
	}
	// Tombstones carry only the identifier; they never match an Active filter
	if query.Active == nil {
		for id := range deleted {
			if query.ConceptIDIn != nil && !query.ConceptIDIn.Contains(id) {
				continue
			}
			items = append(items, &models.Concept{ConceptID: id})
		}
	}
	return &sliceStream[*models.Concept]{ctx: ctx, items: items}, nil
}

// StreamRelationships streams relationships matching the query
func (s *Store) StreamRelationships(ctx context.Context, query store.RelationshipQuery) (store.Stream[*models.Relationship], error) {
	docs, _, err := resolve(s, query.Criteria, relationshipSel, overlayRelationships)
	if err != nil {
		return nil, err
	}

	var items []*models.Relationship
	for _, doc := range docs {
		if !matchRelationship(doc, query) {
			continue
		}
		items = append(items, copyRelationship(doc))
	}
	return &sliceStream[*models.Relationship]{ctx: ctx, items: items}, nil
}

func matchRelationship(r *models.Relationship, query store.RelationshipQuery) bool {
	if query.Active != nil && r.Active != *query.Active {
		return false
	}
	if query.CharacteristicTypeID != nil && r.CharacteristicTypeID != *query.CharacteristicTypeID {
		return false
	}
	if query.NotCharacteristicTypeID != nil && r.CharacteristicTypeID == *query.NotCharacteristicTypeID {
		return false
	}
	if query.RelationshipIDIn != nil && !query.RelationshipIDIn.Contains(r.RelationshipID) {
		return false
	}
	if set := query.AnyReferencedIn; set != nil {
		hit := set.Contains(r.SourceID) || set.Contains(r.TypeID) ||
			(!r.Concrete() && set.Contains(r.DestinationID))
		if !hit {
			return false
		}
	}
	if set := query.AnyReferencedNotIn; set != nil {
		hit := !set.Contains(r.SourceID) || !set.Contains(r.TypeID) ||
			(!r.Concrete() && !set.Contains(r.DestinationID))
		if !hit {
			return false
		}
	}
	return true
}

// StreamQueryConcepts streams semantic index entries matching the query
func (s *Store) StreamQueryConcepts(ctx context.Context, query store.QueryConceptQuery) (store.Stream[*models.QueryConcept], error) {
	docs, _, err := resolve(s, query.Criteria, queryConceptSel, overlayQueryConcepts)
	if err != nil {
		return nil, err
	}

	var items []*models.QueryConcept
	for _, doc := range docs {
		if !matchQueryConcept(doc, query) {
			continue
		}
		items = append(items, copyQueryConcept(doc))
	}
	return &sliceStream[*models.QueryConcept]{ctx: ctx, items: items}, nil
}

func matchQueryConcept(q *models.QueryConcept, query store.QueryConceptQuery) bool {
	if query.Stated != nil && q.Stated != *query.Stated {
		return false
	}
	if query.ConceptIDNotIn != nil && query.ConceptIDNotIn.Contains(q.ConceptIDL) {
		return false
	}
	if query.AttrValueIn != nil && !anyAttrValue(q, func(v int64) bool { return query.AttrValueIn.Contains(v) }) {
		return false
	}
	if query.AttrValueNotIn != nil && !anyAttrValue(q, func(v int64) bool { return !query.AttrValueNotIn.Contains(v) }) {
		return false
	}
	return true
}

func anyAttrValue(q *models.QueryConcept, pred func(int64) bool) bool {
	for _, values := range q.Attr {
		for _, v := range values {
			if pred(v) {
				return true
			}
		}
	}
	return false
}

// StreamReferenceSetMembers streams reference-set members matching the query
func (s *Store) StreamReferenceSetMembers(ctx context.Context, query store.MemberQuery) (store.Stream[*models.ReferenceSetMember], error) {
	docs, _, err := resolve(s, query.Criteria, memberSel, overlayMembers)
	if err != nil {
		return nil, err
	}

	var memberIDIn map[string]struct{}
	if query.MemberIDIn != nil {
		memberIDIn = make(map[string]struct{}, len(query.MemberIDIn))
		for _, id := range query.MemberIDIn {
			memberIDIn[id] = struct{}{}
		}
	}

	var items []*models.ReferenceSetMember
	for _, doc := range docs {
		if query.Active != nil && doc.Active != *query.Active {
			continue
		}
		if query.RefsetID != nil && doc.RefsetID != *query.RefsetID {
			continue
		}
		if query.ReferencedComponentIDIn != nil && !query.ReferencedComponentIDIn.Contains(doc.ReferencedComponentID) {
			continue
		}
		if memberIDIn != nil {
			if _, ok := memberIDIn[doc.MemberID]; !ok {
				continue
			}
		}
		items = append(items, copyMember(doc))
	}
	return &sliceStream[*models.ReferenceSetMember]{ctx: ctx, items: items}, nil
}

// StreamDescriptions streams descriptions matching the query
func (s *Store) StreamDescriptions(ctx context.Context, query store.DescriptionQuery) (store.Stream[*models.Description], error) {
	docs, _, err := resolve(s, query.Criteria, descriptionSel, overlayDescriptions)
	if err != nil {
		return nil, err
	}

	var items []*models.Description
	for _, doc := range docs {
		if query.Active != nil && doc.Active != *query.Active {
			continue
		}
		if query.ConceptIDIn != nil && !query.ConceptIDIn.Contains(doc.ConceptID) {
			continue
		}
		items = append(items, copyDescription(doc))
	}
	return &sliceStream[*models.Description]{ctx: ctx, items: items}, nil
}
