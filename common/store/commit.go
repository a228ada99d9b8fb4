package store

import (
	"context"
	"fmt"

	"github.com/clinterm/termserver/common/branch"
	"github.com/clinterm/termserver/common/models"
)

// QueryConceptKey identifies a semantic index entry: one per concept per form
type QueryConceptKey struct {
	ConceptID int64
	Stated    bool
}

// Commit stages writes against one branch until completed. Pre-commit
// listeners run inside Complete, before anything becomes visible; they may
// mutate the commit's branch metadata and the mutation is persisted with
// the commit.
type Commit struct {
	branch    *branch.Branch
	timepoint int64
	rebase    bool
	completed bool

	concepts       map[int64]*models.Concept
	deleteConcepts map[int64]struct{}

	relationships       map[int64]*models.Relationship
	deleteRelationships map[int64]struct{}

	members       map[string]*models.ReferenceSetMember
	deleteMembers map[string]struct{}

	queryConcepts       map[QueryConceptKey]*models.QueryConcept
	deleteQueryConcepts map[QueryConceptKey]struct{}

	descriptions       map[int64]*models.Description
	deleteDescriptions map[int64]struct{}

	completeFn func(ctx context.Context, c *Commit) error
}

// NewCommit is used by store implementations to open a commit. completeFn
// applies the staged writes when Complete is called.
func NewCommit(b *branch.Branch, timepoint int64, rebase bool, completeFn func(ctx context.Context, c *Commit) error) *Commit {
	return &Commit{
		branch:              b,
		timepoint:           timepoint,
		rebase:              rebase,
		concepts:            map[int64]*models.Concept{},
		deleteConcepts:      map[int64]struct{}{},
		relationships:       map[int64]*models.Relationship{},
		deleteRelationships: map[int64]struct{}{},
		members:             map[string]*models.ReferenceSetMember{},
		deleteMembers:       map[string]struct{}{},
		queryConcepts:       map[QueryConceptKey]*models.QueryConcept{},
		deleteQueryConcepts: map[QueryConceptKey]struct{}{},
		descriptions:        map[int64]*models.Description{},
		deleteDescriptions:  map[int64]struct{}{},
		completeFn:          completeFn,
	}
}

// Branch returns the branch state being committed. Metadata mutations made
// here before completion are persisted with the commit.
func (c *Commit) Branch() *branch.Branch {
	return c.branch
}

// Timepoint returns the commit's timestamp
func (c *Commit) Timepoint() int64 {
	return c.timepoint
}

// IsRebase reports whether this commit only moves the base forward
func (c *Commit) IsRebase() bool {
	return c.rebase
}

// SaveConcept stages a concept write
func (c *Commit) SaveConcept(concept *models.Concept) {
	delete(c.deleteConcepts, concept.ConceptID)
	c.concepts[concept.ConceptID] = concept
}

// DeleteConcept stages a concept deletion
func (c *Commit) DeleteConcept(conceptID int64) {
	delete(c.concepts, conceptID)
	c.deleteConcepts[conceptID] = struct{}{}
}

// SaveRelationship stages a relationship write
func (c *Commit) SaveRelationship(relationship *models.Relationship) {
	delete(c.deleteRelationships, relationship.RelationshipID)
	c.relationships[relationship.RelationshipID] = relationship
}

// DeleteRelationship stages a relationship deletion
func (c *Commit) DeleteRelationship(relationshipID int64) {
	delete(c.relationships, relationshipID)
	c.deleteRelationships[relationshipID] = struct{}{}
}

// SaveMember stages a reference-set member write
func (c *Commit) SaveMember(member *models.ReferenceSetMember) {
	delete(c.deleteMembers, member.MemberID)
	c.members[member.MemberID] = member
}

// DeleteMember stages a reference-set member deletion
func (c *Commit) DeleteMember(memberID string) {
	delete(c.members, memberID)
	c.deleteMembers[memberID] = struct{}{}
}

// SaveQueryConcept stages a semantic index write
func (c *Commit) SaveQueryConcept(queryConcept *models.QueryConcept) {
	key := QueryConceptKey{ConceptID: queryConcept.ConceptIDL, Stated: queryConcept.Stated}
	delete(c.deleteQueryConcepts, key)
	c.queryConcepts[key] = queryConcept
}

// DeleteQueryConcept stages a semantic index deletion
func (c *Commit) DeleteQueryConcept(key QueryConceptKey) {
	delete(c.queryConcepts, key)
	c.deleteQueryConcepts[key] = struct{}{}
}

// SaveDescription stages a description write
func (c *Commit) SaveDescription(description *models.Description) {
	delete(c.deleteDescriptions, description.DescriptionID)
	c.descriptions[description.DescriptionID] = description
}

// DeleteDescription stages a description deletion
func (c *Commit) DeleteDescription(descriptionID int64) {
	delete(c.descriptions, descriptionID)
	c.deleteDescriptions[descriptionID] = struct{}{}
}

// Complete runs pre-commit listeners and applies the staged writes.
// A commit can only complete once.
func (c *Commit) Complete(ctx context.Context) error {
	if c.completed {
		return fmt.Errorf("commit on %s already completed", c.branch.Path)
	}
	c.completed = true
	return c.completeFn(ctx, c)
}

// Staged-write accessors for store implementations.

// ConceptWrites returns the staged concept writes
func (c *Commit) ConceptWrites() map[int64]*models.Concept { return c.concepts }

// ConceptDeletes returns the staged concept deletions
func (c *Commit) ConceptDeletes() map[int64]struct{} { return c.deleteConcepts }

// RelationshipWrites returns the staged relationship writes
func (c *Commit) RelationshipWrites() map[int64]*models.Relationship { return c.relationships }

// RelationshipDeletes returns the staged relationship deletions
func (c *Commit) RelationshipDeletes() map[int64]struct{} { return c.deleteRelationships }

// MemberWrites returns the staged member writes
func (c *Commit) MemberWrites() map[string]*models.ReferenceSetMember { return c.members }

// MemberDeletes returns the staged member deletions
func (c *Commit) MemberDeletes() map[string]struct{} { return c.deleteMembers }

// QueryConceptWrites returns the staged semantic index writes
func (c *Commit) QueryConceptWrites() map[QueryConceptKey]*models.QueryConcept {
	return c.queryConcepts
}

// QueryConceptDeletes returns the staged semantic index deletions
func (c *Commit) QueryConceptDeletes() map[QueryConceptKey]struct{} { return c.deleteQueryConcepts }

// DescriptionWrites returns the staged description writes
func (c *Commit) DescriptionWrites() map[int64]*models.Description { return c.descriptions }

// DescriptionDeletes returns the staged description deletions
func (c *Commit) DescriptionDeletes() map[int64]struct{} { return c.deleteDescriptions }
