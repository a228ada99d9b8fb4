// Package memstore is an in-memory implementation of the versioned
// component store: branch tree with base/head timestamps, per-branch
// unpromoted content, deletion tombstones, open-commit overlays, rebase and
// promotion. Timestamps come from a logical clock so base/head comparisons
// are exact.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/clinterm/termserver/common/branch"
	"github.com/clinterm/termserver/common/logger"
	"github.com/clinterm/termserver/common/models"
	"github.com/clinterm/termserver/common/store"
)

// versionEntry is one write of a component on one branch
type versionEntry[T any] struct {
	start   int64
	deleted bool
	doc     T
}

// versioned holds all unpromoted writes of one entity type on one branch
type versioned[K comparable, T any] struct {
	docs map[K][]versionEntry[T]
}

func newVersioned[K comparable, T any]() *versioned[K, T] {
	return &versioned[K, T]{docs: map[K][]versionEntry[T]{}}
}

func (v *versioned[K, T]) put(key K, doc T, ts int64) {
	v.docs[key] = append(v.docs[key], versionEntry[T]{start: ts, doc: doc})
}

func (v *versioned[K, T]) del(key K, ts int64) {
	v.docs[key] = append(v.docs[key], versionEntry[T]{start: ts, deleted: true})
}

// latestAt returns the newest version written at or before t
func latestAt[T any](versions []versionEntry[T], t int64) (versionEntry[T], bool) {
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].start <= t {
			return versions[i], true
		}
	}
	var zero versionEntry[T]
	return zero, false
}

// branchState is one branch's metadata plus its unpromoted content
type branchState struct {
	meta branch.Branch

	concepts      *versioned[int64, *models.Concept]
	relationships *versioned[int64, *models.Relationship]
	members       *versioned[string, *models.ReferenceSetMember]
	queryConcepts *versioned[store.QueryConceptKey, *models.QueryConcept]
	descriptions  *versioned[int64, *models.Description]
}

func newBranchState(meta branch.Branch) *branchState {
	return &branchState{
		meta:          meta,
		concepts:      newVersioned[int64, *models.Concept](),
		relationships: newVersioned[int64, *models.Relationship](),
		members:       newVersioned[string, *models.ReferenceSetMember](),
		queryConcepts: newVersioned[store.QueryConceptKey, *models.QueryConcept](),
		descriptions:  newVersioned[int64, *models.Description](),
	}
}

var _ store.VersionControl = (*Store)(nil)

// Store implements store.VersionControl in memory
type Store struct {
	mu        sync.RWMutex
	log       *logger.Logger
	clock     int64
	branches  map[string]*branchState
	listeners []store.CommitListener
}

// New creates a store with the root branch
func New(log *logger.Logger) *Store {
	s := &Store{
		log:      log,
		branches: map[string]*branchState{},
	}
	ts := s.tick()
	s.branches[branch.Root] = newBranchState(branch.Branch{
		Path:          branch.Root,
		BaseTimestamp: ts,
		HeadTimestamp: ts,
		Metadata:      branch.Metadata{},
	})
	return s
}

// tick advances the logical clock. Callers hold the write lock, except
// during construction.
func (s *Store) tick() int64 {
	s.clock++
	return s.clock
}

func (s *Store) branchOrErr(path string) (*branchState, error) {
	b, ok := s.branches[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrBranchNotFound, path)
	}
	return b, nil
}

// FindBranch returns a copy of the branch state
func (s *Store) FindBranch(ctx context.Context, path string) (*branch.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.branchOrErr(path)
	if err != nil {
		return nil, err
	}
	return copyBranch(&b.meta), nil
}

// UpdateMetadata replaces the branch metadata
func (s *Store) UpdateMetadata(ctx context.Context, path string, metadata branch.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.branchOrErr(path)
	if err != nil {
		return err
	}
	holder := branch.Branch{Metadata: metadata}
	b.meta.Metadata = holder.CloneMetadata()
	return nil
}

// CreateBranch creates a child branch based on the current parent head
func (s *Store) CreateBranch(ctx context.Context, path string) (*branch.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !branch.IsValidPath(path) {
		return nil, fmt.Errorf("invalid branch path %q", path)
	}
	if _, exists := s.branches[path]; exists {
		return nil, fmt.Errorf("branch %s already exists", path)
	}
	parentPath, ok := branch.ParentPath(path)
	if !ok {
		return nil, fmt.Errorf("cannot recreate root branch")
	}
	parent, err := s.branchOrErr(parentPath)
	if err != nil {
		return nil, err
	}

	ts := s.tick()
	b := newBranchState(branch.Branch{
		Path:          path,
		BaseTimestamp: parent.meta.HeadTimestamp,
		HeadTimestamp: ts,
		Metadata:      branch.Metadata{},
	})
	s.branches[path] = b
	s.log.Info("branch created", "branch", path, "base", b.meta.BaseTimestamp)
	return copyBranch(&b.meta), nil
}

// RegisterCommitListener adds a pre-commit listener
func (s *Store) RegisterCommitListener(listener store.CommitListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// OpenCommit opens a commit against the branch. Writes staged on the commit
// become visible atomically when Complete succeeds.
func (s *Store) OpenCommit(ctx context.Context, path string, opts store.CommitOptions) (*store.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.branchOrErr(path)
	if err != nil {
		return nil, err
	}

	branchCopy := copyBranch(&b.meta)
	if opts.Rebase {
		parentPath, ok := branch.ParentPath(path)
		if !ok {
			return nil, fmt.Errorf("cannot rebase root branch")
		}
		parent, err := s.branchOrErr(parentPath)
		if err != nil {
			return nil, err
		}
		branchCopy.BaseTimestamp = parent.meta.HeadTimestamp
	}

	ts := s.tick()
	return store.NewCommit(branchCopy, ts, opts.Rebase, s.completeCommit), nil
}

// completeCommit runs the pre-commit listeners and then applies the staged
// writes. Listeners run without the store lock so they can query the store,
// overlaying the open commit through OpenCommitCriteria.
func (s *Store) completeCommit(ctx context.Context, c *store.Commit) error {
	for _, listener := range s.listeners {
		if err := listener.PreCommitCompletion(ctx, c); err != nil {
			return fmt.Errorf("pre-commit listener on %s: %w", c.Branch().Path, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.branchOrErr(c.Branch().Path)
	if err != nil {
		return err
	}

	ts := c.Timepoint()
	for id, doc := range c.ConceptWrites() {
		b.concepts.put(id, copyConcept(doc), ts)
	}
	for id := range c.ConceptDeletes() {
		b.concepts.del(id, ts)
	}
	for id, doc := range c.RelationshipWrites() {
		b.relationships.put(id, copyRelationship(doc), ts)
	}
	for id := range c.RelationshipDeletes() {
		b.relationships.del(id, ts)
	}
	for id, doc := range c.MemberWrites() {
		b.members.put(id, copyMember(doc), ts)
	}
	for id := range c.MemberDeletes() {
		b.members.del(id, ts)
	}
	for key, doc := range c.QueryConceptWrites() {
		b.queryConcepts.put(key, copyQueryConcept(doc), ts)
	}
	for key := range c.QueryConceptDeletes() {
		b.queryConcepts.del(key, ts)
	}
	for id, doc := range c.DescriptionWrites() {
		b.descriptions.put(id, copyDescription(doc), ts)
	}
	for id := range c.DescriptionDeletes() {
		b.descriptions.del(id, ts)
	}

	b.meta.BaseTimestamp = c.Branch().BaseTimestamp
	b.meta.HeadTimestamp = ts
	b.meta.Metadata = c.Branch().CloneMetadata()

	s.log.Debug("commit applied", "branch", b.meta.Path, "commit", ts, "rebase", c.IsRebase())
	return nil
}

// Rebase advances the branch base to the parent's current head. Listeners
// see a rebase commit; the integrity hook ignores those.
func (s *Store) Rebase(ctx context.Context, path string) error {
	commit, err := s.OpenCommit(ctx, path, store.CommitOptions{Rebase: true})
	if err != nil {
		return err
	}
	return commit.Complete(ctx)
}

// Promote merges the branch's unpromoted changes into its parent. The
// parent receives an ordinary content commit, so commit listeners run
// against the parent branch.
func (s *Store) Promote(ctx context.Context, path string) error {
	s.mu.Lock()

	b, err := s.branchOrErr(path)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	parentPath, ok := branch.ParentPath(path)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("cannot promote root branch")
	}
	parent, err := s.branchOrErr(parentPath)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	commit := store.NewCommit(copyBranch(&parent.meta), s.tick(), false, s.completeCommit)
	for id, versions := range b.concepts.docs {
		if e, ok := latestAt(versions, b.meta.HeadTimestamp); ok {
			if e.deleted {
				commit.DeleteConcept(id)
			} else {
				commit.SaveConcept(e.doc)
			}
		}
	}
	for id, versions := range b.relationships.docs {
		if e, ok := latestAt(versions, b.meta.HeadTimestamp); ok {
			if e.deleted {
				commit.DeleteRelationship(id)
			} else {
				commit.SaveRelationship(e.doc)
			}
		}
	}
	for id, versions := range b.members.docs {
		if e, ok := latestAt(versions, b.meta.HeadTimestamp); ok {
			if e.deleted {
				commit.DeleteMember(id)
			} else {
				commit.SaveMember(e.doc)
			}
		}
	}
	for key, versions := range b.queryConcepts.docs {
		if e, ok := latestAt(versions, b.meta.HeadTimestamp); ok {
			if e.deleted {
				commit.DeleteQueryConcept(key)
			} else {
				commit.SaveQueryConcept(e.doc)
			}
		}
	}
	for id, versions := range b.descriptions.docs {
		if e, ok := latestAt(versions, b.meta.HeadTimestamp); ok {
			if e.deleted {
				commit.DeleteDescription(id)
			} else {
				commit.SaveDescription(e.doc)
			}
		}
	}
	s.mu.Unlock()

	if err := commit.Complete(ctx); err != nil {
		return fmt.Errorf("promote %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b.concepts = newVersioned[int64, *models.Concept]()
	b.relationships = newVersioned[int64, *models.Relationship]()
	b.members = newVersioned[string, *models.ReferenceSetMember]()
	b.queryConcepts = newVersioned[store.QueryConceptKey, *models.QueryConcept]()
	b.descriptions = newVersioned[int64, *models.Description]()
	b.meta.BaseTimestamp = commit.Timepoint()
	b.meta.HeadTimestamp = s.tick()
	s.log.Info("branch promoted", "branch", path, "into", parentPath)
	return nil
}

// Criteria constructors

// BranchCriteria returns the visible view of the branch at its head
func (s *Store) BranchCriteria(ctx context.Context, path string) (store.BranchCriteria, error) {
	if err := s.checkBranch(path); err != nil {
		return store.BranchCriteria{}, err
	}
	return store.VisibleCriteria(path), nil
}

// BranchCriteriaUnpromotedChanges returns the branch's own unpromoted writes
func (s *Store) BranchCriteriaUnpromotedChanges(ctx context.Context, path string) (store.BranchCriteria, error) {
	if err := s.checkBranch(path); err != nil {
		return store.BranchCriteria{}, err
	}
	return store.UnpromotedChangesCriteria(path), nil
}

// BranchCriteriaUnpromotedChangesAndDeletions additionally matches tombstones
func (s *Store) BranchCriteriaUnpromotedChangesAndDeletions(ctx context.Context, path string) (store.BranchCriteria, error) {
	if err := s.checkBranch(path); err != nil {
		return store.BranchCriteria{}, err
	}
	return store.UnpromotedChangesAndDeletionsCriteria(path), nil
}

// BranchCriteriaIncludingOpenCommit overlays the open commit's writes on
// the visible view
func (s *Store) BranchCriteriaIncludingOpenCommit(commit *store.Commit) store.BranchCriteria {
	return store.OpenCommitCriteria(commit)
}

func (s *Store) checkBranch(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.branchOrErr(path)
	return err
}

func copyBranch(b *branch.Branch) *branch.Branch {
	return &branch.Branch{
		Path:          b.Path,
		BaseTimestamp: b.BaseTimestamp,
		HeadTimestamp: b.HeadTimestamp,
		Metadata:      b.CloneMetadata(),
	}
}

func copyConcept(c *models.Concept) *models.Concept {
	out := *c
	return &out
}

func copyRelationship(r *models.Relationship) *models.Relationship {
	out := *r
	return &out
}

func copyMember(m *models.ReferenceSetMember) *models.ReferenceSetMember {
	out := *m
	if m.AdditionalFields != nil {
		out.AdditionalFields = make(map[string]string, len(m.AdditionalFields))
		for k, v := range m.AdditionalFields {
			out.AdditionalFields[k] = v
		}
	}
	return &out
}

func copyQueryConcept(q *models.QueryConcept) *models.QueryConcept {
	out := *q
	out.Parents = append([]int64(nil), q.Parents...)
	out.Ancestors = append([]int64(nil), q.Ancestors...)
	if q.Attr != nil {
		out.Attr = make(map[int64][]int64, len(q.Attr))
		for k, v := range q.Attr {
			out.Attr[k] = append([]int64(nil), v...)
		}
	}
	return &out
}

func copyDescription(d *models.Description) *models.Description {
	out := *d
	return &out
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
