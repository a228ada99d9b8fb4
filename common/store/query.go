package store

import "github.com/clinterm/termserver/common/ids"

// CriteriaKind selects which slice of a branch's history a query sees
type CriteriaKind int

const (
	// CriteriaVisible is the branch content at its head, including
	// ancestor content up to each base timestamp
	CriteriaVisible CriteriaKind = iota
	// CriteriaUnpromotedChanges is only content created or modified on the
	// branch itself and not yet promoted, excluding deletions
	CriteriaUnpromotedChanges
	// CriteriaUnpromotedChangesAndDeletions additionally matches deletion
	// tombstones
	CriteriaUnpromotedChangesAndDeletions
)

// BranchCriteria is a visibility predicate for one branch. The integrity
// core treats it as opaque and only passes it into entity queries; the
// constructors and Resolve exist for store implementations.
type BranchCriteria struct {
	kind   CriteriaKind
	path   string
	commit *Commit // non-nil when the open commit's writes overlay the view
}

// VisibleCriteria builds a criteria over everything visible on the branch
func VisibleCriteria(path string) BranchCriteria {
	return BranchCriteria{kind: CriteriaVisible, path: path}
}

// UnpromotedChangesCriteria builds a criteria over the branch's own
// unpromoted writes
func UnpromotedChangesCriteria(path string) BranchCriteria {
	return BranchCriteria{kind: CriteriaUnpromotedChanges, path: path}
}

// UnpromotedChangesAndDeletionsCriteria builds a criteria over the branch's
// own unpromoted writes and deletion tombstones
func UnpromotedChangesAndDeletionsCriteria(path string) BranchCriteria {
	return BranchCriteria{kind: CriteriaUnpromotedChangesAndDeletions, path: path}
}

// OpenCommitCriteria builds a visible criteria with the open commit's
// uncommitted writes overlaid
func OpenCommitCriteria(commit *Commit) BranchCriteria {
	return BranchCriteria{kind: CriteriaVisible, path: commit.Branch().Path, commit: commit}
}

// Path returns the branch path the criteria was built for
func (c BranchCriteria) Path() string {
	return c.path
}

// Resolve unpacks the criteria for store implementations
func (c BranchCriteria) Resolve() (CriteriaKind, string, *Commit) {
	return c.kind, c.path, c.commit
}

// Bool marks an optional boolean filter
func Bool(v bool) *bool {
	return &v
}

// ID marks an optional identifier filter
func ID(v int64) *int64 {
	return &v
}

// ConceptQuery filters concept streams
type ConceptQuery struct {
	Criteria    BranchCriteria
	Active      *bool
	ConceptIDIn *ids.Set

	// IDOnly projects only the concept identifier; the store may skip
	// loading the rest of the record
	IDOnly bool
}

// RelationshipQuery filters relationship streams
type RelationshipQuery struct {
	Criteria BranchCriteria
	Active   *bool

	// CharacteristicTypeID / NotCharacteristicTypeID filter by the
	// characteristic type concept, e.g. to include or exclude inferred
	// relationships
	CharacteristicTypeID    *int64
	NotCharacteristicTypeID *int64

	RelationshipIDIn *ids.Set

	// AnyReferencedIn matches relationships whose source, type or
	// destination is in the set
	AnyReferencedIn *ids.Set

	// AnyReferencedNotIn matches relationships whose source is outside the
	// set, or whose type is, or whose destination is while the relationship
	// is not concrete. Concrete relationships never match on destination.
	AnyReferencedNotIn *ids.Set
}

// QueryConceptQuery filters semantic index streams
type QueryConceptQuery struct {
	Criteria BranchCriteria
	Stated   *bool

	// AttrValueIn matches entries with some attribute value in the set
	AttrValueIn *ids.Set
	// AttrValueNotIn matches entries with some attribute value outside the set
	AttrValueNotIn *ids.Set
	// ConceptIDNotIn matches entries whose concept is outside the set
	ConceptIDNotIn *ids.Set
}

// MemberQuery filters reference-set member streams
type MemberQuery struct {
	Criteria BranchCriteria
	Active   *bool
	RefsetID *int64

	ReferencedComponentIDIn *ids.Set
	MemberIDIn              []string
}

// DescriptionQuery filters description streams
type DescriptionQuery struct {
	Criteria    BranchCriteria
	Active      *bool
	ConceptIDIn *ids.Set
}
