// Package store defines the query surface the integrity core consumes from
// the versioned component index, and the version-control operations the
// commit hook is driven by. Implementations live in subpackages.
package store

import (
	"context"
	"errors"

	"github.com/clinterm/termserver/common/branch"
	"github.com/clinterm/termserver/common/ids"
	"github.com/clinterm/termserver/common/models"
)

// LargePageSize is the initial capacity of the identifier sets that streams
// are drained into. Callers hold identifier sets, never component bodies;
// the memory store materializes each filtered result set before yielding it
// and does not page.
const LargePageSize = 10_000

// ErrBranchNotFound is returned when a branch path does not exist
var ErrBranchNotFound = errors.New("branch not found")

// ErrStore wraps transient store failures. Callers may retry the whole
// invocation; single queries are not retried.
var ErrStore = errors.New("store failure")

// Stream yields records lazily. The caller must call Close on every exit
// path; Next returns false once exhausted or after a failure, which Err
// reports.
type Stream[T any] interface {
	Next() (T, bool)
	Err() error
	Close()
}

// ComponentStore streams components matching a branch criteria combined
// with entity-specific filters. Implementations must be safe for concurrent
// queries.
type ComponentStore interface {
	StreamConcepts(ctx context.Context, query ConceptQuery) (Stream[*models.Concept], error)
	StreamRelationships(ctx context.Context, query RelationshipQuery) (Stream[*models.Relationship], error)
	StreamQueryConcepts(ctx context.Context, query QueryConceptQuery) (Stream[*models.QueryConcept], error)
	StreamReferenceSetMembers(ctx context.Context, query MemberQuery) (Stream[*models.ReferenceSetMember], error)
	StreamDescriptions(ctx context.Context, query DescriptionQuery) (Stream[*models.Description], error)
}

// CollectConceptIDs drains a concept stream into a dense identifier set,
// closing it on all paths
func CollectConceptIDs(stream Stream[*models.Concept]) (*ids.Set, error) {
	defer stream.Close()
	set := ids.NewSet(LargePageSize)
	for {
		concept, ok := stream.Next()
		if !ok {
			break
		}
		set.Add(concept.ConceptID)
	}
	return set, stream.Err()
}

// CommitListener runs synchronously inside commit completion, before the
// commit is finalized. Returning an error aborts the commit.
type CommitListener interface {
	PreCommitCompletion(ctx context.Context, commit *Commit) error
}

// VersionControl exposes branch lookup, criteria construction and the
// commit lifecycle
type VersionControl interface {
	ComponentStore

	// FindBranch returns a copy of the branch state, or ErrBranchNotFound
	FindBranch(ctx context.Context, path string) (*branch.Branch, error)

	// UpdateMetadata replaces the branch metadata
	UpdateMetadata(ctx context.Context, path string, metadata branch.Metadata) error

	// Criteria construction. Each value combines with entity filters into a
	// predicate the store evaluates while streaming.
	BranchCriteria(ctx context.Context, path string) (BranchCriteria, error)
	BranchCriteriaUnpromotedChanges(ctx context.Context, path string) (BranchCriteria, error)
	BranchCriteriaUnpromotedChangesAndDeletions(ctx context.Context, path string) (BranchCriteria, error)
	BranchCriteriaIncludingOpenCommit(commit *Commit) BranchCriteria

	// Commit lifecycle
	OpenCommit(ctx context.Context, path string, opts CommitOptions) (*Commit, error)
	RegisterCommitListener(listener CommitListener)

	// Branch lifecycle
	CreateBranch(ctx context.Context, path string) (*branch.Branch, error)
	Rebase(ctx context.Context, path string) error
	Promote(ctx context.Context, path string) error
}

// CommitOptions qualifies an open commit
type CommitOptions struct {
	// Rebase commits carry no semantic change to the branch's own content
	Rebase bool
}
