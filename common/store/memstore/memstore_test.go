package memstore

import (
	"context"
	"testing"

	"github.com/clinterm/termserver/common/logger"
	"github.com/clinterm/termserver/common/models"
	"github.com/clinterm/termserver/common/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(logger.New("error", "json"))
}

func commitConcepts(t *testing.T, s *Store, path string, concepts ...*models.Concept) {
	t.Helper()
	ctx := context.Background()
	commit, err := s.OpenCommit(ctx, path, store.CommitOptions{})
	if err != nil {
		t.Fatalf("OpenCommit(%s): %v", path, err)
	}
	for _, c := range concepts {
		commit.SaveConcept(c)
	}
	if err := commit.Complete(ctx); err != nil {
		t.Fatalf("Complete(%s): %v", path, err)
	}
}

func streamConceptIDs(t *testing.T, s *Store, query store.ConceptQuery) map[int64]bool {
	t.Helper()
	stream, err := s.StreamConcepts(context.Background(), query)
	if err != nil {
		t.Fatalf("StreamConcepts: %v", err)
	}
	defer stream.Close()
	out := map[int64]bool{}
	for {
		c, ok := stream.Next()
		if !ok {
			break
		}
		out[c.ConceptID] = true
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return out
}

func TestChildSeesParentContentAtBase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	commitConcepts(t, s, "MAIN", &models.Concept{ConceptID: 100, Active: true})

	if _, err := s.CreateBranch(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	// Written to MAIN after the child branched: invisible until rebase
	commitConcepts(t, s, "MAIN", &models.Concept{ConceptID: 200, Active: true})

	criteria, err := s.BranchCriteria(ctx, "MAIN/projectA")
	if err != nil {
		t.Fatalf("BranchCriteria: %v", err)
	}
	visible := streamConceptIDs(t, s, store.ConceptQuery{Criteria: criteria})
	if !visible[100] || visible[200] {
		t.Errorf("expected {100} visible before rebase, got %v", visible)
	}

	if err := s.Rebase(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	visible = streamConceptIDs(t, s, store.ConceptQuery{Criteria: criteria})
	if !visible[100] || !visible[200] {
		t.Errorf("expected {100,200} visible after rebase, got %v", visible)
	}
}

func TestChildOverridesAndDeletesMaskParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	commitConcepts(t, s, "MAIN",
		&models.Concept{ConceptID: 100, Active: true},
		&models.Concept{ConceptID: 200, Active: true},
	)
	if _, err := s.CreateBranch(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	commit, err := s.OpenCommit(ctx, "MAIN/projectA", store.CommitOptions{})
	if err != nil {
		t.Fatalf("OpenCommit: %v", err)
	}
	commit.SaveConcept(&models.Concept{ConceptID: 100, Active: false})
	commit.DeleteConcept(200)
	if err := commit.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	criteria, _ := s.BranchCriteria(ctx, "MAIN/projectA")
	active := streamConceptIDs(t, s, store.ConceptQuery{Criteria: criteria, Active: store.Bool(true)})
	if len(active) != 0 {
		t.Errorf("expected no active concepts on child, got %v", active)
	}
	all := streamConceptIDs(t, s, store.ConceptQuery{Criteria: criteria})
	if !all[100] || all[200] {
		t.Errorf("expected only inactivated 100 visible, got %v", all)
	}

	// The parent is untouched
	mainCriteria, _ := s.BranchCriteria(ctx, "MAIN")
	mainActive := streamConceptIDs(t, s, store.ConceptQuery{Criteria: mainCriteria, Active: store.Bool(true)})
	if !mainActive[100] || !mainActive[200] {
		t.Errorf("parent content changed unexpectedly: %v", mainActive)
	}
}

func TestUnpromotedChangesAndDeletions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	commitConcepts(t, s, "MAIN", &models.Concept{ConceptID: 100, Active: true})
	if _, err := s.CreateBranch(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	commit, _ := s.OpenCommit(ctx, "MAIN/projectA", store.CommitOptions{})
	commit.SaveConcept(&models.Concept{ConceptID: 300, Active: true})
	commit.DeleteConcept(100)
	if err := commit.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	changes, _ := s.BranchCriteriaUnpromotedChanges(ctx, "MAIN/projectA")
	got := streamConceptIDs(t, s, store.ConceptQuery{Criteria: changes})
	if !got[300] || got[100] || len(got) != 1 {
		t.Errorf("unpromoted changes: got %v, want {300}", got)
	}

	withDeletions, _ := s.BranchCriteriaUnpromotedChangesAndDeletions(ctx, "MAIN/projectA")
	got = streamConceptIDs(t, s, store.ConceptQuery{Criteria: withDeletions})
	if !got[300] || !got[100] {
		t.Errorf("unpromoted changes and deletions: got %v, want {100,300}", got)
	}
}

func TestPromoteMovesContentUp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateBranch(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	commitConcepts(t, s, "MAIN/projectA", &models.Concept{ConceptID: 400, Active: true})

	if err := s.Promote(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	mainCriteria, _ := s.BranchCriteria(ctx, "MAIN")
	got := streamConceptIDs(t, s, store.ConceptQuery{Criteria: mainCriteria})
	if !got[400] {
		t.Errorf("expected 400 on MAIN after promotion, got %v", got)
	}

	// Nothing left unpromoted on the child
	changes, _ := s.BranchCriteriaUnpromotedChanges(ctx, "MAIN/projectA")
	got = streamConceptIDs(t, s, store.ConceptQuery{Criteria: changes})
	if len(got) != 0 {
		t.Errorf("expected no unpromoted changes after promotion, got %v", got)
	}

	// The child still sees the promoted content
	childCriteria, _ := s.BranchCriteria(ctx, "MAIN/projectA")
	got = streamConceptIDs(t, s, store.ConceptQuery{Criteria: childCriteria})
	if !got[400] {
		t.Errorf("expected 400 visible on child after promotion, got %v", got)
	}
}

func TestOpenCommitOverlay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	commitConcepts(t, s, "MAIN", &models.Concept{ConceptID: 100, Active: true})
	if _, err := s.CreateBranch(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	commit, _ := s.OpenCommit(ctx, "MAIN/projectA", store.CommitOptions{})
	commit.SaveConcept(&models.Concept{ConceptID: 100, Active: false})
	commit.SaveConcept(&models.Concept{ConceptID: 500, Active: true})

	overlay := s.BranchCriteriaIncludingOpenCommit(commit)
	got := streamConceptIDs(t, s, store.ConceptQuery{Criteria: overlay, Active: store.Bool(true)})
	if got[100] || !got[500] {
		t.Errorf("overlay view wrong: %v", got)
	}

	// Plain visible criteria must not see the uncommitted writes
	plain, _ := s.BranchCriteria(ctx, "MAIN/projectA")
	got = streamConceptIDs(t, s, store.ConceptQuery{Criteria: plain, Active: store.Bool(true)})
	if !got[100] || got[500] {
		t.Errorf("plain view leaked uncommitted writes: %v", got)
	}
}

type recordingListener struct {
	calls  int
	rebase []bool
}

func (r *recordingListener) PreCommitCompletion(ctx context.Context, commit *store.Commit) error {
	r.calls++
	r.rebase = append(r.rebase, commit.IsRebase())
	return nil
}

func TestCommitListenerRunsBeforeCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	listener := &recordingListener{}
	s.RegisterCommitListener(listener)

	commitConcepts(t, s, "MAIN", &models.Concept{ConceptID: 100, Active: true})
	if listener.calls != 1 || listener.rebase[0] {
		t.Fatalf("expected one non-rebase listener call, got %+v", listener)
	}

	if _, err := s.CreateBranch(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := s.Rebase(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	if listener.calls != 2 || !listener.rebase[1] {
		t.Fatalf("expected a rebase listener call, got %+v", listener)
	}
}

func TestMetadataPersistsThroughCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateBranch(ctx, "MAIN/projectA"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	commit, _ := s.OpenCommit(ctx, "MAIN/projectA", store.CommitOptions{})
	commit.Branch().SetInternalValue("integrityIssue", "true")
	if err := commit.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	b, err := s.FindBranch(ctx, "MAIN/projectA")
	if err != nil {
		t.Fatalf("FindBranch: %v", err)
	}
	if b.InternalValue("integrityIssue") != "true" {
		t.Errorf("metadata mutation did not ride along with the commit: %v", b.Metadata)
	}
}

func TestStreamCancellation(t *testing.T) {
	s := newTestStore(t)
	commitConcepts(t, s, "MAIN", &models.Concept{ConceptID: 100, Active: true})

	ctx, cancel := context.WithCancel(context.Background())
	criteria, _ := s.BranchCriteria(ctx, "MAIN")
	stream, err := s.StreamConcepts(ctx, store.ConceptQuery{Criteria: criteria})
	if err != nil {
		t.Fatalf("StreamConcepts: %v", err)
	}
	defer stream.Close()

	cancel()
	if _, ok := stream.Next(); ok {
		t.Errorf("expected no result after cancellation")
	}
	if stream.Err() == nil {
		t.Errorf("expected stream error after cancellation")
	}
}
