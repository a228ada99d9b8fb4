package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinterm/termserver/common/branch"
	"github.com/clinterm/termserver/common/models"
	"github.com/clinterm/termserver/common/store"
)

func setIntegrityFlag(t *testing.T, f *fixture, path string) {
	t.Helper()
	ctx := context.Background()
	b := f.branch(t, path)
	b.SetInternalValue(branch.IntegrityIssueMetadataKey, "true")
	require.NoError(t, f.branches.UpdateMetadata(ctx, path, b.Metadata))
}

// Property 6: the hook clears the flag on a clean branch and is a no-op on
// the next commit
func TestHookClearsFlagOnCleanBranch(t *testing.T) {
	f := newFixture(t)
	seedMain(t, f)
	f.createBranch(t, "MAIN/projectA")
	setIntegrityFlag(t, f, "MAIN/projectA")

	f.commit(t, "MAIN/projectA", func(c *store.Commit) {
		c.SaveConcept(activeConcept(conceptC9))
	})

	b := f.branch(t, "MAIN/projectA")
	assert.Empty(t, b.InternalValue(branch.IntegrityIssueMetadataKey))

	// Running again with the key absent changes nothing
	f.commit(t, "MAIN/projectA", func(c *store.Commit) {
		c.SaveConcept(activeConcept(conceptC3))
	})
	b = f.branch(t, "MAIN/projectA")
	assert.Empty(t, b.InternalValue(branch.IntegrityIssueMetadataKey))
}

func TestHookKeepsFlagWhileIssuesRemain(t *testing.T) {
	f := newFixture(t)
	seedMain(t, f)
	f.createBranch(t, "MAIN/projectA")

	// Break R1, then mark the branch
	f.commit(t, "MAIN/projectA", func(c *store.Commit) {
		c.SaveConcept(&models.Concept{ConceptID: conceptC1, Active: false})
	})
	setIntegrityFlag(t, f, "MAIN/projectA")

	f.commit(t, "MAIN/projectA", func(c *store.Commit) {
		c.SaveConcept(activeConcept(conceptC3))
	})

	b := f.branch(t, "MAIN/projectA")
	assert.Equal(t, "true", b.InternalValue(branch.IntegrityIssueMetadataKey))
}

func TestHookSeesUncommittedFixThroughOpenCommit(t *testing.T) {
	f := newFixture(t)
	seedMain(t, f)
	f.createBranch(t, "MAIN/projectA")

	f.commit(t, "MAIN/projectA", func(c *store.Commit) {
		c.SaveConcept(&models.Concept{ConceptID: conceptC1, Active: false})
	})
	setIntegrityFlag(t, f, "MAIN/projectA")

	// Reactivating C1 in the same commit must be visible to the hook's
	// check, so the flag clears with this very commit
	f.commit(t, "MAIN/projectA", func(c *store.Commit) {
		c.SaveConcept(activeConcept(conceptC1))
	})

	b := f.branch(t, "MAIN/projectA")
	assert.Empty(t, b.InternalValue(branch.IntegrityIssueMetadataKey))
}

func TestHookIgnoresRebaseCommits(t *testing.T) {
	f := newFixture(t)
	seedMain(t, f)
	f.createBranch(t, "MAIN/projectA")
	setIntegrityFlag(t, f, "MAIN/projectA")

	require.NoError(t, f.store.Rebase(context.Background(), "MAIN/projectA"))

	b := f.branch(t, "MAIN/projectA")
	assert.Equal(t, "true", b.InternalValue(branch.IntegrityIssueMetadataKey))
}

func TestHookSwallowsCheckFailures(t *testing.T) {
	f := newFixture(t)
	seedMain(t, f)
	f.createBranch(t, "MAIN/projectA")

	// Unparseable axiom already on the branch
	f.commit(t, "MAIN/projectA", func(c *store.Commit) {
		c.SaveMember(models.NewAxiomMember(models.OWLAxiomReferenceSet, conceptC5, "SubClassOf(:100105"))
	})
	setIntegrityFlag(t, f, "MAIN/projectA")

	// The check fails on the broken axiom; the commit must still complete
	// and the flag stays put
	f.commit(t, "MAIN/projectA", func(c *store.Commit) {
		c.SaveConcept(activeConcept(conceptC9))
	})

	b := f.branch(t, "MAIN/projectA")
	assert.Equal(t, "true", b.InternalValue(branch.IntegrityIssueMetadataKey))
	visible := streamConceptExists(t, f, "MAIN/projectA", conceptC9)
	assert.True(t, visible, "commit with failing hook must still apply")
}

func TestHookSkipGuardExpression(t *testing.T) {
	f := newFixtureWithHookSkip(t, `path.startsWith("MAIN/SNOMEDCT-")`)
	seedMain(t, f)
	f.createBranch(t, "MAIN/SNOMEDCT-SE")
	f.createBranch(t, "MAIN/projectA")

	// Matching branch: the hook is skipped entirely, so a stale flag stays
	// even though the branch is clean
	setIntegrityFlag(t, f, "MAIN/SNOMEDCT-SE")
	f.commit(t, "MAIN/SNOMEDCT-SE", func(c *store.Commit) {
		c.SaveConcept(activeConcept(conceptC9))
	})
	b := f.branch(t, "MAIN/SNOMEDCT-SE")
	assert.Equal(t, "true", b.InternalValue(branch.IntegrityIssueMetadataKey))

	// Non-matching branch: the hook runs and clears the flag
	setIntegrityFlag(t, f, "MAIN/projectA")
	f.commit(t, "MAIN/projectA", func(c *store.Commit) {
		c.SaveConcept(activeConcept(conceptC3))
	})
	b = f.branch(t, "MAIN/projectA")
	assert.Empty(t, b.InternalValue(branch.IntegrityIssueMetadataKey))
}

func TestHookRejectsInvalidSkipExpression(t *testing.T) {
	f := newFixture(t)
	_, err := NewIntegrityCommitHook(f.integrity, `path.startsWith(`, f.integrity.log)
	require.Error(t, err)
}

func streamConceptExists(t *testing.T, f *fixture, path string, conceptID int64) bool {
	t.Helper()
	ctx := context.Background()
	criteria, err := f.store.BranchCriteria(ctx, path)
	require.NoError(t, err)
	stream, err := f.store.StreamConcepts(ctx, store.ConceptQuery{Criteria: criteria})
	require.NoError(t, err)
	defer stream.Close()
	for {
		c, ok := stream.Next()
		if !ok {
			break
		}
		if c.ConceptID == conceptID {
			return true
		}
	}
	return false
}
