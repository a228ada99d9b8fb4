package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinterm/termserver/common/branch"
)

func TestPatchMetadataMergesNestedKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createBranch(t, "MAIN/projectA")

	b := f.branch(t, "MAIN/projectA")
	b.SetInternalValue(branch.IntegrityIssueMetadataKey, "true")
	require.NoError(t, f.branches.UpdateMetadata(ctx, "MAIN/projectA", b.Metadata))

	// Merge in an unrelated key; the internal submap must survive
	patched, err := f.branches.PatchMetadata(ctx, "MAIN/projectA", []byte(`{"assigneeTeam":"terminology"}`))
	require.NoError(t, err)
	assert.Equal(t, "terminology", patched.Metadata["assigneeTeam"])
	assert.Equal(t, "true", patched.InternalValue(branch.IntegrityIssueMetadataKey))

	// Null removes a key per merge-patch semantics
	patched, err = f.branches.PatchMetadata(ctx, "MAIN/projectA", []byte(`{"assigneeTeam":null}`))
	require.NoError(t, err)
	assert.NotContains(t, patched.Metadata, "assigneeTeam")

	persisted := f.branch(t, "MAIN/projectA")
	assert.Equal(t, "true", persisted.InternalValue(branch.IntegrityIssueMetadataKey))
	assert.NotContains(t, persisted.Metadata, "assigneeTeam")
}

func TestFindBranchOrThrowUnknownPath(t *testing.T) {
	f := newFixture(t)
	_, err := f.branches.FindBranchOrThrow(context.Background(), "MAIN/nowhere")
	assert.Error(t, err)
}
