package service

import "errors"

// ErrBranchMisuse marks fatal caller errors: the changed-only check invoked
// on the root branch, or a task-differential check with broken branch
// topology or missing rebases.
var ErrBranchMisuse = errors.New("branch misuse")
