package filter

import (
	"testing"

	"github.com/google/cel-go/cel"
)

func newBranchEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(map[string]*cel.Type{
		"path":   cel.StringType,
		"rebase": cel.BoolType,
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return e
}

func TestEvaluateBool(t *testing.T) {
	e := newBranchEvaluator(t)

	cases := []struct {
		expr string
		vars map[string]any
		want bool
	}{
		{`path.startsWith("MAIN/SNOMEDCT-")`, map[string]any{"path": "MAIN/SNOMEDCT-SE", "rebase": false}, true},
		{`path.startsWith("MAIN/SNOMEDCT-")`, map[string]any{"path": "MAIN/projectA", "rebase": false}, false},
		{`rebase`, map[string]any{"path": "MAIN", "rebase": true}, true},
		{`path == "MAIN" && !rebase`, map[string]any{"path": "MAIN", "rebase": false}, true},
	}
	for _, tc := range cases {
		got, err := e.EvaluateBool(tc.expr, tc.vars)
		if err != nil {
			t.Errorf("EvaluateBool(%q): %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("EvaluateBool(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluateBoolCompileError(t *testing.T) {
	e := newBranchEvaluator(t)
	if _, err := e.EvaluateBool(`path.nonsense(`, map[string]any{"path": "MAIN", "rebase": false}); err == nil {
		t.Errorf("expected compile error")
	}
}

func TestEvaluateBoolNonBoolean(t *testing.T) {
	e := newBranchEvaluator(t)
	if _, err := e.EvaluateBool(`path`, map[string]any{"path": "MAIN", "rebase": false}); err == nil {
		t.Errorf("expected non-boolean result error")
	}
}

func TestCompiledProgramIsCached(t *testing.T) {
	e := newBranchEvaluator(t)
	expr := `path == "MAIN"`
	if _, err := e.EvaluateBool(expr, map[string]any{"path": "MAIN", "rebase": false}); err != nil {
		t.Fatalf("EvaluateBool: %v", err)
	}
	e.mu.RLock()
	_, cached := e.cache[expr]
	e.mu.RUnlock()
	if !cached {
		t.Errorf("expected compiled program in cache")
	}
}
