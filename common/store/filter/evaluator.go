// Package filter evaluates CEL predicates over document-shaped values, with
// a compiled-program cache keyed by expression.
package filter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator compiles and evaluates CEL boolean expressions
type Evaluator struct {
	env   *cel.Env
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates an evaluator whose expressions may reference the
// given variables
func NewEvaluator(variables map[string]*cel.Type) (*Evaluator, error) {
	opts := make([]cel.EnvOption, 0, len(variables))
	for name, t := range variables {
		opts = append(opts, cel.Variable(name, t))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &Evaluator{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// EvaluateBool evaluates the expression against the given variable values.
// Non-boolean results are an error.
func (e *Evaluator) EvaluateBool(expression string, vars map[string]any) (bool, error) {
	// Check cache first
	e.mu.RLock()
	prg, exists := e.cache[expression]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = e.compile(expression)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[expression] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q did not evaluate to a boolean", expression)
	}
	return result, nil
}

func (e *Evaluator) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error in %q: %w", expression, issues.Err())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error in %q: %w", expression, err)
	}
	return prg, nil
}
