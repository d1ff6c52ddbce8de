// Package filter evaluates the rejection gates applied to a parsed object
// before anonymization. Filtering is pure: it never mutates the object.
package filter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Object is the read-only view of a parsed file the gates need.
type Object interface {
	IsSR() bool
	IsSecondaryCapture() bool
	IsReformatted() bool
	Attributes() map[string]any
}

// Settings selects which gates are active.
type Settings struct {
	RejectSR          bool
	RejectSC          bool
	AcceptReformatted bool
	// Script is an optional CEL expression over the object's attributes,
	// e.g. `attrs.Modality == "CT" && attrs.BodyPartExamined != "HEAD"`.
	// An empty script accepts everything.
	Script string
}

// Reason identifies which gate rejected an object.
type Reason string

const (
	ReasonNone   Reason = ""
	ReasonSR     Reason = "structured-report"
	ReasonSC     Reason = "secondary-capture"
	ReasonScript Reason = "script"
)

// Decision is the outcome of evaluating the gates for one object.
type Decision struct {
	Accepted bool
	Reason   Reason
}

// Filter evaluates gates, caching compiled script programs by expression.
type Filter struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// New creates a Filter.
func New() *Filter {
	return &Filter{cache: make(map[string]cel.Program)}
}

// Evaluate runs the three independent gates. Rejection short-circuits in gate
// order: structured report, secondary capture, then the script.
func (f *Filter) Evaluate(obj Object, s Settings) (Decision, error) {
	if s.RejectSR && obj.IsSR() {
		return Decision{Reason: ReasonSR}, nil
	}
	if s.RejectSC && obj.IsSecondaryCapture() && !(s.AcceptReformatted && obj.IsReformatted()) {
		return Decision{Reason: ReasonSC}, nil
	}
	if s.Script != "" {
		ok, err := f.matches(obj, s.Script)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Decision{Reason: ReasonScript}, nil
		}
	}
	return Decision{Accepted: true}, nil
}

func (f *Filter) matches(obj Object, script string) (bool, error) {
	f.mu.RLock()
	prg, ok := f.cache[script]
	f.mu.RUnlock()

	if !ok {
		var err error
		prg, err = compile(script)
		if err != nil {
			return false, err
		}
		f.mu.Lock()
		f.cache[script] = prg
		f.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]any{"attrs": obj.Attributes()})
	if err != nil {
		return false, fmt.Errorf("filter script evaluation: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter script did not return a boolean, got %T", out.Value())
	}
	return result, nil
}

func compile(script string) (cel.Program, error) {
	env, err := cel.NewEnv(cel.Variable("attrs", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("could not create filter environment: %w", err)
	}
	ast, issues := env.Compile(script)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("filter script compilation: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("could not build filter program: %w", err)
	}
	return prg, nil
}
