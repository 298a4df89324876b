package mailrule

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// A RuleSet is an immutable named collection of compiled rules, evals
// and maybe-evals, the in-memory form of one loaded configuration.
// Build one with NewRuleSet, then never modify the definitions it holds.
type RuleSet struct {
	rules  map[string]*Rule
	evals  map[string]*Eval
	maybes map[string]*MaybeEval
}

// ErrNotFound is returned when a RuleSet does not contain the named
// definition.
var ErrNotFound = errors.New("definition not found")

// NewRuleSet compiles every definition with the engine and returns the
// set. Any configuration error (duplicate name, malformed operand,
// unknown directory, bad capture reference) fails the whole set, so a
// partially valid configuration is never used.
func NewRuleSet(e *Engine, rules []*Rule, evals []*Eval, maybes []*MaybeEval) (*RuleSet, error) {
	rs := &RuleSet{
		rules:  make(map[string]*Rule, len(rules)),
		evals:  make(map[string]*Eval, len(evals)),
		maybes: make(map[string]*MaybeEval, len(maybes)),
	}

	for _, r := range rules {
		if err := e.CompileRule(r); err != nil {
			return nil, err
		}
		if _, dup := rs.rules[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule %s", r.ID)
		}
		rs.rules[r.ID] = r
	}
	for _, ev := range evals {
		if err := e.CompileEval(ev); err != nil {
			return nil, err
		}
		if _, dup := rs.evals[ev.ID]; dup {
			return nil, fmt.Errorf("duplicate eval %s", ev.ID)
		}
		rs.evals[ev.ID] = ev
	}
	for _, me := range maybes {
		if err := e.CompileMaybeEval(me); err != nil {
			return nil, err
		}
		if _, dup := rs.maybes[me.ID]; dup {
			return nil, fmt.Errorf("duplicate maybe-eval %s", me.ID)
		}
		rs.maybes[me.ID] = me
	}
	return rs, nil
}

// Rule returns the named rule.
func (rs *RuleSet) Rule(id string) (*Rule, error) {
	r, ok := rs.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	return r, nil
}

// Eval returns the named eval.
func (rs *RuleSet) Eval(id string) (*Eval, error) {
	ev, ok := rs.evals[id]
	if !ok {
		return nil, fmt.Errorf("%w: eval %s", ErrNotFound, id)
	}
	return ev, nil
}

// MaybeEval returns the named maybe-eval.
func (rs *RuleSet) MaybeEval(id string) (*MaybeEval, error) {
	me, ok := rs.maybes[id]
	if !ok {
		return nil, fmt.Errorf("%w: maybe-eval %s", ErrNotFound, id)
	}
	return me, nil
}

// Counts returns the number of rules, evals and maybe-evals in the set.
func (rs *RuleSet) Counts() (rules, evals, maybes int) {
	return len(rs.rules), len(rs.evals), len(rs.maybes)
}

// Store provides lock-free, hot-reloadable access to the current
// RuleSet. Evaluations load a snapshot and keep using it for their whole
// transaction; a concurrent Swap never leaves a reader with a partially
// replaced configuration.
type Store struct {
	current atomic.Pointer[RuleSet]
}

// NewStore creates a store holding the initial rule set. A nil initial
// set is replaced with an empty one.
func NewStore(initial *RuleSet) *Store {
	s := &Store{}
	if initial == nil {
		initial = &RuleSet{
			rules:  map[string]*Rule{},
			evals:  map[string]*Eval{},
			maybes: map[string]*MaybeEval{},
		}
	}
	s.current.Store(initial)
	return s
}

// Load returns the current rule set snapshot.
func (s *Store) Load() *RuleSet {
	return s.current.Load()
}

// Swap atomically replaces the current rule set and returns the previous
// one. The new set must already be compiled (NewRuleSet does this).
func (s *Store) Swap(rs *RuleSet) *RuleSet {
	return s.current.Swap(rs)
}
