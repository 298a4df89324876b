package mailrule

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

// Op is a leaf predicate operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpStartsWith
	OpEndsWith
	OpMatches
	OpInList
	OpNotInList
)

var opNames = map[Op]string{
	OpEq:         "eq",
	OpNe:         "ne",
	OpStartsWith: "starts-with",
	OpEndsWith:   "ends-with",
	OpMatches:    "matches",
	OpInList:     "in-list",
	OpNotInList:  "not-in-list",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// ParseOp returns the operator named by s.
func ParseOp(s string) (Op, error) {
	for o, name := range opNames {
		if name == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// A Condition is one node of a condition tree: either a Leaf predicate,
// an Expr, or one of the three combinators. The set of implementations
// is closed; evaluation is a single recursive walk.
//
// Conditions must be compiled by an Engine before evaluation, and must
// not be modified afterwards. A compiled condition is safe for
// concurrent evaluation.
type Condition interface {
	// eval reports whether the condition holds. A successful regex
	// match stores its capture groups in the evaluation state, where a
	// later match supersedes an earlier one.
	eval(ctx context.Context, ev *evalState) (bool, error)

	// String renders the node for operator-facing output.
	String() string
}

// evalState carries the per-evaluation state down the recursive walk:
// the envelope under test, the capture groups of the most recent
// successful regex match, and the optional trace.
type evalState struct {
	env      *Envelope
	captures []string
	trace    *Trace
}

func (ev *evalState) record(c Condition, match bool) {
	if ev.trace == nil {
		return
	}
	ev.trace.add(c, match, ev.captures)
}

// A Leaf tests a single envelope field with an operator and an operand.
//
// Operand interpretation depends on the operator and the field's kind:
// a regular expression for matches, a directory name for in-list and
// not-in-list, an address or CIDR network for eq/ne on IP fields, and a
// plain string otherwise. Operands are validated when the condition is
// compiled; a malformed operand never surfaces during evaluation.
type Leaf struct {
	Field   Field
	Op      Op
	Operand string

	// set by Engine.compile
	re       *regexp.Regexp
	prefix   netip.Prefix
	dir      Directory
	num      int64
	compiled bool
}

func (l *Leaf) String() string {
	return fmt.Sprintf("%s %s %q", l.Field, l.Op, l.Operand)
}

func (l *Leaf) eval(ctx context.Context, ev *evalState) (bool, error) {
	if !l.compiled {
		return false, fmt.Errorf("condition %s not compiled", l)
	}

	v := ev.env.Field(l.Field)

	var match bool
	switch l.Op {
	case OpEq, OpNe:
		match = l.equal(v)
		if l.Op == OpNe {
			match = !match
		}

	case OpStartsWith:
		match = strings.HasPrefix(v.String(), l.Operand)

	case OpEndsWith:
		match = strings.HasSuffix(v.String(), l.Operand)

	case OpMatches:
		if m := l.re.FindStringSubmatch(v.String()); m != nil {
			ev.captures = m
			match = true
		}

	case OpInList, OpNotInList:
		ok, err := l.dir.Contains(ctx, v.String())
		if err != nil {
			return false, fmt.Errorf("directory %q: %w", l.Operand, err)
		}
		match = ok
		if l.Op == OpNotInList {
			match = !match
		}

	default:
		return false, fmt.Errorf("condition %s: unknown operator", l)
	}

	ev.record(l, match)
	return match, nil
}

// equal implements eq for the field's kind. For IP fields the operand is
// a network and equality is containment; an unset address field never
// matches. For integer fields the comparison is numeric.
func (l *Leaf) equal(v Value) bool {
	switch v.Kind().(type) {
	case IP:
		if !v.Addr().IsValid() {
			return false
		}
		return l.prefix.Contains(v.Addr())
	case Int:
		return v.Int() == l.num
	default:
		return v.String() == l.Operand
	}
}

// An Expr is a leaf holding a free-form boolean expression over the
// envelope fields, compiled by the engine's ExprEvaluator.
type Expr struct {
	Source string

	prog Program
}

func (x *Expr) String() string {
	return fmt.Sprintf("expr %q", x.Source)
}

func (x *Expr) eval(ctx context.Context, ev *evalState) (bool, error) {
	if x.prog == nil {
		return false, fmt.Errorf("condition %s not compiled", x)
	}
	match, err := x.prog.Eval(ctx, ev.env)
	if err != nil {
		return false, fmt.Errorf("evaluating %s: %w", x, err)
	}
	ev.record(x, match)
	return match, nil
}

// AnyOf holds when at least one child holds. Children are evaluated in
// order and evaluation stops at the first child that holds, so that
// child's captures are the ones a template sees. AnyOf of no children
// never holds.
type AnyOf struct {
	Conditions []Condition
}

func (a *AnyOf) String() string { return combinatorString("any-of", a.Conditions) }

func (a *AnyOf) eval(ctx context.Context, ev *evalState) (bool, error) {
	for _, c := range a.Conditions {
		match, err := c.eval(ctx, ev)
		if err != nil {
			return false, err
		}
		if match {
			ev.record(a, true)
			return true, nil
		}
	}
	ev.record(a, false)
	return false, nil
}

// AllOf holds when every child holds; evaluation stops at the first
// child that does not. AllOf of no children always holds.
type AllOf struct {
	Conditions []Condition
}

func (a *AllOf) String() string { return combinatorString("all-of", a.Conditions) }

func (a *AllOf) eval(ctx context.Context, ev *evalState) (bool, error) {
	for _, c := range a.Conditions {
		match, err := c.eval(ctx, ev)
		if err != nil {
			return false, err
		}
		if !match {
			ev.record(a, false)
			return false, nil
		}
	}
	ev.record(a, true)
	return true, nil
}

// NoneOf holds when no child holds; it is the negation of AnyOf over the
// same children, and stops at the first child that holds. NoneOf of no
// children always holds.
type NoneOf struct {
	Conditions []Condition
}

func (n *NoneOf) String() string { return combinatorString("none-of", n.Conditions) }

func (n *NoneOf) eval(ctx context.Context, ev *evalState) (bool, error) {
	for _, c := range n.Conditions {
		match, err := c.eval(ctx, ev)
		if err != nil {
			return false, err
		}
		if match {
			ev.record(n, false)
			return false, nil
		}
	}
	ev.record(n, true)
	return true, nil
}

func combinatorString(name string, children []Condition) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// children returns the child conditions of a combinator node, or nil for
// leaves. Used by the tree renderers.
func children(c Condition) []Condition {
	switch n := c.(type) {
	case *AnyOf:
		return n.Conditions
	case *AllOf:
		return n.Conditions
	case *NoneOf:
		return n.Conditions
	default:
		return nil
	}
}
