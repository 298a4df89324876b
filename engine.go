package mailrule

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
)

// Engine compiles and evaluates rules, evals and maybe-evals.
//
// The engine itself holds no per-transaction state: once the definitions
// are compiled, any number of evaluations may run concurrently against
// independent envelopes. Directories are injected by name when the
// engine is built, so a reference to an unknown directory is caught at
// compile time.
type Engine struct {
	directories map[string]Directory
	expr        ExprEvaluator
	opts        EngineOptions
}

// EngineOptions control engine behavior; see the Option functions.
type EngineOptions struct {
	CollectDiagnostics bool
}

// Option configures an Engine.
type Option func(e *Engine)

// WithDirectory registers a directory under the name conditions and
// maybe-evals use to reference it.
func WithDirectory(name string, d Directory) Option {
	return func(e *Engine) {
		e.directories[name] = d
	}
}

// WithExprEvaluator sets the backend used to compile Expr leaves.
// Without one, compiling a tree that contains an Expr fails.
func WithExprEvaluator(ev ExprEvaluator) Option {
	return func(e *Engine) {
		e.expr = ev
	}
}

// CollectDiagnostics enables the collection of evaluation traces via the
// Traced methods.
// Default: off
func CollectDiagnostics(b bool) Option {
	return func(e *Engine) {
		e.opts.CollectDiagnostics = b
	}
}

// NewEngine initializes a new engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		directories: make(map[string]Directory),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Directory returns the directory registered under the name.
func (e *Engine) Directory(name string) (Directory, bool) {
	d, ok := e.directories[name]
	return d, ok
}

// CompileRule validates the rule's condition tree and prepares it for
// evaluation. All operand errors (malformed regex, bad network, unknown
// field or directory) surface here, never during evaluation.
func (e *Engine) CompileRule(r *Rule) error {
	if r == nil || r.Cond == nil {
		return fmt.Errorf("rule has no condition")
	}
	if r.ID == "" {
		return fmt.Errorf("rule with condition %s: missing ID", r.Cond)
	}
	if _, err := e.compile(r.Cond); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}

// CompileEval validates and prepares every clause of the eval: the
// condition trees, the templates, and the templates' capture references
// against the capture groups their conditions can produce.
func (e *Engine) CompileEval(ev *Eval) error {
	if ev.ID == "" {
		return fmt.Errorf("eval: missing ID")
	}
	if err := e.compileClauses(ev.Clauses); err != nil {
		return fmt.Errorf("eval %s: %w", ev.ID, err)
	}
	return nil
}

// CompileMaybeEval validates and prepares the maybe-eval.
func (e *Engine) CompileMaybeEval(me *MaybeEval) error {
	if me.ID == "" {
		return fmt.Errorf("maybe-eval: missing ID")
	}
	if me.Key != "" && len(me.Clauses) > 0 {
		return fmt.Errorf("maybe-eval %s: has both a static key and clauses", me.ID)
	}
	if me.Key == "" && len(me.Clauses) == 0 {
		return fmt.Errorf("maybe-eval %s: has neither a static key nor clauses", me.ID)
	}
	if err := e.compileClauses(me.Clauses); err != nil {
		return fmt.Errorf("maybe-eval %s: %w", me.ID, err)
	}
	return nil
}

func (e *Engine) compileClauses(clauses []Clause) error {
	for i := range clauses {
		c := &clauses[i]
		if c.If == nil {
			return fmt.Errorf("clause %d: missing condition", i)
		}
		if c.Then == nil {
			return fmt.Errorf("clause %d: missing template", i)
		}
		groups, err := e.compile(c.If)
		if err != nil {
			return fmt.Errorf("clause %d: %w", i, err)
		}
		if max := c.Then.MaxCapture(); max > groups {
			return fmt.Errorf("clause %d: template %q references ${%d} but the condition produces at most %d capture groups: %w",
				i, c.Then, max, groups, ErrCaptureOutOfRange)
		}
	}
	return nil
}

// compile validates the condition tree recursively. It returns the
// highest capture group any regex leaf in the tree can produce, or -1
// when the tree contains no regex leaf (and so no capture reference can
// ever be satisfied).
func (e *Engine) compile(c Condition) (groups int, err error) {
	switch n := c.(type) {
	case *Leaf:
		return e.compileLeaf(n)

	case *Expr:
		if e.expr == nil {
			return -1, fmt.Errorf("%s: %w", n, ErrNoExprEvaluator)
		}
		prog, err := e.expr.Compile(n.Source, fieldKindsCopy())
		if err != nil {
			return -1, fmt.Errorf("compiling %s: %w", n, err)
		}
		n.prog = prog
		return -1, nil

	case *AnyOf:
		return e.compileChildren(n.Conditions)
	case *AllOf:
		return e.compileChildren(n.Conditions)
	case *NoneOf:
		return e.compileChildren(n.Conditions)

	default:
		return -1, fmt.Errorf("unknown condition type %T", c)
	}
}

func (e *Engine) compileChildren(children []Condition) (int, error) {
	groups := -1
	for _, c := range children {
		g, err := e.compile(c)
		if err != nil {
			return -1, err
		}
		if g > groups {
			groups = g
		}
	}
	return groups, nil
}

func (e *Engine) compileLeaf(l *Leaf) (int, error) {
	kind, ok := FieldKind(l.Field)
	if !ok {
		return -1, fmt.Errorf("%s: unknown envelope field %q", l, l.Field)
	}

	groups := -1
	switch l.Op {
	case OpMatches:
		re, err := regexp.Compile(l.Operand)
		if err != nil {
			return -1, fmt.Errorf("%s: %w", l, err)
		}
		l.re = re
		groups = re.NumSubexp()

	case OpEq, OpNe:
		switch kind.(type) {
		case IP:
			prefix, err := parseNetwork(l.Operand)
			if err != nil {
				return -1, fmt.Errorf("%s: %w", l, err)
			}
			l.prefix = prefix
		case Int:
			n, err := strconv.ParseInt(l.Operand, 10, 64)
			if err != nil {
				return -1, fmt.Errorf("%s: operand is not an integer: %w", l, err)
			}
			l.num = n
		}

	case OpStartsWith, OpEndsWith:
		// literal substring match against the field's string form

	case OpInList, OpNotInList:
		dir, ok := e.directories[l.Operand]
		if !ok {
			return -1, fmt.Errorf("%s: %w: %q", l, ErrNoSuchDirectory, l.Operand)
		}
		l.dir = dir

	default:
		return -1, fmt.Errorf("%s: unknown operator", l)
	}

	l.compiled = true
	return groups, nil
}

// parseNetwork parses the operand of eq/ne on an IP field: a CIDR
// network, or a bare address which is treated as a full-length prefix.
func parseNetwork(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("operand %q is neither an address nor a network", s)
	}
	a = a.Unmap()
	return netip.PrefixFrom(a, a.BitLen()), nil
}

func fieldKindsCopy() map[Field]Kind {
	m := make(map[Field]Kind, len(fieldKinds))
	for f, k := range fieldKinds {
		m[f] = k
	}
	return m
}

// EvalRule evaluates the compiled rule against the envelope. Ordinary
// non-matches are the false result; an error means a directory backend
// failed or the rule was never compiled.
func (e *Engine) EvalRule(ctx context.Context, r *Rule, env *Envelope) (bool, error) {
	match, _, err := e.evalRule(ctx, r, env, nil)
	return match, err
}

// EvalRuleTraced evaluates the rule and returns the evaluation trace.
// The engine must have been built with CollectDiagnostics.
func (e *Engine) EvalRuleTraced(ctx context.Context, r *Rule, env *Envelope) (bool, *Trace, error) {
	if !e.opts.CollectDiagnostics {
		return false, nil, fmt.Errorf("tracing requested, but the engine does not have the CollectDiagnostics option set")
	}
	return e.evalRule(ctx, r, env, newTrace(env))
}

func (e *Engine) evalRule(ctx context.Context, r *Rule, env *Envelope, tr *Trace) (bool, *Trace, error) {
	if r == nil || r.Cond == nil {
		return false, nil, fmt.Errorf("rule has no condition")
	}
	ev := &evalState{env: env, trace: tr}
	match, err := r.Cond.eval(ctx, ev)
	if err != nil {
		return false, tr, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return match, tr, nil
}

// EvalTemplate runs the eval pipeline against the envelope: the first
// clause whose condition holds has its template rendered with that
// evaluation's captures, and scanning stops there. When no clause
// matches, the literal fallback is returned if the eval has one;
// otherwise ok is false.
func (e *Engine) EvalTemplate(ctx context.Context, ev *Eval, env *Envelope) (value string, ok bool, err error) {
	return e.scanClauses(ctx, ev.ID, ev.Clauses, ev.Else, env, nil)
}

// EvalTemplateTraced is EvalTemplate with an evaluation trace. The
// engine must have been built with CollectDiagnostics.
func (e *Engine) EvalTemplateTraced(ctx context.Context, ev *Eval, env *Envelope) (value string, ok bool, tr *Trace, err error) {
	if !e.opts.CollectDiagnostics {
		return "", false, nil, fmt.Errorf("tracing requested, but the engine does not have the CollectDiagnostics option set")
	}
	tr = newTrace(env)
	value, ok, err = e.scanClauses(ctx, ev.ID, ev.Clauses, ev.Else, env, tr)
	return value, ok, tr, err
}

func (e *Engine) scanClauses(ctx context.Context, id string, clauses []Clause, elseClause *string, env *Envelope, tr *Trace) (string, bool, error) {
	for i := range clauses {
		c := &clauses[i]
		st := &evalState{env: env, trace: tr}
		match, err := c.If.eval(ctx, st)
		if err != nil {
			return "", false, fmt.Errorf("%s clause %d: %w", id, i, err)
		}
		if !match {
			continue
		}
		value, err := c.Then.Render(env, st.captures)
		if err != nil {
			return "", false, fmt.Errorf("%s clause %d: %w", id, i, err)
		}
		return value, true, nil
	}

	if elseClause != nil {
		return *elseClause, true, nil
	}
	return "", false, nil
}

// EvalMaybe runs the maybe-eval pipeline: the rendered (or static
// literal) key is resolved through the directory, and the directory's
// associated value is the result. A key the directory does not know, or
// no matching clause at all, makes ok false. A directory backend failure
// is returned as an error, distinct from "not found".
func (e *Engine) EvalMaybe(ctx context.Context, me *MaybeEval, env *Envelope, dir Directory) (value string, ok bool, err error) {
	if dir == nil {
		return "", false, fmt.Errorf("maybe-eval %s: no directory", me.ID)
	}

	key := me.Key
	if key == "" {
		k, matched, err := e.scanClauses(ctx, me.ID, me.Clauses, me.Else, env, nil)
		if err != nil {
			return "", false, err
		}
		if !matched {
			return "", false, nil
		}
		key = k
	}

	value, found, err := dir.Resolve(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("maybe-eval %s: resolving %q: %w", me.ID, key, err)
	}
	if !found {
		return "", false, nil
	}
	return value, true, nil
}
