package mailrule

// A Clause pairs a condition with the template rendered when the
// condition holds.
type Clause struct {
	If   Condition
	Then *Template
}

// An Eval is an ordered list of clauses with an optional literal
// fallback. Evaluation walks the clauses in declared order and returns
// the first match's rendered template; later clauses are not evaluated.
// When no clause matches, the fallback is returned if present, and
// otherwise the result is "no match", an ordinary outcome rather than
// an error.
//
// The fallback is always a literal: it is never rendered as a template.
// A nil Else is the explicit "no result" fallback (else = false in the
// declarative form) as well as the absent one; both make a no-match
// terminal.
type Eval struct {
	// The eval identifier. (required)
	ID string

	Clauses []Clause

	Else *string
}

// NewEval initializes an eval with the ID and clauses.
func NewEval(id string, clauses ...Clause) *Eval {
	return &Eval{ID: id, Clauses: clauses}
}

// A MaybeEval is an Eval whose result is additionally resolved through a
// Directory: the rendered (or literal) string is a lookup key, and the
// pipeline's value is the key's associated directory value. A key the
// directory does not know makes a no-match terminal.
//
// The test may also be a single static literal key (Key set, no
// clauses); it is then resolved directly, with no condition evaluation.
type MaybeEval struct {
	// The maybe-eval identifier. (required)
	ID string

	// Static literal lookup key. Mutually exclusive with Clauses.
	Key string

	Clauses []Clause

	Else *string
}

// NewMaybeEval initializes a maybe-eval with the ID and clauses.
func NewMaybeEval(id string, clauses ...Clause) *MaybeEval {
	return &MaybeEval{ID: id, Clauses: clauses}
}

// NewMaybeEvalKey initializes a maybe-eval with a static lookup key.
func NewMaybeEvalKey(id string, key string) *MaybeEval {
	return &MaybeEval{ID: id, Key: key}
}

// ElseValue returns a literal fallback for use in an Eval or MaybeEval.
func ElseValue(s string) *string {
	return &s
}
