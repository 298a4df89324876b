package mailrule

import (
	"context"
	"errors"
)

// ExprEvaluator is the interface implemented by expression backends that
// can compile the free-form Expr leaves of a condition tree. The engine
// compiles every expression at load time so that a malformed expression
// is a configuration error, never a per-transaction failure.
//
// The fields map is the envelope schema the expression may reference.
type ExprEvaluator interface {
	Compile(source string, fields map[Field]Kind) (Program, error)
}

// Program is a compiled expression, ready to be evaluated against an
// envelope. A Program must be safe for concurrent use.
type Program interface {
	Eval(ctx context.Context, env *Envelope) (bool, error)
}

// ErrNoExprEvaluator is returned at compile time when a condition tree
// contains an Expr but the engine was built without an ExprEvaluator.
var ErrNoExprEvaluator = errors.New("no expression evaluator configured")
