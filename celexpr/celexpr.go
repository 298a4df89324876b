// Package celexpr implements the mailrule.ExprEvaluator interface with
// Google's CEL expression language. See https://github.com/google/cel-go
// and https://github.com/google/cel-spec for more information about CEL.
//
// Envelope fields are declared to CEL with their dashes replaced by
// underscores, since a dash cannot appear in a CEL identifier: the
// rcpt-domain field is rcpt_domain inside an expression.
//
//	expr = "priority < 0 && rcpt_domain == sender_domain"
package celexpr

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailrule/mailrule"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Evaluator compiles expressions against the envelope schema. Create
// one with New and pass it to the engine with
// mailrule.WithExprEvaluator.
type Evaluator struct{}

var _ mailrule.ExprEvaluator = (*Evaluator)(nil)

// New initializes a CEL evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Compile parses and type-checks the expression against the envelope
// fields and returns the runnable program. Compilation errors are
// configuration errors: a definition with a bad expression must not be
// used.
func (e *Evaluator) Compile(source string, fields map[mailrule.Field]mailrule.Kind) (mailrule.Program, error) {
	declarations, err := fieldDeclarations(fields)
	if err != nil {
		return nil, err
	}

	env, err := cel.NewEnv(declarations)
	if err != nil {
		return nil, err
	}

	// Parse the expression to an AST
	p, iss := env.Parse(source)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("parsing expression %q: %w", source, iss.Err())
	}

	// Type-check the parsed AST against the declarations
	c, iss := env.Check(p)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("checking expression %q: %w", source, iss.Err())
	}

	prg, err := env.Program(c)
	if err != nil {
		return nil, fmt.Errorf("generating program for %q: %w", source, err)
	}

	return &program{source: source, prg: prg}, nil
}

type program struct {
	source string
	prg    cel.Program
}

// Eval runs the program against the envelope. The expression must
// produce a boolean.
func (p *program) Eval(_ context.Context, env *mailrule.Envelope) (bool, error) {
	rawValue, _, err := p.prg.Eval(activation(env))
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", p.source, err)
	}

	b, ok := rawValue.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q: expected boolean result, got %T", p.source, rawValue.Value())
	}
	return b, nil
}

// fieldDeclarations converts the envelope schema to CEL declarations.
func fieldDeclarations(fields map[mailrule.Field]mailrule.Kind) (cel.EnvOption, error) {
	items := []*exprpb.Decl{}
	for f, k := range fields {
		typ, err := celType(k)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		items = append(items, decls.NewIdent(exprName(f), typ, nil))
	}
	return cel.Declarations(items...), nil
}

// celType converts from a mailrule.Kind to a CEL type. Addresses are
// exposed to expressions in their textual form.
func celType(k mailrule.Kind) (*exprpb.Type, error) {
	switch k.(type) {
	case mailrule.String:
		return decls.String, nil
	case mailrule.Int:
		return decls.Int, nil
	case mailrule.IP:
		return decls.String, nil
	}
	return nil, fmt.Errorf("no CEL type for kind %s", k)
}

// activation builds the evaluation input: every known field under its
// expression name, unset fields as their kind's zero value.
func activation(env *mailrule.Envelope) map[string]interface{} {
	data := map[string]interface{}{}
	for _, f := range mailrule.Fields() {
		v := env.Field(f)
		switch v.Kind().(type) {
		case mailrule.Int:
			data[exprName(f)] = v.Int()
		default:
			data[exprName(f)] = v.String()
		}
	}
	return data
}

func exprName(f mailrule.Field) string {
	return strings.ReplaceAll(string(f), "-", "_")
}
