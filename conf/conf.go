// Package conf loads declarative rule documents into a compiled
// mailrule.RuleSet.
//
// A document is a TOML file with three optional tables: rules, evals and
// maybe-evals. A rule is a condition node; an eval or maybe-eval holds a
// test (a clause list, or for maybe-evals a static lookup key) and an
// optional else fallback:
//
//	[rules.submission]
//	all-of = [
//	    { if = "authenticated-as", ne = "" },
//	    { if = "listener", eq = "smtp" },
//	]
//
//	[evals.rewrite]
//	test = [
//	    { if = "rcpt", matches = '^([^.]+)@(.+)$', then = "${1}@example.org" },
//	]
//	else = false
//
//	[maybe-evals.route]
//	test = "list_mx"
//
// A condition node has either an if key naming the field plus exactly
// one operator key (eq, ne, starts-with, ends-with, matches, in-list,
// not-in-list), an expr key, or one combinator key (any-of, all-of,
// none-of) holding a list of nodes. else is a string, or false for the
// explicit "no result" fallback.
//
// Every error the engine can detect (unknown fields and directories,
// malformed regexes and networks, impossible capture references) is
// reported by Load, so a document that loads is safe to evaluate.
package conf

import (
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/mailrule/mailrule"
)

type document struct {
	Rules map[string]map[string]interface{} `toml:"rules"`
	Evals map[string]pipelineDoc            `toml:"evals"`
	Maybe map[string]pipelineDoc            `toml:"maybe-evals"`
}

type pipelineDoc struct {
	Test interface{} `toml:"test"`
	Else interface{} `toml:"else"`
}

// Load reads and parses the document at path and compiles it with the
// engine.
func Load(path string, e *mailrule.Engine) (*mailrule.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	rs, err := Parse(data, e)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return rs, nil
}

// Parse parses the TOML document and compiles it with the engine.
func Parse(data []byte, e *mailrule.Engine) (*mailrule.RuleSet, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing document")
	}

	var rules []*mailrule.Rule
	for _, name := range sortedKeys(doc.Rules) {
		cond, err := parseNode(doc.Rules[name])
		if err != nil {
			return nil, errors.Wrapf(err, "rule %q", name)
		}
		rules = append(rules, mailrule.NewRule(name, cond))
	}

	var evals []*mailrule.Eval
	for _, name := range sortedKeys(doc.Evals) {
		d := doc.Evals[name]
		clauses, key, err := parseTest(d.Test)
		if err != nil {
			return nil, errors.Wrapf(err, "eval %q", name)
		}
		if key != "" {
			return nil, errors.Errorf("eval %q: test must be a clause list", name)
		}
		elseClause, err := parseElse(d.Else)
		if err != nil {
			return nil, errors.Wrapf(err, "eval %q", name)
		}
		ev := mailrule.NewEval(name, clauses...)
		ev.Else = elseClause
		evals = append(evals, ev)
	}

	var maybes []*mailrule.MaybeEval
	for _, name := range sortedKeys(doc.Maybe) {
		d := doc.Maybe[name]
		clauses, key, err := parseTest(d.Test)
		if err != nil {
			return nil, errors.Wrapf(err, "maybe-eval %q", name)
		}
		elseClause, err := parseElse(d.Else)
		if err != nil {
			return nil, errors.Wrapf(err, "maybe-eval %q", name)
		}
		me := mailrule.NewMaybeEval(name, clauses...)
		me.Key = key
		me.Else = elseClause
		maybes = append(maybes, me)
	}

	rs, err := mailrule.NewRuleSet(e, rules, evals, maybes)
	if err != nil {
		return nil, errors.Wrap(err, "compiling")
	}
	return rs, nil
}

// parseTest parses an eval/maybe-eval test: a clause list, or a single
// static lookup key.
func parseTest(v interface{}) (clauses []mailrule.Clause, key string, err error) {
	switch t := v.(type) {
	case nil:
		return nil, "", errors.New("missing test")
	case string:
		return nil, t, nil
	case []interface{}:
		for i, c := range t {
			m, ok := c.(map[string]interface{})
			if !ok {
				return nil, "", errors.Errorf("clause %d: expected a table, got %T", i, c)
			}
			clause, err := parseClause(m)
			if err != nil {
				return nil, "", errors.Wrapf(err, "clause %d", i)
			}
			clauses = append(clauses, clause)
		}
		return clauses, "", nil
	case []map[string]interface{}:
		for i, m := range t {
			clause, err := parseClause(m)
			if err != nil {
				return nil, "", errors.Wrapf(err, "clause %d", i)
			}
			clauses = append(clauses, clause)
		}
		return clauses, "", nil
	default:
		return nil, "", errors.Errorf("test must be a string or a clause list, got %T", v)
	}
}

func parseClause(m map[string]interface{}) (mailrule.Clause, error) {
	thenVal, ok := m["then"]
	if !ok {
		return mailrule.Clause{}, errors.New("missing then")
	}
	thenStr, ok := thenVal.(string)
	if !ok {
		return mailrule.Clause{}, errors.Errorf("then must be a string, got %T", thenVal)
	}
	tmpl, err := mailrule.ParseTemplate(thenStr)
	if err != nil {
		return mailrule.Clause{}, err
	}

	node := make(map[string]interface{}, len(m)-1)
	for k, v := range m {
		if k != "then" {
			node[k] = v
		}
	}
	cond, err := parseNode(node)
	if err != nil {
		return mailrule.Clause{}, err
	}
	return mailrule.Clause{If: cond, Then: tmpl}, nil
}

// parseElse parses the fallback: a string literal, or false for the
// explicit "no result" sentinel. An absent else behaves like false.
func parseElse(v interface{}) (*string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return mailrule.ElseValue(t), nil
	case bool:
		if t {
			return nil, errors.New("else must be a string or false")
		}
		return nil, nil
	default:
		return nil, errors.Errorf("else must be a string or false, got %T", v)
	}
}

var combinators = []string{"any-of", "all-of", "none-of"}

func parseNode(m map[string]interface{}) (mailrule.Condition, error) {
	for _, name := range combinators {
		v, ok := m[name]
		if !ok {
			continue
		}
		if len(m) != 1 {
			return nil, errors.Errorf("%s cannot be combined with other keys", name)
		}
		children, err := parseChildren(v)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		switch name {
		case "any-of":
			return &mailrule.AnyOf{Conditions: children}, nil
		case "all-of":
			return &mailrule.AllOf{Conditions: children}, nil
		default:
			return &mailrule.NoneOf{Conditions: children}, nil
		}
	}

	if v, ok := m["expr"]; ok {
		if len(m) != 1 {
			return nil, errors.New("expr cannot be combined with other keys")
		}
		src, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("expr must be a string, got %T", v)
		}
		return &mailrule.Expr{Source: src}, nil
	}

	return parseLeaf(m)
}

func parseChildren(v interface{}) ([]mailrule.Condition, error) {
	var maps []map[string]interface{}
	switch t := v.(type) {
	case []interface{}:
		for i, c := range t {
			m, ok := c.(map[string]interface{})
			if !ok {
				return nil, errors.Errorf("child %d: expected a table, got %T", i, c)
			}
			maps = append(maps, m)
		}
	case []map[string]interface{}:
		maps = t
	default:
		return nil, errors.Errorf("expected a list of nodes, got %T", v)
	}

	children := make([]mailrule.Condition, 0, len(maps))
	for i, m := range maps {
		c, err := parseNode(m)
		if err != nil {
			return nil, errors.Wrapf(err, "child %d", i)
		}
		children = append(children, c)
	}
	return children, nil
}

func parseLeaf(m map[string]interface{}) (mailrule.Condition, error) {
	fieldVal, ok := m["if"]
	if !ok {
		return nil, errors.New("node has no if, expr or combinator key")
	}
	field, ok := fieldVal.(string)
	if !ok {
		return nil, errors.Errorf("if must be a field name, got %T", fieldVal)
	}

	leaf := &mailrule.Leaf{Field: mailrule.Field(field)}
	found := false
	for key, v := range m {
		if key == "if" {
			continue
		}
		op, err := mailrule.ParseOp(key)
		if err != nil {
			return nil, errors.Errorf("unknown key %q", key)
		}
		if found {
			return nil, errors.Errorf("field %q tested with more than one operator", field)
		}
		operand, err := operandString(v)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s", field, op)
		}
		leaf.Op = op
		leaf.Operand = operand
		found = true
	}
	if !found {
		return nil, errors.Errorf("field %q has no operator", field)
	}
	return leaf, nil
}

// operandString renders an operand in its canonical string form: TOML
// strings verbatim, integers in plain decimal.
func operandString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return mailrule.IntValue(t).String(), nil
	default:
		return "", errors.Errorf("operand must be a string or an integer, got %T", v)
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
