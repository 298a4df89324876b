package mailrule_test

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/mailrule/mailrule"
	"github.com/mailrule/mailrule/directory"
)

func ExampleEngine_EvalRule() {
	e := mailrule.NewEngine()

	r := mailrule.NewRule("submission", &mailrule.AllOf{
		Conditions: []mailrule.Condition{
			&mailrule.Leaf{Field: mailrule.FieldListener, Op: mailrule.OpEq, Operand: "smtps"},
			&mailrule.Leaf{Field: mailrule.FieldAuthenticatedAs, Op: mailrule.OpNe, Operand: ""},
		},
	})
	if err := e.CompileRule(r); err != nil {
		fmt.Println(err)
		return
	}

	env, err := mailrule.NewEnvelopeBuilder().
		Listener("smtps").
		AuthenticatedAs("john@example.org").
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}

	match, err := e.EvalRule(context.Background(), r, env)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(match)
	// Output: true
}

func ExampleEngine_EvalTemplate() {
	e := mailrule.NewEngine()

	match := &mailrule.Leaf{
		Field:   mailrule.FieldRcpt,
		Op:      mailrule.OpMatches,
		Operand: `^([^@]+)@(.+)$`,
	}
	then, err := mailrule.ParseTemplate("${1} at ${2} via ${listener}")
	if err != nil {
		fmt.Println(err)
		return
	}

	ev := mailrule.NewEval("describe", mailrule.Clause{If: match, Then: then})
	if err := e.CompileEval(ev); err != nil {
		fmt.Println(err)
		return
	}

	env, err := mailrule.NewEnvelopeBuilder().
		Rcpt("user@example.org").
		Listener("smtp").
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}

	value, ok, err := e.EvalTemplate(context.Background(), ev, env)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(ok, value)
	// Output: true user at example.org via smtp
}

func ExampleEngine_EvalMaybe() {
	relays := directory.NewStatic(map[string]string{
		"example.org": "relay1.example.org",
		"example.net": "relay2.example.org",
	})
	e := mailrule.NewEngine(mailrule.WithDirectory("relays", relays))

	internal, err := mailrule.ParseTemplate("${rcpt-domain}")
	if err != nil {
		fmt.Println(err)
		return
	}
	me := mailrule.NewMaybeEval("next-hop", mailrule.Clause{
		If: &mailrule.Leaf{
			Field:   mailrule.FieldLocalIP,
			Op:      mailrule.OpEq,
			Operand: "10.0.0.0/8",
		},
		Then: internal,
	})
	if err := e.CompileMaybeEval(me); err != nil {
		fmt.Println(err)
		return
	}

	env, err := mailrule.NewEnvelopeBuilder().
		Rcpt("user@example.net").
		LocalIP(netip.MustParseAddr("10.1.2.3")).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}

	hop, ok, err := e.EvalMaybe(context.Background(), me, env, relays)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(ok, hop)
	// Output: true relay2.example.org
}
