package celexpr_test

import (
	"context"
	"testing"

	"github.com/matryer/is"

	"github.com/mailrule/mailrule"
	"github.com/mailrule/mailrule/celexpr"
)

func envelopeSchema() map[mailrule.Field]mailrule.Kind {
	fields := map[mailrule.Field]mailrule.Kind{}
	for _, f := range mailrule.Fields() {
		k, _ := mailrule.FieldKind(f)
		fields[f] = k
	}
	return fields
}

func testEnvelope(t *testing.T) *mailrule.Envelope {
	t.Helper()
	env, err := mailrule.NewEnvelopeBuilder().
		Rcpt("user@foo.example.org").
		Sender("jane@example.net").
		Priority(-4).
		Listener("smtps").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return env
}

func TestCompileAndEval(t *testing.T) {
	is := is.New(t)

	ev := celexpr.New()
	env := testEnvelope(t)
	ctx := context.Background()

	cases := []struct {
		source string
		want   bool
	}{
		{`priority < 0 && listener == "smtps"`, true},
		{`rcpt_domain == sender_domain`, false},
		{`rcpt.endsWith("." + "org") && sender.startsWith("jane")`, true},
		{`sender_domain in ["example.com", "example.net"]`, true},
		{`size(authenticated_as) == 0`, true},
		{`mx == ""`, true},
	}

	for _, c := range cases {
		prog, err := ev.Compile(c.source, envelopeSchema())
		is.NoErr(err)

		got, err := prog.Eval(ctx, env)
		is.NoErr(err)
		if got != c.want {
			t.Errorf("%s: got %t, want %t", c.source, got, c.want)
		}
	}
}

func TestCompileErrors(t *testing.T) {

	ev := celexpr.New()

	// syntax error
	if _, err := ev.Compile(`priority <`, envelopeSchema()); err == nil {
		t.Fatalf("compiled a malformed expression")
	}

	// unknown identifier fails the type check
	if _, err := ev.Compile(`message_size > 0`, envelopeSchema()); err == nil {
		t.Fatalf("compiled an expression over an unknown field")
	}

	// comparing across types fails the type check
	if _, err := ev.Compile(`priority == "high"`, envelopeSchema()); err == nil {
		t.Fatalf("compiled an int/string comparison")
	}
}

func TestNonBooleanResult(t *testing.T) {

	ev := celexpr.New()
	prog, err := ev.Compile(`priority + 1`, envelopeSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := prog.Eval(context.Background(), testEnvelope(t)); err == nil {
		t.Fatalf("accepted a non-boolean result")
	}
}
