package mailrule

import (
	"fmt"
	"strings"

	box "github.com/Delta456/box-cli-maker/v2"
	"github.com/alexeyco/simpletable"
)

// A Trace records the nodes an evaluation visited, in evaluation order,
// with each node's outcome and the captures in effect after it. Traces
// are collected only by the Traced engine methods, on engines built with
// CollectDiagnostics.
type Trace struct {
	Envelope *Envelope
	Steps    []TraceStep
}

// TraceStep is one visited condition node.
type TraceStep struct {
	Node     string
	Match    bool
	Captures []string
}

func newTrace(env *Envelope) *Trace {
	return &Trace{Envelope: env}
}

func (t *Trace) add(c Condition, match bool, captures []string) {
	t.Steps = append(t.Steps, TraceStep{
		Node:     c.String(),
		Match:    match,
		Captures: append([]string(nil), captures...),
	})
}

// String renders the trace as a diagnostic report: the visited nodes in
// order, then the envelope the evaluation ran against.
func (t *Trace) String() string {
	b := box.New(box.Config{Px: 2, Py: 1, Type: "Double", Color: "Cyan", TitlePos: "Top", ContentAlign: "Left"})

	s := strings.Builder{}
	s.WriteString("Evaluation Order:\n")
	s.WriteString("-----------------\n")
	s.WriteString(t.stepTable().String())

	if t.Envelope != nil {
		s.WriteString("\n\n")
		s.WriteString("Envelope:\n")
		s.WriteString("---------\n")
		s.WriteString(envelopeTable(t.Envelope).String())
	}
	return b.String("MAILRULE EVALUATION TRACE", s.String())
}

func (t *Trace) stepTable() *simpletable.Table {
	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "#"},
			{Align: simpletable.AlignCenter, Text: "Node"},
			{Align: simpletable.AlignCenter, Text: "Match"},
			{Align: simpletable.AlignCenter, Text: "Captures"},
		},
	}

	for i, step := range t.Steps {
		r := []*simpletable.Cell{
			{Text: fmt.Sprintf("%d", i+1)},
			{Text: step.Node},
			{Text: fmt.Sprintf("%t", step.Match)},
			{Text: strings.Join(step.Captures, ", ")},
		}
		table.Body.Cells = append(table.Body.Cells, r)
	}

	table.SetStyle(simpletable.StyleUnicode)
	return table
}

func envelopeTable(env *Envelope) *simpletable.Table {
	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Field"},
			{Align: simpletable.AlignCenter, Text: "Value"},
		},
	}

	values := env.Values()
	for _, f := range Fields() {
		v, ok := values[f]
		if !ok {
			continue
		}
		r := []*simpletable.Cell{
			{Text: string(f)},
			{Text: v.String()},
		}
		table.Body.Cells = append(table.Body.Cells, r)
	}

	table.SetStyle(simpletable.StyleUnicode)
	return table
}
