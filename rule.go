package mailrule

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// A Rule binds a name to one condition tree root. Evaluating a rule
// yields a boolean only; rules carry no templates.
//
// A Rule must be compiled by an Engine before evaluation and must not be
// modified afterwards. A compiled Rule is safe for concurrent
// evaluation.
type Rule struct {
	// The rule identifier. (required)
	ID string

	// The root of the condition tree. A bare Leaf is a valid root.
	Cond Condition

	// A reference to any object. Not used by the engine.
	Meta any
}

// NewRule initializes a rule with the ID and root condition.
func NewRule(id string, cond Condition) *Rule {
	return &Rule{ID: id, Cond: cond}
}

// String returns a table of the rule's condition nodes in evaluation
// order, one row per node.
func (r *Rule) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nRULE %s\n", r.ID)
	tw.AppendHeader(table.Row{"\nNode", "\nKind", "\nDetail"})

	for _, row := range conditionRows(r.Cond, 0) {
		tw.AppendRow(row)
	}

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

func conditionRows(c Condition, n int) []table.Row {
	indent := strings.Repeat("  ", n)
	rows := []table.Row{{indent + nodeKind(c), nodeKind(c), nodeDetail(c)}}
	for _, child := range children(c) {
		rows = append(rows, conditionRows(child, n+1)...)
	}
	return rows
}

func nodeKind(c Condition) string {
	switch c.(type) {
	case *Leaf:
		return "leaf"
	case *Expr:
		return "expr"
	case *AnyOf:
		return "any-of"
	case *AllOf:
		return "all-of"
	case *NoneOf:
		return "none-of"
	default:
		return fmt.Sprintf("%T", c)
	}
}

func nodeDetail(c Condition) string {
	if children(c) != nil {
		return ""
	}
	return c.String()
}

// Tree returns a tree representation of the condition hierarchy using
// box-drawing characters. Recursion is limited to a maximum depth of 20
// levels.
//
// Example output:
//
//	reject-unknown
//	├── any-of
//	│   ├── rcpt-domain not-in-list "local-domains"
//	│   └── sender eq ""
//	└── listener eq "smtp"
func (r *Rule) Tree() string {
	if r == nil {
		return ""
	}
	sb := strings.Builder{}
	sb.WriteString(r.ID)
	sb.WriteString("\n")
	if children(r.Cond) == nil {
		sb.WriteString("└── ")
		sb.WriteString(r.Cond.String())
		sb.WriteString("\n")
		return sb.String()
	}
	buildTree(&sb, r.Cond, "", 0)
	return sb.String()
}

func buildTree(sb *strings.Builder, c Condition, prefix string, depth int) {
	if depth >= 20 {
		return
	}
	kids := children(c)
	for i, child := range kids {
		isLast := i == len(kids)-1
		var connector, childPrefix string
		if isLast {
			connector = "└── "
			childPrefix = "    "
		} else {
			connector = "├── "
			childPrefix = "│   "
		}

		sb.WriteString(prefix)
		sb.WriteString(connector)
		if children(child) != nil {
			sb.WriteString(nodeKind(child))
		} else {
			sb.WriteString(child.String())
		}
		sb.WriteString("\n")
		buildTree(sb, child, prefix+childPrefix, depth+1)
	}
}
