package mailrule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrCaptureOutOfRange is returned when a template references a capture
// group the matched expression did not produce. It is detected at
// compile time whenever the paired condition makes that possible, and at
// render time otherwise; it is never satisfied with an empty string.
var ErrCaptureOutOfRange = errors.New("capture reference out of range")

// A Template is a compiled "then" string. It may contain numbered
// capture references (${0} is the whole match, ${1}... the groups of the
// regex that matched), named envelope references (${rcpt}, ...), and the
// escape ${{...}} which renders as a literal ${...}. A ${...} token that
// is neither a number nor a known envelope field passes through
// verbatim.
//
// Rendering is purely functional: no I/O and no directory access.
type Template struct {
	raw  string
	segs []segment
}

type segKind int

const (
	segLiteral segKind = iota
	segCapture
	segField
)

type segment struct {
	kind    segKind
	literal string
	capture int
	field   Field
}

// ParseTemplate compiles the template text.
func ParseTemplate(text string) (*Template, error) {
	t := &Template{raw: text}

	lit := strings.Builder{}
	rest := text
	for {
		i := strings.Index(rest, "${")
		if i < 0 {
			lit.WriteString(rest)
			break
		}
		lit.WriteString(rest[:i])
		rest = rest[i:]

		// ${{...}} renders as a literal ${...}
		if strings.HasPrefix(rest, "${{") {
			end := strings.Index(rest, "}}")
			if end < 0 {
				lit.WriteString(rest)
				break
			}
			lit.WriteString("${" + rest[3:end] + "}")
			rest = rest[end+2:]
			continue
		}

		end := strings.IndexByte(rest, '}')
		if end < 0 {
			lit.WriteString(rest)
			break
		}
		name := rest[2:end]

		switch {
		case isDecimal(name):
			n, err := strconv.Atoi(name)
			if err != nil {
				return nil, fmt.Errorf("template %q: capture reference ${%s}: %w", text, name, err)
			}
			t.flush(&lit)
			t.segs = append(t.segs, segment{kind: segCapture, capture: n})

		case isEnvelopeField(name):
			t.flush(&lit)
			t.segs = append(t.segs, segment{kind: segField, field: Field(name)})

		default:
			// not a placeholder; passes through as-is
			lit.WriteString(rest[:end+1])
		}
		rest = rest[end+1:]
	}
	t.flush(&lit)

	return t, nil
}

func (t *Template) flush(lit *strings.Builder) {
	if lit.Len() == 0 {
		return
	}
	t.segs = append(t.segs, segment{kind: segLiteral, literal: lit.String()})
	lit.Reset()
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isEnvelopeField(s string) bool {
	_, ok := FieldKind(Field(s))
	return ok
}

// String returns the original template text.
func (t *Template) String() string {
	return t.raw
}

// MaxCapture returns the highest capture group the template references,
// or -1 when it references none.
func (t *Template) MaxCapture() int {
	max := -1
	for _, s := range t.segs {
		if s.kind == segCapture && s.capture > max {
			max = s.capture
		}
	}
	return max
}

// Render substitutes the capture and envelope references and returns the
// rendered string. captures is the submatch list of the regex that
// decided the condition, index 0 being the whole match; it may be nil
// when no regex matched.
func (t *Template) Render(env *Envelope, captures []string) (string, error) {
	out := strings.Builder{}
	for _, s := range t.segs {
		switch s.kind {
		case segLiteral:
			out.WriteString(s.literal)
		case segCapture:
			if s.capture >= len(captures) {
				return "", fmt.Errorf("template %q: ${%d}: %w", t.raw, s.capture, ErrCaptureOutOfRange)
			}
			out.WriteString(captures[s.capture])
		case segField:
			out.WriteString(env.Field(s.field).String())
		}
	}
	return out.String(), nil
}
