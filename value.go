package mailrule

import (
	"fmt"
	"net/netip"
	"strconv"
)

// Kind defines a type in the mailrule type system. Kinds describe the
// envelope fields and are used at compile time to check that an operator
// and its operand are compatible with the field they test.
type Kind interface {
	// Implements the stringer interface
	String() string

	// Zero returns the empty value of the kind. An envelope field that
	// was never set reads as its kind's zero value.
	Zero() Value
}

// String defines a mailrule string kind.
type String struct{}

// Int defines a mailrule integer kind.
type Int struct{}

// IP defines a mailrule IP address kind. Both IPv4 and IPv6 addresses
// are represented uniformly.
type IP struct{}

func (String) String() string { return "string" }
func (Int) String() string    { return "int" }
func (IP) String() string     { return "ip" }

func (String) Zero() Value { return Value{kind: String{}} }
func (Int) Zero() Value    { return Value{kind: Int{}} }
func (IP) Zero() Value     { return Value{kind: IP{}} }

// Value is a single typed envelope field value.
//
// The zero Value reads as an empty string, which gives undefined fields
// the empty/false operator semantics.
type Value struct {
	kind Kind
	s    string
	n    int64
	addr netip.Addr
}

// StringValue returns a string Value.
func StringValue(s string) Value {
	return Value{kind: String{}, s: s}
}

// IntValue returns an integer Value.
func IntValue(n int64) Value {
	return Value{kind: Int{}, n: n}
}

// AddrValue returns an IP address Value. IPv4-mapped IPv6 addresses are
// unmapped so that the same address always compares equal regardless of
// its source representation.
func AddrValue(a netip.Addr) Value {
	return Value{kind: IP{}, addr: a.Unmap()}
}

// ParseAddrValue parses s as an IP address and returns it as a Value.
func ParseAddrValue(s string) (Value, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return Value{}, fmt.Errorf("parsing address %q: %w", s, err)
	}
	return AddrValue(a), nil
}

// Kind returns the value's kind. A zero Value has kind String.
func (v Value) Kind() Kind {
	if v.kind == nil {
		return String{}
	}
	return v.kind
}

// Addr returns the IP address held by the value, valid only for IP values.
func (v Value) Addr() netip.Addr {
	return v.addr
}

// Int returns the integer held by the value, valid only for integer values.
func (v Value) Int() int64 {
	return v.n
}

// String renders the value in its natural string form: strings verbatim,
// integers in plain decimal (no padding, sign only when negative), and
// addresses in their canonical textual form.
func (v Value) String() string {
	switch v.Kind().(type) {
	case Int:
		return strconv.FormatInt(v.n, 10)
	case IP:
		if !v.addr.IsValid() {
			return ""
		}
		return v.addr.String()
	default:
		return v.s
	}
}

// IsZero reports whether the value was never set.
func (v Value) IsZero() bool {
	return v == Value{}
}
