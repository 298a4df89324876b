package mailrule

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// Field names an envelope attribute. The set of fields is closed and
// known at compile time; see Fields.
type Field string

// The envelope fields.
const (
	FieldRcpt            Field = "rcpt"
	FieldRcptDomain      Field = "rcpt-domain"
	FieldSender          Field = "sender"
	FieldSenderDomain    Field = "sender-domain"
	FieldLocalIP         Field = "local-ip"
	FieldRemoteIP        Field = "remote-ip"
	FieldMX              Field = "mx"
	FieldAuthenticatedAs Field = "authenticated-as"
	FieldPriority        Field = "priority"
	FieldListener        Field = "listener"
	FieldHeloDomain      Field = "helo-domain"
)

// fieldKinds is the envelope schema: every known field and its kind.
// The listener is a string because configurations may reference it either
// symbolically ("smtp", "smtps") or by its numeric ID.
var fieldKinds = map[Field]Kind{
	FieldRcpt:            String{},
	FieldRcptDomain:      String{},
	FieldSender:          String{},
	FieldSenderDomain:    String{},
	FieldLocalIP:         IP{},
	FieldRemoteIP:        IP{},
	FieldMX:              String{},
	FieldAuthenticatedAs: String{},
	FieldPriority:        Int{},
	FieldListener:        String{},
	FieldHeloDomain:      String{},
}

// Fields returns every known envelope field, sorted by name.
func Fields() []Field {
	fs := make([]Field, 0, len(fieldKinds))
	for f := range fieldKinds {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	return fs
}

// FieldKind returns the kind of the field, and whether the field is part
// of the envelope schema.
func FieldKind(f Field) (Kind, bool) {
	k, ok := fieldKinds[f]
	return k, ok
}

// An Envelope is the per-transaction evaluation context: a read-only
// mapping from field name to typed value. The caller builds it once per
// transaction, before evaluation begins; the engine never modifies it.
//
// An Envelope may be read by any number of concurrent evaluations.
type Envelope struct {
	fields map[Field]Value
}

// NewEnvelope builds an envelope from the field values. The map is
// copied; the caller may reuse it. Setting a field that is not part of
// the envelope schema, or setting it to a value of the wrong kind, is an
// error.
func NewEnvelope(fields map[Field]Value) (*Envelope, error) {
	e := &Envelope{fields: make(map[Field]Value, len(fields))}
	for f, v := range fields {
		k, ok := fieldKinds[f]
		if !ok {
			return nil, fmt.Errorf("unknown envelope field %q", f)
		}
		if v.Kind() != k {
			return nil, fmt.Errorf("envelope field %q: want %s value, got %s", f, k, v.Kind())
		}
		e.fields[f] = v
	}
	return e, nil
}

// EnvelopeBuilder assembles an Envelope field by field. Domain fields
// (rcpt-domain, sender-domain) are derived from their address fields if
// not set explicitly.
type EnvelopeBuilder struct {
	fields map[Field]Value
	err    error
}

// NewEnvelopeBuilder returns an empty builder.
func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{fields: map[Field]Value{}}
}

func (b *EnvelopeBuilder) set(f Field, v Value) *EnvelopeBuilder {
	b.fields[f] = v
	return b
}

// Rcpt sets the recipient address and derives rcpt-domain.
func (b *EnvelopeBuilder) Rcpt(addr string) *EnvelopeBuilder {
	b.set(FieldRcpt, StringValue(addr))
	if _, ok := b.fields[FieldRcptDomain]; !ok {
		b.set(FieldRcptDomain, StringValue(addressDomain(addr)))
	}
	return b
}

// Sender sets the sender address and derives sender-domain.
func (b *EnvelopeBuilder) Sender(addr string) *EnvelopeBuilder {
	b.set(FieldSender, StringValue(addr))
	if _, ok := b.fields[FieldSenderDomain]; !ok {
		b.set(FieldSenderDomain, StringValue(addressDomain(addr)))
	}
	return b
}

// RcptDomain overrides the derived recipient domain.
func (b *EnvelopeBuilder) RcptDomain(d string) *EnvelopeBuilder {
	return b.set(FieldRcptDomain, StringValue(d))
}

// SenderDomain overrides the derived sender domain.
func (b *EnvelopeBuilder) SenderDomain(d string) *EnvelopeBuilder {
	return b.set(FieldSenderDomain, StringValue(d))
}

// LocalIP sets the local address of the connection.
func (b *EnvelopeBuilder) LocalIP(a netip.Addr) *EnvelopeBuilder {
	return b.set(FieldLocalIP, AddrValue(a))
}

// RemoteIP sets the remote address of the connection.
func (b *EnvelopeBuilder) RemoteIP(a netip.Addr) *EnvelopeBuilder {
	return b.set(FieldRemoteIP, AddrValue(a))
}

// MX sets the matched MX host name.
func (b *EnvelopeBuilder) MX(mx string) *EnvelopeBuilder {
	return b.set(FieldMX, StringValue(mx))
}

// AuthenticatedAs sets the authenticated identity. Leave unset for
// unauthenticated sessions.
func (b *EnvelopeBuilder) AuthenticatedAs(id string) *EnvelopeBuilder {
	return b.set(FieldAuthenticatedAs, StringValue(id))
}

// Priority sets the queue priority.
func (b *EnvelopeBuilder) Priority(p int64) *EnvelopeBuilder {
	return b.set(FieldPriority, IntValue(p))
}

// Listener sets the listener by its symbolic name.
func (b *EnvelopeBuilder) Listener(name string) *EnvelopeBuilder {
	return b.set(FieldListener, StringValue(name))
}

// ListenerID sets the listener by its numeric ID.
func (b *EnvelopeBuilder) ListenerID(id int64) *EnvelopeBuilder {
	return b.set(FieldListener, IntValue(id).asListenerString())
}

// HeloDomain sets the domain announced in HELO/EHLO.
func (b *EnvelopeBuilder) HeloDomain(d string) *EnvelopeBuilder {
	return b.set(FieldHeloDomain, StringValue(d))
}

// Build returns the assembled envelope.
func (b *EnvelopeBuilder) Build() (*Envelope, error) {
	if b.err != nil {
		return nil, b.err
	}
	return NewEnvelope(b.fields)
}

// asListenerString renders an integer value as its string form, so that
// numerically configured listeners compare and render like symbolic ones.
func (v Value) asListenerString() Value {
	return StringValue(v.String())
}

// Field returns the value of the field. An unset field reads as its
// kind's zero value, so predicates see their defined empty semantics
// rather than an error.
func (e *Envelope) Field(f Field) Value {
	if v, ok := e.fields[f]; ok {
		return v
	}
	if k, ok := fieldKinds[f]; ok {
		return k.Zero()
	}
	return Value{}
}

// Set reports whether the field was set when the envelope was built.
func (e *Envelope) Set(f Field) bool {
	_, ok := e.fields[f]
	return ok
}

// Values returns a copy of the envelope's set fields.
func (e *Envelope) Values() map[Field]Value {
	m := make(map[Field]Value, len(e.fields))
	for f, v := range e.fields {
		m[f] = v
	}
	return m
}

// String lists the set fields in a stable order, for logs and tests.
func (e *Envelope) String() string {
	x := strings.Builder{}
	for _, f := range Fields() {
		v, ok := e.fields[f]
		if !ok {
			continue
		}
		fmt.Fprintf(&x, "%s=%s\n", f, v)
	}
	return x.String()
}

// addressDomain returns the part of addr after the final '@', or "" when
// addr has none.
func addressDomain(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}
