package mailrule_test

import (
	"net/netip"
	"testing"

	"github.com/matryer/is"

	"github.com/mailrule/mailrule"
)

func TestValueRendering(t *testing.T) {
	is := is.New(t)

	is.Equal(mailrule.StringValue("smtps").String(), "smtps")
	is.Equal(mailrule.IntValue(-4).String(), "-4")
	is.Equal(mailrule.IntValue(0).String(), "0")
	is.Equal(mailrule.AddrValue(netip.MustParseAddr("192.168.9.3")).String(), "192.168.9.3")

	// compressed canonical form for v6
	is.Equal(mailrule.AddrValue(netip.MustParseAddr("a:b:c:0:0:0:d:e")).String(), "a:b:c::d:e")
}

func TestAddrValueUnmapsV4InV6(t *testing.T) {
	is := is.New(t)

	mapped := mailrule.AddrValue(netip.MustParseAddr("::ffff:192.168.9.3"))
	plain := mailrule.AddrValue(netip.MustParseAddr("192.168.9.3"))

	is.Equal(mapped, plain)
	is.Equal(mapped.String(), "192.168.9.3")
}

func TestParseAddrValue(t *testing.T) {
	is := is.New(t)

	v, err := mailrule.ParseAddrValue("a:b:c::d:e")
	is.NoErr(err)
	is.Equal(v.Kind(), mailrule.IP{})

	_, err = mailrule.ParseAddrValue("192.168.9")
	if err == nil {
		t.Fatalf("parsed a malformed address")
	}
}

func TestZeroValues(t *testing.T) {
	is := is.New(t)

	var v mailrule.Value
	is.True(v.IsZero())
	is.Equal(v.Kind(), mailrule.String{})
	is.Equal(v.String(), "")

	// an unset address renders empty rather than "invalid IP"
	is.Equal(mailrule.IP{}.Zero().String(), "")
	is.Equal(mailrule.Int{}.Zero().String(), "0")
}
