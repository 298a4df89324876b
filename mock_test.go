package mailrule_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/mailrule/mailrule"
)

// -------------------------------------------------- FAKE DIRECTORY
// fakeDirectory is used for testing. It answers lookups from a fixed
// map and records how many lookups were made, so tests can verify
// short-circuit behavior. If err is set, every call fails with it,
// simulating an unavailable backend.
type fakeDirectory struct {
	entries map[string]string
	err     error
	calls   int
}

func newFakeDirectory(entries map[string]string) *fakeDirectory {
	return &fakeDirectory{entries: entries}
}

func (d *fakeDirectory) Contains(_ context.Context, key string) (bool, error) {
	d.calls++
	if d.err != nil {
		return false, d.err
	}
	_, ok := d.entries[key]
	return ok, nil
}

func (d *fakeDirectory) Resolve(_ context.Context, key string) (string, bool, error) {
	d.calls++
	if d.err != nil {
		return "", false, d.err
	}
	v, ok := d.entries[key]
	return v, ok, nil
}

var errBackendDown = errors.New("backend down")

// testEnvelope builds the envelope most tests share.
func testEnvelope(t *testing.T) *mailrule.Envelope {
	t.Helper()
	env, err := mailrule.NewEnvelopeBuilder().
		AuthenticatedAs("john@foobar.org").
		Rcpt("user@foo.example.org").
		Sender("jane@example.net").
		ListenerID(123).
		LocalIP(netip.MustParseAddr("192.168.9.3")).
		RemoteIP(netip.MustParseAddr("a:b:c::d:e")).
		HeloDomain("mx.example.net").
		Priority(-4).
		Build()
	if err != nil {
		t.Fatalf("building envelope: %v", err)
	}
	return env
}
