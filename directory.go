package mailrule

import (
	"context"
	"errors"
)

// A Directory answers lookups against a named list of keys. Conditions
// use it for membership tests (in-list, not-in-list); maybe-eval
// pipelines use it to resolve a rendered key to its associated value.
//
// Implementations may be backed by memory, disk or the network; calls
// receive a context and may block. A failed lookup ("no such key") is
// reported through the boolean results, never as an error: a non-nil
// error always means the backend itself could not answer.
type Directory interface {
	// Contains reports whether the key is present in the directory.
	Contains(ctx context.Context, key string) (bool, error)

	// Resolve returns the value associated with the key. The second
	// return value is false when the key is not present.
	Resolve(ctx context.Context, key string) (string, bool, error)
}

// ErrNoSuchDirectory is returned at compile time when a condition or a
// maybe-eval references a directory name the engine does not know.
var ErrNoSuchDirectory = errors.New("no such directory")
