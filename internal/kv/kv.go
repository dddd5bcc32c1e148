package kv

import (
	"context"
	"errors"
)

// WriteMode selects the precondition an unconditioned write carries.
type WriteMode int

const (
	// Add fails when the key already exists.
	Add WriteMode = iota
	// Replace fails when the key does not exist.
	Replace
	// Upsert always writes.
	Upsert
)

func (m WriteMode) String() string {
	switch m {
	case Add:
		return "add"
	case Replace:
		return "replace"
	case Upsert:
		return "upsert"
	}
	return "unknown"
}

var (
	// ErrNotFound is returned when a key is absent.
	ErrNotFound = errors.New("kv: key not found")
	// ErrKeyExists is returned by an Add write against an existing key.
	ErrKeyExists = errors.New("kv: key already exists")
	// ErrCASMismatch is returned by a conditioned write or delete whose
	// token no longer matches the stored one.
	ErrCASMismatch = errors.New("kv: cas token mismatch")
)

// Backend is the minimal key-value contract the document store builds on.
// CAS tokens are opaque uint64s scoped to a single key; 0 means "no token".
// A token is valid only for the exact stored bytes it was issued against —
// any successful write to the key invalidates previously issued tokens.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the stored value together with its current CAS token.
	Get(ctx context.Context, key string) (value []byte, cas uint64, err error)

	// Exists reports whether the key is present. With eventually consistent
	// stores this may run ahead of Get visibility.
	Exists(ctx context.Context, key string) (bool, error)

	// Write stores value under key according to mode and returns the new
	// CAS token.
	Write(ctx context.Context, mode WriteMode, key string, value []byte) (uint64, error)

	// WriteCAS replaces the value only when cas matches the stored token.
	WriteCAS(ctx context.Context, key string, value []byte, cas uint64) (uint64, error)

	// Delete removes the key unconditionally. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// DeleteCAS removes the key only when cas matches the stored token.
	DeleteCAS(ctx context.Context, key string, cas uint64) error

	// Increment atomically adds delta to the counter at key. A counter that
	// does not exist yet is created holding def, and def (not def+delta) is
	// returned.
	Increment(ctx context.Context, key string, delta, def int64) (int64, error)

	// Decrement atomically subtracts delta, with the same create-on-first-use
	// rule as Increment.
	Decrement(ctx context.Context, key string, delta, def int64) (int64, error)

	// MultiGet returns the raw values for the given keys. Absent keys are
	// simply missing from the result; the map itself is never nil.
	MultiGet(ctx context.Context, keys []string) (map[string][]byte, error)
}
