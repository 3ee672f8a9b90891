// Package store provides the typed key-value accessor everything above it is
// built on: versioned records with optional TTL, atomic compare-and-swap,
// append-only lists and membership sets. Two implementations exist: an
// in-memory store for tests and local dev, and a Postgres-backed store for
// production.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key does not exist (or its TTL has lapsed).
var ErrNotFound = errors.New("store: key not found")

// ErrVersionConflict is returned when a compare-and-swap loses to a
// concurrent writer. Callers re-fetch and decide; the store never retries.
var ErrVersionConflict = errors.New("store: version conflict")

// Record is a versioned value. Version starts at 1 on creation and increments
// on every successful swap.
type Record struct {
	Value   []byte
	Version int64
}

// Store is the record store adapter. Every state transition in the ledger
// core is expressed as a CompareAndSwap; plain read-then-write sequences are
// not offered for versioned records.
type Store interface {
	// Get returns the record at key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// Put unconditionally upserts a record, resetting its version to 1.
	// Only suitable for data with a single writer (catalog seeding, cursors).
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CompareAndSwap writes value if the record's current version equals
	// expectedVersion. expectedVersion 0 means "create; fail if the key
	// exists". Returns the new record, or ErrVersionConflict / ErrNotFound.
	CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte) (*Record, error)

	// Append adds a value to the end of the list at key, creating it if
	// needed. Lists are append-only.
	Append(ctx context.Context, key string, value []byte) error

	// List returns every value in the list at key, in append order. A
	// missing list is an empty one.
	List(ctx context.Context, key string) ([][]byte, error)

	// Trim removes the first n values from the list at key. Trimming more
	// than the list holds empties it.
	Trim(ctx context.Context, key string, n int) error

	// AddMember adds a member to the set at key. Idempotent.
	AddMember(ctx context.Context, key, member string) error

	// Members returns the set at key. A missing set is an empty one.
	Members(ctx context.Context, key string) ([]string, error)

	// Delete removes a record. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// GetJSON fetches and unmarshals a record, returning its version for a later
// CompareAndSwap.
func GetJSON(ctx context.Context, s Store, key string, dest any) (int64, error) {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(rec.Value, dest); err != nil {
		return 0, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return rec.Version, nil
}

// SwapJSON marshals v and compare-and-swaps it at key.
func SwapJSON(ctx context.Context, s Store, key string, expectedVersion int64, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", key, err)
	}
	rec, err := s.CompareAndSwap(ctx, key, expectedVersion, data)
	if err != nil {
		return 0, err
	}
	return rec.Version, nil
}

// AppendJSON marshals v and appends it to the list at key.
func AppendJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Append(ctx, key, data)
}
