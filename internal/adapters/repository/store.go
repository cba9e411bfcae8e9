// Package repository provides the registry record store: a strongly consistent
// key-value mapping from (bucket, key) to a JSON payload.
//
// Every mutation happens inside Update, which runs one unit of work at a time
// and commits all of its writes or none of them.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// sequenceBucket holds the per-scope id counters used by NextID.
const sequenceBucket = "_sequence"

// Reader gives read access to committed state, or to a unit's own view of it.
type Reader interface {
	// Get returns a copy of the payload stored under (bucket, key).
	Get(bucket, key string) ([]byte, bool)
	// Count returns the number of keys stored in bucket.
	Count(bucket string) int
}

// Tx is the write side of a unit of work. Writes are visible to the unit's own
// reads immediately and to everyone else only after a successful commit.
type Tx interface {
	Reader
	Put(bucket, key string, value []byte)
}

// Store runs units of work against the record state.
type Store interface {
	// Update runs fn as one atomic unit. If fn returns an error nothing it
	// wrote is kept.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against committed state.
	View(ctx context.Context, fn func(r Reader) error) error
	Close() error
}

// Write is one buffered mutation of a unit of work.
type Write struct {
	Bucket string
	Key    string
	Value  []byte
}

// Key joins id parts into a composite key, e.g. Key(1, 2) == "1/2".
func Key(parts ...uint64) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = strconv.FormatUint(p, 10)
	}
	return strings.Join(s, "/")
}

// Load decodes the record at (bucket, key) into a T.
// Returns ErrNotFound when no record is stored there.
func Load[T any](r Reader, bucket, key string) (T, error) {
	var v T
	raw, ok := r.Get(bucket, key)
	if !ok {
		return v, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return v, nil
}

// Exists reports whether a record is stored at (bucket, key).
func Exists(r Reader, bucket, key string) bool {
	_, ok := r.Get(bucket, key)
	return ok
}

// Save encodes v and writes it at (bucket, key).
func Save(tx Tx, bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", bucket, key, err)
	}
	tx.Put(bucket, key, raw)
	return nil
}

// NextID increments and returns the counter for scope. The first id is 1.
func NextID(tx Tx, scope string) (uint64, error) {
	cur, err := Load[uint64](tx, sequenceBucket, scope)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	next := cur + 1
	if err := Save(tx, sequenceBucket, scope, next); err != nil {
		return 0, err
	}
	return next, nil
}

// CurrentID returns the last id handed out for scope, or 0.
func CurrentID(r Reader, scope string) (uint64, error) {
	cur, err := Load[uint64](r, sequenceBucket, scope)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return cur, err
}
