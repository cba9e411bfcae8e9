package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/accessreg/pkg/metrics"
)

// MemoryStore keeps all records in process memory. Units of work run one at a
// time; each buffers its writes in an overlay and merges them on success.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool

	// commit, when set, must durably persist a unit's writes before they are
	// merged. A failing commit discards the unit.
	commit func(ctx context.Context, writes []Write) error
}

// Compile-time assertion that MemoryStore satisfies Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

// Update runs fn as one atomic unit of work.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{base: s.data, index: make(map[bucketKey]int)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.writes) == 0 {
		return nil
	}

	start := time.Now()
	if s.commit != nil {
		if err := s.commit(ctx, tx.writes); err != nil {
			metrics.RecordStoreCommitError()
			return fmt.Errorf("%w: %w", ErrCommit, err)
		}
	}
	s.apply(tx.writes)
	metrics.RecordStoreCommit(float64(time.Since(start).Microseconds())/1000, len(tx.writes))
	return nil
}

// View runs fn against committed state.
func (s *MemoryStore) View(_ context.Context, fn func(r Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return fn(memView{data: s.data})
}

// Close marks the store closed. Further calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// load merges writes without a unit of work; used to hydrate from durable storage.
func (s *MemoryStore) load(writes []Write) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(writes)
}

func (s *MemoryStore) apply(writes []Write) {
	for _, w := range writes {
		b, ok := s.data[w.Bucket]
		if !ok {
			b = make(map[string][]byte)
			s.data[w.Bucket] = b
		}
		b[w.Key] = w.Value
	}
}

type bucketKey struct {
	bucket string
	key    string
}

// memTx overlays buffered writes on top of the committed maps.
type memTx struct {
	base   map[string]map[string][]byte
	writes []Write
	index  map[bucketKey]int
}

func (tx *memTx) Get(bucket, key string) ([]byte, bool) {
	if i, ok := tx.index[bucketKey{bucket, key}]; ok {
		return clone(tx.writes[i].Value), true
	}
	return memView{data: tx.base}.Get(bucket, key)
}

func (tx *memTx) Count(bucket string) int {
	n := memView{data: tx.base}.Count(bucket)
	for _, w := range tx.writes {
		if w.Bucket != bucket {
			continue
		}
		if _, ok := tx.base[bucket][w.Key]; !ok {
			n++
		}
	}
	return n
}

func (tx *memTx) Put(bucket, key string, value []byte) {
	k := bucketKey{bucket, key}
	if i, ok := tx.index[k]; ok {
		tx.writes[i].Value = clone(value)
		return
	}
	tx.index[k] = len(tx.writes)
	tx.writes = append(tx.writes, Write{Bucket: bucket, Key: key, Value: clone(value)})
}

type memView struct {
	data map[string]map[string][]byte
}

func (v memView) Get(bucket, key string) ([]byte, bool) {
	raw, ok := v.data[bucket][key]
	if !ok {
		return nil, false
	}
	return clone(raw), true
}

func (v memView) Count(bucket string) int { return len(v.data[bucket]) }

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
