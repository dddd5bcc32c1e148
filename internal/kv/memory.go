package kv

import (
	"context"
	"strconv"
	"sync"
)

// MemoryBackend is an in-process Backend used by unit tests and as the
// no-infrastructure fallback for the HTTP service. Tokens are drawn from a
// single atomic counter so no two writes ever share one.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memEntry
	nextCAS uint64
}

type memEntry struct {
	value []byte
	cas   uint64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memEntry)}
}

func (b *MemoryBackend) issue() uint64 {
	b.nextCAS++
	return b.nextCAS
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	v := make([]byte, len(e.value))
	copy(v, e.value)
	return v, e.cas, nil
}

func (b *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[key]
	return ok, nil
}

func (b *MemoryBackend) Write(ctx context.Context, mode WriteMode, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[key]
	switch mode {
	case Add:
		if ok {
			return 0, ErrKeyExists
		}
	case Replace:
		if !ok {
			return 0, ErrNotFound
		}
	}
	return b.put(key, value), nil
}

func (b *MemoryBackend) put(key string, value []byte) uint64 {
	v := make([]byte, len(value))
	copy(v, value)
	cas := b.issue()
	b.entries[key] = memEntry{value: v, cas: cas}
	return cas
}

func (b *MemoryBackend) WriteCAS(ctx context.Context, key string, value []byte, cas uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok || e.cas != cas {
		return 0, ErrCASMismatch
	}
	return b.put(key, value), nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *MemoryBackend) DeleteCAS(ctx context.Context, key string, cas uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return nil
	}
	if e.cas != cas {
		return ErrCASMismatch
	}
	delete(b.entries, key)
	return nil
}

func (b *MemoryBackend) Increment(ctx context.Context, key string, delta, def int64) (int64, error) {
	return b.addCounter(ctx, key, delta, def)
}

func (b *MemoryBackend) Decrement(ctx context.Context, key string, delta, def int64) (int64, error) {
	return b.addCounter(ctx, key, -delta, def)
}

func (b *MemoryBackend) addCounter(ctx context.Context, key string, delta, def int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		b.put(key, []byte(strconv.FormatInt(def, 10)))
		return def, nil
	}
	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n += delta
	b.put(key, []byte(strconv.FormatInt(n, 10)))
	return n, nil
}

func (b *MemoryBackend) MultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if e, ok := b.entries[k]; ok {
			v := make([]byte, len(e.value))
			copy(v, e.value)
			out[k] = v
		}
	}
	return out, nil
}
