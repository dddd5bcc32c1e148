package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dockv/dockv/internal/kv"
	"github.com/dockv/dockv/pkg/metrics"
)

const (
	// writeAttempts bounds one logical store operation, first try included.
	// Backend write failures are usually transient (momentary unavailability,
	// rebalancing), so the raw write is repeated back to back; metadata is
	// computed once per operation, never per attempt.
	writeAttempts = 10
	// readAttempts bounds the read-after-write visibility gap in Get: the
	// existence check can run ahead of value visibility.
	readAttempts = 10
	// removeAttempts bounds the delete loop in Remove.
	removeAttempts = 9
)

// ErrRetriesExhausted wraps the last backend error once a store operation
// has burned its whole attempt budget. The returned document still carries
// the metadata computed for the failed operation; its CAS token is the one
// from the last successful round trip.
var ErrRetriesExhausted = errors.New("docstore: retries exhausted")

// Ptr constrains a repository's document pointer type: a *T that embeds Meta
// and declares its type tag.
type Ptr[T any] interface {
	Document
	*T
}

// Repository is a generic document store over a kv.Backend. It owns retry
// policy, conflict handling and metadata lifecycle; payload content beyond
// the embedded Meta is opaque to it. All coordination with concurrent
// writers is server-side through the CAS token; the repository itself takes
// no locks.
type Repository[T any, PT Ptr[T]] struct {
	backend  kv.Backend
	codec    Codec
	reporter Reporter
}

type settings struct {
	codec    Codec
	reporter Reporter
}

type Option func(*settings)

// WithCodec overrides the default JSON codec.
func WithCodec(c Codec) Option { return func(s *settings) { s.codec = c } }

// WithReporter overrides the default log-based diagnostics sink.
func WithReporter(rep Reporter) Option { return func(s *settings) { s.reporter = rep } }

// New builds a repository for documents of type T on the given backend.
// The backend handle is owned by the caller; construct it once and share it.
func New[T any, PT Ptr[T]](backend kv.Backend, opts ...Option) *Repository[T, PT] {
	s := settings{codec: JSON, reporter: LogReporter{}}
	for _, opt := range opts {
		opt(&s)
	}
	return &Repository[T, PT]{backend: backend, codec: s.codec, reporter: s.reporter}
}

// Create persists a new document. CreatedAt is stamped here and only here;
// the write is add-only and fails against an existing key.
func (r *Repository[T, PT]) Create(ctx context.Context, doc PT) (PT, error) {
	doc.DocumentMeta().CreatedAt = Now()
	return r.store(ctx, "create", kv.Add, doc)
}

// Save persists the document whether or not the key exists, ignoring any
// prior CAS token. Last write wins.
func (r *Repository[T, PT]) Save(ctx context.Context, doc PT) (PT, error) {
	return r.store(ctx, "save", kv.Upsert, doc)
}

// Update replaces an existing document. When the document carries a CAS
// token the write is conditioned on it and fails with kv.ErrCASMismatch if
// another writer got there first.
func (r *Repository[T, PT]) Update(ctx context.Context, doc PT) (PT, error) {
	return r.store(ctx, "update", kv.Replace, doc)
}

func (r *Repository[T, PT]) store(ctx context.Context, op string, mode kv.WriteMode, doc PT) (PT, error) {
	m := doc.DocumentMeta()
	m.Type = doc.DocumentType()
	m.Version++
	m.UpdatedAt = NextUpdatedAt(m.UpdatedAt)

	payload, err := r.codec.Encode(doc)
	if err != nil {
		r.reporter.Report(m.Key, op, "encode failed", err)
		return doc, fmt.Errorf("docstore %s %q: encode: %w", op, m.Key, err)
	}

	var lastErr error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		if attempt > 0 {
			metrics.StoreRetries.WithLabelValues(op).Inc()
		}

		var cas uint64
		var werr error
		if mode == kv.Replace && m.CAS != 0 {
			cas, werr = r.backend.WriteCAS(ctx, m.Key, payload, m.CAS)
		} else {
			cas, werr = r.backend.Write(ctx, mode, m.Key, payload)
		}
		if werr == nil {
			m.CAS = cas
			return doc, nil
		}
		if errors.Is(werr, kv.ErrCASMismatch) {
			// conflict, not a transient fault: the token is stale and no
			// amount of re-sending the same write will change that
			metrics.CASConflicts.Inc()
			return doc, fmt.Errorf("docstore %s %q: %w", op, m.Key, werr)
		}
		if errors.Is(werr, kv.ErrKeyExists) || errors.Is(werr, kv.ErrNotFound) {
			return doc, fmt.Errorf("docstore %s %q: %w", op, m.Key, werr)
		}
		lastErr = werr
	}

	metrics.StoreExhausted.WithLabelValues(op).Inc()
	r.reporter.Report(m.Key, op, "write retries exhausted", lastErr)
	return doc, fmt.Errorf("docstore %s %q: %w: %w", op, m.Key, ErrRetriesExhausted, lastErr)
}

// UpdateWithRetry applies mutate to the latest server copy of doc's key and
// commits it with a conditioned write, restarting from a fresh read whenever
// a concurrent writer wins the race. When no server copy exists the document
// is created as given. The loop has no iteration bound; pass a context with
// a deadline to cap worst-case latency under pathological contention.
//
// mutate runs once per physical attempt, always against the freshly fetched
// copy. Callers must continue with the returned document; the instance they
// passed in is not the source of truth.
func (r *Repository[T, PT]) UpdateWithRetry(ctx context.Context, doc PT, mutate func(PT)) (PT, error) {
	key := doc.DocumentMeta().Key
	for {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		cur, found, err := r.Get(ctx, key)
		if err != nil {
			return doc, err
		}
		if !found {
			return r.Create(ctx, doc)
		}
		mutate(cur)
		stored, err := r.Update(ctx, cur)
		if err == nil {
			return stored, nil
		}
		if errors.Is(err, kv.ErrCASMismatch) || errors.Is(err, kv.ErrNotFound) {
			// lost the race (or the key vanished); start over from a fresh read
			continue
		}
		return stored, err
	}
}

// Get fetches the document stored under key. The second return value is
// false when no such document exists; an empty key is absent by definition
// and costs no backend call.
//
// A read that comes back empty while the existence check says the key is
// there hit a visibility gap between replicas; Get re-reads a bounded number
// of times before giving up and reporting absent.
func (r *Repository[T, PT]) Get(ctx context.Context, key string) (PT, bool, error) {
	var zero PT
	if key == "" {
		return zero, false, nil
	}
	for attempt := 0; attempt < readAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		value, cas, err := r.backend.Get(ctx, key)
		if err == nil {
			doc := PT(new(T))
			if derr := r.codec.Decode(value, doc); derr != nil {
				return zero, false, fmt.Errorf("docstore get %q: decode: %w", key, derr)
			}
			m := doc.DocumentMeta()
			m.Key = key
			m.CAS = cas
			return doc, true, nil
		}
		if !errors.Is(err, kv.ErrNotFound) {
			return zero, false, fmt.Errorf("docstore get %q: %w", key, err)
		}
		exists, eerr := r.backend.Exists(ctx, key)
		if eerr != nil {
			return zero, false, fmt.Errorf("docstore get %q: exists: %w", key, eerr)
		}
		if !exists {
			return zero, false, nil
		}
	}
	return zero, false, nil
}

// GetMulti is a best-effort batched read of raw payloads. The returned map
// is never nil; keys the backend did not yield are simply missing.
func (r *Repository[T, PT]) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	res, err := r.backend.MultiGet(ctx, keys)
	if err != nil || res == nil {
		return map[string][]byte{}, err
	}
	return res, nil
}

// GetList reads a single key whose payload is a serialized list of T. On
// failure it logs once and retries exactly once.
func (r *Repository[T, PT]) GetList(ctx context.Context, key string) ([]T, bool, error) {
	list, found, err := r.getList(ctx, key)
	if err == nil {
		return list, found, nil
	}
	r.reporter.Report(key, "get_list", "list read failed, retrying once", err)
	return r.getList(ctx, key)
}

func (r *Repository[T, PT]) getList(ctx context.Context, key string) ([]T, bool, error) {
	value, _, err := r.backend.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var list []T
	if err := r.codec.Decode(value, &list); err != nil {
		return nil, false, err
	}
	return list, true, nil
}

// Remove deletes the document under key, looping while the key still exists
// up to the attempt bound. Success means the key is gone afterwards, which
// makes removal of an already-absent key trivially successful. With cas == 0
// the delete is unconditioned and can race a concurrent writer; callers that
// need a removal guarantee should pass the token from their last read.
func (r *Repository[T, PT]) Remove(ctx context.Context, key string, cas uint64) (bool, error) {
	for attempt := 0; attempt < removeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		exists, err := r.backend.Exists(ctx, key)
		if err != nil {
			return false, fmt.Errorf("docstore remove %q: exists: %w", key, err)
		}
		if !exists {
			return true, nil
		}
		if cas == 0 {
			if derr := r.backend.Delete(ctx, key); derr != nil {
				r.reporter.Report(key, "remove", "delete failed", derr)
			}
			continue
		}
		derr := r.backend.DeleteCAS(ctx, key, cas)
		if errors.Is(derr, kv.ErrCASMismatch) {
			// key was rewritten since the token was issued; retrying with the
			// same token cannot succeed
			r.reporter.Report(key, "remove", "conditioned delete rejected", derr)
			return false, nil
		}
		if derr != nil {
			r.reporter.Report(key, "remove", "conditioned delete failed", derr)
		}
	}
	exists, err := r.backend.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("docstore remove %q: exists: %w", key, err)
	}
	return !exists, nil
}

// Increment atomically adds delta to the counter at key; a counter that does
// not exist yet is created holding def, and def is what the first call
// returns. Counter failures are reported but never retried, and whatever
// value the backend produced is handed back alongside the error.
func (r *Repository[T, PT]) Increment(ctx context.Context, key string, delta, def int64) (int64, error) {
	v, err := r.backend.Increment(ctx, key, delta, def)
	if err != nil {
		metrics.CounterFailures.Inc()
		r.reporter.Report(key, "increment", "atomic increment failed", err)
	}
	return v, err
}

// Decrement is Increment's counterpart; the create-on-first-use default is
// fixed at 0.
func (r *Repository[T, PT]) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := r.backend.Decrement(ctx, key, delta, 0)
	if err != nil {
		metrics.CounterFailures.Inc()
		r.reporter.Report(key, "decrement", "atomic decrement failed", err)
	}
	return v, err
}
