// Package cache holds the last-known result of each distinct query so
// reads never block on the network while a snapshot exists. Mutations,
// the change-feed reconciler, and the completion poller all merge their
// writes through one Store, so a single authoritative value exists per
// key at any instant.
package cache

import (
	"context"
	"sync"
)

// FetchFunc loads a fresh snapshot for a key from the source of truth.
type FetchFunc func(ctx context.Context) (any, error)

// PatchFunc derives a new snapshot from the current one.
type PatchFunc func(current any) any

type entry struct {
	value any
	valid bool
}

type inflight struct {
	done  chan struct{}
	value any
	err   error
}

// Store is a keyed snapshot store with stale-while-revalidate reads and
// request de-duplication on fetch.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	calls   map[string]*inflight
	subs    map[string]map[int]chan struct{}
	nextSub int
}

func NewStore() *Store {
	return &Store{
		entries: map[string]*entry{},
		calls:   map[string]*inflight{},
		subs:    map[string]map[int]chan struct{}{},
	}
}

// Read returns the current snapshot for key, if one exists. A stale
// snapshot is still returned; callers that need freshness use Fetch.
func (s *Store) Read(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return ent.value, true
}

// Write replaces the snapshot for key, marks it fresh and notifies
// subscribers.
func (s *Store) Write(key string, snapshot any) {
	s.mu.Lock()
	s.entries[key] = &entry{value: snapshot, valid: true}
	s.notifyLocked(key)
	s.mu.Unlock()
}

// Patch applies fn to the current snapshot and stores the result. When
// no snapshot exists the key is invalidated instead, forcing a full
// re-fetch rather than an incremental patch against nothing.
func (s *Store) Patch(key string, fn PatchFunc) {
	s.mu.Lock()
	ent, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	ent.value = fn(ent.value)
	s.notifyLocked(key)
	s.mu.Unlock()
}

// Invalidate marks the entry stale so the next Fetch goes to the source
// of truth. Invalidating an absent or already-stale key is a no-op.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	if ent, ok := s.entries[key]; ok {
		ent.valid = false
	}
	s.mu.Unlock()
}

// Valid reports whether key holds a fresh snapshot.
func (s *Store) Valid(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[key]
	return ok && ent.valid
}

// Fetch returns the snapshot for key. A fresh snapshot is returned as
// is. A stale snapshot is returned immediately while a background
// revalidation runs. An absent key blocks on a remote fetch. Concurrent
// callers share a single in-flight fetch per key.
func (s *Store) Fetch(ctx context.Context, key string, fn FetchFunc) (any, error) {
	s.mu.Lock()
	ent, ok := s.entries[key]
	if ok && ent.valid {
		value := ent.value
		s.mu.Unlock()
		return value, nil
	}
	if ok {
		// Stale: serve the old value, revalidate behind it. The
		// revalidation must outlive the caller; request contexts are
		// cancelled as soon as the handler returns, which is right
		// after this stale read.
		value := ent.value
		s.startFetchLocked(context.WithoutCancel(ctx), key, fn)
		s.mu.Unlock()
		return value, nil
	}
	call := s.startFetchLocked(ctx, key, fn)
	s.mu.Unlock()

	select {
	case <-call.done:
		return call.value, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// startFetchLocked begins a remote fetch for key unless one is already
// in flight. Callers must hold s.mu.
func (s *Store) startFetchLocked(ctx context.Context, key string, fn FetchFunc) *inflight {
	if call, ok := s.calls[key]; ok {
		return call
	}
	call := &inflight{done: make(chan struct{})}
	s.calls[key] = call
	go func() {
		value, err := fn(ctx)
		s.mu.Lock()
		if err == nil {
			s.entries[key] = &entry{value: value, valid: true}
			s.notifyLocked(key)
		}
		delete(s.calls, key)
		call.value = value
		call.err = err
		close(call.done)
		s.mu.Unlock()
	}()
	return call
}

// Subscribe registers interest in key. The returned channel receives a
// signal whenever the snapshot for key is replaced or patched; cancel
// must be called to release the subscription.
func (s *Store) Subscribe(key string) (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	if s.subs[key] == nil {
		s.subs[key] = map[int]chan struct{}{}
	}
	ch := make(chan struct{}, 1)
	s.subs[key][id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
		if len(s.subs[key]) == 0 {
			delete(s.subs, key)
		}
	}
	return ch, cancel
}

func (s *Store) notifyLocked(key string) {
	for _, ch := range s.subs[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
