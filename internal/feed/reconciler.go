package feed

import (
	"context"
	"fmt"

	"scriptflow/api/internal/cache"
	"scriptflow/api/internal/notify"
	"scriptflow/api/internal/store"
)

// Reconciler applies change events for one user's idea list to the
// snapshot cache, in arrival order. When there is no snapshot to patch
// (first event after eviction or reconnect) the key is invalidated so
// the next read goes back to the record store.
type Reconciler struct {
	cache    *cache.Store
	key      string
	userID   string
	notifier notify.Notifier
}

func NewReconciler(cacheStore *cache.Store, key, userID string, notifier notify.Notifier) *Reconciler {
	return &Reconciler{cache: cacheStore, key: key, userID: userID, notifier: notifier}
}

// Run applies events until the channel closes or ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.Apply(event)
		}
	}
}

// Apply merges one event into the cached list.
func (r *Reconciler) Apply(event Event) {
	switch event.Type {
	case EventInsert:
		if event.New == nil || event.New.UserID != r.userID {
			return
		}
		r.applyInsert(event.New.Idea())
	case EventUpdate:
		if event.New == nil || event.New.UserID != r.userID {
			return
		}
		r.applyUpdate(event.New.Idea())
	case EventDelete:
		if event.Old == nil || event.Old.UserID != r.userID {
			return
		}
		r.applyDelete(event.Old.ID)
	}
}

// applyInsert prepends the new record; the list is displayed newest
// first. A record already present by id is left alone, so replayed
// inserts are harmless.
func (r *Reconciler) applyInsert(idea store.ScriptIdea) {
	if _, ok := r.cache.Read(r.key); !ok {
		r.cache.Invalidate(r.key)
		return
	}
	r.cache.Patch(r.key, func(current any) any {
		ideas := current.([]store.ScriptIdea)
		for _, existing := range ideas {
			if existing.ID == idea.ID {
				return ideas
			}
		}
		return append([]store.ScriptIdea{idea}, ideas...)
	})
}

func (r *Reconciler) applyUpdate(idea store.ScriptIdea) {
	snapshot, ok := r.cache.Read(r.key)
	if !ok {
		r.cache.Invalidate(r.key)
		return
	}

	var previous *store.ScriptIdea
	for i, existing := range snapshot.([]store.ScriptIdea) {
		if existing.ID == idea.ID {
			prev := snapshot.([]store.ScriptIdea)[i]
			previous = &prev
			break
		}
	}
	if previous == nil {
		r.cache.Invalidate(r.key)
		return
	}

	r.cache.Patch(r.key, func(current any) any {
		ideas := current.([]store.ScriptIdea)
		next := make([]store.ScriptIdea, len(ideas))
		copy(next, ideas)
		for i := range next {
			if next[i].ID == idea.ID {
				next[i] = idea
			}
		}
		return next
	})

	// Completion signals: a generation job finished when a previously
	// empty output field turns non-empty. Comparing against the cached
	// record keeps the notification one-time under event replay.
	if previous.GeneratedScriptLink == "" && idea.GeneratedScriptLink != "" {
		r.notifier.Success("Script generated", fmt.Sprintf("script is ready for %q", idea.Title))
	}
	if previous.GeneratedThumbnail == "" && idea.GeneratedThumbnail != "" {
		r.notifier.Success("Thumbnail generated", fmt.Sprintf("thumbnail is ready for %q", idea.Title))
	}
}

func (r *Reconciler) applyDelete(id string) {
	snapshot, ok := r.cache.Read(r.key)
	if !ok {
		r.cache.Invalidate(r.key)
		return
	}
	found := false
	for _, existing := range snapshot.([]store.ScriptIdea) {
		if existing.ID == id {
			found = true
			break
		}
	}
	if !found {
		r.cache.Invalidate(r.key)
		return
	}
	r.cache.Patch(r.key, func(current any) any {
		ideas := current.([]store.ScriptIdea)
		next := ideas[:0:0]
		for _, existing := range ideas {
			if existing.ID != id {
				next = append(next, existing)
			}
		}
		return next
	})
}

// StartReconciler subscribes rec to the bus and runs it until the
// returned stop function is called or ctx is cancelled. Stop blocks
// until the event loop has drained.
func (b *Bus) StartReconciler(ctx context.Context, rec *Reconciler) func() {
	events, stop := b.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx, events)
	}()
	return func() {
		stop()
		<-done
	}
}
