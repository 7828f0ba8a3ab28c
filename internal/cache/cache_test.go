package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchAbsentKeyLoadsOnce(t *testing.T) {
	store := NewStore()
	var calls atomic.Int32
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "loaded", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := store.Fetch(context.Background(), "ideas", fn)
			if err != nil {
				t.Errorf("fetch: %v", err)
				return
			}
			if value != "loaded" {
				t.Errorf("fetch returned %v", value)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one remote fetch, got %d", got)
	}
}

func TestFetchStaleServesOldValueAndRevalidates(t *testing.T) {
	store := NewStore()
	store.Write("ideas", "v1")
	store.Invalidate("ideas")

	done := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		defer close(done)
		return "v2", nil
	}

	value, err := store.Fetch(context.Background(), "ideas", fn)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if value != "v1" {
		t.Fatalf("stale read returned %v, want v1", value)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("revalidation never ran")
	}

	deadline := time.Now().Add(time.Second)
	for !store.Valid("ideas") {
		if time.Now().After(deadline) {
			t.Fatal("key never became fresh")
		}
		time.Sleep(time.Millisecond)
	}
	if value, _ := store.Read("ideas"); value != "v2" {
		t.Fatalf("revalidated value %v, want v2", value)
	}
}

func TestFetchStaleRevalidationOutlivesCaller(t *testing.T) {
	store := NewStore()
	store.Write("ideas", "v1")
	store.Invalidate("ideas")

	// A request-scoped context is cancelled the moment the handler
	// returns. The revalidation behind a stale read must not inherit
	// that cancellation or the key never converges.
	fn := func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
			return "v2", nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	value, err := store.Fetch(ctx, "ideas", fn)
	cancel()
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if value != "v1" {
		t.Fatalf("stale read returned %v, want v1", value)
	}

	deadline := time.Now().Add(time.Second)
	for !store.Valid("ideas") {
		if time.Now().After(deadline) {
			t.Fatal("revalidation was cancelled with the request")
		}
		time.Sleep(time.Millisecond)
	}
	if value, _ := store.Read("ideas"); value != "v2" {
		t.Fatalf("revalidated value %v, want v2", value)
	}
}

func TestFetchErrorDoesNotPoisonCache(t *testing.T) {
	store := NewStore()
	fail := errors.New("connection reset")
	_, err := store.Fetch(context.Background(), "ideas", func(ctx context.Context) (any, error) {
		return nil, fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if _, ok := store.Read("ideas"); ok {
		t.Fatal("failed fetch should not populate the cache")
	}

	value, err := store.Fetch(context.Background(), "ideas", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || value != "ok" {
		t.Fatalf("retry after failure: value=%v err=%v", value, err)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	store := NewStore()
	store.Invalidate("missing")

	store.Write("ideas", "v1")
	store.Invalidate("ideas")
	store.Invalidate("ideas")

	value, ok := store.Read("ideas")
	if !ok || value != "v1" {
		t.Fatalf("snapshot lost after repeated invalidation: %v %v", value, ok)
	}
	if store.Valid("ideas") {
		t.Fatal("key should be stale")
	}
}

func TestPatchAbsentKeyIsNoOp(t *testing.T) {
	store := NewStore()
	store.Patch("ideas", func(current any) any {
		t.Fatal("patch function ran against an absent key")
		return nil
	})
	if _, ok := store.Read("ideas"); ok {
		t.Fatal("patch created an entry from nothing")
	}
}

func TestSubscribeSignalsOnWriteAndPatch(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe("ideas")
	defer cancel()

	store.Write("ideas", []string{"a"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no signal after write")
	}

	store.Patch("ideas", func(current any) any {
		return append(current.([]string), "b")
	})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no signal after patch")
	}

	value, _ := store.Read("ideas")
	list := value.([]string)
	if len(list) != 2 || list[1] != "b" {
		t.Fatalf("patched snapshot %v", list)
	}
}

func TestSubscribeCancelStopsSignals(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe("ideas")
	cancel()
	store.Write("ideas", "v1")
	select {
	case <-ch:
		t.Fatal("cancelled subscription still received a signal")
	case <-time.After(50 * time.Millisecond):
	}
}
