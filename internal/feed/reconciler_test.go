package feed

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"scriptflow/api/internal/cache"
	"scriptflow/api/internal/notify"
	"scriptflow/api/internal/store"
)

const testKey = "script_ideas:user-1"

func testIdea(id, title string) store.ScriptIdea {
	return store.ScriptIdea{
		ID:     id,
		UserID: "user-1",
		Title:  title,
		Status: "Idea Submitted",
	}
}

func seededReconciler(ideas ...store.ScriptIdea) (*Reconciler, *cache.Store, *notify.Recorder) {
	cacheStore := cache.NewStore()
	cacheStore.Write(testKey, ideas)
	recorder := &notify.Recorder{}
	return NewReconciler(cacheStore, testKey, "user-1", recorder), cacheStore, recorder
}

func cachedIdeas(t *testing.T, cacheStore *cache.Store) []store.ScriptIdea {
	t.Helper()
	snapshot, ok := cacheStore.Read(testKey)
	if !ok {
		t.Fatal("no snapshot")
	}
	return snapshot.([]store.ScriptIdea)
}

func TestInsertPrependsNewRecord(t *testing.T) {
	rec, cacheStore, _ := seededReconciler(testIdea("a", "first"))

	record := RecordFromIdea(testIdea("b", "second"))
	rec.Apply(Event{Type: EventInsert, New: &record})

	ideas := cachedIdeas(t, cacheStore)
	if len(ideas) != 2 || ideas[0].ID != "b" || ideas[1].ID != "a" {
		t.Fatalf("list after insert: %+v", ideas)
	}
}

func TestInsertDuplicateIDIsIgnored(t *testing.T) {
	rec, cacheStore, _ := seededReconciler(testIdea("a", "first"))

	record := RecordFromIdea(testIdea("a", "first"))
	rec.Apply(Event{Type: EventInsert, New: &record})

	if ideas := cachedIdeas(t, cacheStore); len(ideas) != 1 {
		t.Fatalf("duplicate insert changed the list: %+v", ideas)
	}
}

func TestUpdateReplacesByID(t *testing.T) {
	rec, cacheStore, _ := seededReconciler(testIdea("a", "first"), testIdea("b", "second"))

	updated := testIdea("b", "second, revised")
	record := RecordFromIdea(updated)
	rec.Apply(Event{Type: EventUpdate, New: &record})

	ideas := cachedIdeas(t, cacheStore)
	if ideas[1].Title != "second, revised" {
		t.Fatalf("update not applied: %+v", ideas)
	}
	if ideas[0].Title != "first" {
		t.Fatalf("update touched the wrong record: %+v", ideas)
	}
}

func TestUpdateAppliedTwiceLeavesCacheIdentical(t *testing.T) {
	rec, cacheStore, recorder := seededReconciler(testIdea("a", "first"))

	updated := testIdea("a", "first")
	updated.GeneratedScriptLink = "https://docs.example.com/script-a"
	record := RecordFromIdea(updated)

	rec.Apply(Event{Type: EventUpdate, New: &record})
	once := cachedIdeas(t, cacheStore)

	rec.Apply(Event{Type: EventUpdate, New: &record})
	twice := cachedIdeas(t, cacheStore)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("replay changed the cache: %+v vs %+v", once, twice)
	}
	if sent := recorder.Sent(); len(sent) != 1 {
		t.Fatalf("expected one completion notification, got %+v", sent)
	}
}

func TestUpdateNotifiesOnGeneratedOutputs(t *testing.T) {
	rec, _, recorder := seededReconciler(testIdea("a", "first"))

	updated := testIdea("a", "first")
	updated.GeneratedScriptLink = "https://docs.example.com/script-a"
	updated.GeneratedThumbnail = "https://cdn.example.com/thumb-a.png"
	record := RecordFromIdea(updated)
	rec.Apply(Event{Type: EventUpdate, New: &record})

	sent := recorder.Sent()
	if len(sent) != 2 {
		t.Fatalf("notifications: %+v", sent)
	}
	if sent[0].Title != "Script generated" || sent[1].Title != "Thumbnail generated" {
		t.Fatalf("notifications: %+v", sent)
	}
}

func TestUpdateUnknownIDInvalidates(t *testing.T) {
	rec, cacheStore, _ := seededReconciler(testIdea("a", "first"))

	record := RecordFromIdea(testIdea("ghost", "unknown"))
	rec.Apply(Event{Type: EventUpdate, New: &record})

	if cacheStore.Valid(testKey) {
		t.Fatal("unknown-id update should mark the key stale")
	}
}

func TestDeleteRemovesByID(t *testing.T) {
	rec, cacheStore, _ := seededReconciler(testIdea("a", "first"), testIdea("b", "second"))

	record := RecordFromIdea(testIdea("a", "first"))
	rec.Apply(Event{Type: EventDelete, Old: &record})

	ideas := cachedIdeas(t, cacheStore)
	if len(ideas) != 1 || ideas[0].ID != "b" {
		t.Fatalf("list after delete: %+v", ideas)
	}
}

func TestDeleteUnknownIDInvalidates(t *testing.T) {
	rec, cacheStore, _ := seededReconciler(testIdea("a", "first"))

	record := RecordFromIdea(testIdea("ghost", "unknown"))
	rec.Apply(Event{Type: EventDelete, Old: &record})

	if cacheStore.Valid(testKey) {
		t.Fatal("delete with no matching entry should mark the key stale")
	}
	if ideas := cachedIdeas(t, cacheStore); len(ideas) != 1 {
		t.Fatalf("stale snapshot should survive until re-fetch: %+v", ideas)
	}
}

func TestEventsForOtherUsersAreIgnored(t *testing.T) {
	rec, cacheStore, _ := seededReconciler(testIdea("a", "first"))

	other := testIdea("z", "someone else")
	other.UserID = "user-2"
	record := RecordFromIdea(other)
	rec.Apply(Event{Type: EventInsert, New: &record})

	if ideas := cachedIdeas(t, cacheStore); len(ideas) != 1 {
		t.Fatalf("foreign event reached the cache: %+v", ideas)
	}
}

func TestBusDeliversPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	bus := NewBus(rdb, log.New(io.Discard))
	ctx := context.Background()

	events, stop := bus.Subscribe(ctx)
	defer stop()

	record := RecordFromIdea(testIdea("a", "first"))
	if err := bus.Publish(ctx, Event{Type: EventInsert, New: &record}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case event := <-events:
		if event.Type != EventInsert || event.New == nil || event.New.ID != "a" {
			t.Fatalf("received %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestStartReconcilerAppliesAndStops(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	bus := NewBus(rdb, log.New(io.Discard))
	rec, cacheStore, _ := seededReconciler(testIdea("a", "first"))

	ctx := context.Background()
	stop := bus.StartReconciler(ctx, rec)

	record := RecordFromIdea(testIdea("b", "second"))
	if err := bus.Publish(ctx, Event{Type: EventInsert, New: &record}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if ideas := cachedIdeas(t, cacheStore); len(ideas) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event never reconciled")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stop()

	// After teardown, published events must no longer reach the cache.
	record = RecordFromIdea(testIdea("c", "third"))
	if err := bus.Publish(ctx, Event{Type: EventInsert, New: &record}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if ideas := cachedIdeas(t, cacheStore); len(ideas) != 2 {
		t.Fatalf("reconciler kept running after stop: %+v", ideas)
	}
}
