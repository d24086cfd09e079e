package usecase

import (
	"testing"

	"realtalk/internal/domain"
)

func TestTranscriptStorePreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	store.Put(domain.ConversationEntry{ID: "u1", Role: domain.RoleUser, Text: "hi"})
	store.Put(domain.ConversationEntry{ID: "a1", Role: domain.RoleAssistant})
	store.Put(domain.ConversationEntry{ID: "u2", Role: domain.RoleUser, Text: "again"})

	if _, found := store.Append("a1", "hello"); !found {
		t.Fatalf("expected a1 to be found")
	}

	got := store.Snapshot()
	want := []string{"u1", "a1", "u2"}
	if len(got) != len(want) {
		t.Fatalf("unexpected length: %+v", got)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
	if got[1].Text != "hello" {
		t.Fatalf("expected mirrored delta, got %q", got[1].Text)
	}
}

func TestTranscriptStoreIndexesUnrenderedRoles(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	if listed := store.Put(domain.ConversationEntry{ID: "s1", Role: domain.RoleSystem, Text: "rules"}); listed {
		t.Fatalf("system entries must not be listed")
	}

	listed, found := store.Append("s1", "!")
	if listed || !found {
		t.Fatalf("expected indexed but unlisted, got listed=%v found=%v", listed, found)
	}
	entry, ok := store.Lookup("s1")
	if !ok || entry.Text != "rules!" {
		t.Fatalf("unexpected indexed entry: %+v", entry)
	}
	if len(store.Snapshot()) != 0 {
		t.Fatalf("expected empty rendered list")
	}
}

func TestTranscriptStoreReplacesRecreatedEntryInPlace(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	store.Put(domain.ConversationEntry{ID: "a1", Role: domain.RoleAssistant, Text: "old"})
	store.Put(domain.ConversationEntry{ID: "u1", Role: domain.RoleUser, Text: "q"})
	store.Put(domain.ConversationEntry{ID: "a1", Role: domain.RoleAssistant, Text: "new"})

	got := store.Snapshot()
	if len(got) != 2 || got[0].ID != "a1" || got[0].Text != "new" {
		t.Fatalf("expected in-place replacement, got %+v", got)
	}

	store.Put(domain.ConversationEntry{ID: "a1", Role: domain.RoleSystem, Text: "hidden"})
	got = store.Snapshot()
	if len(got) != 1 || got[0].ID != "u1" {
		t.Fatalf("expected unrendered replacement to be hidden, got %+v", got)
	}
	if _, found := store.Replace("u1", "question"); !found {
		t.Fatalf("later positions must stay valid")
	}
	if store.Snapshot()[0].Text != "question" {
		t.Fatalf("unexpected text after replace")
	}
}

func TestTranscriptStoreIgnoresUnknownIDs(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	if listed, found := store.Append("missing", "x"); listed || found {
		t.Fatalf("expected unknown append to be ignored")
	}
	if listed, found := store.Replace("missing", "x"); listed || found {
		t.Fatalf("expected unknown replace to be ignored")
	}
	if len(store.Snapshot()) != 0 {
		t.Fatalf("unknown ids must not create entries")
	}
}

func TestTranscriptStoreSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	store.Put(domain.ConversationEntry{ID: "u1", Role: domain.RoleUser, Text: "hi"})

	snapshot := store.Snapshot()
	snapshot[0].Text = "mutated"

	if store.Snapshot()[0].Text != "hi" {
		t.Fatalf("snapshot must not alias store state")
	}
}

func TestTranscriptStoreReset(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	store.Put(domain.ConversationEntry{ID: "u1", Role: domain.RoleUser, Text: "hi"})
	store.Reset()

	if len(store.Snapshot()) != 0 {
		t.Fatalf("expected empty list after reset")
	}
	if _, ok := store.Lookup("u1"); ok {
		t.Fatalf("expected empty index after reset")
	}
}
