package usecase

import (
	"io"
	"log/slog"
	"testing"
)

func TestEventReconcilerAssistantItemLifecycle(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	reconciler := newEventReconciler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	reconciler.Apply([]byte(`{"type":"conversation.item.created","item":{"id":"a1","role":"assistant","content":[{"text":"Hel"}]}}`))
	if got := store.Snapshot(); len(got) != 1 || got[0].ID != "a1" || got[0].Role != "assistant" || got[0].Text != "Hel" {
		t.Fatalf("unexpected list after create: %+v", got)
	}

	reconciler.Apply([]byte(`{"type":"response.audio_transcript.delta","item_id":"a1","delta":"lo"}`))
	if got := store.Snapshot(); got[0].Text != "Hello" {
		t.Fatalf("unexpected text after delta: %q", got[0].Text)
	}

	reconciler.Apply([]byte(`{"type":"response.audio_transcript.done","item_id":"a1","transcript":"Hello there"}`))
	if got := store.Snapshot(); len(got) != 1 || got[0].Text != "Hello there" {
		t.Fatalf("unexpected list after done: %+v", got)
	}
}

func TestEventReconcilerAppliesTranscriptEvents(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	reconciler := newEventReconciler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	steps := []struct {
		raw       string
		eventType string
		changed   bool
		text      string
	}{
		{`{"type":"conversation.item.created","item":{"id":"a1","role":"assistant"}}`, "conversation.item.created", true, ""},
		{`{"type":"response.text.delta","item_id":"a1","delta":"Hi"}`, "response.text.delta", true, "Hi"},
		{`{"type":"response.text.delta","item_id":"a1","delta":" you"}`, "response.text.delta", true, "Hi you"},
		{`{"type":"response.text.done","item_id":"a1","text":"Hi you."}`, "response.text.done", true, "Hi you."},
		{`{"type":"response.audio_transcript.delta","item_id":"zz","delta":"lost"}`, "response.audio_transcript.delta", false, "Hi you."},
		{`{"type":"session.created","session":{}}`, "session.created", false, "Hi you."},
	}

	for _, step := range steps {
		result := reconciler.Apply([]byte(step.raw))
		if result.eventType != step.eventType {
			t.Fatalf("%s: unexpected event type %q", step.raw, result.eventType)
		}
		if result.conversationChanged != step.changed {
			t.Fatalf("%s: unexpected changed=%v", step.raw, result.conversationChanged)
		}
		entry, _ := store.Lookup("a1")
		if entry.Text != step.text {
			t.Fatalf("%s: unexpected text %q", step.raw, entry.Text)
		}
	}
}

func TestEventReconcilerUserTranscriptionCompleted(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	reconciler := newEventReconciler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	reconciler.Apply([]byte(`{"type":"conversation.item.created","item":{"id":"u1","role":"user","content":[{"type":"input_audio"}]}}`))
	result := reconciler.Apply([]byte(`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":"turn on the lights"}`))

	if !result.conversationChanged {
		t.Fatalf("expected conversation change")
	}
	got := store.Snapshot()
	if len(got) != 1 || got[0].Text != "turn on the lights" {
		t.Fatalf("unexpected conversation: %+v", got)
	}
}

func TestEventReconcilerDiscardsInvalidMessages(t *testing.T) {
	t.Parallel()

	reconciler := newEventReconciler(newTranscriptStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, raw := range []string{``, `{`, `[]`, `{"type":""}`, `{"type":"   "}`} {
		if result := reconciler.Apply([]byte(raw)); result.eventType != "" {
			t.Fatalf("%q: expected discard, got %+v", raw, result)
		}
	}
}

func TestEventReconcilerItemCreatedWithoutID(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	reconciler := newEventReconciler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	result := reconciler.Apply([]byte(`{"type":"conversation.item.created","item":{"role":"user"}}`))
	if result.eventType != "conversation.item.created" || result.conversationChanged {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.Snapshot()) != 0 {
		t.Fatalf("entries without id must be dropped")
	}
}

func TestEventReconcilerServiceErrorDefaultsMessage(t *testing.T) {
	t.Parallel()

	reconciler := newEventReconciler(newTranscriptStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	result := reconciler.Apply([]byte(`{"type":"error"}`))
	if result.serviceError == "" {
		t.Fatalf("expected fallback service error message")
	}
}

func TestEventReconcilerFinalEventsWithoutTextKeepEntry(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	reconciler := newEventReconciler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	reconciler.Apply([]byte(`{"type":"conversation.item.created","item":{"id":"a1","role":"assistant","content":[{"text":"Hello"}]}}`))

	for _, raw := range []string{
		`{"type":"response.audio_transcript.done","item_id":"a1"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"a1"}`,
		`{"type":"response.text.done","item_id":"a1"}`,
	} {
		result := reconciler.Apply([]byte(raw))
		if result.eventType == "" || result.conversationChanged {
			t.Fatalf("%s: unexpected result %+v", raw, result)
		}
		if got := store.Snapshot()[0].Text; got != "Hello" {
			t.Fatalf("%s: text replaced with %q", raw, got)
		}
	}

	result := reconciler.Apply([]byte(`{"type":"response.audio_transcript.done","item_id":"a1","transcript":""}`))
	if !result.conversationChanged || store.Snapshot()[0].Text != "" {
		t.Fatalf("an explicit empty transcript must replace the text: %+v", store.Snapshot())
	}
}

func TestEventReconcilerMistypedPayloadKeepsLabel(t *testing.T) {
	t.Parallel()

	store := newTranscriptStore()
	reconciler := newEventReconciler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	reconciler.Apply([]byte(`{"type":"conversation.item.created","item":{"id":"a1","role":"assistant","content":[{"text":"Hi"}]}}`))

	if result := reconciler.Apply([]byte(`{"type":"rate_limits.updated","text":{"nested":true}}`)); result.eventType != "rate_limits.updated" {
		t.Fatalf("expected label for unknown event, got %+v", result)
	}

	result := reconciler.Apply([]byte(`{"type":"response.text.delta","item_id":"a1","delta":{"nested":true}}`))
	if result.eventType != "response.text.delta" || result.conversationChanged {
		t.Fatalf("unexpected result for mistyped delta: %+v", result)
	}
	if got := store.Snapshot()[0].Text; got != "Hi" {
		t.Fatalf("mistyped delta must not change text, got %q", got)
	}

	result = reconciler.Apply([]byte(`{"type":"error","error":"not an object"}`))
	if result.eventType != "error" || result.serviceError != defaultServiceError {
		t.Fatalf("expected fallback service error, got %+v", result)
	}
}
