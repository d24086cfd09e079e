package usecase

import (
	"log/slog"

	"realtalk/internal/domain"
	"realtalk/internal/realtime"
)

const defaultServiceError = "realtime service reported an error"

// reconcileResult reports what one data channel message did.
type reconcileResult struct {
	// eventType is the message type; empty when the message was discarded.
	eventType string
	// conversationChanged is set when the rendered list was mutated.
	conversationChanged bool
	// serviceError carries the message of an "error" server event.
	serviceError string
}

// eventReconciler applies server events to a transcript store.
type eventReconciler struct {
	store  *transcriptStore
	logger *slog.Logger
}

func newEventReconciler(store *transcriptStore, logger *slog.Logger) *eventReconciler {
	return &eventReconciler{store: store, logger: logger}
}

func (r *eventReconciler) Apply(raw []byte) reconcileResult {
	event, err := realtime.DecodeServerEvent(raw)
	if event.Type == "" {
		r.logger.Debug("discarding data channel message", "error", err)
		return reconcileResult{}
	}

	result := reconcileResult{eventType: event.Type}
	if err != nil {
		r.logger.Warn("ignoring event with unreadable payload", "type", event.Type, "error", err)
		if event.Type == realtime.EventError {
			result.serviceError = defaultServiceError
		}
		return result
	}

	switch event.Type {
	case realtime.EventConversationItemCreated:
		if event.Item == nil || event.Item.ID == "" {
			r.logger.Debug("item created without id")
			return result
		}
		result.conversationChanged = r.store.Put(domain.ConversationEntry{
			ID:   event.Item.ID,
			Role: domain.Role(event.Item.Role),
			Text: event.Item.FirstText(),
		})

	case realtime.EventAudioTranscriptDelta, realtime.EventTextDelta:
		result.conversationChanged = r.appendDelta(event.ItemID, event.Delta)

	case realtime.EventAudioTranscriptDone, realtime.EventInputTranscriptionCompleted:
		result.conversationChanged = r.replaceText(event.ItemID, event.Transcript)

	case realtime.EventTextDone:
		result.conversationChanged = r.replaceText(event.ItemID, event.Text)

	case realtime.EventError:
		result.serviceError = defaultServiceError
		if event.Error != nil && event.Error.Message != "" {
			result.serviceError = event.Error.Message
		}
		r.logger.Warn("realtime service error", "message", result.serviceError)
	}
	return result
}

func (r *eventReconciler) appendDelta(itemID string, delta string) bool {
	listed, found := r.store.Append(itemID, delta)
	if !found {
		r.logger.Debug("dropping delta for unknown item", "item_id", itemID)
	}
	return listed
}

func (r *eventReconciler) replaceText(itemID string, text *string) bool {
	if text == nil {
		r.logger.Debug("keeping text for final event without text", "item_id", itemID)
		return false
	}
	listed, found := r.store.Replace(itemID, *text)
	if !found {
		r.logger.Debug("dropping transcript for unknown item", "item_id", itemID)
	}
	return listed
}
