package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Server event types consumed by the reconciler.
const (
	EventConversationItemCreated     = "conversation.item.created"
	EventAudioTranscriptDelta        = "response.audio_transcript.delta"
	EventAudioTranscriptDone         = "response.audio_transcript.done"
	EventInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTextDelta                   = "response.text.delta"
	EventTextDone                    = "response.text.done"
	EventError                       = "error"
)

var (
	ErrMissingType    = errors.New("event has no type")
	ErrInvalidPayload = errors.New("event payload does not match its type")
)

// ServerEvent is the union of the inbound event fields the client reads.
type ServerEvent struct {
	Type       string        `json:"type"`
	EventID    string        `json:"event_id,omitempty"`
	ItemID     string        `json:"item_id,omitempty"`
	Delta      string        `json:"delta,omitempty"`
	Transcript *string       `json:"transcript,omitempty"`
	Text       *string       `json:"text,omitempty"`
	Item       *Item         `json:"item,omitempty"`
	Error      *ServiceError `json:"error,omitempty"`
}

// Item is a conversation item, inbound or outbound.
type Item struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// ContentPart is one content block of an item.
type ContentPart struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ServiceError is the payload of an "error" server event.
type ServiceError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// FirstText returns the text of the first content block, falling back to
// its transcript.
func (i Item) FirstText() string {
	if len(i.Content) == 0 {
		return ""
	}
	if i.Content[0].Text != "" {
		return i.Content[0].Text
	}
	return i.Content[0].Transcript
}

// DecodeServerEvent parses one data channel message. Payloads that are not
// JSON objects or lack a type are rejected. When the type is known but its
// fields do not decode, the returned event still carries the type and the
// error wraps ErrInvalidPayload.
func DecodeServerEvent(raw []byte) (ServerEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ServerEvent{}, fmt.Errorf("failed to decode server event: %w", err)
	}
	event := ServerEvent{Type: strings.TrimSpace(envelope.Type)}
	if event.Type == "" {
		return ServerEvent{}, ErrMissingType
	}

	if err := decodePayload(raw, &event); err != nil {
		return ServerEvent{Type: event.Type}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event.Type, err)
	}
	return event, nil
}

// decodePayload reads only the fields the event type uses, so unrelated
// fields never fail an event.
func decodePayload(raw []byte, event *ServerEvent) error {
	switch event.Type {
	case EventConversationItemCreated:
		var payload struct {
			Item *Item `json:"item"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
		event.Item = payload.Item

	case EventAudioTranscriptDelta, EventTextDelta:
		var payload struct {
			ItemID string `json:"item_id"`
			Delta  string `json:"delta"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
		event.ItemID = payload.ItemID
		event.Delta = payload.Delta

	case EventAudioTranscriptDone, EventInputTranscriptionCompleted:
		var payload struct {
			ItemID     string  `json:"item_id"`
			Transcript *string `json:"transcript"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
		event.ItemID = payload.ItemID
		event.Transcript = payload.Transcript

	case EventTextDone:
		var payload struct {
			ItemID string  `json:"item_id"`
			Text   *string `json:"text"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
		event.ItemID = payload.ItemID
		event.Text = payload.Text

	case EventError:
		var payload struct {
			Error *ServiceError `json:"error"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
		event.Error = payload.Error
	}
	return nil
}
