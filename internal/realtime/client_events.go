package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"realtalk/internal/domain"
)

// Client event types sent over the data channel.
const (
	EventSessionUpdate          = "session.update"
	EventConversationItemCreate = "conversation.item.create"
	EventResponseCreate         = "response.create"
)

// AudioFormatPCM16 is the audio format requested from the alternate provider.
const AudioFormatPCM16 = "pcm16"

var defaultModalities = []string{"text", "audio"}

// Session is the session configuration shared by session.update and the
// alternate provider's session request.
type Session struct {
	Model                   string                   `json:"model,omitempty"`
	Modalities              []string                 `json:"modalities"`
	Instructions            string                   `json:"instructions"`
	Voice                   string                   `json:"voice"`
	InputAudioFormat        string                   `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string                   `json:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
}

type InputAudioTranscription struct {
	Model string `json:"model"`
}

type TurnDetection struct {
	Type string `json:"type"`
}

// NewSession builds the session.update payload for cfg.
func NewSession(cfg domain.SessionConfig) Session {
	cfg = cfg.WithDefaults()
	return Session{
		Modalities:              append([]string(nil), defaultModalities...),
		Instructions:            cfg.Instructions,
		Voice:                   cfg.Voice,
		InputAudioTranscription: &InputAudioTranscription{Model: cfg.TranscriptionModel},
		TurnDetection:           &TurnDetection{Type: cfg.TurnDetection},
	}
}

// NewSessionRequest builds the session body POSTed to obtain an ephemeral key.
func NewSessionRequest(cfg domain.SessionConfig) Session {
	session := NewSession(cfg)
	session.Model = cfg.WithDefaults().Model
	session.InputAudioFormat = AudioFormatPCM16
	session.OutputAudioFormat = AudioFormatPCM16
	return session
}

// ClientEvent carries the fields common to every outbound event.
type ClientEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

type SessionUpdateEvent struct {
	ClientEvent
	Session Session `json:"session"`
}

type ConversationItemCreateEvent struct {
	ClientEvent
	Item Item `json:"item"`
}

type ResponseCreateEvent struct {
	ClientEvent
}

func newClientEvent(eventType string) ClientEvent {
	return ClientEvent{EventID: "evt_" + uuid.NewString(), Type: eventType}
}

// EncodeSessionUpdate serializes a session.update event for cfg.
func EncodeSessionUpdate(cfg domain.SessionConfig) ([]byte, error) {
	return encode(SessionUpdateEvent{
		ClientEvent: newClientEvent(EventSessionUpdate),
		Session:     NewSession(cfg),
	})
}

// EncodeUserText serializes a conversation.item.create event holding one
// input_text block authored by the user.
func EncodeUserText(text string) ([]byte, error) {
	return encode(ConversationItemCreateEvent{
		ClientEvent: newClientEvent(EventConversationItemCreate),
		Item: Item{
			Type:    "message",
			Role:    string(domain.RoleUser),
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	})
}

// EncodeResponseCreate serializes a response.create event.
func EncodeResponseCreate() ([]byte, error) {
	return encode(ResponseCreateEvent{ClientEvent: newClientEvent(EventResponseCreate)})
}

func encode(event any) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode client event: %w", err)
	}
	return payload, nil
}
