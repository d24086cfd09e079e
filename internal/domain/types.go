package domain

import "strings"

// ConnectionStatus models the realtime session lifecycle.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// StatusReason provides a structured reason for status transitions.
type StatusReason string

const (
	StatusReasonIdle               StatusReason = "idle"
	StatusReasonSessionStarting    StatusReason = "session_starting"
	StatusReasonSessionRestarting  StatusReason = "session_restarting"
	StatusReasonSessionConnected   StatusReason = "session_connected"
	StatusReasonSessionStopped     StatusReason = "session_stopped"
	StatusReasonSignalingFailed    StatusReason = "signaling_failed"
	StatusReasonPeerConnectionLost StatusReason = "peer_connection_lost"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup      ErrorCode = "startup"
	ErrorCodeSignaling    ErrorCode = "signaling"
	ErrorCodeAudioCapture ErrorCode = "audio_capture"
	ErrorCodeAudioStream  ErrorCode = "audio_stream"
	ErrorCodeDataChannel  ErrorCode = "data_channel"
	ErrorCodeService      ErrorCode = "service"
	ErrorCodeSettings     ErrorCode = "settings"
	ErrorCodeClipboard    ErrorCode = "clipboard"
)

// Role is the author of a conversation entry as reported by the service.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Rendered reports whether entries with this role belong in the visible
// conversation list.
func (r Role) Rendered() bool {
	return r == RoleUser || r == RoleAssistant
}

// ConversationEntry is one turn of the conversation transcript.
type ConversationEntry struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ICECandidate is a remote ICE candidate relayed by a signaling server.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// SessionConfig is the per-attempt configuration passed to Start.
type SessionConfig struct {
	Provider           Provider
	APIKey             string
	Model              string
	Voice              string
	Instructions       string
	TranscriptionModel string
	TurnDetection      string
}

// WithDefaults fills empty fields from the provider profile.
func (c SessionConfig) WithDefaults() SessionConfig {
	if !c.Provider.Valid() {
		c.Provider = ProviderPrimary
	}
	profile := c.Provider.Profile()
	c.APIKey = strings.TrimSpace(c.APIKey)
	if strings.TrimSpace(c.Model) == "" {
		c.Model = profile.DefaultModel
	}
	if strings.TrimSpace(c.Voice) == "" {
		c.Voice = profile.DefaultVoice
	}
	if strings.TrimSpace(c.TranscriptionModel) == "" {
		c.TranscriptionModel = profile.DefaultTranscriptionModel
	}
	if strings.TrimSpace(c.TurnDetection) == "" {
		c.TurnDetection = DefaultTurnDetection
	}
	return c
}

// Snapshot is the observable session state handed to the UI.
type Snapshot struct {
	Status       ConnectionStatus    `json:"status"`
	EventType    string              `json:"eventType"`
	Conversation []ConversationEntry `json:"conversation"`
	PendingInput string              `json:"pendingInput"`
	LastError    string              `json:"lastError,omitempty"`
}
