package ports

import (
	"context"
	"time"

	"realtalk/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing Opus packets.
type AudioSession interface {
	// NextPacket returns the next encoded packet and its playout duration.
	NextPacket() ([]byte, time.Duration, error)
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// CandidateSink receives remote ICE candidates during signaling.
type CandidateSink interface {
	AddRemoteCandidate(candidate domain.ICECandidate) error
}

// Signaler trades a local SDP offer for the remote SDP answer.
type Signaler interface {
	Negotiate(ctx context.Context, cfg domain.SessionConfig, offerSDP string, sink CandidateSink) (string, error)
}

// PeerHooks are invoked from peer connection goroutines.
type PeerHooks struct {
	OnDataChannelOpen func()
	OnMessage         func(payload []byte)
	OnConnectionLost  func(state string)
}

// PeerSession is one peer connection with its data channel and local audio track.
type PeerSession interface {
	CandidateSink

	// CreateOffer builds the SDP offer, sets it as the local description and
	// returns the local SDP once ICE gathering finished.
	CreateOffer(ctx context.Context) (string, error)
	SetRemoteAnswer(sdp string) error
	DataChannelOpen() bool
	Send(payload []byte) error
	WriteAudio(packet []byte, duration time.Duration) error
	Close() error
}

// PeerFactory creates peer sessions.
type PeerFactory interface {
	NewSession(ctx context.Context, hooks PeerHooks) (PeerSession, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	ConnectionStatusChanged(status domain.ConnectionStatus, reason domain.StatusReason)
	EventTypeChanged(label string)
	ConversationChanged(entries []domain.ConversationEntry)
	PendingInputChanged(text string)
	SessionError(code domain.ErrorCode, detail string)
}
