package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

// DataChannelLabel is the label the realtime service expects for control events.
const DataChannelLabel = "oai-events"

// defaultGatherTimeout bounds ICE candidate gathering before the offer is
// handed to signaling.
const defaultGatherTimeout = 15 * time.Second

// Config controls peer connection construction.
type Config struct {
	ICEServers    []string
	GatherTimeout time.Duration
	// IncludeLoopback adds loopback host candidates; used for same-machine tests.
	IncludeLoopback bool
}

// Factory implements ports.PeerFactory on top of pion/webrtc.
type Factory struct {
	cfg    Config
	logger *slog.Logger
}

func NewFactory(cfg Config, logger *slog.Logger) *Factory {
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = defaultGatherTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Factory{cfg: cfg, logger: logger}
}

// NewSession creates a peer connection with an Opus send track and an
// ordered data channel, and wires hooks to their callbacks.
func (f *Factory) NewSession(_ context.Context, hooks ports.PeerHooks) (ports.PeerSession, error) {
	api, err := newAPI(f.cfg.IncludeLoopback)
	if err != nil {
		return nil, err
	}

	config := webrtc.Configuration{}
	if len(f.cfg.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: f.cfg.ICEServers}}
	}

	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	session := &peerSession{pc: pc, logger: f.logger, gatherTimeout: f.cfg.GatherTimeout}
	if err := session.setup(hooks); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return session, nil
}

func newAPI(includeLoopback bool) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	settingEngine := webrtc.SettingEngine{}
	if includeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settingEngine)), nil
}

type peerSession struct {
	pc            *webrtc.PeerConnection
	dc            *webrtc.DataChannel
	track         *webrtc.TrackLocalStaticSample
	logger        *slog.Logger
	gatherTimeout time.Duration

	// Candidates that arrive before the answer are applied once it is set.
	candMu         sync.Mutex
	remoteSet      bool
	pendingRemotes []webrtc.ICECandidateInit

	closeOnce sync.Once
	closeErr  error
}

func (s *peerSession) setup(hooks ports.PeerHooks) error {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"realtalk",
	)
	if err != nil {
		return fmt.Errorf("failed to create audio track: %w", err)
	}
	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add audio track: %w", err)
	}
	s.track = track
	go drainRTCP(sender)

	ordered := true
	dc, err := s.pc.CreateDataChannel(DataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	s.dc = dc

	dc.OnOpen(func() {
		s.logger.Info("data channel open", "label", dc.Label())
		if hooks.OnDataChannelOpen != nil {
			hooks.OnDataChannelOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if hooks.OnMessage != nil {
			hooks.OnMessage(msg.Data)
		}
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("peer connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if hooks.OnConnectionLost != nil {
				hooks.OnConnectionLost(state.String())
			}
		}
	})

	// Remote audio playback belongs to the platform layer; keep the
	// receiver drained so interceptors do not back up.
	s.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Info("remote track started", "codec", remote.Codec().MimeType)
		buf := make([]byte, 1500)
		for {
			if _, _, err := remote.Read(buf); err != nil {
				return
			}
		}
	})
	return nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (s *peerSession) CreateOffer(ctx context.Context) (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create SDP offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	timer := time.NewTimer(s.gatherTimeout)
	defer timer.Stop()
	select {
	case <-gatherComplete:
	case <-timer.C:
		return "", fmt.Errorf("ICE gathering timed out after %s", s.gatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := s.pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description missing after gathering")
	}
	return local.SDP, nil
}

func (s *peerSession) SetRemoteAnswer(sdp string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	s.candMu.Lock()
	s.remoteSet = true
	pending := s.pendingRemotes
	s.pendingRemotes = nil
	s.candMu.Unlock()

	for _, candidate := range pending {
		if err := s.pc.AddICECandidate(candidate); err != nil {
			s.logger.Warn("dropping buffered remote candidate", "error", err)
		}
	}
	return nil
}

func (s *peerSession) AddRemoteCandidate(candidate domain.ICECandidate) error {
	candidateInit := webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	}

	s.candMu.Lock()
	if !s.remoteSet {
		s.pendingRemotes = append(s.pendingRemotes, candidateInit)
		s.candMu.Unlock()
		return nil
	}
	s.candMu.Unlock()

	if err := s.pc.AddICECandidate(candidateInit); err != nil {
		return fmt.Errorf("failed to add remote candidate: %w", err)
	}
	return nil
}

func (s *peerSession) DataChannelOpen() bool {
	return s.dc != nil && s.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (s *peerSession) Send(payload []byte) error {
	if !s.DataChannelOpen() {
		return domain.ErrDataChannelNotOpen
	}
	if err := s.dc.SendText(string(payload)); err != nil {
		return domain.NewTransportError("failed to send on data channel", err)
	}
	return nil
}

func (s *peerSession) WriteAudio(packet []byte, duration time.Duration) error {
	if s.track == nil {
		return errors.New("audio track is not initialized")
	}
	return s.track.WriteSample(media.Sample{Data: packet, Duration: duration})
}

func (s *peerSession) Close() error {
	s.closeOnce.Do(func() {
		if s.dc != nil {
			_ = s.dc.Close()
		}
		s.closeErr = s.pc.Close()
	})
	return s.closeErr
}
