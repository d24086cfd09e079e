package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
	"realtalk/internal/realtime"
)

var (
	ErrUnknownProvider = errors.New("no signaler configured for provider")
	// ErrSessionSuperseded is returned by Start when Stop or another Start
	// took over while the attempt was still negotiating.
	ErrSessionSuperseded = errors.New("session attempt superseded")
)

// Config controls realtime session behavior.
type Config struct {
	Audio ports.AudioConfig
	// DisableAudio skips microphone capture; the session is text-only.
	DisableAudio bool
	// SignalingTimeout bounds the signaling exchange. Zero disables it.
	SignalingTimeout time.Duration
}

// SessionController orchestrates one realtime voice session at a time:
// peer connection setup, signaling, microphone streaming and transcript
// reconciliation.
type SessionController struct {
	peers     ports.PeerFactory
	audio     ports.AudioCapture
	signalers map[domain.Provider]ports.Signaler
	events    ports.EventSink
	logger    *slog.Logger
	cfg       Config

	// notifyMu orders label and conversation notifications against the
	// transitions that reset them. Acquire it before mu.
	notifyMu sync.Mutex

	mu           sync.Mutex
	status       domain.ConnectionStatus
	eventType    string
	pendingInput string
	lastError    string
	store        *transcriptStore
	reconciler   *eventReconciler
	generation   uint64
	current      *activeSession
}

func NewSessionController(
	peers ports.PeerFactory,
	audio ports.AudioCapture,
	signalers map[domain.Provider]ports.Signaler,
	events ports.EventSink,
	logger *slog.Logger,
	cfg Config,
) *SessionController {
	if logger == nil {
		logger = slog.Default()
	}
	store := newTranscriptStore()
	return &SessionController{
		peers:      peers,
		audio:      audio,
		signalers:  signalers,
		events:     events,
		logger:     logger,
		cfg:        cfg,
		status:     domain.StatusDisconnected,
		store:      store,
		reconciler: newEventReconciler(store, logger),
	}
}

// Start connects a new session, tearing down any previous one first. It
// returns once the remote answer is applied or the attempt failed.
func (c *SessionController) Start(ctx context.Context, cfg domain.SessionConfig) error {
	cfg = cfg.WithDefaults()
	signaler, ok := c.signalers[cfg.Provider]
	if !ok || signaler == nil {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	c.notifyMu.Lock()
	c.mu.Lock()
	previous := c.current
	c.generation++
	active := newActiveSession(c.generation, cfg, cancel)
	c.current = active
	c.status = domain.StatusConnecting
	c.eventType = ""
	c.lastError = ""
	c.store.Reset()
	c.mu.Unlock()
	c.notifyMu.Unlock()

	reason := domain.StatusReasonSessionStarting
	if previous != nil {
		previous.teardown()
		reason = domain.StatusReasonSessionRestarting
	}

	c.logger.Info("starting session", "provider", cfg.Provider, "model", cfg.Model, "generation", active.generation)
	c.events.EventTypeChanged("")
	c.events.ConversationChanged([]domain.ConversationEntry{})
	c.events.ConnectionStatusChanged(domain.StatusConnecting, reason)

	peer, err := c.peers.NewSession(sessionCtx, c.hooks(active.generation))
	if err != nil {
		return c.fail(active, fmt.Errorf("failed to create peer connection: %w", err))
	}
	if !active.attachPeer(peer) {
		_ = peer.Close()
		return ErrSessionSuperseded
	}

	c.startAudio(sessionCtx, active, peer)

	offer, err := peer.CreateOffer(sessionCtx)
	if err != nil {
		return c.fail(active, fmt.Errorf("failed to create offer: %w", err))
	}
	if !c.isCurrent(active.generation) {
		return ErrSessionSuperseded
	}

	signalCtx := sessionCtx
	if c.cfg.SignalingTimeout > 0 {
		var cancelSignal context.CancelFunc
		signalCtx, cancelSignal = context.WithTimeout(sessionCtx, c.cfg.SignalingTimeout)
		defer cancelSignal()
	}

	answer, err := signaler.Negotiate(signalCtx, cfg, offer, peer)
	if !c.isCurrent(active.generation) {
		return ErrSessionSuperseded
	}
	if err != nil {
		return c.fail(active, err)
	}

	if err := peer.SetRemoteAnswer(answer); err != nil {
		return c.fail(active, fmt.Errorf("failed to apply answer: %w", err))
	}

	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		return ErrSessionSuperseded
	}
	c.status = domain.StatusConnected
	c.mu.Unlock()

	c.logger.Info("session connected", "provider", cfg.Provider, "generation", active.generation)
	c.events.ConnectionStatusChanged(domain.StatusConnected, domain.StatusReasonSessionConnected)
	return nil
}

func (c *SessionController) startAudio(ctx context.Context, active *activeSession, peer ports.PeerSession) {
	if c.audio == nil || c.cfg.DisableAudio {
		return
	}

	capture, err := c.audio.Start(ctx, c.cfg.Audio)
	if err != nil {
		c.logger.Warn("microphone capture unavailable", "error", err)
		c.reportError(active.generation, domain.ErrorCodeAudioCapture, fmt.Sprintf("microphone capture unavailable: %v", err))
		return
	}

	done := active.attachAudio(capture)
	if done == nil {
		_ = capture.Stop()
		return
	}
	generation := active.generation
	go pumpAudioPackets(capture, peer, func(code domain.ErrorCode, detail string) {
		c.reportError(generation, code, detail)
	}, done)
}

// fail moves a still-current attempt to disconnected and reports err.
func (c *SessionController) fail(active *activeSession, err error) error {
	c.notifyMu.Lock()
	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		c.notifyMu.Unlock()
		active.teardown()
		return ErrSessionSuperseded
	}
	c.current = nil
	c.status = domain.StatusDisconnected
	c.eventType = ""
	c.lastError = err.Error()
	c.mu.Unlock()
	c.notifyMu.Unlock()

	active.teardown()

	c.logger.Error("session failed", "error", err, "kind", domain.KindOf(err), "status_code", domain.StatusCodeOf(err))
	c.events.EventTypeChanged("")
	c.events.ConnectionStatusChanged(domain.StatusDisconnected, domain.StatusReasonSignalingFailed)
	c.events.SessionError(domain.ErrorCodeSignaling, err.Error())
	return err
}

// Stop closes the current session, if any. It is always safe to call.
func (c *SessionController) Stop() {
	c.notifyMu.Lock()
	c.mu.Lock()
	active := c.current
	wasDisconnected := c.status == domain.StatusDisconnected
	c.current = nil
	c.status = domain.StatusDisconnected
	c.eventType = ""
	c.mu.Unlock()
	c.notifyMu.Unlock()

	if active != nil {
		active.teardown()
	}
	if active == nil && wasDisconnected {
		return
	}

	c.logger.Info("session stopped")
	c.events.EventTypeChanged("")
	c.events.ConnectionStatusChanged(domain.StatusDisconnected, domain.StatusReasonSessionStopped)
}

// SendUserText sends text as a user message and asks for a response.
// Whitespace-only text is ignored.
func (c *SessionController) SendUserText(text string) error {
	c.mu.Lock()
	active := c.current
	connected := c.status == domain.StatusConnected
	c.mu.Unlock()

	if active == nil || !connected {
		return domain.ErrNotConnected
	}
	peer := active.getPeer()
	if peer == nil || !peer.DataChannelOpen() {
		return domain.ErrDataChannelNotOpen
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	item, err := realtime.EncodeUserText(text)
	if err != nil {
		return err
	}
	if err := peer.Send(item); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	c.setPendingInput("")

	response, err := realtime.EncodeResponseCreate()
	if err != nil {
		return err
	}
	if err := peer.Send(response); err != nil {
		return fmt.Errorf("failed to request response: %w", err)
	}
	return nil
}

// SetPendingInput records the unsent draft.
func (c *SessionController) SetPendingInput(text string) {
	c.setPendingInput(text)
}

func (c *SessionController) setPendingInput(text string) {
	c.mu.Lock()
	changed := c.pendingInput != text
	c.pendingInput = text
	c.mu.Unlock()

	if changed {
		c.events.PendingInputChanged(text)
	}
}

// SendSessionUpdate pushes the session configuration over the data channel.
// It does nothing while the channel is not open.
func (c *SessionController) SendSessionUpdate() error {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()

	var peer ports.PeerSession
	if active != nil {
		peer = active.getPeer()
	}
	if peer == nil || !peer.DataChannelOpen() {
		c.logger.Warn("skipping session update: data channel not open")
		return nil
	}

	payload, err := realtime.EncodeSessionUpdate(active.config)
	if err != nil {
		return err
	}
	if err := peer.Send(payload); err != nil {
		return fmt.Errorf("failed to send session update: %w", err)
	}
	return nil
}

// Snapshot returns the observable session state.
func (c *SessionController) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Snapshot{
		Status:       c.status,
		EventType:    c.eventType,
		Conversation: c.store.Snapshot(),
		PendingInput: c.pendingInput,
		LastError:    c.lastError,
	}
}

// Conversation returns the rendered conversation.
func (c *SessionController) Conversation() []domain.ConversationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

func (c *SessionController) hooks(generation uint64) ports.PeerHooks {
	return ports.PeerHooks{
		OnDataChannelOpen: func() { c.handleDataChannelOpen(generation) },
		OnMessage:         func(payload []byte) { c.handleMessage(generation, payload) },
		OnConnectionLost:  func(state string) { c.handleConnectionLost(generation, state) },
	}
}

func (c *SessionController) handleDataChannelOpen(generation uint64) {
	if !c.isCurrent(generation) {
		return
	}
	c.logger.Debug("data channel open", "generation", generation)
	if err := c.SendSessionUpdate(); err != nil {
		c.logger.Warn("session update failed", "error", err)
		c.events.SessionError(domain.ErrorCodeDataChannel, err.Error())
	}
}

func (c *SessionController) handleMessage(generation uint64, payload []byte) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.current == nil || c.current.generation != generation {
		c.mu.Unlock()
		return
	}
	result := c.reconciler.Apply(payload)
	if result.eventType == "" {
		c.mu.Unlock()
		return
	}
	c.eventType = result.eventType
	var conversation []domain.ConversationEntry
	if result.conversationChanged {
		conversation = c.store.Snapshot()
	}
	c.mu.Unlock()

	c.events.EventTypeChanged(result.eventType)
	if result.conversationChanged {
		c.events.ConversationChanged(conversation)
	}
	if result.serviceError != "" {
		c.events.SessionError(domain.ErrorCodeService, result.serviceError)
	}
}

func (c *SessionController) handleConnectionLost(generation uint64, state string) {
	c.notifyMu.Lock()
	c.mu.Lock()
	active := c.current
	if active == nil || active.generation != generation || c.status != domain.StatusConnected {
		c.mu.Unlock()
		c.notifyMu.Unlock()
		return
	}
	c.current = nil
	c.status = domain.StatusDisconnected
	c.eventType = ""
	c.lastError = "peer connection " + state
	c.mu.Unlock()
	c.notifyMu.Unlock()

	// Hooks run on pion goroutines that Close waits on.
	go active.teardown()

	c.logger.Warn("peer connection lost", "state", state, "generation", generation)
	c.events.EventTypeChanged("")
	c.events.ConnectionStatusChanged(domain.StatusDisconnected, domain.StatusReasonPeerConnectionLost)
}

func (c *SessionController) reportError(generation uint64, code domain.ErrorCode, detail string) {
	if !c.isCurrent(generation) {
		return
	}
	c.logger.Warn("session error", "code", code, "detail", detail)
	c.events.SessionError(code, detail)
}

func (c *SessionController) isCurrent(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.generation == generation
}
