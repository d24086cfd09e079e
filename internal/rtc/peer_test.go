package rtc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewFactoryDefaults(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{}, nil)
	if f.cfg.GatherTimeout != defaultGatherTimeout {
		t.Fatalf("unexpected gather timeout: %s", f.cfg.GatherTimeout)
	}
	if f.logger == nil {
		t.Fatalf("expected default logger")
	}
}

func TestCreateOfferIncludesAudioAndDataChannel(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{IncludeLoopback: true}, testLogger())
	session, err := f.NewSession(context.Background(), ports.PeerHooks{})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	defer session.Close()

	offer, err := session.CreateOffer(context.Background())
	if err != nil {
		t.Fatalf("create offer failed: %v", err)
	}
	if !strings.Contains(offer, "m=audio") {
		t.Fatalf("expected audio section in offer")
	}
	if !strings.Contains(offer, "m=application") {
		t.Fatalf("expected data channel section in offer")
	}
	if !strings.Contains(strings.ToLower(offer), "opus") {
		t.Fatalf("expected opus codec in offer")
	}
}

func TestSendBeforeOpenIsStateError(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{}, testLogger())
	session, err := f.NewSession(context.Background(), ports.PeerHooks{})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	defer session.Close()

	if session.DataChannelOpen() {
		t.Fatalf("data channel must not be open before negotiation")
	}
	if err := session.Send([]byte(`{}`)); !errors.Is(err, domain.ErrDataChannelNotOpen) {
		t.Fatalf("expected ErrDataChannelNotOpen, got %v", err)
	}
}

func TestRemoteCandidatesAreBufferedUntilAnswer(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{}, testLogger())
	session, err := f.NewSession(context.Background(), ports.PeerHooks{})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	defer session.Close()

	mid := "0"
	index := uint16(0)
	err = session.AddRemoteCandidate(domain.ICECandidate{
		Candidate:     "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	})
	if err != nil {
		t.Fatalf("candidate before answer must be buffered, got %v", err)
	}

	peer := session.(*peerSession)
	peer.candMu.Lock()
	buffered := len(peer.pendingRemotes)
	peer.candMu.Unlock()
	if buffered != 1 {
		t.Fatalf("expected one buffered candidate, got %d", buffered)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{}, testLogger())
	session, err := f.NewSession(context.Background(), ports.PeerHooks{})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

// TestSessionLoopback negotiates against an in-process pion answerer and
// checks the data channel opens and carries messages both ways.
func TestSessionLoopback(t *testing.T) {
	opened := make(chan struct{}, 1)
	received := make(chan string, 1)

	f := NewFactory(Config{IncludeLoopback: true}, testLogger())
	session, err := f.NewSession(context.Background(), ports.PeerHooks{
		OnDataChannelOpen: func() { opened <- struct{}{} },
		OnMessage:         func(payload []byte) { received <- string(payload) },
	})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	defer session.Close()

	api, err := newAPI(true)
	if err != nil {
		t.Fatalf("api failed: %v", err)
	}
	answerer, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("answerer failed: %v", err)
	}
	defer answerer.Close()

	answerer.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			_ = dc.SendText(`{"type":"session.created"}`)
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	offer, err := session.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("create offer failed: %v", err)
	}

	if err := answerer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		t.Fatalf("answerer remote description failed: %v", err)
	}
	answer, err := answerer.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("create answer failed: %v", err)
	}
	gathered := webrtc.GatheringCompletePromise(answerer)
	if err := answerer.SetLocalDescription(answer); err != nil {
		t.Fatalf("answerer local description failed: %v", err)
	}
	<-gathered

	if err := session.SetRemoteAnswer(answerer.LocalDescription().SDP); err != nil {
		t.Fatalf("set remote answer failed: %v", err)
	}

	select {
	case <-opened:
	case <-ctx.Done():
		t.Fatalf("data channel did not open")
	}
	if !session.DataChannelOpen() {
		t.Fatalf("expected data channel open")
	}

	select {
	case msg := <-received:
		if msg != `{"type":"session.created"}` {
			t.Fatalf("unexpected message: %q", msg)
		}
	case <-ctx.Done():
		t.Fatalf("no message received")
	}

	if err := session.Send([]byte(`{"type":"response.create"}`)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
}
