package usecase

import (
	"context"
	"sync"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

// activeSession owns the resources of one connection attempt. Callbacks
// carry its generation and are dropped once it is no longer current.
type activeSession struct {
	generation uint64
	config     domain.SessionConfig
	cancel     context.CancelFunc

	mu        sync.Mutex
	closed    bool
	peer      ports.PeerSession
	audio     ports.AudioSession
	audioDone chan struct{}
}

func newActiveSession(generation uint64, config domain.SessionConfig, cancel context.CancelFunc) *activeSession {
	return &activeSession{generation: generation, config: config, cancel: cancel}
}

// attachPeer records peer unless the session was already torn down.
func (s *activeSession) attachPeer(peer ports.PeerSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.peer = peer
	return true
}

// attachAudio records a capture session and returns the channel its pump
// must close, or nil if the session was already torn down.
func (s *activeSession) attachAudio(audio ports.AudioSession) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.audio = audio
	s.audioDone = make(chan struct{})
	return s.audioDone
}

func (s *activeSession) getPeer() ports.PeerSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// teardown releases every owned resource. Safe to call more than once.
func (s *activeSession) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	peer, audio, audioDone := s.peer, s.audio, s.audioDone
	s.mu.Unlock()

	s.cancel()
	if audio != nil {
		_ = audio.Stop()
	}
	if peer != nil {
		_ = peer.Close()
	}
	if audioDone != nil {
		<-audioDone
	}
}
