package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"realtalk/internal/domain"
	"realtalk/internal/realtime"
)

// terminalSink prints completed conversation entries and status changes.
// Streaming deltas are held back until the matching done event.
type terminalSink struct {
	mu      sync.Mutex
	out     io.Writer
	label   string
	printed map[string]string
}

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{out: out, printed: make(map[string]string)}
}

func (s *terminalSink) ConnectionStatusChanged(status domain.ConnectionStatus, reason domain.StatusReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "* %s (%s)\n", status, reason)
}

func (s *terminalSink) EventTypeChanged(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
	if label == "" {
		s.printed = make(map[string]string)
	}
}

func (s *terminalSink) ConversationChanged(entries []domain.ConversationEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !flushesConversation(s.label) {
		return
	}
	for _, entry := range entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" || s.printed[entry.ID] == text {
			continue
		}
		s.printed[entry.ID] = text
		speaker := "assistant"
		if entry.Role == domain.RoleUser {
			speaker = "you"
		}
		fmt.Fprintf(s.out, "%s> %s\n", speaker, text)
	}
}

func (s *terminalSink) PendingInputChanged(string) {}

func (s *terminalSink) SessionError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "! %s: %s\n", code, detail)
}

func flushesConversation(label string) bool {
	switch label {
	case realtime.EventConversationItemCreated,
		realtime.EventAudioTranscriptDone,
		realtime.EventTextDone,
		realtime.EventInputTranscriptionCompleted:
		return true
	default:
		return false
	}
}
