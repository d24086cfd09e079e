package usecase

import "realtalk/internal/domain"

type transcriptRecord struct {
	entry domain.ConversationEntry
	// position in transcriptStore.list, or -1 when the entry is not rendered.
	position int
}

// transcriptStore keeps the rendered conversation in first-insertion order
// plus an index by entry id for constant-time updates. It is not safe for
// concurrent use; SessionController serializes access.
type transcriptStore struct {
	list  []domain.ConversationEntry
	index map[string]*transcriptRecord
}

func newTranscriptStore() *transcriptStore {
	return &transcriptStore{index: make(map[string]*transcriptRecord)}
}

// Put records a newly created entry, replacing any entry with the same id.
// A rendered entry keeps its list position when replaced.
func (s *transcriptStore) Put(entry domain.ConversationEntry) bool {
	position := -1
	if previous, ok := s.index[entry.ID]; ok {
		position = previous.position
	}

	if entry.Role.Rendered() {
		if position >= 0 {
			s.list[position] = entry
		} else {
			position = len(s.list)
			s.list = append(s.list, entry)
		}
	} else if position >= 0 {
		// Keep the slot so later positions stay valid; Snapshot hides it.
		s.list[position] = entry
	}

	s.index[entry.ID] = &transcriptRecord{entry: entry, position: position}
	return position >= 0
}

// Append adds delta to an existing entry. Unknown ids are ignored.
func (s *transcriptStore) Append(id string, delta string) (listed bool, found bool) {
	record, ok := s.index[id]
	if !ok {
		return false, false
	}
	record.entry.Text += delta
	return s.mirror(record), true
}

// Replace overwrites the text of an existing entry. Unknown ids are ignored.
func (s *transcriptStore) Replace(id string, text string) (listed bool, found bool) {
	record, ok := s.index[id]
	if !ok {
		return false, false
	}
	record.entry.Text = text
	return s.mirror(record), true
}

func (s *transcriptStore) mirror(record *transcriptRecord) bool {
	if record.position < 0 {
		return false
	}
	s.list[record.position].Text = record.entry.Text
	return true
}

// Lookup returns the indexed entry for id, rendered or not.
func (s *transcriptStore) Lookup(id string) (domain.ConversationEntry, bool) {
	record, ok := s.index[id]
	if !ok {
		return domain.ConversationEntry{}, false
	}
	return record.entry, true
}

func (s *transcriptStore) Reset() {
	s.list = nil
	s.index = make(map[string]*transcriptRecord)
}

// Snapshot returns a copy of the rendered conversation.
func (s *transcriptStore) Snapshot() []domain.ConversationEntry {
	out := make([]domain.ConversationEntry, 0, len(s.list))
	for _, entry := range s.list {
		if entry.Role.Rendered() {
			out = append(out, entry)
		}
	}
	return out
}
