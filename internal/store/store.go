// Package store holds the ordered, deduplicated message list of the
// currently open conversation. It is a session-scoped cache for the UI;
// the message persistence API remains the source of truth, so a full
// refresh always reconciles state.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/socialink/realtime-core/internal/domain/model"
)

// DefaultDuplicateWindow is the near-duplicate suppression window applied
// when none is configured.
const DefaultDuplicateWindow = time.Second

// MessageStore is updated by both historical fetch and live push. Appends
// are rejected for duplicate ids and for near-duplicates: a message from
// the same sender with identical content within the duplicate window, which
// covers double delivery from overlapping fetch/push paths.
type MessageStore struct {
	mu     sync.RWMutex
	msgs   []model.Message
	byID   map[string]struct{}
	window time.Duration
}

func NewMessageStore(window time.Duration) *MessageStore {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &MessageStore{
		byID:   make(map[string]struct{}),
		window: window,
	}
}

// Append adds a message unless it duplicates an existing one. It returns
// true when the message was stored.
func (s *MessageStore) Append(m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[m.ID]; ok {
		return false
	}
	if s.isNearDuplicate(m) {
		return false
	}

	s.msgs = append(s.msgs, m)
	s.byID[m.ID] = struct{}{}
	return true
}

// isNearDuplicate reports whether an existing message from the same sender
// carries identical content within the duplicate window of m.
func (s *MessageStore) isNearDuplicate(m model.Message) bool {
	for i := len(s.msgs) - 1; i >= 0; i-- {
		prev := s.msgs[i]
		if prev.SenderID != m.SenderID || prev.Content != m.Content {
			continue
		}
		gap := m.Timestamp.Sub(prev.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if gap < s.window {
			return true
		}
	}
	return false
}

// ReplaceAll swaps the full contents, used when switching the active
// conversation or after a refresh. Messages are sorted ascending by
// timestamp before storing.
func (s *MessageStore) ReplaceAll(msgs []model.Message) {
	sorted := make([]model.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	byID := make(map[string]struct{}, len(sorted))
	deduped := sorted[:0]
	for _, m := range sorted {
		if _, ok := byID[m.ID]; ok {
			continue
		}
		byID[m.ID] = struct{}{}
		deduped = append(deduped, m)
	}

	s.mu.Lock()
	s.msgs = deduped
	s.byID = byID
	s.mu.Unlock()
}

// Messages returns a snapshot of the stored messages in ascending
// timestamp order.
func (s *MessageStore) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Clear empties the store, used on logout.
func (s *MessageStore) Clear() {
	s.mu.Lock()
	s.msgs = nil
	s.byID = make(map[string]struct{})
	s.mu.Unlock()
}
