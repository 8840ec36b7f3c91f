package store

import (
	"testing"
	"time"

	"github.com/socialink/realtime-core/internal/domain/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id, sender, content string, ts time.Time) model.Message {
	return model.Message{
		ID:        id,
		SenderID:  sender,
		Content:   content,
		Timestamp: ts,
	}
}

func TestAppend_DuplicateID(t *testing.T) {
	s := NewMessageStore(time.Second)

	if !s.Append(msg("m1", "alice", "hi", t0)) {
		t.Fatal("first append rejected")
	}
	if s.Append(msg("m1", "alice", "different content", t0.Add(time.Minute))) {
		t.Error("duplicate id accepted")
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestAppend_NearDuplicateWindow(t *testing.T) {
	s := NewMessageStore(time.Second)
	s.Append(msg("m1", "alice", "hi", t0))

	// Same sender and content 500ms later: suppressed.
	if s.Append(msg("m2", "alice", "hi", t0.Add(500*time.Millisecond))) {
		t.Error("near-duplicate inside window accepted")
	}
	// 1500ms later: a legitimate repeat.
	if !s.Append(msg("m3", "alice", "hi", t0.Add(1500*time.Millisecond))) {
		t.Error("repeat outside window rejected")
	}
	// Same content from the other party is never a duplicate.
	if !s.Append(msg("m4", "bob", "hi", t0.Add(600*time.Millisecond))) {
		t.Error("same content from different sender rejected")
	}
}

func TestAppend_NearDuplicateOutOfOrder(t *testing.T) {
	s := NewMessageStore(time.Second)
	s.Append(msg("m1", "alice", "hi", t0))

	// The echo can arrive with an earlier timestamp than the optimistic
	// append; the window applies in both directions.
	if s.Append(msg("m2", "alice", "hi", t0.Add(-400*time.Millisecond))) {
		t.Error("near-duplicate with earlier timestamp accepted")
	}
}

func TestReplaceAll_SortsAndDedups(t *testing.T) {
	s := NewMessageStore(time.Second)
	s.Append(msg("old", "alice", "stale", t0))

	s.ReplaceAll([]model.Message{
		msg("m3", "bob", "three", t0.Add(3*time.Second)),
		msg("m1", "alice", "one", t0.Add(1*time.Second)),
		msg("m2", "bob", "two", t0.Add(2*time.Second)),
		msg("m1", "alice", "one again", t0.Add(5*time.Second)),
	})

	got := s.Messages()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if got[i].ID != want {
			t.Errorf("messages[%d].ID = %q, want %q", i, got[i].ID, want)
		}
	}

	// The id index must be rebuilt from the new contents.
	if s.Append(msg("m2", "x", "y", t0.Add(time.Hour))) {
		t.Error("id from replaced set accepted again")
	}
	if !s.Append(msg("old", "alice", "fresh", t0.Add(time.Hour))) {
		t.Error("id dropped by ReplaceAll still rejected")
	}
}

func TestClear(t *testing.T) {
	s := NewMessageStore(time.Second)
	s.Append(msg("m1", "alice", "hi", t0))
	s.Clear()

	if s.Len() != 0 {
		t.Errorf("len after clear = %d", s.Len())
	}
	if !s.Append(msg("m1", "alice", "hi", t0)) {
		t.Error("append after clear rejected")
	}
}
