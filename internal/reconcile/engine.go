// Package reconcile merges the two independent sources of conversation
// state, the REST-fetched snapshot and live new_message push events, into a
// single deduplicated, newest-first conversation list. Conflicts between
// the sources are resolved by timestamp alone, so the outcome does not
// depend on interleaving order.
package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/socialink/realtime-core/internal/domain/event"
	"github.com/socialink/realtime-core/internal/domain/model"
	"github.com/socialink/realtime-core/internal/service"
)

// Engine holds the active conversation set keyed by canonical key. At most
// one conversation per key exists; the record with the newer resolved
// timestamp wins outright on conflict — fields are never merged across
// sources, which would risk inconsistent partial states.
type Engine struct {
	logger    *slog.Logger
	directory service.Directory
	selfID    string

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	byKey map[string]*entry
	seq   uint64

	onChange func()
}

// entry pairs a conversation with its insertion sequence, which breaks
// timestamp ties so relative fetch order is preserved.
type entry struct {
	conv model.Conversation
	seq  uint64
}

func NewEngine(logger *slog.Logger, directory service.Directory, selfID string) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		logger:    logger,
		directory: directory,
		selfID:    selfID,
		ctx:       ctx,
		cancel:    cancel,
		byKey:     make(map[string]*entry),
	}
}

// SetOnChange registers a callback invoked after every mutation of the
// conversation set. Used by the UI layer to re-render.
func (e *Engine) SetOnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// Close cancels any in-flight directory lookups.
func (e *Engine) Close() {
	e.cancel()
}

// MergeSnapshot folds a full REST snapshot into the active set. Merging
// the same snapshot twice is a no-op: every record either wins by newer
// timestamp or leaves the existing entry untouched.
func (e *Engine) MergeSnapshot(convs []model.Conversation) {
	e.mu.Lock()
	for _, c := range convs {
		if c.Key == "" {
			c.Key = model.CanonicalKey(e.selfID, c.OtherUser.ID)
		}
		e.upsertLocked(c)
	}
	notify := e.onChange
	e.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// upsertLocked applies the timestamp-wins merge rule for one record.
func (e *Engine) upsertLocked(c model.Conversation) {
	existing, ok := e.byKey[c.Key]
	if !ok {
		e.seq++
		e.byKey[c.Key] = &entry{conv: c, seq: e.seq}
		return
	}

	if c.ResolvedTimestamp().After(existing.conv.ResolvedTimestamp()) {
		existing.conv = c
	}
}

// ApplyMessage folds a new_message push event into the set. A message for
// an unknown canonical key creates a provisional conversation that is
// usable immediately and upgraded in place once the directory lookup
// resolves; display never blocks on the lookup.
func (e *Engine) ApplyMessage(p *event.NewMessagePayload) {
	otherID := p.SenderID
	if otherID == e.selfID {
		otherID = p.ReceiverID
	}
	key := model.CanonicalKey(e.selfID, otherID)

	last := &model.LastMessage{
		ID:        p.MessageID,
		Content:   p.Content,
		Timestamp: p.Timestamp,
		SenderID:  p.SenderID,
	}

	e.mu.Lock()
	existing, ok := e.byKey[key]
	if ok {
		// Only a newer message may advance the conversation; replaying the
		// same event is a no-op.
		if existing.conv.LastMessage == nil || p.Timestamp.After(existing.conv.ResolvedTimestamp()) {
			existing.conv.LastMessage = last
			existing.conv.UpdatedAt = p.Timestamp
			if p.SenderID != e.selfID {
				existing.conv.UnreadCount++
			}
		}
		notify := e.onChange
		e.mu.Unlock()
		if notify != nil {
			notify()
		}
		return
	}

	// New conversation from push: start from whatever sender metadata the
	// event carried, fall back to a generated placeholder.
	other := model.Placeholder(otherID)
	if otherID == p.SenderID {
		if p.SenderName != "" {
			other.Name = p.SenderName
		}
		other.Avatar = p.SenderAvatar
	}

	conv := model.Conversation{
		ID:          p.Conversation.ID,
		Key:         key,
		OtherUser:   other,
		LastMessage: last,
		CreatedAt:   p.Timestamp,
		UpdatedAt:   p.Timestamp,
		Provisional: true,
	}
	if p.SenderID != e.selfID {
		conv.UnreadCount = 1
	}

	e.seq++
	e.byKey[key] = &entry{conv: conv, seq: e.seq}
	notify := e.onChange
	e.mu.Unlock()

	if notify != nil {
		notify()
	}

	go e.resolveIdentity(key, otherID)
}

// resolveIdentity upgrades a provisional conversation in place once the
// directory lookup succeeds. A lookup that loses the race against a
// snapshot merge, or whose conversation has meanwhile been replaced by a
// resolved record, applies nothing.
func (e *Engine) resolveIdentity(key, otherID string) {
	user, err := e.directory.Resolve(e.ctx, otherID)
	if err != nil {
		e.logger.Debug("identity stays provisional", "key", key, "user_id", otherID, "err", err)
		return
	}

	e.mu.Lock()
	existing, ok := e.byKey[key]
	if !ok || !existing.conv.Provisional {
		e.mu.Unlock()
		return
	}
	existing.conv.OtherUser = user
	existing.conv.Provisional = false
	notify := e.onChange
	e.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// MarkRead clears the unread counter of a conversation, called when the
// user opens it.
func (e *Engine) MarkRead(key string) {
	e.mu.Lock()
	if existing, ok := e.byKey[key]; ok {
		existing.conv.UnreadCount = 0
	}
	e.mu.Unlock()
}

// Get returns the conversation for a canonical key.
func (e *Engine) Get(key string) (model.Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	existing, ok := e.byKey[key]
	if !ok {
		return model.Conversation{}, false
	}
	return existing.conv, true
}

// Conversations returns the merged set sorted newest-first by resolved
// timestamp; timestamp ties keep insertion order. The sort and copy run
// under the lock: entries are mutated in place by concurrent pushes and
// identity upgrades, so nothing may read them unlocked.
func (e *Engine) Conversations() []model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := make([]*entry, 0, len(e.byKey))
	for _, en := range e.byKey {
		entries = append(entries, en)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].conv.ResolvedTimestamp(), entries[j].conv.ResolvedTimestamp()
		if ti.Equal(tj) {
			return entries[i].seq < entries[j].seq
		}
		return ti.After(tj)
	})

	out := make([]model.Conversation, len(entries))
	for i, en := range entries {
		out[i] = en.conv
	}
	return out
}

// ProvisionalUsers returns the other-participant ids of conversations
// still carrying a placeholder identity.
func (e *Engine) ProvisionalUsers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0)
	for _, en := range e.byKey {
		if en.conv.Provisional {
			out = append(out, en.conv.OtherUser.ID)
		}
	}
	return out
}

// Len returns the number of active conversations.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byKey)
}
