package devserver

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// client is one connected WebSocket session.
type client struct {
	userID  string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// write sends a JSON text frame, serializing concurrent writers.
func (c *client) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// hub is the registry of live sessions, keyed by user id. A user may hold
// several sessions (tabs); events fan out to all of them.
type hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:  logger,
		clients: make(map[string]map[*client]struct{}),
	}
}

// add registers a session and reports whether this is the user's first.
func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	return len(set) == 1
}

// remove drops a session and reports whether the user has none left.
func (h *hub) remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
		return true
	}
	return false
}

// isOnline reports whether a user has at least one live session.
func (h *hub) isOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// sendTo delivers an event to every session of one user.
func (h *hub) sendTo(userID string, v any) {
	h.mu.RLock()
	targets := make([]*client, 0, 2)
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(v); err != nil {
			h.logger.Debug("devserver send failed", "user_id", userID, "err", err)
		}
	}
}

// broadcast delivers an event to every user except the excluded one.
func (h *hub) broadcast(except string, v any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for userID, set := range h.clients {
		if userID == except {
			continue
		}
		for c := range set {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(v); err != nil {
			h.logger.Debug("devserver broadcast failed", "err", err)
		}
	}
}
