// Package ws owns the WebSocket side of the realtime core: the single
// connection per user session with its reconnect, heartbeat, and teardown
// lifecycle, and the dispatcher that fans parsed inbound events out to the
// rest of the subsystem.
package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/socialink/realtime-core/internal/domain/event"
	"github.com/socialink/realtime-core/internal/metrics"
)

// State is the connection lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// missedPongLimit is the number of heartbeat intervals without a pong
// after which the transport is considered dead and force-closed, routing
// through the normal reconnect path.
const missedPongLimit = 2

// Options tunes the connection lifecycle.
type Options struct {
	// URL is the WebSocket endpoint.
	URL string
	// HandshakeTimeout bounds the dial; an attempt that has not produced
	// an open connection within it counts as failed.
	HandshakeTimeout time.Duration
	// HeartbeatInterval is the fixed ping cadence.
	HeartbeatInterval time.Duration
	Backoff           Backoff
}

// Identity is the local user announced in the join command.
type Identity struct {
	UserID string
	Info   event.UserInfo
}

// Manager owns one WebSocket connection per active user session. connect
// is idempotent, reconnects are scheduled with capped exponential backoff,
// and the only externally observable state transition is the connected
// flag.
type Manager struct {
	logger   *slog.Logger
	opts     Options
	identity Identity

	// onFrame receives every raw inbound frame; bound to the dispatcher.
	onFrame func(data []byte)

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	attempt        int
	reconnectTimer *time.Timer
	hbStop         chan struct{}
	lastPong       time.Time
	// gen distinguishes connection generations so a stale read loop from
	// a superseded connection cannot tear down its successor.
	gen uint64

	writeMu sync.Mutex

	connected atomic.Bool
	subsMu    sync.RWMutex
	stateSubs []func(connected bool)
}

func NewManager(logger *slog.Logger, opts Options, identity Identity) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	return &Manager{
		logger:   logger,
		opts:     opts,
		identity: identity,
	}
}

// BindFrameHandler attaches the inbound frame consumer. The manager and
// dispatcher are created independently, so binding happens in a second
// phase before Connect.
func (m *Manager) BindFrameHandler(fn func(data []byte)) {
	m.mu.Lock()
	m.onFrame = fn
	m.mu.Unlock()
}

// OnStateChange registers an observer of the connected flag. Observers are
// invoked synchronously on every open/close transition.
func (m *Manager) OnStateChange(fn func(connected bool)) {
	m.subsMu.Lock()
	m.stateSubs = append(m.stateSubs, fn)
	m.subsMu.Unlock()
}

// IsConnected reports whether the transport is currently open.
func (m *Manager) IsConnected() bool {
	return m.connected.Load()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the transport. It is idempotent: a no-op while a
// connection is open or an attempt is in flight. A failed dial counts as a
// failed attempt and schedules a reconnect.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.state = StateConnecting
	url := m.opts.URL
	m.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: m.opts.HandshakeTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		m.mu.Lock()
		// Only Disconnect can move the state away from connecting while
		// the dial is in flight; in that case the session is over and no
		// retry may be scheduled.
		superseded := m.state != StateConnecting
		m.state = StateClosed
		m.mu.Unlock()
		if superseded {
			return nil
		}

		metrics.ReconnectsTotal.WithLabelValues("failure").Inc()
		m.logger.Warn("connect failed", "url", url, "err", err)
		m.scheduleReconnect()
		return fmt.Errorf("ws: connect %s: %w", url, err)
	}

	hbStop := make(chan struct{})

	m.mu.Lock()
	if m.state != StateConnecting {
		// Disconnect landed inside the dial window; the fresh connection
		// must not outlive the session it was dialed for.
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.conn = conn
	m.state = StateOpen
	m.attempt = 0
	m.gen++
	gen := m.gen
	m.hbStop = hbStop
	m.lastPong = time.Now()
	m.mu.Unlock()

	m.setConnected(true)
	metrics.ReconnectsTotal.WithLabelValues("success").Inc()
	m.logger.Info("connection open", "url", url)

	// Announce the session before anything else goes over the wire.
	m.WriteCommand(event.NewJoin(m.identity.UserID, m.identity.Info))

	go m.readLoop(conn, gen)
	go m.heartbeatLoop(gen, hbStop)

	return nil
}

// Resume triggers an immediate reconnect attempt, used when the host
// regains network connectivity or the UI becomes visible again. A no-op if
// a connection is open or in flight; otherwise the attempt counter is
// reset so the retry is prompt.
func (m *Manager) Resume() {
	m.mu.Lock()
	if m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.attempt = 0
	m.mu.Unlock()

	go func() { _ = m.Connect() }()
}

// Disconnect tears the connection down for good: cancels pending reconnect
// timers and the heartbeat, closes the transport with a normal-closure
// code, and leaves the manager in the closed state. Presence state is
// cleared through the state-change observers.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	conn := m.conn
	if conn == nil {
		m.state = StateClosed
		m.mu.Unlock()
		return
	}
	m.state = StateClosing
	m.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	m.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	m.writeMu.Unlock()
	_ = conn.Close()
	// The read loop observes the close and finishes teardown.
}

// WriteCommand serializes and sends an outbound command. Best-effort: it
// returns false, never an error, when the transport is not open.
func (m *Manager) WriteCommand(cmd event.Command) bool {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		metrics.SendFailuresTotal.Inc()
		return false
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		m.logger.Error("marshal command failed", "type", cmd.CommandType(), "err", err)
		return false
	}

	m.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		m.logger.Warn("send failed", "type", cmd.CommandType(), "err", err)
		metrics.SendFailuresTotal.Inc()
		return false
	}
	return true
}

// NotePong records heartbeat liveness; called by the dispatcher when a
// pong frame arrives.
func (m *Manager) NotePong() {
	m.mu.Lock()
	m.lastPong = time.Now()
	m.mu.Unlock()
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}

		m.mu.Lock()
		onFrame := m.onFrame
		m.mu.Unlock()
		if onFrame != nil {
			onFrame(data)
		}
	}
}

// handleClose finishes teardown after the read loop exits. Closes from a
// superseded generation are ignored; closes during an intentional
// Disconnect do not schedule a reconnect.
func (m *Manager) handleClose(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	intentional := m.state == StateClosing
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
	m.state = StateClosed
	m.mu.Unlock()

	m.setConnected(false)
	if intentional {
		m.logger.Info("connection closed")
		return
	}

	m.logger.Warn("connection lost", "err", cause)
	m.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer for the next attempt. Exactly
// one timer is pending at a time.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.state != StateClosed || m.reconnectTimer != nil {
		m.mu.Unlock()
		return
	}

	delay := m.opts.Backoff.Delay(m.attempt)
	m.attempt = m.opts.Backoff.NextAttempt(m.attempt)
	attempt := m.attempt

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		m.mu.Unlock()
		_ = m.Connect()
	})
	m.mu.Unlock()

	metrics.ReconnectsTotal.WithLabelValues("scheduled").Inc()
	m.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
}

// heartbeatLoop pings on a fixed cadence and force-closes the transport
// when too many intervals pass without a pong, which reuses the reconnect
// path for recovery.
func (m *Manager) heartbeatLoop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if gen != m.gen || m.state != StateOpen {
				m.mu.Unlock()
				return
			}
			silent := time.Since(m.lastPong)
			conn := m.conn
			m.mu.Unlock()

			if silent > time.Duration(missedPongLimit)*m.opts.HeartbeatInterval {
				m.logger.Warn("heartbeat timeout, forcing reconnect", "silent", silent.Round(time.Second))
				if conn != nil {
					_ = conn.Close()
				}
				return
			}

			m.WriteCommand(event.NewPing())
		}
	}
}

func (m *Manager) setConnected(connected bool) {
	m.connected.Store(connected)
	if connected {
		metrics.Connected.Set(1)
	} else {
		metrics.Connected.Set(0)
	}

	m.subsMu.RLock()
	subs := make([]func(bool), len(m.stateSubs))
	copy(subs, m.stateSubs)
	m.subsMu.RUnlock()
	for _, fn := range subs {
		fn(connected)
	}
}
