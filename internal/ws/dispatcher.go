package ws

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/socialink/realtime-core/internal/domain/event"
	"github.com/socialink/realtime-core/internal/metrics"
)

// Handler consumes a parsed inbound event. Handlers registered through
// OnMessage receive new_message events only; presence, typing, and pong
// events are consumed internally.
type Handler func(ev *event.Inbound)

// Transport is the slice of the connection manager the dispatcher needs.
type Transport interface {
	WriteCommand(cmd event.Command) bool
	NotePong()
}

// PresenceSink receives presence and typing events. Satisfied by the
// presence tracker.
type PresenceSink interface {
	HandleEvent(ev *event.Inbound)
}

// Dispatcher parses raw frames into typed events and routes them:
// new_message fans out to every registered handler, presence and typing
// events go to the presence sink, pong feeds the heartbeat liveness check,
// and malformed frames are dropped without disturbing the event loop.
type Dispatcher struct {
	logger   *slog.Logger
	presence PresenceSink

	mu        sync.RWMutex
	transport Transport
	handlers  map[uuid.UUID]Handler
}

func NewDispatcher(logger *slog.Logger, presence PresenceSink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		presence: presence,
		handlers: make(map[uuid.UUID]Handler),
	}
}

// BindTransport attaches the outbound path; the dispatcher is created
// before the manager, so binding is a second phase.
func (d *Dispatcher) BindTransport(t Transport) {
	d.mu.Lock()
	d.transport = t
	d.mu.Unlock()
}

// Send serializes a command onto the wire. Best-effort: false when no
// transport is bound or it is not open, so callers treat sends as lossy
// and surface failures themselves.
func (d *Dispatcher) Send(cmd event.Command) bool {
	d.mu.RLock()
	t := d.transport
	d.mu.RUnlock()
	if t == nil {
		metrics.SendFailuresTotal.Inc()
		return false
	}
	return t.WriteCommand(cmd)
}

// OnMessage registers a handler for new_message events and returns its
// unregister callback. Register on mount, call the callback on teardown.
func (d *Dispatcher) OnMessage(h Handler) (unregister func()) {
	id := uuid.New()
	d.mu.Lock()
	d.handlers[id] = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.handlers, id)
		d.mu.Unlock()
	}
}

// HandlerCount returns the number of registered new_message handlers.
func (d *Dispatcher) HandlerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// HandleFrame ingests one raw inbound frame. Parse failures are counted
// and logged at debug level, then dropped; a malformed server frame must
// never take the event loop down.
func (d *Dispatcher) HandleFrame(data []byte) {
	ev, err := event.Parse(data)
	if err != nil {
		metrics.FramesDroppedTotal.Inc()
		d.logger.Debug("dropping malformed frame", "err", err)
		return
	}

	metrics.FramesTotal.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case event.KindPong:
		d.mu.RLock()
		t := d.transport
		d.mu.RUnlock()
		if t != nil {
			t.NotePong()
		}

	case event.KindJoined:
		d.logger.Debug("join acknowledged")

	case event.KindUserOnline, event.KindUserOffline, event.KindTypingStart, event.KindTypingStop:
		if d.presence != nil {
			d.presence.HandleEvent(ev)
		}

	case event.KindNewMessage:
		d.mu.RLock()
		handlers := make([]Handler, 0, len(d.handlers))
		for _, h := range d.handlers {
			handlers = append(handlers, h)
		}
		d.mu.RUnlock()

		for _, h := range handlers {
			h(ev)
		}

	case event.KindUnknown:
		d.logger.Debug("dropping unknown event type")
	}
}
