package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wricardo/session-relay/relay/session"
)

// RejectionCounter records refused connections, typically into metrics
type RejectionCounter interface {
	Rejected(reason string)
}

// Handler upgrades /create and /join requests and drives each connection
// through its lifecycle against the session registry.
type Handler struct {
	registry *session.Registry
	upgrader websocket.Upgrader
	opts     Options
	rejects  RejectionCounter
	log      zerolog.Logger

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	closing bool
	active  sync.WaitGroup
}

// NewHandler creates a lifecycle handler. rejects may be nil.
func NewHandler(registry *session.Registry, opts Options, logger zerolog.Logger, rejects RejectionCounter) *Handler {
	return &Handler{
		registry: registry,
		opts:     opts,
		rejects:  rejects,
		log:      logger.With().Str("component", "websocket").Logger(),
		conns:    make(map[*Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Session IDs are the only gate; origins are not checked
				return true
			},
		},
	}
}

// ServeHTTP classifies the request, upgrades it and serves the connection
// until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	binding, err := session.Classify(r.URL.Path, r.URL.Query())
	if err != nil {
		status := http.StatusNotFound
		reason := "unrecognized_route"
		if errors.Is(err, session.ErrMissingSessionID) {
			status = http.StatusBadRequest
			reason = "missing_session_id"
		}
		h.reject(reason)
		h.log.Info().
			Err(err).
			Str("path", r.URL.Path).
			Str("ip", r.RemoteAddr).
			Msg("Rejected connection before upgrade")
		http.Error(w, err.Error(), status)
		return
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	h.active.Add(1)
	h.mu.Unlock()
	defer h.active.Done()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.reject("upgrade_failed")
		h.log.Warn().Err(err).Str("ip", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	c := newConn(ws, binding, h.opts, h.log)
	h.track(c)
	defer h.untrack(c)

	go c.writePump()
	h.serve(c)
	c.Wait()
}

// serve runs the connection from admission to teardown
func (h *Handler) serve(c *Conn) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error().Interface("panic", rec).Msg("Connection handler panicked")
			c.CloseWith(websocket.CloseInternalServerErr, "internal error")
		}
	}()

	id := c.binding.SessionID

	switch c.binding.Role {
	case session.RoleProducer:
		if err := h.registry.Create(id, c); err != nil {
			h.reject("session_exists")
			c.log.Info().Err(err).Msg("Rejected producer")
			c.CloseWith(CloseSessionExists, err.Error())
			return
		}
		defer h.teardownProducer(c)

	case session.RoleConsumer:
		if err := h.registry.Join(id, c); err != nil {
			h.reject("session_not_found")
			c.log.Info().Err(err).Msg("Rejected consumer")
			c.CloseWith(CloseSessionNotFound, err.Error())
			return
		}
		defer h.teardownConsumer(c)

	default:
		c.CloseWith(websocket.ClosePolicyViolation, "unknown role")
		return
	}

	c.setState(StateActive)
	c.prepareRead()

	for {
		payload, err := c.receive()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("WebSocket error")
			}
			break
		}

		switch c.binding.Role {
		case session.RoleProducer:
			h.registry.Broadcast(id, payload)
		case session.RoleConsumer:
			// Consumers are receive-only
			c.log.Debug().Int("bytes", len(payload)).Msg("Discarded consumer payload")
		}
	}

	c.setState(StateClosing)
}

// teardownProducer ends the session and closes every consumer still attached to it
func (h *Handler) teardownProducer(c *Conn) {
	consumers := h.registry.Destroy(c.binding.SessionID)
	for _, consumer := range consumers {
		if wc, ok := consumer.(*Conn); ok {
			wc.CloseWith(CloseSessionEnded, "session ended")
			continue
		}
		consumer.Close()
	}
	c.Close()
}

func (h *Handler) teardownConsumer(c *Conn) {
	h.registry.Leave(c.binding.SessionID, c)
	c.Close()
}

func (h *Handler) reject(reason string) {
	if h.rejects != nil {
		h.rejects.Rejected(reason)
	}
}

func (h *Handler) track(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Handler) untrack(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Connections returns the number of upgraded connections still open
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown refuses new connections, closes producers so their sessions tear
// down, closes whatever is left and waits for every connection to finish.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, producer := range h.registry.Producers() {
		if wc, ok := producer.(*Conn); ok {
			wc.CloseWith(websocket.CloseGoingAway, "server shutting down")
			continue
		}
		producer.Close()
	}
	for _, c := range conns {
		c.CloseWith(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Int("connections", len(conns)).Msg("All connections closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
