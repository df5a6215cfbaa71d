package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wricardo/session-relay/relay/session"
)

// Close codes sent to peers when the relay ends a connection
const (
	CloseSessionEnded    = websocket.CloseGoingAway
	CloseSessionNotFound = 4004
	CloseSessionExists   = 4009
)

var (
	ErrConnClosed    = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// State is a connection's position in its lifecycle
type State int32

const (
	StateConnecting State = iota
	StateUpgrading
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUpgrading:
		return "upgrading"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tunes per-connection limits and timing
type Options struct {
	// Maximum message size allowed from peer.
	MaxMessageSize int64

	// Payloads that may wait for the writer before Send fails.
	SendQueueSize int

	// Time allowed to write a message to the peer.
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration
}

// DefaultOptions returns the limits used when none are configured
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: 65536,
		SendQueueSize:  256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
	}
}

// Send pings to peer with this period. Must be less than PongWait.
func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Conn is an upgraded websocket connection bound to one session role.
// Outbound payloads go through a FIFO drained by a single writer goroutine,
// so Send never blocks on the peer.
type Conn struct {
	id      string
	binding session.Binding
	ws      *websocket.Conn
	opts    Options
	log     zerolog.Logger

	state atomic.Int32

	mu        sync.Mutex
	pending   *queue.Queue
	closed    bool
	closeCode int
	closeText string

	notify     chan struct{}
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

var _ session.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn, binding session.Binding, opts Options, logger zerolog.Logger) *Conn {
	c := &Conn{
		id:         uuid.NewString(),
		binding:    binding,
		ws:         ws,
		opts:       opts,
		pending:    queue.New(),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.log = logger.With().
		Str("conn_id", c.id).
		Str("session_id", binding.SessionID).
		Str("role", binding.Role.String()).
		Logger()
	c.setState(StateUpgrading)
	return c
}

// ID returns the connection's unique identifier
func (c *Conn) ID() string {
	return c.id
}

// Binding returns the role and session assigned at handshake
func (c *Conn) Binding() session.Binding {
	return c.binding
}

// State returns the current lifecycle state
func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("Connection state changed")
	}
}

// Send queues payload as a text frame
func (c *Conn) Send(payload string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.pending.Length() >= c.opts.SendQueueSize {
		c.mu.Unlock()
		return ErrSendQueueFull
	}
	c.pending.Add(payload)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close closes the connection with a normal close code
func (c *Conn) Close() error {
	return c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith closes the connection, telling the peer code and reason.
// Only the first call has any effect. Payloads already queued are flushed first.
func (c *Conn) CloseWith(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.closeCode = code
		c.closeText = reason
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// Wait blocks until the socket has been closed
func (c *Conn) Wait() {
	<-c.writerDone
}

// receive blocks for the next text payload. Other data frames are skipped.
func (c *Conn) receive() (string, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType != websocket.TextMessage {
			c.log.Debug().Int("type", messageType).Msg("Ignoring non-text frame")
			continue
		}
		return string(data), nil
	}
}

func (c *Conn) prepareRead() {
	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})
}

// writePump pumps queued payloads and pings to the websocket connection.
// It is the only goroutine that writes data frames and the only one that
// closes the socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.setState(StateClosed)
		close(c.writerDone)
	}()

	for {
		select {
		case <-c.done:
			if err := c.flush(); err != nil {
				c.log.Debug().Err(err).Msg("Dropped queued payloads on close")
			}
			c.mu.Lock()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			c.mu.Unlock()
			c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
			return

		case <-c.notify:
			if err := c.flush(); err != nil {
				c.log.Debug().Err(err).Msg("Write failed")
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

// flush writes queued payloads in order until the queue is empty
func (c *Conn) flush() error {
	for {
		c.mu.Lock()
		if c.pending.Length() == 0 {
			c.mu.Unlock()
			return nil
		}
		payload := c.pending.Remove().(string)
		c.mu.Unlock()

		c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return err
		}
	}
}
