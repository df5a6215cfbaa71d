package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
)

// Conn is the part of a live connection the registry needs for fan-out.
// The registry never owns a Conn: it only keeps references for bookkeeping
// and hands them back to the caller on teardown.
type Conn interface {
	// ID identifies the connection for set membership
	ID() string

	// Send queues a payload for delivery. It must not block on a slow peer.
	Send(payload string) error

	// Close force-closes the connection. Calling it more than once is harmless.
	Close() error
}

// Observer receives registry events, typically for metrics.
type Observer interface {
	SessionCreated(id string)
	SessionDestroyed(id string, consumers int)
	ConsumerJoined(id string)
	ConsumerLeft(id string)
	Broadcasted(id string, d Delivery)
}

// Delivery summarises one broadcast
type Delivery struct {
	Recipients int `json:"recipients"`
	Failed     int `json:"failed"`
}

// SessionInfo is a point-in-time view of one session
type SessionInfo struct {
	ID         string    `json:"id"`
	ProducerID string    `json:"producer_id"`
	Consumers  int       `json:"consumers"`
	Payloads   uint64    `json:"payloads"`
	CreatedAt  time.Time `json:"created_at"`
}

type entry struct {
	producer  Conn
	consumers map[string]Conn
	payloads  uint64
	createdAt time.Time
}

// Registry maps session IDs to their producer and consumers.
// All structural changes go through a single mutex; sends happen outside it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	observer Observer
	log      zerolog.Logger
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(logger zerolog.Logger, observer Observer) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		observer: observer,
		log:      logger.With().Str("component", "registry").Logger(),
	}
}

// Create binds producer to a fresh session.
// A live session with the same ID is left untouched and ErrSessionAlreadyExists is returned.
func (r *Registry) Create(id string, producer Conn) error {
	if id == "" {
		return ErrMissingSessionID
	}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return ErrSessionAlreadyExists
	}
	r.sessions[id] = &entry{
		producer:  producer,
		consumers: make(map[string]Conn),
		createdAt: time.Now(),
	}
	r.mu.Unlock()

	r.log.Info().Str("session_id", id).Str("conn_id", producer.ID()).Msg("Session created")
	if r.observer != nil {
		r.observer.SessionCreated(id)
	}
	return nil
}

// Destroy removes the session and returns the consumers that were attached to it.
// The caller must close every returned connection. Unknown IDs yield nil.
func (r *Registry) Destroy(id string) []Conn {
	r.mu.Lock()
	e, exists := r.sessions[id]
	if !exists {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	removed := make([]Conn, 0, len(e.consumers))
	for _, c := range e.consumers {
		removed = append(removed, c)
	}

	r.log.Info().
		Str("session_id", id).
		Int("consumers", len(removed)).
		Uint64("payloads", e.payloads).
		Msg("Session destroyed")
	if r.observer != nil {
		r.observer.SessionDestroyed(id, len(removed))
	}
	return removed
}

// Join adds consumer to an existing session
func (r *Registry) Join(id string, consumer Conn) error {
	r.mu.Lock()
	e, exists := r.sessions[id]
	if !exists {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	if _, dup := e.consumers[consumer.ID()]; dup {
		r.mu.Unlock()
		return nil
	}
	e.consumers[consumer.ID()] = consumer
	total := len(e.consumers)
	r.mu.Unlock()

	r.log.Info().
		Str("session_id", id).
		Str("conn_id", consumer.ID()).
		Int("consumers", total).
		Msg("Consumer joined")
	if r.observer != nil {
		r.observer.ConsumerJoined(id)
	}
	return nil
}

// Leave removes consumer from the session. It is a no-op when either is gone,
// which covers a leave racing with Destroy.
func (r *Registry) Leave(id string, consumer Conn) {
	r.mu.Lock()
	e, exists := r.sessions[id]
	if !exists {
		r.mu.Unlock()
		return
	}
	current, member := e.consumers[consumer.ID()]
	if !member || current != consumer {
		r.mu.Unlock()
		return
	}
	delete(e.consumers, consumer.ID())
	remaining := len(e.consumers)
	r.mu.Unlock()

	r.log.Info().
		Str("session_id", id).
		Str("conn_id", consumer.ID()).
		Int("consumers", remaining).
		Msg("Consumer left")
	if r.observer != nil {
		r.observer.ConsumerLeft(id)
	}
}

// Broadcast sends payload to every consumer attached at call time.
// A failed send is counted and logged but never changes membership.
func (r *Registry) Broadcast(id string, payload string) Delivery {
	r.mu.Lock()
	e, exists := r.sessions[id]
	if !exists {
		r.mu.Unlock()
		return Delivery{}
	}
	e.payloads++
	snapshot := make([]Conn, 0, len(e.consumers))
	for _, c := range e.consumers {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()

	d := Delivery{Recipients: len(snapshot)}
	for _, c := range snapshot {
		if err := c.Send(payload); err != nil {
			d.Failed++
			r.log.Warn().
				Err(err).
				Str("session_id", id).
				Str("conn_id", c.ID()).
				Msg("Failed to send to consumer")
		}
	}

	if r.observer != nil {
		r.observer.Broadcasted(id, d)
	}
	return d
}

// Session returns a view of one session
func (r *Registry) Session(id string) (SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.sessions[id]
	if !exists {
		return SessionInfo{}, ErrSessionNotFound
	}
	return e.info(id), nil
}

// Sessions returns a view of every live session, ordered by ID
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	result := make([]SessionInfo, 0, len(r.sessions))
	for id, e := range r.sessions {
		result = append(result, e.info(id))
	}
	r.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Producers returns the producer of every live session.
// Closing them drives each session through its normal teardown.
func (r *Registry) Producers() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Conn, 0, len(r.sessions))
	for _, e := range r.sessions {
		result = append(result, e.producer)
	}
	return result
}

func (e *entry) info(id string) SessionInfo {
	return SessionInfo{
		ID:         id,
		ProducerID: e.producer.ID(),
		Consumers:  len(e.consumers),
		Payloads:   e.payloads,
		CreatedAt:  e.createdAt,
	}
}
