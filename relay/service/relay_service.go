package service

import (
	"context"
	"time"
)

// RelayService defines the introspection operations exposed over HTTP
type RelayService interface {
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	Stats(ctx context.Context) (*Stats, error)
}

// ConnectionCounter reports how many WebSocket connections are open
type ConnectionCounter interface {
	Connections() int
}

// SessionInfo describes one live session
type SessionInfo struct {
	ID         string    `json:"id"`
	ProducerID string    `json:"producer_id"`
	Consumers  int       `json:"consumers"`
	Payloads   uint64    `json:"payloads"`
	CreatedAt  time.Time `json:"created_at"`
	AgeSeconds float64   `json:"age_seconds"`
}

// Stats summarizes the relay as a whole
type Stats struct {
	Sessions    int       `json:"sessions"`
	Consumers   int       `json:"consumers"`
	Connections int       `json:"connections"`
	Payloads    uint64    `json:"payloads"`
	StartedAt   time.Time `json:"started_at"`
	Uptime      string    `json:"uptime"`
}
