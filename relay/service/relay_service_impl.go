package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wricardo/session-relay/relay/session"
)

// relayServiceImpl implements RelayService over a session registry
type relayServiceImpl struct {
	registry  *session.Registry
	conns     ConnectionCounter
	startedAt time.Time
	now       func() time.Time
}

// NewRelayService creates the introspection service. conns may be nil, in
// which case Stats reports zero open connections.
func NewRelayService(registry *session.Registry, conns ConnectionCounter) RelayService {
	return &relayServiceImpl{
		registry:  registry,
		conns:     conns,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// ListSessions returns every live session ordered by ID
func (s *relayServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := s.registry.Sessions()
	sessions := make([]*SessionInfo, 0, len(snapshot))
	for _, info := range snapshot {
		sessions = append(sessions, s.toInfo(info))
	}
	return sessions, nil
}

// GetSession returns one session, wrapping session.ErrSessionNotFound when absent
func (s *relayServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := s.registry.Session(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return s.toInfo(info), nil
}

// Stats aggregates counts across all sessions
func (s *relayServiceImpl) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &Stats{StartedAt: s.startedAt}
	for _, info := range s.registry.Sessions() {
		stats.Sessions++
		stats.Consumers += info.Consumers
		stats.Payloads += info.Payloads
	}
	if s.conns != nil {
		stats.Connections = s.conns.Connections()
	}
	stats.Uptime = s.now().Sub(s.startedAt).Truncate(time.Second).String()
	return stats, nil
}

func (s *relayServiceImpl) toInfo(info session.SessionInfo) *SessionInfo {
	return &SessionInfo{
		ID:         info.ID,
		ProducerID: info.ProducerID,
		Consumers:  info.Consumers,
		Payloads:   info.Payloads,
		CreatedAt:  info.CreatedAt,
		AgeSeconds: s.now().Sub(info.CreatedAt).Seconds(),
	}
}
