package session

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrMissingSessionID  = errors.New("missing sessionId")
	ErrUnrecognizedRoute = errors.New("unrecognized route")
)

// Role is the part a connection plays in its session.
type Role int

const (
	RoleProducer Role = iota + 1
	RoleConsumer
)

// String returns the role name used in logs and metrics labels
func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "producer"
	case RoleConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

const (
	CreatePath     = "/create"
	JoinPath       = "/join"
	SessionIDParam = "sessionId"
)

// Binding is the immutable role and session assignment of one connection.
// It is decided once, before the upgrade, and never changes afterwards.
type Binding struct {
	Role      Role
	SessionID string
}

// Classify derives the binding for a request path and query.
// The path is matched by prefix, so "/create/" and "/create?x" both map to a producer.
func Classify(path string, query url.Values) (Binding, error) {
	var role Role
	switch {
	case strings.HasPrefix(path, CreatePath):
		role = RoleProducer
	case strings.HasPrefix(path, JoinPath):
		role = RoleConsumer
	default:
		return Binding{}, ErrUnrecognizedRoute
	}

	id := query.Get(SessionIDParam)
	if id == "" {
		return Binding{}, ErrMissingSessionID
	}

	return Binding{Role: role, SessionID: id}, nil
}
