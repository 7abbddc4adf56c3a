// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/omharigupta/datasynth/internal/domain"
)

// Repository persists KYB conversation sessions between turns.
type Repository interface {
	// GetSession retrieves a session by ID. It returns nil, nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpsertSession creates or replaces the stored session state.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// DeleteSession removes session state. The persisted KYB record is untouched.
	DeleteSession(ctx context.Context, sessionID string) error

	// ListUserSessions returns the sessions owned by a user, newest first.
	ListUserSessions(ctx context.Context, userID string) ([]*domain.Session, error)

	// CleanupExpiredSessions removes sessions idle longer than ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
