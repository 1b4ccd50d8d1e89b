package v1

import (
	"context"
	"time"

	"github.com/gosuda/tasktrail/internal/audit"
	"github.com/gosuda/tasktrail/internal/auth"
	"github.com/gosuda/tasktrail/internal/domain"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Users() domain.UserRepository
	Projects() domain.ProjectRepository
	Tasks() domain.TaskRepository
	Audit() domain.AuditRepository
}

// AuditRecorder captures mutations on a best-effort basis.
// *audit.Recorder satisfies this interface.
type AuditRecorder interface {
	Track(ctx context.Context, ev audit.Event)
}

// AuditQuerier serves audit timelines.
// *audit.QueryService satisfies this interface.
type AuditQuerier interface {
	EntityHistory(ctx context.Context, entityType, entityID string, p audit.Page, tr audit.TimeRange) ([]*domain.AuditLogEntry, error)
	UserActivity(ctx context.Context, userID string, p audit.Page, tr audit.TimeRange) ([]*domain.AuditLogEntry, error)
	RecentActivity(ctx context.Context, limit int, tr audit.TimeRange) ([]*domain.AuditLogEntry, error)
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Register(ctx context.Context, email, password, name string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, auth.Tokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
	NewUser(email, password, name, role string) (*domain.User, error)
}

// StatsCache is an optional read-through cache for dashboard aggregates.
// *redis.PubSub satisfies this interface.
type StatsCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}
