package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditEntityType is the closed set of auditable entity kinds.
type AuditEntityType string

const (
	AuditEntityProject AuditEntityType = "PROJECT"
	AuditEntityTask    AuditEntityType = "TASK"
	AuditEntityUser    AuditEntityType = "USER"
)

// Valid reports whether t is one of the known entity kinds.
func (t AuditEntityType) Valid() bool {
	switch t {
	case AuditEntityProject, AuditEntityTask, AuditEntityUser:
		return true
	default:
		return false
	}
}

// ParseAuditEntityType matches s case-insensitively against the known
// entity kinds and returns the canonical (upper-case) value.
func ParseAuditEntityType(s string) (AuditEntityType, error) {
	t := AuditEntityType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidEntityType
	}
	return t, nil
}

// AuditAction classifies the mutation that produced an entry.
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete:
		return true
	default:
		return false
	}
}

// Snapshot is a point-in-time copy of an entity's public fields. The audit
// trail stores it as-is and never interprets its contents.
type Snapshot map[string]any

// AuditChanges carries the before/after snapshots of a mutation.
// CREATE sets only After, DELETE only Before, UPDATE both.
type AuditChanges struct {
	Before Snapshot `json:"before,omitempty"`
	After  Snapshot `json:"after,omitempty"`
}

// AuditLogEntry is an immutable record of one mutation event.
type AuditLogEntry struct {
	ID          uuid.UUID       `json:"id"`
	EntityType  AuditEntityType `json:"entityType"`
	EntityID    string          `json:"entityId"`
	Action      AuditAction     `json:"action"`
	Changes     AuditChanges    `json:"changes"`
	PerformedBy *string         `json:"performedBy,omitempty"` // nil for system actions
	Timestamp   time.Time       `json:"timestamp"`
	IPAddress   *string         `json:"ipAddress,omitempty"`
	UserAgent   *string         `json:"userAgent,omitempty"`
}

// AuditFilter selects entries for a timeline query. Zero-valued fields do not
// filter. Results are always ordered most recent first.
type AuditFilter struct {
	EntityType  AuditEntityType
	EntityID    string
	PerformedBy string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// AuditRepository is append-only: entries can be recorded and read, never
// updated or removed.
type AuditRepository interface {
	Record(ctx context.Context, entry *AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*AuditLogEntry, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}
