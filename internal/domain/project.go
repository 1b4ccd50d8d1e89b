package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Project struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	OwnerID     *uuid.UUID `json:"owner_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewProject creates a Project with validated required fields.
func NewProject(name, description string, ownerID *uuid.UUID) (*Project, error) {
	if name == "" {
		return nil, errors.New("project: name is required")
	}
	now := time.Now()
	return &Project{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Snapshot returns the project's public fields for the audit trail.
func (p *Project) Snapshot() Snapshot {
	return Snapshot{
		"id":          p.ID.String(),
		"name":        p.Name,
		"description": p.Description,
		"owner_id":    uuidPtrString(p.OwnerID),
		"created_at":  p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type ProjectRepository interface {
	Create(ctx context.Context, p *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, p *Project) error
	List(ctx context.Context, limit, offset int) ([]*Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int64, error)
}

// uuidPtrString renders an optional UUID for snapshots; nil stays nil so the
// JSON form is null rather than the zero UUID.
func uuidPtrString(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
