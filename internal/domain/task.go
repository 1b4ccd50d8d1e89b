package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	default:
		return false
	}
}

// ValidTransition checks if a task state transition is allowed.
// Allowed: todo->in_progress, in_progress->todo (pause), in_progress->review,
// review->done, review->in_progress (rework).
func (s TaskStatus) ValidTransition(to TaskStatus) bool {
	switch s {
	case TaskStatusTodo:
		return to == TaskStatusInProgress
	case TaskStatusInProgress:
		return to == TaskStatusReview || to == TaskStatusTodo
	case TaskStatusReview:
		return to == TaskStatusDone || to == TaskStatusInProgress
	default:
		return false
	}
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	AssignedTo  *uuid.UUID `json:"assigned_to,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

var ErrInvalidTransition = errors.New("task: invalid state transition")

// Snapshot returns the task's public fields for the audit trail.
func (t *Task) Snapshot() Snapshot {
	var due any
	if t.DueDate != nil {
		due = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return Snapshot{
		"id":          t.ID.String(),
		"project_id":  t.ProjectID.String(),
		"title":       t.Title,
		"description": t.Description,
		"status":      string(t.Status),
		"priority":    t.Priority,
		"assigned_to": uuidPtrString(t.AssignedTo),
		"due_date":    due,
		"created_at":  t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// TaskStatusCount is one bucket of the per-status task breakdown.
type TaskStatusCount struct {
	Status TaskStatus `json:"status"`
	Count  int64      `json:"count"`
}

type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Task, error)
	ListByStatus(ctx context.Context, projectID uuid.UUID, status TaskStatus) ([]*Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status TaskStatus) error
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) ([]TaskStatusCount, error)
}
