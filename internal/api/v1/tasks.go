package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tasktrail/internal/audit"
	"github.com/gosuda/tasktrail/internal/domain"
)

type CreateTaskInput struct {
	Body struct {
		ProjectID   uuid.UUID  `json:"project_id" doc:"Project ID"`
		Title       string     `json:"title" minLength:"1" maxLength:"500" doc:"Task title"`
		Description string     `json:"description,omitempty" doc:"Task description"`
		Priority    int        `json:"priority,omitempty" doc:"Task priority (0=default)"`
		AssignedTo  *uuid.UUID `json:"assigned_to,omitempty" doc:"Assigned user ID"`
		DueDate     *time.Time `json:"due_date,omitempty" doc:"Due date (RFC 3339)"`
	}
}

type CreateTaskOutput struct {
	Body *domain.Task
}

type ListTasksInput struct {
	ProjectID uuid.UUID `query:"project_id" required:"true" doc:"Project ID"`
	Status    string    `query:"status" doc:"Filter by status"`
}

type ListTasksOutput struct {
	Body []*domain.Task
}

type GetTaskInput struct {
	ID uuid.UUID `path:"id" doc:"Task ID"`
}

type GetTaskOutput struct {
	Body *domain.Task
}

type UpdateTaskInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Title       string     `json:"title,omitempty" maxLength:"500" doc:"Task title"`
		Description *string    `json:"description,omitempty" doc:"Task description"`
		Priority    *int       `json:"priority,omitempty" doc:"Task priority"`
		AssignedTo  *uuid.UUID `json:"assigned_to,omitempty" doc:"Assigned user ID"`
		DueDate     *time.Time `json:"due_date,omitempty" doc:"Due date (RFC 3339)"`
	}
}

type UpdateTaskOutput struct {
	Body *domain.Task
}

type TransitionTaskStatusInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Status string `json:"status" minLength:"1" doc:"Target status"`
	}
}

type TransitionTaskStatusOutput struct {
	Body *domain.Task
}

type DeleteTaskInput struct {
	ID uuid.UUID `path:"id" doc:"Task ID"`
}

// RegisterTaskRoutes mounts task CRUD and the status state machine. Every
// successful mutation is recorded on the audit trail.
func RegisterTaskRoutes(api huma.API, store DataStore, recorder AuditRecorder) {
	huma.Register(api, huma.Operation{
		OperationID: "create-task",
		Method:      http.MethodPost,
		Path:        "/tasks",
		Summary:     "Create a new task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *CreateTaskInput) (*CreateTaskOutput, error) {
		if _, err := store.Projects().GetByID(ctx, input.Body.ProjectID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to validate project", err)
		}

		if err := checkAssignee(ctx, store, input.Body.AssignedTo); err != nil {
			return nil, err
		}

		now := time.Now()
		t := &domain.Task{
			ID:          uuid.New(),
			ProjectID:   input.Body.ProjectID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      domain.TaskStatusTodo,
			Priority:    input.Body.Priority,
			AssignedTo:  input.Body.AssignedTo,
			DueDate:     input.Body.DueDate,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := store.Tasks().Create(ctx, t); err != nil {
			return nil, huma.Error500InternalServerError("failed to create task", err)
		}

		recorder.Track(ctx, audit.Created(domain.AuditEntityTask, t.ID.String(), t.Snapshot(), actorFromContext(ctx)))

		return &CreateTaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks by project",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
		var (
			tasks []*domain.Task
			err   error
		)
		if input.Status != "" {
			status := domain.TaskStatus(input.Status)
			if !status.Valid() {
				return nil, huma.Error400BadRequest("unknown task status: " + input.Status)
			}
			tasks, err = store.Tasks().ListByStatus(ctx, input.ProjectID, status)
		} else {
			tasks, err = store.Tasks().ListByProject(ctx, input.ProjectID)
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list tasks", err)
		}
		if tasks == nil {
			tasks = []*domain.Task{}
		}

		return &ListTasksOutput{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task by ID",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *GetTaskInput) (*GetTaskOutput, error) {
		t, err := getTask(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}
		return &GetTaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *UpdateTaskInput) (*UpdateTaskOutput, error) {
		existing, err := getTask(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}
		before := existing.Snapshot()

		if err := checkAssignee(ctx, store, input.Body.AssignedTo); err != nil {
			return nil, err
		}

		if input.Body.Title != "" {
			existing.Title = input.Body.Title
		}
		if input.Body.Description != nil {
			existing.Description = *input.Body.Description
		}
		if input.Body.Priority != nil {
			existing.Priority = *input.Body.Priority
		}
		if input.Body.AssignedTo != nil {
			existing.AssignedTo = input.Body.AssignedTo
		}
		if input.Body.DueDate != nil {
			existing.DueDate = input.Body.DueDate
		}
		existing.UpdatedAt = time.Now()

		if err := store.Tasks().Update(ctx, existing); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to update task", err)
		}

		recorder.Track(ctx, audit.Updated(domain.AuditEntityTask, existing.ID.String(), before, existing.Snapshot(), actorFromContext(ctx)))

		return &UpdateTaskOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/status",
		Summary:     "Transition task status",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *TransitionTaskStatusInput) (*TransitionTaskStatusOutput, error) {
		existing, err := getTask(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}
		before := existing.Snapshot()

		target := domain.TaskStatus(input.Body.Status)
		if !target.Valid() {
			return nil, huma.Error400BadRequest("unknown task status: " + input.Body.Status)
		}
		if !existing.Status.ValidTransition(target) {
			return nil, huma.Error400BadRequest("invalid status transition from " + string(existing.Status) + " to " + string(target))
		}

		if err := store.Tasks().UpdateStatus(ctx, input.ID, target); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to update task status", err)
		}

		existing.Status = target
		existing.UpdatedAt = time.Now()

		recorder.Track(ctx, audit.Updated(domain.AuditEntityTask, existing.ID.String(), before, existing.Snapshot(), actorFromContext(ctx)))

		return &TransitionTaskStatusOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *DeleteTaskInput) (*struct{}, error) {
		existing, err := getTask(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}

		if err := store.Tasks().Delete(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete task", err)
		}

		recorder.Track(ctx, audit.Deleted(domain.AuditEntityTask, existing.ID.String(), existing.Snapshot(), actorFromContext(ctx)))

		return nil, nil
	})
}

func getTask(ctx context.Context, store DataStore, id uuid.UUID) (*domain.Task, error) {
	t, err := store.Tasks().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("task not found")
		}
		return nil, huma.Error500InternalServerError("failed to get task", err)
	}
	return t, nil
}

func checkAssignee(ctx context.Context, store DataStore, assignee *uuid.UUID) error {
	if assignee == nil {
		return nil
	}
	if _, err := store.Users().GetByID(ctx, *assignee); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return huma.Error404NotFound("assignee not found")
		}
		return huma.Error500InternalServerError("failed to validate assignee", err)
	}
	return nil
}
