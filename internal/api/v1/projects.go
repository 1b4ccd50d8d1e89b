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
	"github.com/gosuda/tasktrail/internal/server/middleware"
)

type CreateProjectInput struct {
	Body struct {
		Name        string `json:"name" minLength:"1" maxLength:"255" doc:"Project name"`
		Description string `json:"description,omitempty" maxLength:"4096" doc:"Project description"`
	}
}

type CreateProjectOutput struct {
	Body *domain.Project
}

type ListProjectsInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"500" doc:"Page size (0 = 100)"`
	Offset int `query:"offset" minimum:"0" doc:"Page offset"`
}

type ListProjectsOutput struct {
	Body []*domain.Project
}

type GetProjectInput struct {
	ID uuid.UUID `path:"id" doc:"Project ID"`
}

type GetProjectOutput struct {
	Body *domain.Project
}

type UpdateProjectInput struct {
	ID   uuid.UUID `path:"id" doc:"Project ID"`
	Body struct {
		Name        string  `json:"name,omitempty" maxLength:"255" doc:"Project name"`
		Description *string `json:"description,omitempty" maxLength:"4096" doc:"Project description"`
	}
}

type UpdateProjectOutput struct {
	Body *domain.Project
}

type DeleteProjectInput struct {
	ID uuid.UUID `path:"id" doc:"Project ID"`
}

const defaultListLimit = 100

// RegisterProjectRoutes mounts project CRUD. Mutations are limited to admins
// and managers and are recorded on the audit trail.
func RegisterProjectRoutes(api huma.API, store DataStore, recorder AuditRecorder) {
	huma.Register(api, huma.Operation{
		OperationID: "create-project",
		Method:      http.MethodPost,
		Path:        "/projects",
		Summary:     "Create a new project",
		Tags:        []string{"Projects"},
	}, func(ctx context.Context, input *CreateProjectInput) (*CreateProjectOutput, error) {
		if err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
			return nil, err
		}

		var owner *uuid.UUID
		if uid, ok := middleware.UserIDFromContext(ctx); ok {
			owner = &uid
		}

		p, err := domain.NewProject(input.Body.Name, input.Body.Description, owner)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}

		if err := store.Projects().Create(ctx, p); err != nil {
			return nil, huma.Error500InternalServerError("failed to create project", err)
		}

		recorder.Track(ctx, audit.Created(domain.AuditEntityProject, p.ID.String(), p.Snapshot(), actorFromContext(ctx)))

		return &CreateProjectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Tags:        []string{"Projects"},
	}, func(ctx context.Context, input *ListProjectsInput) (*ListProjectsOutput, error) {
		limit := input.Limit
		if limit == 0 {
			limit = defaultListLimit
		}

		projects, err := store.Projects().List(ctx, limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list projects", err)
		}
		if projects == nil {
			projects = []*domain.Project{}
		}

		return &ListProjectsOutput{Body: projects}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get a project by ID",
		Tags:        []string{"Projects"},
	}, func(ctx context.Context, input *GetProjectInput) (*GetProjectOutput, error) {
		p, err := store.Projects().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to get project", err)
		}

		return &GetProjectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{id}",
		Summary:     "Update a project",
		Tags:        []string{"Projects"},
	}, func(ctx context.Context, input *UpdateProjectInput) (*UpdateProjectOutput, error) {
		if err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
			return nil, err
		}

		existing, err := store.Projects().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to get project", err)
		}
		before := existing.Snapshot()

		if input.Body.Name != "" {
			existing.Name = input.Body.Name
		}
		if input.Body.Description != nil {
			existing.Description = *input.Body.Description
		}
		existing.UpdatedAt = time.Now()

		if err := store.Projects().Update(ctx, existing); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to update project", err)
		}

		recorder.Track(ctx, audit.Updated(domain.AuditEntityProject, existing.ID.String(), before, existing.Snapshot(), actorFromContext(ctx)))

		return &UpdateProjectOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}",
		Summary:     "Delete a project",
		Tags:        []string{"Projects"},
	}, func(ctx context.Context, input *DeleteProjectInput) (*struct{}, error) {
		if err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
			return nil, err
		}

		existing, err := store.Projects().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to get project", err)
		}

		// Tasks go with their project; each one gets its own DELETE entry.
		tasks, err := store.Tasks().ListByProject(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list project tasks", err)
		}

		if err := store.Projects().Delete(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete project", err)
		}

		actor := actorFromContext(ctx)
		recorder.Track(ctx, audit.Deleted(domain.AuditEntityProject, existing.ID.String(), existing.Snapshot(), actor))
		for _, t := range tasks {
			recorder.Track(ctx, audit.Deleted(domain.AuditEntityTask, t.ID.String(), t.Snapshot(), actor))
		}

		return nil, nil
	})
}
