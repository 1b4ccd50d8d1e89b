package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tasktrail/internal/audit"
	"github.com/gosuda/tasktrail/internal/auth"
	"github.com/gosuda/tasktrail/internal/domain"
	"github.com/gosuda/tasktrail/internal/server/middleware"
)

type ListUsersInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"500" doc:"Page size (0 = 100)"`
	Offset int `query:"offset" minimum:"0" doc:"Page offset"`
}

type ListUsersOutput struct {
	Body []*domain.User
}

type CreateUserInput struct {
	Body struct {
		Email    string `json:"email" minLength:"3" maxLength:"255" format:"email" doc:"User email"`
		Password string `json:"password" minLength:"8" maxLength:"128" doc:"Initial password"` //nolint:gosec // G117: credential DTO
		Name     string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Role     string `json:"role" enum:"admin,manager,member" doc:"Role"`
	}
}

type CreateUserOutput struct {
	Body *domain.User
}

type GetUserInput struct {
	ID uuid.UUID `path:"id" doc:"User ID"`
}

type GetUserOutput struct {
	Body *domain.User
}

type UpdateUserInput struct {
	ID   uuid.UUID `path:"id" doc:"User ID"`
	Body struct {
		Email    string `json:"email,omitempty" maxLength:"255" doc:"User email"`
		Name     string `json:"name,omitempty" maxLength:"255" doc:"Display name"`
		Password string `json:"password,omitempty" maxLength:"128" doc:"New password"` //nolint:gosec // G117: credential DTO
	}
}

type UpdateUserOutput struct {
	Body *domain.User
}

type ChangeRoleInput struct {
	ID   uuid.UUID `path:"id" doc:"User ID"`
	Body struct {
		Role string `json:"role" enum:"admin,manager,member" doc:"New role"`
	}
}

type ChangeRoleOutput struct {
	Body *domain.User
}

type DeleteUserInput struct {
	ID uuid.UUID `path:"id" doc:"User ID"`
}

// RegisterUserRoutes mounts user management. Admins manage every account;
// other users may read and edit only their own profile.
func RegisterUserRoutes(api huma.API, store DataStore, authSvc AuthService, recorder AuditRecorder) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *ListUsersInput) (*ListUsersOutput, error) {
		if err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
			return nil, err
		}

		limit := input.Limit
		if limit == 0 {
			limit = defaultListLimit
		}

		users, err := store.Users().List(ctx, limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list users", err)
		}
		if users == nil {
			users = []*domain.User{}
		}

		return &ListUsersOutput{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-user",
		Method:      http.MethodPost,
		Path:        "/users",
		Summary:     "Create a user",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *CreateUserInput) (*CreateUserOutput, error) {
		if err := requireRole(ctx, domain.RoleAdmin); err != nil {
			return nil, err
		}

		u, err := authSvc.NewUser(input.Body.Email, input.Body.Password, input.Body.Name, input.Body.Role)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}

		if err := store.Users().Create(ctx, u); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, huma.Error409Conflict("user already exists")
			}
			return nil, huma.Error500InternalServerError("failed to create user", err)
		}

		recorder.Track(ctx, audit.Created(domain.AuditEntityUser, u.ID.String(), u.Snapshot(), actorFromContext(ctx)))

		return &CreateUserOutput{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get a user by ID",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *GetUserInput) (*GetUserOutput, error) {
		if err := requireSelfOr(ctx, input.ID, domain.RoleAdmin, domain.RoleManager); err != nil {
			return nil, err
		}

		u, err := getUser(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}
		return &GetUserOutput{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPut,
		Path:        "/users/{id}",
		Summary:     "Update a user profile",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *UpdateUserInput) (*UpdateUserOutput, error) {
		if err := requireSelfOr(ctx, input.ID, domain.RoleAdmin); err != nil {
			return nil, err
		}

		existing, err := getUser(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}
		before := existing.Snapshot()

		if email := strings.ToLower(strings.TrimSpace(input.Body.Email)); email != "" {
			existing.Email = email
		}
		if input.Body.Name != "" {
			existing.Name = input.Body.Name
		}
		if input.Body.Password != "" {
			hash, hashErr := auth.HashPassword(input.Body.Password)
			if hashErr != nil {
				if errors.Is(hashErr, auth.ErrWeakPassword) {
					return nil, huma.Error400BadRequest("password must be at least 8 characters")
				}
				return nil, huma.Error500InternalServerError("failed to hash password", hashErr)
			}
			existing.PasswordHash = hash
		}
		existing.UpdatedAt = time.Now().UTC()

		if err := saveUser(ctx, store, existing); err != nil {
			return nil, err
		}

		recorder.Track(ctx, audit.Updated(domain.AuditEntityUser, existing.ID.String(), before, existing.Snapshot(), actorFromContext(ctx)))

		return &UpdateUserOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-user-role",
		Method:      http.MethodPatch,
		Path:        "/users/{id}/role",
		Summary:     "Change a user's role",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *ChangeRoleInput) (*ChangeRoleOutput, error) {
		if err := requireRole(ctx, domain.RoleAdmin); err != nil {
			return nil, err
		}
		if !domain.ValidRole(input.Body.Role) {
			return nil, huma.Error400BadRequest("unknown role: " + input.Body.Role)
		}

		existing, err := getUser(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}
		if existing.Role == input.Body.Role {
			return &ChangeRoleOutput{Body: existing}, nil
		}
		before := existing.Snapshot()

		existing.Role = input.Body.Role
		existing.UpdatedAt = time.Now().UTC()

		if err := saveUser(ctx, store, existing); err != nil {
			return nil, err
		}

		recorder.Track(ctx, audit.Updated(domain.AuditEntityUser, existing.ID.String(), before, existing.Snapshot(), actorFromContext(ctx)))

		return &ChangeRoleOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-user",
		Method:      http.MethodDelete,
		Path:        "/users/{id}",
		Summary:     "Delete a user",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *DeleteUserInput) (*struct{}, error) {
		if err := requireRole(ctx, domain.RoleAdmin); err != nil {
			return nil, err
		}
		if self, ok := middleware.UserIDFromContext(ctx); ok && self == input.ID {
			return nil, huma.Error400BadRequest("cannot delete your own account")
		}

		existing, err := getUser(ctx, store, input.ID)
		if err != nil {
			return nil, err
		}

		if err := store.Users().Delete(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("user not found")
			}
			if errors.Is(err, domain.ErrInUse) {
				return nil, huma.Error409Conflict("user still owns projects or has assigned tasks")
			}
			return nil, huma.Error500InternalServerError("failed to delete user", err)
		}

		recorder.Track(ctx, audit.Deleted(domain.AuditEntityUser, existing.ID.String(), existing.Snapshot(), actorFromContext(ctx)))

		return nil, nil
	})
}

// requireSelfOr lets a user act on their own record, otherwise demands one
// of roles.
func requireSelfOr(ctx context.Context, target uuid.UUID, roles ...string) error {
	if self, ok := middleware.UserIDFromContext(ctx); ok && self == target {
		return nil
	}
	return requireRole(ctx, roles...)
}

func getUser(ctx context.Context, store DataStore, id uuid.UUID) (*domain.User, error) {
	u, err := store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("user not found")
		}
		return nil, huma.Error500InternalServerError("failed to get user", err)
	}
	return u, nil
}

func saveUser(ctx context.Context, store DataStore, u *domain.User) error {
	if err := store.Users().Update(ctx, u); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return huma.Error404NotFound("user not found")
		case errors.Is(err, domain.ErrConflict):
			return huma.Error409Conflict("email already in use")
		}
		return huma.Error500InternalServerError("failed to update user", err)
	}
	return nil
}
