package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/tasktrail/internal/audit"
	"github.com/gosuda/tasktrail/internal/domain"
	"github.com/gosuda/tasktrail/internal/server/middleware"
)

// AuditWindow holds the query values shared by the timeline endpoints. They
// are taken as raw strings and parsed permissively: a bad limit falls back to
// the default instead of failing the request.
type AuditWindow struct {
	Limit string `query:"limit" doc:"Page size; invalid or out-of-range values fall back to the default or cap"`
	From  string `query:"from" doc:"Inclusive lower timestamp bound (RFC 3339)"`
	To    string `query:"to" doc:"Inclusive upper timestamp bound (RFC 3339)"`
}

type EntityHistoryInput struct {
	EntityType string `path:"entityType" doc:"PROJECT, TASK or USER (case-insensitive)"`
	EntityID   string `path:"entityId" doc:"Entity ID"`
	Skip       string `query:"skip" doc:"Number of entries to skip"`
	AuditWindow
}

type UserActivityInput struct {
	UserID string `path:"userId" doc:"Actor user ID"`
	Skip   string `query:"skip" doc:"Number of entries to skip"`
	AuditWindow
}

type RecentActivityInput struct {
	AuditWindow
}

type AuditListOutput struct {
	Body Envelope[[]*domain.AuditLogEntry]
}

// RegisterAuditRoutes mounts the read-only timeline endpoints. Entries are
// ordered newest first.
func RegisterAuditRoutes(api huma.API, q AuditQuerier) {
	huma.Register(api, huma.Operation{
		OperationID: "audit-entity-history",
		Method:      http.MethodGet,
		Path:        "/audit/entity/{entityType}/{entityId}",
		Summary:     "Change history of one entity",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *EntityHistoryInput) (*AuditListOutput, error) {
		if err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
			return nil, err
		}

		page := audit.ParsePage(input.Limit, input.Skip, audit.DefaultHistoryLimit, audit.MaxHistoryLimit)
		entries, err := q.EntityHistory(ctx, input.EntityType, input.EntityID, page, input.timeRange())
		if err != nil {
			if errors.Is(err, domain.ErrInvalidEntityType) {
				return nil, huma.Error400BadRequest("Invalid entity type")
			}
			return nil, huma.Error500InternalServerError("Error fetching entity history", err)
		}

		return &AuditListOutput{Body: success(entries)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit-user-activity",
		Method:      http.MethodGet,
		Path:        "/audit/user/{userId}",
		Summary:     "Mutations performed by one user",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *UserActivityInput) (*AuditListOutput, error) {
		if self, ok := middleware.UserIDFromContext(ctx); !ok || self.String() != input.UserID {
			if err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
				return nil, err
			}
		}

		page := audit.ParsePage(input.Limit, input.Skip, audit.DefaultHistoryLimit, audit.MaxHistoryLimit)
		entries, err := q.UserActivity(ctx, input.UserID, page, input.timeRange())
		if err != nil {
			return nil, huma.Error500InternalServerError("Error fetching user activity", err)
		}

		return &AuditListOutput{Body: success(entries)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit-recent-activity",
		Method:      http.MethodGet,
		Path:        "/audit/recent",
		Summary:     "Newest mutations system-wide",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *RecentActivityInput) (*AuditListOutput, error) {
		if err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
			return nil, err
		}

		page := audit.ParsePage(input.Limit, "", audit.DefaultRecentLimit, audit.MaxRecentLimit)
		entries, err := q.RecentActivity(ctx, page.Limit, input.timeRange())
		if err != nil {
			return nil, huma.Error500InternalServerError("Error fetching recent activity", err)
		}

		return &AuditListOutput{Body: success(entries)}, nil
	})
}

func (w AuditWindow) timeRange() audit.TimeRange {
	return audit.ParseTimeRange(w.From, w.To)
}
