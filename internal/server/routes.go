package server

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/tasktrail/internal/api/v1"
	"github.com/gosuda/tasktrail/internal/api/ws"
)

func registerAuthRoutes(api huma.API, deps Deps) {
	v1.RegisterAuthRoutes(api, deps.Auth, deps.Recorder)
}

func registerAPIRoutes(api huma.API, deps Deps, statsTTL time.Duration) {
	v1.RegisterProjectRoutes(api, deps.Store, deps.Recorder)
	v1.RegisterTaskRoutes(api, deps.Store, deps.Recorder)
	v1.RegisterUserRoutes(api, deps.Store, deps.Auth, deps.Recorder)
	v1.RegisterAuditRoutes(api, deps.Queries)
	v1.RegisterDashboardRoutes(api, deps.Store, deps.Cache, statsTTL)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/audit/recent", hub.ServeRecentAudit)
	r.Get("/audit/{entityType}/{entityID}", hub.ServeEntityAudit)
}
