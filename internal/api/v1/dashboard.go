package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/tasktrail/internal/domain"
)

const dashboardCacheKey = "cache:dashboard:stats"

// DashboardStats summarises the system for the admin landing page.
type DashboardStats struct {
	Projects           int64                    `json:"projects"`
	Users              int64                    `json:"users"`
	Tasks              int64                    `json:"tasks"`
	TasksByStatus      []domain.TaskStatusCount `json:"tasks_by_status"`
	AuditEventsLast24h int64                    `json:"audit_events_last_24h"`
	GeneratedAt        time.Time                `json:"generated_at"`
}

type DashboardStatsOutput struct {
	Body Envelope[*DashboardStats]
}

// RegisterDashboardRoutes mounts the stats endpoint. cache may be nil.
func RegisterDashboardRoutes(api huma.API, store DataStore, cache StatsCache, ttl time.Duration) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-stats",
		Method:      http.MethodGet,
		Path:        "/dashboard/stats",
		Summary:     "Aggregate counts for the dashboard",
		Tags:        []string{"Dashboard"},
	}, func(ctx context.Context, _ *struct{}) (*DashboardStatsOutput, error) {
		if cache != nil {
			var cached DashboardStats
			hit, err := cache.GetJSON(ctx, dashboardCacheKey, &cached)
			if err != nil {
				log.Warn().Err(err).Msg("dashboard: cache read failed")
			}
			if hit {
				return &DashboardStatsOutput{Body: success(&cached)}, nil
			}
		}

		stats, err := collectStats(ctx, store)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to collect dashboard stats", err)
		}

		if cache != nil && ttl > 0 {
			if err := cache.SetJSON(ctx, dashboardCacheKey, stats, ttl); err != nil {
				log.Warn().Err(err).Msg("dashboard: cache write failed")
			}
		}

		return &DashboardStatsOutput{Body: success(stats)}, nil
	})
}

func collectStats(ctx context.Context, store DataStore) (*DashboardStats, error) {
	now := time.Now().UTC()
	stats := &DashboardStats{GeneratedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := store.Projects().Count(gctx)
		stats.Projects = n
		return err
	})
	g.Go(func() error {
		n, err := store.Users().Count(gctx)
		stats.Users = n
		return err
	})
	g.Go(func() error {
		counts, err := store.Tasks().CountByStatus(gctx)
		stats.TasksByStatus = counts
		return err
	})
	g.Go(func() error {
		n, err := store.Audit().CountSince(gctx, now.Add(-24*time.Hour))
		stats.AuditEventsLast24h = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if stats.TasksByStatus == nil {
		stats.TasksByStatus = []domain.TaskStatusCount{}
	}
	for _, c := range stats.TasksByStatus {
		stats.Tasks += c.Count
	}
	return stats, nil
}
