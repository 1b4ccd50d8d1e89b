package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosuda/tasktrail/internal/domain"
	"github.com/gosuda/tasktrail/internal/telemetry"
)

// Page size bounds for the timeline queries.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	DefaultRecentLimit  = 100
	MaxRecentLimit      = 500
)

// Page is an offset window into a most-recent-first result set.
type Page struct {
	Limit int
	Skip  int
}

// Normalize clamps p: a non-positive limit becomes def, a limit above max
// becomes max, a negative skip becomes 0.
func (p Page) Normalize(def, maxLimit int) Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}

// ParsePage reads raw query-string values permissively. Anything that is not
// a usable integer falls back to the default rather than failing.
func ParsePage(limitRaw, skipRaw string, def, maxLimit int) Page {
	return Page{
		Limit: atoiOr(limitRaw, def),
		Skip:  atoiOr(skipRaw, 0),
	}.Normalize(def, maxLimit)
}

// TimeRange bounds entries by timestamp, inclusive on both ends. A nil bound
// is open.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// ParseTimeRange reads RFC 3339 bounds. Unparsable values are ignored.
func ParseTimeRange(fromRaw, toRaw string) TimeRange {
	return TimeRange{From: parseTime(fromRaw), To: parseTime(toRaw)}
}

// QueryService answers timeline queries over the audit store.
type QueryService struct {
	repo    domain.AuditRepository
	metrics *telemetry.Metrics
}

// NewQueryService creates a QueryService reading from repo. metrics may be nil.
func NewQueryService(repo domain.AuditRepository, metrics *telemetry.Metrics) *QueryService {
	return &QueryService{repo: repo, metrics: metrics}
}

// EntityHistory returns the entries for one entity. entityType is validated
// before the store is touched; an unknown kind yields
// domain.ErrInvalidEntityType.
func (s *QueryService) EntityHistory(ctx context.Context, entityType, entityID string, p Page, tr TimeRange) ([]*domain.AuditLogEntry, error) {
	t, err := domain.ParseAuditEntityType(entityType)
	if err != nil {
		s.count("entity", telemetry.ResultRejected)
		return nil, fmt.Errorf("audit.EntityHistory: %w", err)
	}
	if entityID == "" {
		return []*domain.AuditLogEntry{}, nil
	}

	p = p.Normalize(DefaultHistoryLimit, MaxHistoryLimit)
	return s.list(ctx, "entity", domain.AuditFilter{
		EntityType: t,
		EntityID:   entityID,
		From:       tr.From,
		To:         tr.To,
		Limit:      p.Limit,
		Offset:     p.Skip,
	})
}

// UserActivity returns the entries performed by userID.
func (s *QueryService) UserActivity(ctx context.Context, userID string, p Page, tr TimeRange) ([]*domain.AuditLogEntry, error) {
	// An empty actor would mean "no filter"; it matches nothing instead.
	if userID == "" {
		return []*domain.AuditLogEntry{}, nil
	}

	p = p.Normalize(DefaultHistoryLimit, MaxHistoryLimit)
	return s.list(ctx, "user", domain.AuditFilter{
		PerformedBy: userID,
		From:        tr.From,
		To:          tr.To,
		Limit:       p.Limit,
		Offset:      p.Skip,
	})
}

// RecentActivity returns the newest entries system-wide. It has no offset:
// it is a live feed, not a paged browse.
func (s *QueryService) RecentActivity(ctx context.Context, limit int, tr TimeRange) ([]*domain.AuditLogEntry, error) {
	p := Page{Limit: limit}.Normalize(DefaultRecentLimit, MaxRecentLimit)
	return s.list(ctx, "recent", domain.AuditFilter{
		From:  tr.From,
		To:    tr.To,
		Limit: p.Limit,
	})
}

func (s *QueryService) list(ctx context.Context, shape string, f domain.AuditFilter) ([]*domain.AuditLogEntry, error) {
	entries, err := s.repo.List(ctx, f)
	if err != nil {
		s.count(shape, telemetry.ResultError)
		return nil, fmt.Errorf("audit.QueryService(%s): %w", shape, err)
	}
	s.count(shape, telemetry.ResultOK)

	if entries == nil {
		entries = []*domain.AuditLogEntry{}
	}
	return entries, nil
}

func (s *QueryService) count(shape, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.AuditQueriesTotal.WithLabelValues(shape, result).Inc()
}

func atoiOr(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
