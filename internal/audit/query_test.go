package audit_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tasktrail/internal/audit"
	"github.com/gosuda/tasktrail/internal/domain"
)

func TestParsePage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		limit string
		skip  string
		want  audit.Page
	}{
		{name: "empty uses defaults", limit: "", skip: "", want: audit.Page{Limit: 50, Skip: 0}},
		{name: "valid values", limit: "20", skip: "40", want: audit.Page{Limit: 20, Skip: 40}},
		{name: "non-numeric limit", limit: "abc", skip: "5", want: audit.Page{Limit: 50, Skip: 5}},
		{name: "negative limit", limit: "-3", skip: "0", want: audit.Page{Limit: 50, Skip: 0}},
		{name: "zero limit", limit: "0", skip: "", want: audit.Page{Limit: 50, Skip: 0}},
		{name: "limit above cap", limit: "1000", skip: "", want: audit.Page{Limit: 100, Skip: 0}},
		{name: "negative skip", limit: "10", skip: "-1", want: audit.Page{Limit: 10, Skip: 0}},
		{name: "non-numeric skip", limit: "10", skip: "x", want: audit.Page{Limit: 10, Skip: 0}},
		{name: "float limit", limit: "2.5", skip: "", want: audit.Page{Limit: 50, Skip: 0}},
		{name: "padded values", limit: " 7 ", skip: " 3", want: audit.Page{Limit: 7, Skip: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := audit.ParsePage(tt.limit, tt.skip, audit.DefaultHistoryLimit, audit.MaxHistoryLimit)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimeRange(t *testing.T) {
	t.Parallel()

	tr := audit.ParseTimeRange("2026-01-01T00:00:00Z", "not-a-time")
	require.NotNil(t, tr.From)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *tr.From)
	assert.Nil(t, tr.To)

	tr = audit.ParseTimeRange("", "")
	assert.Nil(t, tr.From)
	assert.Nil(t, tr.To)
}

// seed records n UPDATE events for (PROJECT, id) by actor through a real
// Recorder so the query tests exercise the write path too.
func seed(t *testing.T, rec *audit.Recorder, entityType domain.AuditEntityType, id, actor string, n int) []*domain.AuditLogEntry {
	t.Helper()

	out := make([]*domain.AuditLogEntry, 0, n)
	for i := range n {
		e, err := rec.Record(context.Background(), audit.Updated(entityType, id,
			domain.Snapshot{"rev": i}, domain.Snapshot{"rev": i + 1}, audit.Actor{UserID: actor}))
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestQueryService_EntityHistory(t *testing.T) {
	t.Parallel()

	t.Run("returns N entries most recent first", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{}
		rec := audit.NewRecorder(repo, audit.WithClock(tickingClock(t0)))
		seeded := seed(t, rec, domain.AuditEntityProject, "p1", "u1", 7)
		seed(t, rec, domain.AuditEntityProject, "p2", "u1", 3)
		seed(t, rec, domain.AuditEntityTask, "p1", "u1", 2) // same id, other kind

		svc := audit.NewQueryService(repo, nil)
		got, err := svc.EntityHistory(context.Background(), "PROJECT", "p1", audit.Page{Limit: 7}, audit.TimeRange{})
		require.NoError(t, err)
		require.Len(t, got, 7)

		for i := range got {
			assert.Equal(t, seeded[len(seeded)-1-i].ID, got[i].ID)
			if i > 0 {
				assert.False(t, got[i].Timestamp.After(got[i-1].Timestamp))
			}
		}
	})

	t.Run("entity type is case-insensitive", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{}
		rec := audit.NewRecorder(repo)
		seed(t, rec, domain.AuditEntityTask, "t1", "u1", 2)

		got, err := audit.NewQueryService(repo, nil).EntityHistory(context.Background(), "task", "t1", audit.Page{}, audit.TimeRange{})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, domain.AuditEntityTask, repo.lastQuery.EntityType)
	})

	t.Run("invalid entity type performs no query", func(t *testing.T) {
		t.Parallel()

		for _, bad := range []string{"", "COMMENT", "projects", "' OR 1=1 --"} {
			repo := &memAuditRepo{}
			got, err := audit.NewQueryService(repo, nil).EntityHistory(context.Background(), bad, "p1", audit.Page{}, audit.TimeRange{})
			require.Error(t, err, bad)
			assert.ErrorIs(t, err, domain.ErrInvalidEntityType)
			assert.Nil(t, got)
			assert.Equal(t, 0, repo.listCalls, bad)
		}
	})

	t.Run("no match is an empty list", func(t *testing.T) {
		t.Parallel()

		got, err := audit.NewQueryService(&memAuditRepo{}, nil).EntityHistory(context.Background(), "USER", uuid.NewString(), audit.Page{}, audit.TimeRange{})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("defaults and caps the page size", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{}
		svc := audit.NewQueryService(repo, nil)

		_, err := svc.EntityHistory(context.Background(), "PROJECT", "p1", audit.Page{}, audit.TimeRange{})
		require.NoError(t, err)
		assert.Equal(t, 50, repo.lastQuery.Limit)

		_, err = svc.EntityHistory(context.Background(), "PROJECT", "p1", audit.Page{Limit: 5000, Skip: -2}, audit.TimeRange{})
		require.NoError(t, err)
		assert.Equal(t, 100, repo.lastQuery.Limit)
		assert.Equal(t, 0, repo.lastQuery.Offset)
	})

	t.Run("store failure is surfaced", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{listErr: errors.New("db: connection reset")}
		_, err := audit.NewQueryService(repo, nil).EntityHistory(context.Background(), "PROJECT", "p1", audit.Page{}, audit.TimeRange{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrInvalidEntityType)
	})

	t.Run("time range bounds results", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{}
		rec := audit.NewRecorder(repo, audit.WithClock(tickingClock(t0)))
		seeded := seed(t, rec, domain.AuditEntityProject, "p1", "u1", 5) // t0+1s .. t0+5s

		from := t0.Add(2 * time.Second)
		to := t0.Add(4 * time.Second)
		got, err := audit.NewQueryService(repo, nil).EntityHistory(context.Background(), "PROJECT", "p1",
			audit.Page{}, audit.TimeRange{From: &from, To: &to})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, seeded[3].ID, got[0].ID)
		assert.Equal(t, seeded[1].ID, got[2].ID)
	})
}

func TestQueryService_UserActivity(t *testing.T) {
	t.Parallel()

	t.Run("filters by actor", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{}
		rec := audit.NewRecorder(repo, audit.WithClock(tickingClock(t0)))
		seed(t, rec, domain.AuditEntityTask, "t1", "alice", 4)
		seed(t, rec, domain.AuditEntityTask, "t1", "bob", 2)
		_, err := rec.Record(context.Background(),
			audit.Created(domain.AuditEntityProject, "p1", domain.Snapshot{"name": "sys"}, audit.Actor{}))
		require.NoError(t, err)

		got, err := audit.NewQueryService(repo, nil).UserActivity(context.Background(), "alice", audit.Page{}, audit.TimeRange{})
		require.NoError(t, err)
		require.Len(t, got, 4)
		for _, e := range got {
			require.NotNil(t, e.PerformedBy)
			assert.Equal(t, "alice", *e.PerformedBy)
		}
	})

	t.Run("consecutive pages are disjoint and gapless", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{}
		// Frozen clock: every entry shares one timestamp, so only the
		// insertion-order tie-breaker keeps the pages stable.
		rec := audit.NewRecorder(repo, audit.WithClock(func() time.Time { return t0 }))
		seed(t, rec, domain.AuditEntityTask, "t1", "alice", 25)

		svc := audit.NewQueryService(repo, nil)
		const k, s = 6, 4

		first, err := svc.UserActivity(context.Background(), "alice", audit.Page{Limit: k, Skip: s}, audit.TimeRange{})
		require.NoError(t, err)
		second, err := svc.UserActivity(context.Background(), "alice", audit.Page{Limit: k, Skip: s + k}, audit.TimeRange{})
		require.NoError(t, err)
		both, err := svc.UserActivity(context.Background(), "alice", audit.Page{Limit: 2 * k, Skip: s}, audit.TimeRange{})
		require.NoError(t, err)

		require.Len(t, first, k)
		require.Len(t, second, k)
		seen := map[uuid.UUID]bool{}
		for _, e := range first {
			seen[e.ID] = true
		}
		for _, e := range second {
			assert.False(t, seen[e.ID], "entry %s appears on both pages", e.ID)
		}
		assert.Equal(t, both, append(first, second...))
	})

	t.Run("empty user id matches nothing", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{}
		seed(t, audit.NewRecorder(repo), domain.AuditEntityTask, "t1", "alice", 2)

		got, err := audit.NewQueryService(repo, nil).UserActivity(context.Background(), "", audit.Page{}, audit.TimeRange{})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, 0, repo.listCalls)
	})
}

func TestQueryService_RecentActivity(t *testing.T) {
	t.Parallel()

	t.Run("never exceeds the limit and is unfiltered", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{}
		rec := audit.NewRecorder(repo, audit.WithClock(tickingClock(t0)))
		seed(t, rec, domain.AuditEntityTask, "t1", "alice", 4)
		seed(t, rec, domain.AuditEntityProject, "p1", "bob", 4)
		seed(t, rec, domain.AuditEntityUser, "u1", "carol", 4)

		svc := audit.NewQueryService(repo, nil)
		for _, limit := range []int{1, 5, 12, 50} {
			got, err := svc.RecentActivity(context.Background(), limit, audit.TimeRange{})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(got), limit)
		}

		got, err := svc.RecentActivity(context.Background(), 12, audit.TimeRange{})
		require.NoError(t, err)
		require.Len(t, got, 12)
		kinds := map[domain.AuditEntityType]bool{}
		for _, e := range got {
			kinds[e.EntityType] = true
		}
		assert.Len(t, kinds, 3)
		assert.Empty(t, repo.lastQuery.EntityType)
		assert.Empty(t, repo.lastQuery.PerformedBy)
		assert.Zero(t, repo.lastQuery.Offset)
	})

	t.Run("defaults and caps", func(t *testing.T) {
		t.Parallel()

		repo := &memAuditRepo{}
		svc := audit.NewQueryService(repo, nil)

		_, err := svc.RecentActivity(context.Background(), 0, audit.TimeRange{})
		require.NoError(t, err)
		assert.Equal(t, 100, repo.lastQuery.Limit)

		_, err = svc.RecentActivity(context.Background(), 10_000, audit.TimeRange{})
		require.NoError(t, err)
		assert.Equal(t, 500, repo.lastQuery.Limit)
	})
}

func TestQueryService_ReadsAreIdempotent(t *testing.T) {
	t.Parallel()

	repo := &memAuditRepo{}
	rec := audit.NewRecorder(repo, audit.WithClock(tickingClock(t0)))
	seed(t, rec, domain.AuditEntityTask, "t1", "alice", 9)
	svc := audit.NewQueryService(repo, nil)

	queries := map[string]func() ([]*domain.AuditLogEntry, error){
		"entity": func() ([]*domain.AuditLogEntry, error) {
			return svc.EntityHistory(context.Background(), "TASK", "t1", audit.Page{Limit: 4, Skip: 2}, audit.TimeRange{})
		},
		"user": func() ([]*domain.AuditLogEntry, error) {
			return svc.UserActivity(context.Background(), "alice", audit.Page{Limit: 3, Skip: 1}, audit.TimeRange{})
		},
		"recent": func() ([]*domain.AuditLogEntry, error) {
			return svc.RecentActivity(context.Background(), 5, audit.TimeRange{})
		},
	}

	for name, q := range queries {
		a, err := q()
		require.NoError(t, err, name)
		b, err := q()
		require.NoError(t, err, name)
		assert.Equal(t, a, b, name)
	}
}

func TestProjectLifecycle_HistoryOrder(t *testing.T) {
	t.Parallel()

	repo := &memAuditRepo{}
	rec := audit.NewRecorder(repo, audit.WithClock(tickingClock(t0)))
	actor := audit.Actor{UserID: "admin-1"}
	ctx := context.Background()

	snap := func(name string) domain.Snapshot { return domain.Snapshot{"id": "P1", "name": name} }

	rec.Track(ctx, audit.Created(domain.AuditEntityProject, "P1", snap("v1"), actor))
	rec.Track(ctx, audit.Updated(domain.AuditEntityProject, "P1", snap("v1"), snap("v2"), actor))
	rec.Track(ctx, audit.Updated(domain.AuditEntityProject, "P1", snap("v2"), snap("v3"), actor))
	rec.Track(ctx, audit.Deleted(domain.AuditEntityProject, "P1", snap("v3"), actor))

	got, err := audit.NewQueryService(repo, nil).EntityHistory(ctx, "PROJECT", "P1", audit.Page{Limit: 10}, audit.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 4)

	actions := make([]string, 0, len(got))
	for _, e := range got {
		actions = append(actions, string(e.Action))
	}
	assert.Equal(t, []string{"DELETE", "UPDATE", "UPDATE", "CREATE"}, actions)

	assert.Nil(t, got[0].Changes.After)
	assert.Equal(t, "v3", got[0].Changes.Before["name"])
	assert.Equal(t, "v2", got[1].Changes.Before["name"])
	assert.Equal(t, "v3", got[1].Changes.After["name"])
	assert.Nil(t, got[3].Changes.Before)
	assert.Equal(t, "v1", got[3].Changes.After["name"])
	assert.Equal(t, fmt.Sprint(got[0].EntityType), "PROJECT")
}
