package audit_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gosuda/tasktrail/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory AuditRepository with the same ordering contract as the
// Postgres store: timestamp DESC, then insertion sequence DESC.
// ---------------------------------------------------------------------------

type storedEntry struct {
	seq   int64
	entry *domain.AuditLogEntry
}

type memAuditRepo struct {
	mu        sync.Mutex
	seq       int64
	rows      []storedEntry
	recordErr error
	listErr   error
	listCalls int
	lastQuery domain.AuditFilter
}

func (m *memAuditRepo) Record(ctx context.Context, e *domain.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.recordErr != nil {
		return m.recordErr
	}
	m.seq++
	m.rows = append(m.rows, storedEntry{seq: m.seq, entry: e})
	return nil
}

func (m *memAuditRepo) List(_ context.Context, f domain.AuditFilter) ([]*domain.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	m.lastQuery = f
	if m.listErr != nil {
		return nil, m.listErr
	}

	var matched []storedEntry
	for _, r := range m.rows {
		e := r.entry
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.PerformedBy != "" && (e.PerformedBy == nil || *e.PerformedBy != f.PerformedBy) {
			continue
		}
		if f.From != nil && e.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && e.Timestamp.After(*f.To) {
			continue
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].entry.Timestamp.Equal(matched[j].entry.Timestamp) {
			return matched[i].entry.Timestamp.After(matched[j].entry.Timestamp)
		}
		return matched[i].seq > matched[j].seq
	})

	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}

	out := make([]*domain.AuditLogEntry, 0, len(matched))
	for _, r := range matched {
		out = append(out, r.entry)
	}
	return out, nil
}

func (m *memAuditRepo) CountSince(_ context.Context, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if !r.entry.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memAuditRepo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// panicRepo simulates a storage driver bug.
type panicRepo struct{ memAuditRepo }

func (p *panicRepo) Record(context.Context, *domain.AuditLogEntry) error {
	panic("driver exploded")
}

// ---------------------------------------------------------------------------
// Publisher and clock helpers
// ---------------------------------------------------------------------------

type fakePublisher struct {
	mu        sync.Mutex
	published []*domain.AuditLogEntry
	err       error
}

func (p *fakePublisher) PublishAudit(_ context.Context, e *domain.AuditLogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, e)
	return nil
}

// tickingClock returns a clock that advances one second per call, giving
// every recorded entry a distinct timestamp.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}
