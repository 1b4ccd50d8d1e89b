package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tasktrail/internal/domain"
)

// AuditRepo is an append-only store: it has no update or delete path.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Record(ctx context.Context, entry *domain.AuditLogEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("auditRepo.Record: marshal changes: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, entity_type, entity_id, action, changes, performed_by, timestamp, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		changes, entry.PerformedBy, entry.Timestamp,
		entry.IPAddress, entry.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("auditRepo.Record: %w", err)
	}

	return nil
}

func (r *AuditRepo) List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditLogEntry, error) {
	query, args := buildAuditListQuery(f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("auditRepo.List: %w", err)
	}
	defer rows.Close()

	return scanAuditEntries(rows, "auditRepo.List")
}

func (r *AuditRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM audit_logs WHERE timestamp >= $1`, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("auditRepo.CountSince: %w", err)
	}
	return n, nil
}

// buildAuditListQuery renders f as a parameterized SELECT. Only non-empty
// filter fields become conditions; values are always bound, never inlined.
func buildAuditListQuery(f domain.AuditFilter) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString(`SELECT id, entity_type, entity_id, action, changes, performed_by, timestamp, ip_address, user_agent
		 FROM audit_logs WHERE 1=1`)

	add := func(cond string, v any) {
		args = append(args, v)
		fmt.Fprintf(&sb, " AND %s $%d", cond, len(args))
	}

	if f.EntityType != "" {
		add("entity_type =", string(f.EntityType))
	}
	if f.EntityID != "" {
		add("entity_id =", f.EntityID)
	}
	if f.PerformedBy != "" {
		add("performed_by =", f.PerformedBy)
	}
	if f.From != nil {
		add("timestamp >=", *f.From)
	}
	if f.To != nil {
		add("timestamp <=", *f.To)
	}

	sb.WriteString(" ORDER BY timestamp DESC, seq DESC")

	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	return sb.String(), args
}

func scanAuditEntries(rows pgx.Rows, caller string) ([]*domain.AuditLogEntry, error) {
	entries := []*domain.AuditLogEntry{}
	for rows.Next() {
		var e domain.AuditLogEntry
		var changes []byte

		if err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.Action, &changes,
			&e.PerformedBy, &e.Timestamp, &e.IPAddress, &e.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("%s: unmarshal changes: %w", caller, err)
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return entries, nil
}
