// Package audit records before/after snapshots of entity mutations and serves
// them back as timelines.
//
// Recording is a side effect of a primary mutation: call sites use Track,
// which never returns an error, so an audit outage cannot fail the request
// that caused it. Record is the checked variant for callers that want the
// stored entry.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tasktrail/internal/domain"
	"github.com/gosuda/tasktrail/internal/telemetry"
)

const defaultWriteTimeout = 5 * time.Second

// Actor identifies who performed a mutation and from where. Empty fields are
// stored as absent.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// Event describes one mutation to record.
type Event struct {
	EntityType domain.AuditEntityType
	EntityID   string
	Action     domain.AuditAction
	Before     domain.Snapshot
	After      domain.Snapshot
	Actor      Actor
}

// Created builds a CREATE event carrying only the after snapshot.
func Created(entityType domain.AuditEntityType, entityID string, after domain.Snapshot, actor Actor) Event {
	return Event{EntityType: entityType, EntityID: entityID, Action: domain.AuditActionCreate, After: after, Actor: actor}
}

// Updated builds an UPDATE event carrying both snapshots.
func Updated(entityType domain.AuditEntityType, entityID string, before, after domain.Snapshot, actor Actor) Event {
	return Event{EntityType: entityType, EntityID: entityID, Action: domain.AuditActionUpdate, Before: before, After: after, Actor: actor}
}

// Deleted builds a DELETE event carrying only the before snapshot.
func Deleted(entityType domain.AuditEntityType, entityID string, before domain.Snapshot, actor Actor) Event {
	return Event{EntityType: entityType, EntityID: entityID, Action: domain.AuditActionDelete, Before: before, Actor: actor}
}

// Publisher fans recorded entries out to live subscribers.
type Publisher interface {
	PublishAudit(ctx context.Context, entry *domain.AuditLogEntry) error
}

// Recorder persists audit entries.
type Recorder struct {
	repo         domain.AuditRepository
	publisher    Publisher
	metrics      *telemetry.Metrics
	writeTimeout time.Duration
	now          func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPublisher sends every stored entry to p. Publish failures are logged.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithMetrics counts record outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithWriteTimeout bounds each best-effort write started by Track.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo domain.AuditRepository, opts ...Option) *Recorder {
	r := &Recorder{
		repo:         repo,
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates ev and appends one entry to the audit store.
//
// The stored changes always match the action: CREATE keeps only After,
// DELETE keeps only Before. An event left with neither snapshot is rejected
// with domain.ErrEmptyChanges.
func (r *Recorder) Record(ctx context.Context, ev Event) (*domain.AuditLogEntry, error) {
	changes, err := ev.changes()
	if err != nil {
		r.count(ev, telemetry.ResultRejected)
		return nil, fmt.Errorf("audit.Record: %w", err)
	}

	entry := &domain.AuditLogEntry{
		ID:          uuid.New(),
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		Action:      ev.Action,
		Changes:     changes,
		PerformedBy: optional(ev.Actor.UserID),
		Timestamp:   r.now().UTC(),
		IPAddress:   optional(ev.Actor.IPAddress),
		UserAgent:   optional(ev.Actor.UserAgent),
	}

	if err := r.repo.Record(ctx, entry); err != nil {
		r.count(ev, telemetry.ResultError)
		return nil, fmt.Errorf("audit.Record: %w", err)
	}
	r.count(ev, telemetry.ResultOK)

	if r.publisher != nil {
		if pubErr := r.publisher.PublishAudit(ctx, entry); pubErr != nil {
			if r.metrics != nil {
				r.metrics.AuditPublishErrorsTotal.Inc()
			}
			log.Warn().Err(pubErr).Str("audit_id", entry.ID.String()).Msg("audit: failed to publish entry")
		}
	}

	return entry, nil
}

// Track records ev on a best-effort basis. Failures, including panics from
// the storage layer, are logged and swallowed. The write runs detached from
// ctx cancellation so a client hanging up after a successful mutation does
// not drop its audit entry.
func (r *Recorder) Track(ctx context.Context, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.count(ev, telemetry.ResultError)
			log.Error().
				Interface("panic", p).
				Str("entity_type", string(ev.EntityType)).
				Str("entity_id", ev.EntityID).
				Str("action", string(ev.Action)).
				Msg("audit: recovered panic while recording entry")
		}
	}()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	if _, err := r.Record(writeCtx, ev); err != nil {
		log.Error().
			Err(err).
			Str("entity_type", string(ev.EntityType)).
			Str("entity_id", ev.EntityID).
			Str("action", string(ev.Action)).
			Msg("audit: failed to record entry")
	}
}

func (r *Recorder) count(ev Event, result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.AuditRecordsTotal.WithLabelValues(string(ev.EntityType), string(ev.Action), result).Inc()
}

func (ev Event) changes() (domain.AuditChanges, error) {
	if !ev.EntityType.Valid() {
		return domain.AuditChanges{}, fmt.Errorf("%w: %q", domain.ErrInvalidEntityType, ev.EntityType)
	}
	if !ev.Action.Valid() {
		return domain.AuditChanges{}, fmt.Errorf("%w: %q", domain.ErrInvalidAction, ev.Action)
	}
	if ev.EntityID == "" {
		return domain.AuditChanges{}, domain.ErrEmptyEntityID
	}

	c := domain.AuditChanges{Before: ev.Before, After: ev.After}
	switch ev.Action {
	case domain.AuditActionCreate:
		c.Before = nil
	case domain.AuditActionDelete:
		c.After = nil
	}
	if c.Before == nil && c.After == nil {
		return domain.AuditChanges{}, domain.ErrEmptyChanges
	}
	return c, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
