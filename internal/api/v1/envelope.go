package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tasktrail/internal/audit"
	"github.com/gosuda/tasktrail/internal/server/middleware"
)

func init() {
	huma.NewError = newEnvelopeError
}

// Envelope is the success body shared with the admin UI.
type Envelope[T any] struct {
	Success bool `json:"success" doc:"Always true"`
	Data    T    `json:"data"`
}

func success[T any](data T) Envelope[T] {
	return Envelope[T]{Success: true, Data: data}
}

// ErrorEnvelope replaces huma's problem+json body so every failure has the
// shape {success:false, message}.
type ErrorEnvelope struct {
	status  int
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func (e *ErrorEnvelope) Error() string  { return e.Message }
func (e *ErrorEnvelope) GetStatus() int { return e.status }

func newEnvelopeError(status int, msg string, errs ...error) huma.StatusError {
	e := &ErrorEnvelope{status: status, Message: msg}

	// Internal causes are logged, never sent to the client.
	if status >= http.StatusInternalServerError {
		ev := log.Error().Int("status", status)
		for _, err := range errs {
			if err != nil {
				ev = ev.AnErr("cause", err)
			}
		}
		ev.Msg(msg)
		return e
	}

	for _, err := range errs {
		if err != nil {
			e.Errors = append(e.Errors, err.Error())
		}
	}
	return e
}

// actorFromContext attributes a mutation to the authenticated caller and the
// client provenance captured by middleware.
func actorFromContext(ctx context.Context) audit.Actor {
	var a audit.Actor
	if id, ok := middleware.UserIDFromContext(ctx); ok {
		a.UserID = id.String()
	}
	if meta, ok := middleware.RequestMetaFromContext(ctx); ok {
		a.IPAddress = meta.IPAddress
		a.UserAgent = meta.UserAgent
	}
	return a
}

// requireRole fails with 403 unless the caller holds one of roles.
func requireRole(ctx context.Context, roles ...string) error {
	role, ok := middleware.RoleFromContext(ctx)
	if !ok {
		return huma.Error401Unauthorized("Authentication required")
	}
	if !middleware.HasRole(role, roles...) {
		return huma.Error403Forbidden("Insufficient permissions")
	}
	return nil
}
