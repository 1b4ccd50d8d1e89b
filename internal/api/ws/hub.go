// Package ws streams audit entries to browsers over WebSocket, fed by the
// Redis channels the audit recorder publishes to.
package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tasktrail/internal/domain"
	"github.com/gosuda/tasktrail/internal/server/middleware"
	redisstore "github.com/gosuda/tasktrail/internal/store/redis"
)

// Subscriber delivers raw messages published on a channel until cleanup is
// called or ctx ends. *redis.PubSub satisfies this interface.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	sub            Subscriber
	originPatterns []string
}

// NewHub creates a new WebSocket hub. originPatterns are passed to the
// handshake; an empty list only accepts same-origin browsers.
func NewHub(sub Subscriber, originPatterns ...string) *Hub {
	return &Hub{sub: sub, originPatterns: originPatterns}
}

// ServeRecentAudit streams every new audit entry system-wide. Restricted to
// admins and managers, like the REST recent-activity feed.
func (h *Hub) ServeRecentAudit(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	h.stream(w, r, redisstore.RecentAuditChannel())
}

// ServeEntityAudit streams new entries for one entity.
func (h *Hub) ServeEntityAudit(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	entityType, err := domain.ParseAuditEntityType(chi.URLParam(r, "entityType"))
	if err != nil {
		http.Error(w, "Invalid entity type", http.StatusBadRequest)
		return
	}
	entityID := chi.URLParam(r, "entityID")
	if entityID == "" {
		http.Error(w, "missing entity id", http.StatusBadRequest)
		return
	}

	h.stream(w, r, redisstore.EntityAuditChannel(entityType, entityID))
}

func (h *Hub) authorize(w http.ResponseWriter, r *http.Request) bool {
	role, ok := middleware.RoleFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return false
	}
	if !middleware.HasRole(role, domain.RoleAdmin, domain.RoleManager) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Hub) stream(w http.ResponseWriter, r *http.Request, channel string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// The feed is server-to-client only; CloseRead handles pings and closes
	// and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.sub.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}
