package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gosuda/tasktrail/internal/auth"
)

// Auth authenticates requests with an HS256 bearer access token. Websocket
// upgrades may pass the token as the access_token query parameter instead,
// since browsers cannot set headers on them.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractBearer(r)
			if tok == "" && isWebsocketUpgrade(r) {
				tok = r.URL.Query().Get("access_token")
			}

			if tok != "" {
				if ctx, ok := authenticateJWT(r.Context(), tok, jwtSecret); ok {
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			writeError(w, http.StatusUnauthorized, "Missing or invalid credentials")
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func authenticateJWT(ctx context.Context, tokenStr, secret string) (context.Context, bool) {
	// Refresh tokens only mint access tokens; they never authorize requests.
	claims, err := auth.ParseToken(secret, tokenStr, auth.KindAccess)
	if err != nil {
		return ctx, false
	}

	userID, err := claims.User()
	if err != nil {
		return ctx, false
	}

	return WithUser(ctx, userID, claims.Role), true
}
