package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind tells access tokens, which authorize requests, from refresh
// tokens, which only mint new access tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

const tokenIssuer = "tasktrail"

// ErrInvalidToken covers every rejection: bad signature, expiry, foreign
// issuer, wrong kind or a malformed subject.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// Claims is the payload carried by every token this service signs.
type Claims struct {
	jwt.RegisteredClaims
	UserID string    `json:"uid"`
	Role   string    `json:"role"`
	Kind   TokenKind `json:"typ"`
}

// User returns the subject as a UUID.
func (c *Claims) User() (uuid.UUID, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("auth.Claims.User: %w", ErrInvalidToken)
	}
	return id, nil
}

var tokenParser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(tokenIssuer),
	jwt.WithExpirationRequired(),
)

// IssueAccessToken signs a short-lived token that authorizes API calls.
func IssueAccessToken(secret string, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	return sign(secret, newClaims(userID, role, KindAccess, ttl))
}

// IssueRefreshToken signs a token accepted only by the refresh endpoint.
func IssueRefreshToken(secret string, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	return sign(secret, newClaims(userID, role, KindRefresh, ttl))
}

// ParseToken verifies raw against secret and requires it to be of kind want.
func ParseToken(secret, raw string, want TokenKind) (*Claims, error) {
	claims := &Claims{}
	_, err := tokenParser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth.ParseToken: %w", ErrInvalidToken)
	}
	if claims.Kind != want {
		return nil, fmt.Errorf("auth.ParseToken: got %q token: %w", claims.Kind, ErrInvalidToken)
	}
	return claims, nil
}

func newClaims(userID uuid.UUID, role string, kind TokenKind, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID.String(),
		Role:   role,
		Kind:   kind,
	}
}

func sign(secret string, c Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.sign: %w", err)
	}
	return signed, nil
}
