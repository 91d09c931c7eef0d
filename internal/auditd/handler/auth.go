package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// identityKey is the gin context key holding the authenticated caller
// identity for the current request.
const identityKey = "identity"

// IdentityClaims are the JWT claims of a caller token. The hosting
// environment authenticates callers and mints these tokens; auditd only
// verifies them. The Subject is the caller identity recorded as the actor of
// every entry the caller logs.
type IdentityClaims struct {
	jwt.RegisteredClaims
	DisplayName string `json:"name,omitempty"`
}

// MintToken issues a signed HS256 caller token. Used by auditctl and tests;
// production deployments mint tokens in their identity provider with the
// same shared secret.
func MintToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign caller token: %w", err)
	}
	return signed, nil
}

// Identity returns a middleware that verifies the Bearer token and stores
// the caller identity in the request context. Requests without a valid token
// are rejected with 401: every audit operation, including writes, requires
// an authenticated identity.
func Identity(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := jwt.ParseWithClaims(
			tokenStr,
			&IdentityClaims{},
			func(tok *jwt.Token) (any, error) {
				if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
				}
				return secret, nil
			},
			jwt.WithExpirationRequired(),
		)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims, ok := token.Claims.(*IdentityClaims)
		if !ok || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		c.Set(identityKey, claims.Subject)
		c.Next()
	}
}

// CallerIdentity returns the authenticated identity set by Identity.
func CallerIdentity(c *gin.Context) string {
	return c.GetString(identityKey)
}
