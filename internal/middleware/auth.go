// Package middleware provides request middleware for the API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/applytrack/applytrack/internal/apperrors"
	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userIDKey = "authUserID"

// Claims is the token payload this API consumes. Token issuance lives in the
// session service; this middleware only verifies and extracts the owner id.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Auth validates the bearer token and stores the caller's user id in the gin
// context. Runs before body parsing, so a bad token never reads the request.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c)
			return
		}
		if _, err := uuid.Parse(claims.UserID); err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dtos.ErrorEnvelope(string(apperrors.CodeUnauthorized), "authentication required"))
}

// UserID returns the authenticated caller's id set by Auth.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
