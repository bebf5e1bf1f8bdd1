package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hirepath/assess-backend/internal/response"
)

const (
	// ContextKeyUserID is the Gin context key for the authenticated user id.
	ContextKeyUserID = "user_id"
)

// Claims is the token payload issued by the platform's identity service.
// This service only verifies; it never mints tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// RequireUserJWT validates a platform JWT from the Authorization header and
// stores the user id in the request context.
func RequireUserJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		userID, err := validateToken(tokenStr, secret)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
				return
			}
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// RequireUserWSAuth validates a platform JWT from the query param ?token=...
// Used for WebSocket upgrade requests, which cannot set headers.
func RequireUserWSAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		userID, err := validateToken(tokenStr, secret)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// RequireServiceToken guards internal endpoints called by other backend
// services (e.g. the payment pipeline). The shared token travels in
// X-Service-Token.
func RequireServiceToken(serviceToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if serviceToken == "" || c.GetHeader("X-Service-Token") != serviceToken {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
		c.Next()
	}
}

// GetUserID retrieves the authenticated user id from the Gin context.
func GetUserID(c *gin.Context) string {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return ""
	}
	id, _ := val.(string)
	return id
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	// Fallback for EventSource (SSE) which cannot send headers
	return c.Query("token")
}

func validateToken(tokenStr, secret string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
