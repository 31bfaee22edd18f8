package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	ctxRequestID    = "request_id"
	ctxUserID       = "user_id"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Logger logs one line per request. Errors attached with c.Error are logged
// with the request.
func Logger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetString(ctxRequestID),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last().Err).Error("request failed")
			return
		}
		entry.Info("request handled")
	}
}

// JWTAuth requires an HS256 bearer token whose subject is the caller's user id.
func JWTAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID <= 0 {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "token subject is not a user id")
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// authorizeUser rejects a request whose claimed user differs from the token
// subject. Without the JWT guard every claim is accepted.
func authorizeUser(c *gin.Context, claimed int64) bool {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return true
	}
	if v.(int64) != claimed {
		abortWith(c, http.StatusForbidden, "FORBIDDEN", "userId does not match the authenticated user")
		return false
	}
	return true
}
