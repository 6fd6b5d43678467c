package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

var (
	errMissingAPIKey = errors.New("API key is required")
	errInvalidAPIKey = errors.New("invalid API key")
)

// APIKeyAuth guards the operator routes with static API keys and, when a
// signing secret is set, HS256 operator tokens.
type APIKeyAuth struct {
	headerName string
	keys       [][]byte
	jwtSecret  []byte
}

// NewAPIKeyAuth creates an authenticator. Empty keys are ignored.
func NewAPIKeyAuth(headerName string, keys []string) *APIKeyAuth {
	a := &APIKeyAuth{headerName: headerName}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

// WithTokenSecret also admits operator tokens signed with secret.
func (a *APIKeyAuth) WithTokenSecret(secret string) *APIKeyAuth {
	if secret != "" {
		a.jwtSecret = []byte(secret)
	}
	return a
}

// Enabled reports whether any key or token secret is configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.keys) > 0 || len(a.jwtSecret) > 0
}

// IsValid compares key against every configured key in constant time.
func (a *APIKeyAuth) IsValid(key string) bool {
	ok := false
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

// Middleware rejects requests without a valid key in the configured header
// or an Authorization bearer credential. A bearer value that is neither a
// key nor a valid operator token is rejected.
func (a *APIKeyAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(a.headerName)
		if key == "" {
			key = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}

		switch {
		case key == "":
			RespondError(c, http.StatusUnauthorized, "missing_api_key", errMissingAPIKey)
		case a.IsValid(key):
			c.Next()
			return
		case len(a.jwtSecret) > 0 && strings.Count(key, ".") == 2:
			claims, err := parseOperatorToken(a.jwtSecret, key)
			if err != nil {
				RespondError(c, http.StatusUnauthorized, "invalid_token", errInvalidAPIKey)
				break
			}
			c.Set(OperatorKey, claims.Subject)
			c.Next()
			return
		default:
			RespondError(c, http.StatusUnauthorized, "invalid_api_key", errInvalidAPIKey)
		}
		c.Abort()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HEADERS
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeaders sets the headers every JSON response carries.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// NoStore disables caching. Balances and summaries change on every write.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimit caps request bodies at maxBytes.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			RespondError(c, http.StatusRequestEntityTooLarge, "request_too_large", errors.New("request body too large"))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
