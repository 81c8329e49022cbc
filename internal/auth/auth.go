package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	ErrMissingCredentials = errors.New("missing ai_token or Authorization header")
	ErrInvalidCredentials = errors.New("invalid API key")
)

// Verifier checks request credentials against a single API key. It is
// constructed once at startup from config and passed by reference;
// an empty key disables enforcement entirely.
type Verifier struct {
	key string
}

// NewVerifier creates a verifier. key may be empty.
func NewVerifier(key string) *Verifier {
	return &Verifier{key: key}
}

// Enabled reports whether a key is configured.
func (v *Verifier) Enabled() bool {
	return v.key != ""
}

// VerifyToken validates a request carrying either a body token or an
// Authorization header. The body token wins when present.
func (v *Verifier) VerifyToken(bodyToken, authorization string) error {
	if !v.Enabled() {
		return nil
	}
	if bodyToken != "" {
		if bodyToken == v.key {
			return nil
		}
		return ErrInvalidCredentials
	}
	if authorization != "" {
		if bearerToken(authorization) == v.key {
			return nil
		}
		return ErrInvalidCredentials
	}
	return ErrMissingCredentials
}

// VerifyHeader validates the Authorization header for endpoints that do
// not parse a request body.
func (v *Verifier) VerifyHeader(authorization string) error {
	if !v.Enabled() {
		return nil
	}
	if authorization == "" {
		return ErrMissingCredentials
	}
	if bearerToken(authorization) != v.key {
		return ErrInvalidCredentials
	}
	return nil
}

// Middleware enforces header auth on a gin route group.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.VerifyHeader(c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func bearerToken(authorization string) string {
	return strings.TrimPrefix(authorization, "Bearer ")
}
