package apihandlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Envelope is the wire format every endpoint responds with. The shape is
// a stable client contract: data carries the payload, code mirrors the
// HTTP status, error is a human-readable message on failure, timestamp
// is epoch milliseconds, extra is reserved and always null.
type Envelope struct {
	Data      any     `json:"data"`
	Code      int     `json:"code"`
	Error     *string `json:"error"`
	Timestamp int64   `json:"timestamp"`
	Extra     any     `json:"extra"`
}

func wrap(data any, code int, errMsg string) Envelope {
	env := Envelope{
		Data:      data,
		Code:      code,
		Timestamp: time.Now().UnixMilli(),
	}
	if errMsg != "" {
		env.Error = &errMsg
	}
	return env
}

// OK sends a successful wrapped response.
func OK(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusOK, wrap(data, http.StatusOK, ""))
}

// JSONError sends a wrapped error response with the given status.
func JSONError(ctx *gin.Context, status int, msg string) {
	ctx.JSON(status, wrap(nil, status, msg))
}

// Convenience wrappers
func BadRequest(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusBadRequest, msg)
}

func Unauthorized(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusUnauthorized, msg)
}

func TooManyRequests(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusTooManyRequests, msg)
}

func Internal(ctx *gin.Context, msg string) {
	JSONError(ctx, http.StatusInternalServerError, msg)
}
