package event

import (
	"errors"
	"io"
	"net/http"

	"dialer-platform/internal/lead"
	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler adapts the HTTP webhook surface to the state machine.
// No business logic here: signature, parsing, and dispatch all live in
// the Processor.

const maxBodyBytes = 1 << 20

type Handler struct {
	Processor *Processor
}

func (h Handler) HandleCallEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Processor == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"received": false, "error": "event processor not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"received": false, "error": "unreadable body"})
		return
	}

	if err := h.Processor.Process(c.Request.Context(), body, c.GetHeader(SignatureHeader)); err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("call event processing failed", "err", err)
		} else {
			log.Warn("call event rejected", "err", err)
		}
		c.AbortWithStatusJSON(status, gin.H{"received": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// statusFor maps error kinds to the suggested HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrLeadNotFound), errors.Is(err, lead.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
