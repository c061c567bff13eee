package handlers

import (
	"errors"
	"net/http"
	"piiquante/internal/ledger"
	"piiquante/internal/services"
	"strings"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors to a status and a JSON error body.
// Anything unknown is a 500 and is recorded on the context for the request
// logger.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, services.ErrNotFound):
		status, msg = http.StatusNotFound, "sauce not found"
	case errors.Is(err, ledger.ErrInvalidVoteValue), errors.Is(err, services.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, services.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized request"
	case errors.Is(err, services.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrConflict):
		status, msg = http.StatusConflict, "sauce is being modified, try again"
	case errors.Is(err, services.ErrEmailTaken):
		status, msg = http.StatusConflict, err.Error()
	default:
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// publicBaseURL is the configured base URL, or the scheme and host the
// request came in on.
func publicBaseURL(c *gin.Context, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host
}
