package httpapi

import (
	"context"
	"errors"
	"net/http"

	"coldcall-platform/internal/apperr"
	"coldcall-platform/internal/session"
	"coldcall-platform/internal/store"
	"coldcall-platform/internal/validator"
	"coldcall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Error   string                `json:"error"`
	Code    string                `json:"code,omitempty"`
	Message string                `json:"message,omitempty"`
	Fields  []validator.FieldError `json:"fields,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		verr  *apperr.ValidationError
		perr  *apperr.PersistenceError
		ferrs validator.Errors
	)
	switch {
	case errors.As(err, &ferrs):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid request", Fields: ferrs})
	case errors.Is(err, session.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid request"})
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorBody{Error: "rejected", Code: verr.Code, Message: verr.Message})
	case errors.Is(err, apperr.ErrBusy):
		c.AbortWithStatusJSON(http.StatusConflict, errorBody{Error: "busy", Message: "This action is already in progress."})
	case errors.As(err, &perr):
		logger.FromGin(c).Warn("persistence failed", "op", perr.Op, "err", perr.Err)
		c.AbortWithStatusJSON(http.StatusBadGateway, errorBody{Error: "persistence_failed", Code: perr.Op, Message: perr.Message})
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, session.ErrClosed):
		c.AbortWithStatusJSON(http.StatusGone, errorBody{Error: "session closed"})
	case errors.Is(err, context.DeadlineExceeded):
		// The write may still land; the client should re-read the session.
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, errorBody{Error: "timeout", Message: "Still saving. Please check again shortly."})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
