package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// APIError is the body of every failed response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes an error envelope.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// RespondOK writes payload with 200.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondCreated writes payload with 201.
func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// respondDomainError maps an application error onto a status and code.
// Unknown errors are logged and hidden behind a generic 500.
func respondDomainError(c *gin.Context, log *logger.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			logger.Err(err),
			logger.String("path", c.FullPath()),
			logger.String("request_id", c.GetString(RequestIDKey)),
		)
		RespondError(c, status, code, errors.New("internal error"))
		return
	}

	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		msg := de.Message
		// Field errors tell the client what to fix.
		if status == http.StatusBadRequest && de.Err != nil {
			msg += ": " + de.Err.Error()
		}
		RespondError(c, status, code, errors.New(msg))
		return
	}
	RespondError(c, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsInsufficientFunds(err):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case shared.IsAlreadyExists(err), shared.IsDuplicateAchievement(err):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// Gin context keys.
const (
	RequestIDKey = "request_id"
	OperatorKey  = "operator" // subject of the operator token, if any
)
