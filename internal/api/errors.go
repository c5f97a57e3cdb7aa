package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/rongwang/library-rental/internal/service"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{service.ErrBookNotFound, http.StatusNotFound, "BOOK_NOT_FOUND"},
	{service.ErrTransactionNotFound, http.StatusNotFound, "TRANSACTION_NOT_FOUND"},
	{service.ErrCategoryNotFound, http.StatusNotFound, "CATEGORY_NOT_FOUND"},
	{service.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{service.ErrInsufficientFunds, http.StatusConflict, "INSUFFICIENT_FUNDS"},
	{service.ErrAlreadyReturned, http.StatusConflict, "ALREADY_RETURNED"},
	{service.ErrUserExists, http.StatusConflict, "USER_EXISTS"},
	{service.ErrCategoryExists, http.StatusConflict, "CATEGORY_EXISTS"},
}

// writeError maps err to a status and error body. Errors that are not part
// of the domain are logged and reported as internal errors.
func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, errorBody("VALIDATION_ERROR", verr.Error()))
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, errorBody(m.code, err.Error()))
			return
		}
	}

	h.logger.ErrorContext(c.Request.Context(), "request error",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", "Internal server error"))
}

// badRequest reports a body or parameter that could not be bound
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody("VALIDATION_ERROR", err.Error()))
}

func errorBody(code, message string) models.ErrorResponse {
	return models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	}
}
