package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"helpdesk/internal/approval"
	"helpdesk/internal/database"
	"helpdesk/internal/grader"
	"helpdesk/internal/models"
)

// errorStatus maps domain errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidPayload),
		errors.Is(err, approval.ErrFeedbackRequired),
		errors.Is(err, approval.ErrContentRequired),
		errors.Is(err, grader.ErrEmptyResponse):
		return http.StatusBadRequest
	case errors.Is(err, approval.ErrActorRequired):
		return http.StatusUnauthorized
	case errors.Is(err, approval.ErrDraftNotFound),
		errors.Is(err, database.ErrNotFound),
		errors.Is(err, models.ErrThreadEmpty):
		return http.StatusNotFound
	case errors.Is(err, approval.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse with the mapped status
func respondError(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), models.ErrorResponse{Error: err.Error()})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: message})
}
