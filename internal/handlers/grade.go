package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"helpdesk/internal/grader"
	"helpdesk/internal/models"
)

// ResponseGrader grades a reply against a thread
type ResponseGrader interface {
	GradeResponse(ctx context.Context, in grader.Input) (*models.Grade, error)
}

// GradeResponseHandler grades an arbitrary or already-sent reply
// @Summary Grade a reply
// @Description Scores a reply for quality and accuracy against the thread and the organization's notes
// @Tags threads
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Thread ID"
// @Param request body models.GradeRequest true "Reply to grade"
// @Success 200 {object} models.Grade
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/threads/{id}/grade [post]
func GradeResponseHandler(g ResponseGrader) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.GradeRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		}

		grade, err := g.GradeResponse(c.Request().Context(), grader.Input{
			ThreadID: c.Param("id"),
			Response: req.Response,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, grade)
	}
}
