package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"helpdesk/internal/approval"
	"helpdesk/internal/auth"
	"helpdesk/internal/models"
)

// DraftReader loads drafts for review
type DraftReader interface {
	GetDraft(ctx context.Context, id string) (*models.ResponseDraft, error)
	ListDraftsForTicket(ctx context.Context, ticketID string) ([]models.ResponseDraft, error)
}

// DraftSender approves or modifies a draft and sends the reply
type DraftSender interface {
	ApproveAndSend(ctx context.Context, draftID, actorID string) (*approval.Outcome, error)
	ModifyAndSend(ctx context.Context, draftID, actorID, content string, send bool) (*approval.Outcome, error)
}

// DraftRejecter rejects a draft with feedback
type DraftRejecter interface {
	Reject(ctx context.Context, draftID, actorID, feedback string) (*models.ResponseDraft, error)
}

// GetDraftHandler returns one draft
// @Summary Get draft
// @Tags drafts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Draft ID"
// @Success 200 {object} models.ResponseDraft
// @Failure 404 {object} models.ErrorResponse
// @Router /api/drafts/{id} [get]
func GetDraftHandler(drafts DraftReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		draft, err := drafts.GetDraft(c.Request().Context(), c.Param("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, draft)
	}
}

// ListTicketDraftsHandler returns the drafts of a ticket, newest first
// @Summary List drafts for a ticket
// @Tags drafts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {array} models.ResponseDraft
// @Failure 500 {object} models.ErrorResponse
// @Router /api/tickets/{id}/drafts [get]
func ListTicketDraftsHandler(drafts DraftReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := drafts.ListDraftsForTicket(c.Request().Context(), c.Param("id"))
		if err != nil {
			return respondError(c, err)
		}
		if list == nil {
			list = []models.ResponseDraft{}
		}
		return c.JSON(http.StatusOK, list)
	}
}

// ApproveDraftHandler approves a pending draft and sends it as written
// @Summary Approve and send draft
// @Description A send failure after approval is reported in send_error; the draft stays approved
// @Tags drafts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Draft ID"
// @Success 200 {object} models.DraftActionResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/drafts/{id}/approve [post]
func ApproveDraftHandler(sender DraftSender) echo.HandlerFunc {
	return func(c echo.Context) error {
		outcome, err := sender.ApproveAndSend(c.Request().Context(), c.Param("id"), auth.ActorID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, actionResponse(outcome))
	}
}

// ModifyDraftHandler stores edited content and optionally sends it
// @Summary Modify draft
// @Tags drafts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Draft ID"
// @Param request body models.ModifyDraftRequest true "Edited content"
// @Success 200 {object} models.DraftActionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/drafts/{id}/modify [post]
func ModifyDraftHandler(sender DraftSender) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.ModifyDraftRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		}

		outcome, err := sender.ModifyAndSend(c.Request().Context(), c.Param("id"), auth.ActorID(c), req.Content, req.Send)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, actionResponse(outcome))
	}
}

// RejectDraftHandler rejects a draft with feedback
// @Summary Reject draft
// @Tags drafts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Draft ID"
// @Param request body models.RejectDraftRequest true "Feedback"
// @Success 200 {object} models.DraftActionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/drafts/{id}/reject [post]
func RejectDraftHandler(rejecter DraftRejecter) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.RejectDraftRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		}

		draft, err := rejecter.Reject(c.Request().Context(), c.Param("id"), auth.ActorID(c), req.Feedback)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, models.DraftActionResponse{Draft: draft})
	}
}

func actionResponse(outcome *approval.Outcome) models.DraftActionResponse {
	resp := models.DraftActionResponse{
		Draft:     outcome.Draft,
		Sent:      outcome.Sent,
		MessageID: outcome.MessageID,
	}
	if outcome.SendError != nil {
		resp.SendError = outcome.SendError.Error()
	}
	return resp
}
