package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"helpdesk/internal/database"
	"helpdesk/internal/models"
	"helpdesk/internal/retrieval"
)

// TicketReader loads tickets
type TicketReader interface {
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
}

// SummaryReader loads the managed summary note of a ticket
type SummaryReader interface {
	GetManagedNote(ctx context.Context, entityID string) (*models.Note, error)
}

// ContextRetriever gathers notes relevant to a ticket
type ContextRetriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// TicketContextHandler returns a ticket with its summary and its most recent
// notes and those of its contact, newest first
// @Summary Get ticket context
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.TicketContextResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/tickets/{id}/context [get]
func TicketContextHandler(tickets TicketReader, summaries SummaryReader, retriever ContextRetriever) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		ticket, err := tickets.GetTicket(ctx, c.Param("id"))
		if err != nil {
			return respondError(c, err)
		}

		summary, err := summaries.GetManagedNote(ctx, ticket.ID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return respondError(c, err)
		}

		q := retrieval.Query{OrganizationID: ticket.OrganizationID, TicketID: ticket.ID}
		if ticket.ContactID != nil {
			q.ContactID = *ticket.ContactID
		}
		result, err := retriever.Retrieve(ctx, q)
		if err != nil {
			return respondError(c, err)
		}

		notes := result.Notes
		if notes == nil {
			notes = []models.Note{}
		}
		return c.JSON(http.StatusOK, models.TicketContextResponse{
			Ticket:  ticket,
			Summary: summary,
			Notes:   notes,
		})
	}
}
