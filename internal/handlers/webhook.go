package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"helpdesk/internal/models"
)

// maxWebhookBytes bounds a webhook body; attachments travel base64-encoded inside it
const maxWebhookBytes = 50 << 20

// WebhookSecretHeader carries the shared secret of the email provider
const WebhookSecretHeader = "X-Webhook-Secret"

// InboundProcessor runs an inbound email through the pipeline
type InboundProcessor interface {
	Process(ctx context.Context, organizationID string, in *models.InboundEmail) (*models.EmailProcessingResult, error)
}

// InboundEmailHandler receives inbound email from the provider
// @Summary Receive inbound email
// @Description Validates the provider payload, links it to a thread and ticket and starts drafting in the background
// @Tags webhooks
// @Accept json
// @Produce json
// @Param org path string true "Organization ID"
// @Param X-Webhook-Secret header string false "Shared webhook secret"
// @Param request body models.InboundEmail true "Inbound email"
// @Success 200 {object} models.WebhookResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/webhooks/email/{org} [post]
func InboundEmailHandler(processor InboundProcessor, secret string, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "webhook").Logger()

	return func(c echo.Context) error {
		if secret != "" {
			given := c.Request().Header.Get(WebhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid webhook secret"})
			}
		}

		orgID := c.Param("org")
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes+1))
		if err != nil {
			return badRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		}
		if len(body) > maxWebhookBytes {
			return c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "payload too large"})
		}

		email, err := models.DecodeInboundEmail(body)
		if err != nil {
			logger.Warn().Err(err).Str("organization_id", orgID).Msg("Rejected inbound email")
			return respondError(c, err)
		}

		result, err := processor.Process(c.Request().Context(), orgID, email)
		if err != nil {
			if errors.Is(err, models.ErrInvalidPayload) {
				logger.Warn().Err(err).Str("organization_id", orgID).Msg("Rejected inbound email")
			} else {
				logger.Error().Err(err).Str("organization_id", orgID).Str("message_id", email.MessageID).Msg("Failed to process inbound email")
			}
			return respondError(c, err)
		}

		return c.JSON(http.StatusOK, models.WebhookResponse{
			ThreadID:  result.Thread.ID,
			TicketID:  result.Ticket.ID,
			MessageID: result.Message.ID,
			ContactID: result.Contact.ID,
			NewTicket: result.Thread.IsNewTicket(),
		})
	}
}
