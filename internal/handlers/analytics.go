package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"helpdesk/internal/models"
)

// SummarySource aggregates analytics for a period
type SummarySource interface {
	GetSummary(ctx context.Context, period, organizationID string) (*models.AnalyticsSummary, error)
}

// AnalyticsHandler returns analytics summary for a given period
// @Summary Get analytics summary
// @Description Pipeline outcomes for a period (today, yesterday, last_7_days, last_30_days), optionally for one organization
// @Tags analytics
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param period query string false "Time period (today, yesterday, last_7_days, last_30_days)" default(yesterday)
// @Param organization_id query string false "Organization ID"
// @Success 200 {object} models.AnalyticsResponse
// @Failure 500 {object} models.AnalyticsResponse
// @Router /api/analytics [get]
func AnalyticsHandler(source SummarySource, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		period := c.QueryParam("period")
		if period == "" {
			period = "yesterday"
		}
		orgID := c.QueryParam("organization_id")

		summary, err := source.GetSummary(c.Request().Context(), period, orgID)
		if err != nil {
			logger.Error().Err(err).Str("period", period).Msg("Failed to get analytics summary")
			return c.JSON(http.StatusInternalServerError, models.AnalyticsResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to get analytics summary: %v", err),
			})
		}

		return c.JSON(http.StatusOK, models.AnalyticsResponse{
			Success: true,
			Summary: summary,
		})
	}
}
