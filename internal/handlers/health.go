package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"helpdesk/internal/database"
	"helpdesk/internal/models"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"

	// readinessTimeout bounds the ping and the schema check together
	readinessTimeout = 5 * time.Second
)

// HealthHandler reports that the process is serving
// @Summary Liveness
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /healthz [get]
func HealthHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, models.HealthResponse{
			Status:    statusHealthy,
			Timestamp: time.Now().UTC(),
			Version:   version,
		})
	}
}

// DBHealthHandler reports whether the database can serve drafting: a read-only
// ping must succeed and every helpdesk table must exist. A reachable database
// without the schema is reported as degraded.
// @Summary Database readiness
// @Tags health
// @Produce json
// @Success 200 {object} models.DBHealthResponse
// @Failure 503 {object} models.DBHealthResponse
// @Router /healthz/db [get]
func DBHealthHandler(db *sqlx.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
		defer cancel()

		resp := checkDatabase(ctx, db)
		if resp.Status != statusHealthy {
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func checkDatabase(ctx context.Context, db *sqlx.DB) models.DBHealthResponse {
	resp := models.DBHealthResponse{Status: statusUnhealthy, Timestamp: time.Now().UTC()}
	if db == nil {
		resp.Error = "Database connection not initialized"
		return resp
	}

	start := time.Now()
	err := database.ExecuteReadOnlyPing(ctx, db)
	resp.Latency = time.Since(start)
	if err != nil {
		resp.Error = fmt.Sprintf("Database read-only query failed: %v", err)
		return resp
	}
	resp.Connected = true

	missing, err := database.MissingTables(ctx, db)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if len(missing) > 0 {
		resp.Status = statusDegraded
		resp.Missing = missing
		resp.Error = "Schema not migrated: missing " + strings.Join(missing, ", ")
		return resp
	}

	resp.Status = statusHealthy
	return resp
}

// RootHandler describes the API
// @Summary Service info
// @Tags health
// @Produce json
// @Success 200 {object} models.ServiceInfo
// @Router /api/ [get]
func RootHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, models.ServiceInfo{
			Service: "Helpdesk API",
			Version: version,
			Status:  "running",
			Docs:    "/swagger/index.html",
		})
	}
}
