package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"helpdesk/internal/auth"
	"helpdesk/internal/models"
)

// LoginHandler handles agent authentication
// @Summary Agent login
// @Description Authenticate an agent and receive a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/auth/login [post]
func LoginHandler(authManager *auth.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.LoginRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		}

		token, expiresAt, err := authManager.Authenticate(req.Username, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid username or password"})
		}
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(http.StatusOK, models.LoginResponse{Token: token, ExpiresAt: expiresAt})
	}
}
