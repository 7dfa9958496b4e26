package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"helpdesk/internal/models"
)

// ActorKey is the echo context key holding the authenticated agent id
const ActorKey = "actor_id"

// ErrInvalidCredentials is returned for an unknown agent or a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

type session struct {
	actorID string
	expiry  time.Time
}

// Manager issues and validates bearer tokens for agents
type Manager struct {
	agents      map[string]string
	tokens      map[string]session
	mu          sync.RWMutex
	tokenExpiry time.Duration
	now         func() time.Time
}

// NewManager creates a new authentication manager for the given agent id -> password map
func NewManager(agents map[string]string) *Manager {
	return &Manager{
		agents:      agents,
		tokens:      make(map[string]session),
		tokenExpiry: 24 * time.Hour,
		now:         time.Now,
	}
}

// Authenticate validates username and password and returns a token and its expiry
func (am *Manager) Authenticate(username, password string) (string, time.Time, error) {
	expected, ok := am.agents[username]
	if !ok || subtle.ConstantTimeCompare([]byte(expected), []byte(password)) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)
	expiry := am.now().Add(am.tokenExpiry)

	am.mu.Lock()
	am.tokens[token] = session{actorID: username, expiry: expiry}
	am.cleanupExpiredTokens()
	am.mu.Unlock()

	return token, expiry, nil
}

// ValidateToken returns the agent id a live token was issued to
func (am *Manager) ValidateToken(token string) (string, bool) {
	am.mu.RLock()
	s, exists := am.tokens[token]
	am.mu.RUnlock()
	if !exists {
		return "", false
	}

	if am.now().After(s.expiry) {
		am.mu.Lock()
		delete(am.tokens, token)
		am.mu.Unlock()
		return "", false
	}

	return s.actorID, true
}

// cleanupExpiredTokens removes expired tokens; callers hold the write lock
func (am *Manager) cleanupExpiredTokens() {
	now := am.now()
	for token, s := range am.tokens {
		if now.After(s.expiry) {
			delete(am.tokens, token)
		}
	}
}

// Middleware rejects requests without a valid bearer token and stores the
// agent id under ActorKey
func Middleware(authManager *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get("Authorization")
			if token != "" {
				token = strings.TrimPrefix(token, "Bearer ")
			} else {
				token = c.QueryParam("token")
			}

			actorID, ok := "", false
			if token != "" {
				actorID, ok = authManager.ValidateToken(token)
			}
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error: "Unauthorized. Please login first.",
				})
			}

			c.Set(ActorKey, actorID)
			return next(c)
		}
	}
}

// ActorID returns the authenticated agent id, or "" outside the middleware
func ActorID(c echo.Context) string {
	actorID, _ := c.Get(ActorKey).(string)
	return actorID
}
