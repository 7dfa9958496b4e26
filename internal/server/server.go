package server

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "helpdesk/docs"
	"helpdesk/internal/auth"
	"helpdesk/internal/config"
	"helpdesk/internal/handlers"
)

// Services are the components the HTTP routes delegate to
type Services struct {
	Processor handlers.InboundProcessor
	Drafts    handlers.DraftReader
	Sender    handlers.DraftSender
	Rejecter  handlers.DraftRejecter
	Grader    handlers.ResponseGrader
	Tickets   handlers.TicketReader
	Summaries handlers.SummaryReader
	Context   handlers.ContextRetriever
	Analytics handlers.SummarySource
	Auth      *auth.Manager
}

// Server represents the application server
type Server struct {
	echo     *echo.Echo
	db       *sqlx.DB
	config   *config.Config
	logger   zerolog.Logger
	services Services
}

// New creates a new server instance
func New(cfg *config.Config, db *sqlx.DB, services Services, logger zerolog.Logger) *Server {
	return &Server{
		config:   cfg,
		db:       db,
		logger:   logger,
		services: services,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			event := s.logger.Info()
			if res.Status >= 500 {
				event = s.logger.Error()
			}
			event.
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	s.echo.HideBanner = true

	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health endpoints stay at root level for monitoring
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.db))

	api := s.echo.Group("/api")
	api.GET("/", handlers.RootHandler(s.config.Version))
	api.POST("/webhooks/email/:org", handlers.InboundEmailHandler(s.services.Processor, s.config.WebhookSecret, s.logger))
	api.POST("/auth/login", handlers.LoginHandler(s.services.Auth))

	requireAgent := auth.Middleware(s.services.Auth)
	api.GET("/drafts/:id", handlers.GetDraftHandler(s.services.Drafts), requireAgent)
	api.GET("/tickets/:id/drafts", handlers.ListTicketDraftsHandler(s.services.Drafts), requireAgent)
	api.GET("/tickets/:id/context", handlers.TicketContextHandler(s.services.Tickets, s.services.Summaries, s.services.Context), requireAgent)
	api.POST("/drafts/:id/approve", handlers.ApproveDraftHandler(s.services.Sender), requireAgent)
	api.POST("/drafts/:id/modify", handlers.ModifyDraftHandler(s.services.Sender), requireAgent)
	api.POST("/drafts/:id/reject", handlers.RejectDraftHandler(s.services.Rejecter), requireAgent)
	api.POST("/threads/:id/grade", handlers.GradeResponseHandler(s.services.Grader), requireAgent)
	api.GET("/analytics", handlers.AnalyticsHandler(s.services.Analytics, s.logger), requireAgent)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
