package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"helpdesk/internal/database"
	"helpdesk/internal/models"
)

// Period constants for analytics queries
const (
	PeriodToday      = "today"
	PeriodYesterday  = "yesterday"
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
)

// Service records pipeline outcomes and reports period summaries
type Service struct {
	writeClient *database.WriteClient
	logger      zerolog.Logger
	mu          sync.Mutex
	now         func() time.Time
}

// NewService creates a new analytics service and its tables
func NewService(writeClient *database.WriteClient, logger zerolog.Logger) (*Service, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for analytics service")
	}

	service := &Service{
		writeClient: writeClient,
		logger:      logger.With().Str("component", "analytics").Logger(),
		now:         time.Now,
	}

	if err := service.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create analytics tables: %w", err)
	}

	return service, nil
}

// createTables creates the analytics tables in the database
func (s *Service) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analytics_events (
			id SERIAL PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			organization_id TEXT,
			count INT DEFAULT 1,
			metadata JSONB,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_event_type ON analytics_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_created_at ON analytics_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_org ON analytics_events(organization_id, created_at)`,
		// Daily aggregates across organizations for faster queries
		`CREATE TABLE IF NOT EXISTS analytics_daily (
			id SERIAL PRIMARY KEY,
			date DATE NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			total_count INT DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(date, event_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_daily_date ON analytics_daily(date)`,
	}

	for _, query := range queries {
		if _, err := s.writeClient.ExecuteWriteQuery(query); err != nil {
			return err
		}
	}

	return nil
}

// TrackEvent records an analytics event. An empty organizationID is stored as NULL.
func (s *Service) TrackEvent(eventType, organizationID string, count int, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON *string
	if metadata != nil {
		jsonBytes, err := json.Marshal(metadata)
		if err == nil {
			str := string(jsonBytes)
			metadataJSON = &str
		}
	}

	var orgID *string
	if organizationID != "" {
		orgID = &organizationID
	}

	query := `INSERT INTO analytics_events (event_type, organization_id, count, metadata) VALUES ($1, $2, $3, $4)`
	if _, err := s.writeClient.ExecuteWriteQuery(query, eventType, orgID, count, metadataJSON); err != nil {
		return fmt.Errorf("failed to track event: %w", err)
	}

	today := s.now().UTC().Format("2006-01-02")
	aggregateQuery := `
		INSERT INTO analytics_daily (date, event_type, total_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (date, event_type) DO UPDATE SET
			total_count = analytics_daily.total_count + EXCLUDED.total_count,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.writeClient.ExecuteWriteQuery(aggregateQuery, today, eventType, count); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("Failed to update daily aggregate")
	}

	return nil
}

// TrackOpenAICall records token usage of one model call
func (s *Service) TrackOpenAICall(operation, model string, tokens int) error {
	return s.TrackEvent(models.EventOpenAICall, "", 1, map[string]interface{}{
		"operation": operation,
		"model":     model,
		"tokens":    tokens,
	})
}

// TrackReplySent records an approved reply handed to the mail provider
func (s *Service) TrackReplySent(organizationID, draftID, recipient string) error {
	return s.TrackEvent(models.EventReplySent, organizationID, 1, map[string]interface{}{
		"draft_id":       draftID,
		"recipient_hash": hashEmail(recipient),
	})
}

// PeriodRange returns the [start, end) window of a named period. Unknown
// periods resolve to today.
func PeriodRange(period string, now time.Time) (string, time.Time, time.Time) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodYesterday:
		return period, midnight.AddDate(0, 0, -1), midnight
	case PeriodLast7Days:
		return period, now.AddDate(0, 0, -7), now
	case PeriodLast30Days:
		return period, now.AddDate(0, 0, -30), now
	default:
		return PeriodToday, midnight, now
	}
}

// GetSummary aggregates events for a period. With an organizationID the
// event log is filtered; without one the daily aggregates are used.
func (s *Service) GetSummary(ctx context.Context, period, organizationID string) (*models.AnalyticsSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	period, startDate, endDate := PeriodRange(period, s.now())
	summary := &models.AnalyticsSummary{
		Period:       period,
		StartDate:    startDate,
		EndDate:      endDate,
		FailedByTask: map[string]int{},
	}

	db := s.writeClient.GetDB()

	var counts []eventCount
	if organizationID == "" {
		query := `
			SELECT event_type, COALESCE(SUM(total_count), 0) AS total
			FROM analytics_daily
			WHERE date >= $1 AND date <= $2
			GROUP BY event_type
		`
		if err := db.SelectContext(ctx, &counts, query, startDate.Format("2006-01-02"), endDate.Format("2006-01-02")); err != nil {
			return nil, fmt.Errorf("failed to get analytics summary: %w", err)
		}
	} else {
		query := `
			SELECT event_type, COALESCE(SUM(count), 0) AS total
			FROM analytics_events
			WHERE created_at >= $1 AND created_at < $2 AND organization_id = $3
			GROUP BY event_type
		`
		if err := db.SelectContext(ctx, &counts, query, startDate, endDate, organizationID); err != nil {
			return nil, fmt.Errorf("failed to get analytics summary: %w", err)
		}
	}

	for _, c := range counts {
		switch c.EventType {
		case models.EventEmailIngested:
			summary.EmailsIngested = c.Total
		case models.EventDraftGenerated:
			summary.DraftsGenerated = c.Total
		case models.EventDraftSkipped:
			summary.DraftsSkipped = c.Total
		case models.EventSummaryUpdated:
			summary.SummariesUpdated = c.Total
		case models.EventPriorityClassified:
			summary.PrioritiesSet = c.Total
		case models.EventTaskFailed:
			summary.TasksFailed = c.Total
		case models.EventDraftApproved:
			summary.DraftsApproved = c.Total
		case models.EventDraftModified:
			summary.DraftsModified = c.Total
		case models.EventDraftRejected:
			summary.DraftsRejected = c.Total
		case models.EventReplySent:
			summary.RepliesSent = c.Total
		case models.EventOpenAICall:
			summary.OpenAICalls = c.Total
		}
	}

	// Failures per background task
	var failures []taskFailures
	failureQuery := `
		SELECT COALESCE(metadata->>'task', 'unknown') AS task, COALESCE(SUM(count), 0) AS total
		FROM analytics_events
		WHERE event_type = $1 AND created_at >= $2 AND created_at < $3
		AND ($4 = '' OR organization_id = $4)
		GROUP BY 1
	`
	if err := db.SelectContext(ctx, &failures, failureQuery, models.EventTaskFailed, startDate, endDate, organizationID); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load task failures")
	}
	for _, f := range failures {
		summary.FailedByTask[f.Task] = f.Total
	}

	// Token usage is not attributed to organizations
	tokenQuery := `
		SELECT COALESCE(SUM((metadata->>'tokens')::int), 0) AS total_tokens
		FROM analytics_events
		WHERE event_type = $1 AND created_at >= $2 AND created_at < $3
		AND metadata->>'tokens' IS NOT NULL
	`
	if err := db.GetContext(ctx, &summary.OpenAITokensUsed, tokenQuery, models.EventOpenAICall, startDate, endDate); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load token usage")
	}

	pendingQuery := `
		SELECT COUNT(*) FROM response_drafts
		WHERE status = 'pending' AND ($1 = '' OR organization_id::text = $1)
	`
	if err := db.GetContext(ctx, &summary.PendingDrafts, pendingQuery, organizationID); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count pending drafts")
	}

	var averages gradeAverages
	averageQuery := `
		SELECT
			COALESCE(AVG((grade->>'quality_score')::float), 0) AS quality,
			COALESCE(AVG((grade->>'accuracy_score')::float), 0) AS accuracy
		FROM response_drafts
		WHERE created_at >= $1 AND created_at < $2 AND ($3 = '' OR organization_id::text = $3)
	`
	if err := db.GetContext(ctx, &averages, averageQuery, startDate, endDate, organizationID); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load grade averages")
	} else {
		summary.AverageQuality = averages.Quality
		summary.AverageAccuracy = averages.Accuracy
	}

	return summary, nil
}

type eventCount struct {
	EventType string `db:"event_type"`
	Total     int    `db:"total"`
}

type taskFailures struct {
	Task  string `db:"task"`
	Total int    `db:"total"`
}

type gradeAverages struct {
	Quality  float64 `db:"quality"`
	Accuracy float64 `db:"accuracy"`
}

// hashEmail masks an email address for privacy
func hashEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	return email[:2] + "***" + email[len(email)-3:]
}
