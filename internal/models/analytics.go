package models

import "time"

// Analytics event types
const (
	EventEmailIngested      = "email_ingested"
	EventDraftGenerated     = "draft_generated"
	EventDraftSkipped       = "draft_skipped"
	EventSummaryUpdated     = "summary_updated"
	EventPriorityClassified = "priority_classified"
	EventTaskFailed         = "task_failed"
	EventDraftApproved      = "draft_approved"
	EventDraftModified      = "draft_modified"
	EventDraftRejected      = "draft_rejected"
	EventReplySent          = "reply_sent"
	EventOpenAICall         = "openai_call"
)

// AnalyticsSummary represents aggregated analytics for a time period
type AnalyticsSummary struct {
	Period           string         `json:"period"` // "today", "yesterday", "last_7_days", "last_30_days"
	StartDate        time.Time      `json:"start_date"`
	EndDate          time.Time      `json:"end_date"`
	EmailsIngested   int            `json:"emails_ingested"`
	DraftsGenerated  int            `json:"drafts_generated"`
	DraftsSkipped    int            `json:"drafts_skipped"`
	SummariesUpdated int            `json:"summaries_updated"`
	PrioritiesSet    int            `json:"priorities_set"`
	TasksFailed      int            `json:"tasks_failed"`
	FailedByTask     map[string]int `json:"failed_by_task"`
	DraftsApproved   int            `json:"drafts_approved"`
	DraftsModified   int            `json:"drafts_modified"`
	DraftsRejected   int            `json:"drafts_rejected"`
	RepliesSent      int            `json:"replies_sent"`
	OpenAICalls      int            `json:"openai_calls"`
	OpenAITokensUsed int            `json:"openai_tokens_used"`
	PendingDrafts    int            `json:"pending_drafts"`
	AverageQuality   float64        `json:"average_quality"`
	AverageAccuracy  float64        `json:"average_accuracy"`
}

// AnalyticsResponse represents the API response for analytics
// @Description Analytics response payload
type AnalyticsResponse struct {
	Success bool              `json:"success" example:"true"`
	Summary *AnalyticsSummary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty" example:""`
}

