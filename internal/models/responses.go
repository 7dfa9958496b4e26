package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Missing   []string      `json:"missing_tables,omitempty"`                   // Helpdesk tables not yet created
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// ServiceInfo describes the API at its root
type ServiceInfo struct {
	Service string `json:"service" example:"Helpdesk API"`
	Version string `json:"version" example:"1.0.0"`
	Status  string `json:"status" example:"running"`
	Docs    string `json:"docs" example:"/swagger/index.html"`
}

// ErrorResponse is the body returned for every failed API call
// @Description Error response payload
type ErrorResponse struct {
	Error string `json:"error" example:"draft not found"`
}

// WebhookResponse acknowledges an inbound email
// @Description Inbound email acknowledgement
type WebhookResponse struct {
	ThreadID  string `json:"thread_id"`
	TicketID  string `json:"ticket_id"`
	MessageID string `json:"message_id"`
	ContactID string `json:"contact_id"`
	NewTicket bool   `json:"new_ticket"`
}

// ModifyDraftRequest is the body of the modify endpoint
// @Description Modify draft request payload
type ModifyDraftRequest struct {
	Content string `json:"content"`
	Send    bool   `json:"send"`
}

// RejectDraftRequest is the body of the reject endpoint
// @Description Reject draft request payload
type RejectDraftRequest struct {
	Feedback string `json:"feedback"`
}

// GradeRequest is the body of the grade endpoint
// @Description Grade request payload
type GradeRequest struct {
	Response string `json:"response"`
}

// DraftActionResponse reports the outcome of an approval action
// @Description Draft action response payload
type DraftActionResponse struct {
	Draft     *ResponseDraft `json:"draft"`
	Sent      bool           `json:"sent"`
	MessageID string         `json:"message_id,omitempty"`
	SendError string         `json:"send_error,omitempty"`
}

// LoginRequest is the agent login body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries a bearer token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TicketContextResponse is what an agent sees next to a ticket's drafts
// @Description Ticket context payload
type TicketContextResponse struct {
	Ticket  *Ticket `json:"ticket"`
	Summary *Note   `json:"summary,omitempty"`
	Notes   []Note  `json:"notes"`
}
