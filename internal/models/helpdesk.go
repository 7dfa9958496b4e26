package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ErrThreadEmpty is returned when a thread is required but missing or has no messages
var ErrThreadEmpty = errors.New("thread not found or empty")

// TicketStatus is the lifecycle state of a ticket
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
)

// Priority is the urgency of a ticket
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps free text onto a Priority. The second return value is
// false when the text is not exactly one of the known priorities.
func ParsePriority(value string) (Priority, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	cleaned = strings.Trim(cleaned, "\"'`.!")
	switch Priority(cleaned) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return Priority(cleaned), true
	}
	return PriorityNormal, false
}

// MessageDirection tells whether a message came from the customer or from us
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// Contact represents the external party of a conversation
type Contact struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Email          string    `db:"email" json:"email"`
	Name           *string   `db:"name" json:"name,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Ticket is the unit of support work
type Ticket struct {
	ID             string       `db:"id" json:"id"`
	OrganizationID string       `db:"organization_id" json:"organization_id"`
	ContactID      *string      `db:"contact_id" json:"contact_id,omitempty"`
	AssigneeID     *string      `db:"assignee_id" json:"assignee_id,omitempty"`
	TeamID         *string      `db:"team_id" json:"team_id,omitempty"`
	Subject        string       `db:"subject" json:"subject"`
	Status         TicketStatus `db:"status" json:"status"`
	Priority       Priority     `db:"priority" json:"priority"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	ResolvedAt     *time.Time   `db:"resolved_at" json:"resolved_at,omitempty"`
}

// EmailThread identifies a conversation with an external party
type EmailThread struct {
	ID                 string         `db:"id" json:"id"`
	OrganizationID     string         `db:"organization_id" json:"organization_id"`
	TicketID           string         `db:"ticket_id" json:"ticket_id"`
	Subject            string         `db:"subject" json:"subject"`
	ProviderMessageIDs pq.StringArray `db:"provider_message_ids" json:"provider_message_ids"`
	LastMessageAt      time.Time      `db:"last_message_at" json:"last_message_at"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`

	// Messages is loaded separately, oldest first
	Messages []EmailMessage `db:"-" json:"messages,omitempty"`
}

// IsNewTicket reports whether the thread holds only the message that opened the ticket
func (t *EmailThread) IsNewTicket() bool {
	return len(t.ProviderMessageIDs) == 1
}

// LastMessages returns up to n most recent messages, oldest first
func (t *EmailThread) LastMessages(n int) []EmailMessage {
	if n <= 0 || len(t.Messages) == 0 {
		return nil
	}
	if len(t.Messages) <= n {
		return t.Messages
	}
	return t.Messages[len(t.Messages)-n:]
}

// EmailMessage is an immutable record of one email belonging to a thread
type EmailMessage struct {
	ID           string           `db:"id" json:"id"`
	ThreadID     string           `db:"thread_id" json:"thread_id"`
	MessageID    string           `db:"message_id" json:"message_id"`
	InReplyTo    *string          `db:"in_reply_to" json:"in_reply_to,omitempty"`
	ReferenceIDs pq.StringArray   `db:"reference_ids" json:"reference_ids,omitempty"`
	FromEmail    string           `db:"from_email" json:"from_email"`
	FromName     *string          `db:"from_name" json:"from_name,omitempty"`
	ToEmail      string           `db:"to_email" json:"to_email"`
	Subject      string           `db:"subject" json:"subject"`
	TextBody     *string          `db:"text_body" json:"text_body,omitempty"`
	HTMLBody     *string          `db:"html_body" json:"html_body,omitempty"`
	Direction    MessageDirection `db:"direction" json:"direction"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// Text returns the plain-text body or an empty string
func (m EmailMessage) Text() string {
	if m.TextBody == nil {
		return ""
	}
	return *m.TextBody
}

// Sender returns a display form of the sender
func (m EmailMessage) Sender() string {
	if m.FromName != nil && strings.TrimSpace(*m.FromName) != "" {
		return fmt.Sprintf("%s <%s>", *m.FromName, m.FromEmail)
	}
	return m.FromEmail
}

// NoteTypeTicketSummary marks the system-owned rolling summary note
const NoteTypeTicketSummary = "ticket_summary"

// Note entity types
const (
	EntityTicket  = "ticket"
	EntityContact = "contact"
)

// NoteMetadata is the JSONB metadata column of a note
type NoteMetadata map[string]interface{}

// Type returns metadata.type when present
func (m NoteMetadata) Type() string {
	if m == nil {
		return ""
	}
	t, _ := m["type"].(string)
	return t
}

// Value implements driver.Valuer
func (m NoteMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *NoteMetadata) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// Note is a free-text annotation attached to a ticket or contact
type Note struct {
	ID             string       `db:"id" json:"id"`
	OrganizationID string       `db:"organization_id" json:"organization_id"`
	EntityType     string       `db:"entity_type" json:"entity_type"`
	EntityID       string       `db:"entity_id" json:"entity_id"`
	Content        string       `db:"content" json:"content"`
	Managed        bool         `db:"managed" json:"managed"`
	Metadata       NoteMetadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`

	// Similarity is set only by semantic search
	Similarity float64 `db:"similarity" json:"similarity,omitempty"`
}

// scanJSON decodes a JSON/JSONB column into dest
func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
