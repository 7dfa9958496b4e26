package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// DraftStatus is the approval state of a response draft
type DraftStatus string

const (
	DraftStatusPending  DraftStatus = "pending"
	DraftStatusApproved DraftStatus = "approved"
	DraftStatusModified DraftStatus = "modified"
	DraftStatusRejected DraftStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s
func (s DraftStatus) Terminal() bool {
	return s != DraftStatusPending
}

// Grade is the structured assessment attached to a draft
type Grade struct {
	QualityScore  int      `json:"quality_score"`
	AccuracyScore int      `json:"accuracy_score"`
	Summary       string   `json:"summary"`
	Concerns      []string `json:"concerns"`
}

// Value implements driver.Valuer
func (g Grade) Value() (driver.Value, error) {
	if g.Concerns == nil {
		g.Concerns = []string{}
	}
	return json.Marshal(g)
}

// Scan implements sql.Scanner
func (g *Grade) Scan(src interface{}) error {
	return scanJSON(src, g)
}

// DraftMetadata records provenance of a generated draft
type DraftMetadata struct {
	HasNotes      bool     `json:"has_notes"`
	NoteCount     int      `json:"note_count"`
	MessageCount  int      `json:"message_count"`
	Placeholders  []string `json:"placeholders,omitempty"`
	RetrievalMode string   `json:"retrieval_mode,omitempty"`
}

// Value implements driver.Valuer
func (m DraftMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *DraftMetadata) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// ResponseDraft is a generated reply awaiting human action
type ResponseDraft struct {
	ID              string        `db:"id" json:"id"`
	OrganizationID  string        `db:"organization_id" json:"organization_id"`
	ThreadID        string        `db:"thread_id" json:"thread_id"`
	TicketID        string        `db:"ticket_id" json:"ticket_id"`
	Content         string        `db:"content" json:"content"`
	Grade           Grade         `db:"grade" json:"grade"`
	Status          DraftStatus   `db:"status" json:"status"`
	ModifiedContent *string       `db:"modified_content" json:"modified_content,omitempty"`
	Feedback        *string       `db:"feedback" json:"feedback,omitempty"`
	ApprovedBy      *string       `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `db:"approved_at" json:"approved_at,omitempty"`
	Metadata        DraftMetadata `db:"metadata" json:"metadata"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

// OutgoingContent returns the text that should be sent for this draft
func (d *ResponseDraft) OutgoingContent() string {
	if d.Status == DraftStatusModified && d.ModifiedContent != nil {
		return *d.ModifiedContent
	}
	return d.Content
}
