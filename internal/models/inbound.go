package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrInvalidPayload is returned when an inbound email fails validation
var ErrInvalidPayload = errors.New("invalid inbound email payload")

// MaxAttachmentBytes caps the decoded size of a single attachment
const MaxAttachmentBytes = 10 << 20

// Address is an email participant
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Header is a raw header line from the provider
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attachment is a base64-encoded file attached to an inbound email
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
}

// InboundEmail is the webhook payload delivered by the email provider
type InboundEmail struct {
	From        Address      `json:"from"`
	To          Address      `json:"to"`
	Subject     string       `json:"subject"`
	Text        string       `json:"text,omitempty"`
	HTML        string       `json:"html,omitempty"`
	MessageID   string       `json:"message_id"`
	InReplyTo   string       `json:"in_reply_to,omitempty"`
	References  []string     `json:"references,omitempty"`
	Headers     []Header     `json:"headers,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ValidationError lists every field that failed validation
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPayload.Error(), strings.Join(e.Fields, "; "))
}

// Unwrap lets errors.Is match ErrInvalidPayload
func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

// Validate checks the payload against the inbound schema
func (e *InboundEmail) Validate() error {
	var problems []string

	if strings.TrimSpace(e.From.Email) == "" {
		problems = append(problems, "from.email is required")
	} else if _, err := mail.ParseAddress(e.From.Email); err != nil {
		problems = append(problems, "from.email is not a valid address")
	}
	if strings.TrimSpace(e.To.Email) == "" {
		problems = append(problems, "to.email is required")
	} else if _, err := mail.ParseAddress(e.To.Email); err != nil {
		problems = append(problems, "to.email is not a valid address")
	}
	if strings.TrimSpace(e.MessageID) == "" {
		problems = append(problems, "message_id is required")
	}
	if strings.TrimSpace(e.Subject) == "" && strings.TrimSpace(e.Text) == "" && strings.TrimSpace(e.HTML) == "" {
		problems = append(problems, "one of subject, text or html is required")
	}
	for i, h := range e.Headers {
		if strings.TrimSpace(h.Name) == "" {
			problems = append(problems, fmt.Sprintf("headers[%d].name is required", i))
		}
	}
	for i, a := range e.Attachments {
		if strings.TrimSpace(a.Filename) == "" {
			problems = append(problems, fmt.Sprintf("attachments[%d].filename is required", i))
		}
		decoded, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			problems = append(problems, fmt.Sprintf("attachments[%d].content is not valid base64", i))
			continue
		}
		if len(decoded) > MaxAttachmentBytes {
			problems = append(problems, fmt.Sprintf("attachments[%d] exceeds %d bytes", i, MaxAttachmentBytes))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}

// DecodeInboundEmail strictly decodes a webhook body. Unknown fields are rejected.
func DecodeInboundEmail(body []byte) (*InboundEmail, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var email InboundEmail
	if err := dec.Decode(&email); err != nil {
		return nil, &ValidationError{Fields: []string{fmt.Sprintf("malformed JSON: %v", err)}}
	}
	if dec.More() {
		return nil, &ValidationError{Fields: []string{"trailing data after JSON object"}}
	}
	return &email, nil
}

// ResolverAttachment is an attachment in the form the resolver stores
type ResolverAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
	Size        int    `json:"size"`
}

// ResolverInput is the document passed to the thread/ticket resolver procedure
type ResolverInput struct {
	OrganizationID string               `json:"organization_id"`
	FromEmail      string               `json:"from_email"`
	FromName       string               `json:"from_name,omitempty"`
	ToEmail        string               `json:"to_email"`
	ToName         string               `json:"to_name,omitempty"`
	Subject        string               `json:"subject"`
	MessageID      string               `json:"message_id"`
	InReplyTo      string               `json:"in_reply_to,omitempty"`
	References     []string             `json:"references"`
	Headers        []Header             `json:"headers"`
	TextBody       string               `json:"text_body"`
	HTMLBody       string               `json:"html_body,omitempty"`
	Embedding      string               `json:"embedding,omitempty"`
	Attachments    []ResolverAttachment `json:"attachments"`
	RawPayload     json.RawMessage      `json:"raw_payload"`
}

// StoredAttachment is an attachment row created by the resolver
type StoredAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// EmailProcessingResult is the structured output of the resolver
type EmailProcessingResult struct {
	Thread      EmailThread        `json:"thread"`
	Ticket      Ticket             `json:"ticket"`
	Message     EmailMessage       `json:"message"`
	Contact     Contact            `json:"contact"`
	Attachments []StoredAttachment `json:"attachments"`
}
