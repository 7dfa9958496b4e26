// Package emails turns inbound mail into the resolver's input document.
package emails

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"helpdesk/internal/models"
)

// Normalize converts a validated webhook payload into the resolver input.
// Addresses are lower-cased, message ids are put in angle brackets, an
// HTML-only body gets a text rendition and attachments are sized and typed.
// The embedding is filled in by the caller.
func Normalize(organizationID string, in *models.InboundEmail) (*models.ResolverInput, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, &models.ValidationError{Fields: []string{"organization id is required"}}
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw payload: %w", err)
	}

	out := &models.ResolverInput{
		OrganizationID: organizationID,
		FromEmail:      normalizeAddress(in.From.Email),
		FromName:       strings.TrimSpace(decodeHeader(in.From.Name)),
		ToEmail:        normalizeAddress(in.To.Email),
		ToName:         strings.TrimSpace(decodeHeader(in.To.Name)),
		Subject:        strings.TrimSpace(decodeHeader(in.Subject)),
		MessageID:      canonicalMessageID(in.MessageID),
		InReplyTo:      canonicalMessageID(in.InReplyTo),
		References:     messageIDs(in.References),
		Headers:        make([]models.Header, 0, len(in.Headers)),
		TextBody:       strings.TrimSpace(in.Text),
		HTMLBody:       in.HTML,
		Attachments:    make([]models.ResolverAttachment, 0, len(in.Attachments)),
		RawPayload:     raw,
	}
	if out.TextBody == "" && strings.TrimSpace(in.HTML) != "" {
		out.TextBody = cleanHTML(in.HTML)
	}

	for _, h := range in.Headers {
		out.Headers = append(out.Headers, models.Header{Name: strings.TrimSpace(h.Name), Value: h.Value})
	}

	for i, a := range in.Attachments {
		decoded, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return nil, &models.ValidationError{Fields: []string{fmt.Sprintf("attachments[%d].content is not valid base64", i)}}
		}
		out.Attachments = append(out.Attachments, models.ResolverAttachment{
			Filename:    a.Filename,
			ContentType: attachmentType(a, decoded),
			Content:     a.Content,
			Size:        len(decoded),
		})
	}

	return out, nil
}

// EmbeddingText is the text an inbound message is embedded from
func EmbeddingText(subject, text string) string {
	subject = strings.TrimSpace(subject)
	text = strings.TrimSpace(text)
	switch {
	case subject == "":
		return text
	case text == "":
		return subject
	}
	return subject + "\n\n" + text
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func attachmentType(a models.Attachment, decoded []byte) string {
	if ct := strings.TrimSpace(a.ContentType); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(a.Filename))); ct != "" {
		return ct
	}
	return http.DetectContentType(decoded)
}

// messageIDs splits header-style id lists, canonicalizes and de-duplicates them
func messageIDs(values []string) []string {
	ids := []string{}
	seen := make(map[string]bool)
	for _, value := range values {
		for _, field := range strings.Fields(value) {
			id := canonicalMessageID(field)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// canonicalMessageID wraps a Message-ID in angle brackets so ids from
// different providers compare equal
func canonicalMessageID(msgID string) string {
	msgID = strings.TrimSpace(msgID)
	msgID = strings.TrimPrefix(msgID, "<")
	msgID = strings.TrimSuffix(msgID, ">")
	msgID = strings.TrimSpace(msgID)
	if msgID == "" {
		return ""
	}
	return "<" + msgID + ">"
}
