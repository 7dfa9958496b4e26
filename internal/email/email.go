package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// DefaultHost is the SendGrid API host
const DefaultHost = "https://api.sendgrid.com"

// ErrNotConfigured is returned when no SendGrid API key is set
var ErrNotConfigured = errors.New("SendGrid API key not configured")

// Reply is an outbound answer in an existing conversation
type Reply struct {
	ToEmail    string
	ToName     string
	Subject    string
	Body       string
	InReplyTo  string   // provider message id being answered
	References []string // thread message ids, oldest first
}

// Mailer sends replies via SendGrid
type Mailer struct {
	apiKey    string
	fromEmail string
	fromName  string
	host      string
}

// NewMailer creates a new mailer instance
func NewMailer(apiKey, fromEmail, fromName string) *Mailer {
	if fromEmail == "" {
		fromEmail = "support@example.com"
	}
	if fromName == "" {
		fromName = "Support"
	}
	return &Mailer{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		host:      DefaultHost,
	}
}

// WithHost points the mailer at another API host
func (m *Mailer) WithHost(host string) *Mailer {
	m.host = host
	return m
}

// FromEmail returns the address replies are sent from
func (m *Mailer) FromEmail() string {
	return m.fromEmail
}

// SendReply sends a threaded reply and returns the Message-ID it was sent with
func (m *Mailer) SendReply(ctx context.Context, reply Reply) (string, error) {
	if m.apiKey == "" {
		return "", ErrNotConfigured
	}
	messageID := m.newMessageID()
	message := m.buildMessage(reply, messageID)

	request := sendgrid.GetRequest(m.apiKey, "/v3/mail/send", m.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		return "", fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	return messageID, nil
}

func (m *Mailer) buildMessage(reply Reply, messageID string) *mail.SGMailV3 {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(m.fromName, m.fromEmail))
	message.Subject = ReplySubject(reply.Subject)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(reply.ToName, reply.ToEmail))
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/plain", reply.Body))

	message.SetHeader("Message-ID", messageID)
	if reply.InReplyTo != "" {
		message.SetHeader("In-Reply-To", reply.InReplyTo)
	}
	if refs := References(reply.References, reply.InReplyTo); refs != "" {
		message.SetHeader("References", refs)
	}
	return message
}

func (m *Mailer) newMessageID() string {
	domain := "localhost"
	if at := strings.LastIndex(m.fromEmail, "@"); at >= 0 && at < len(m.fromEmail)-1 {
		domain = m.fromEmail[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// ReplySubject prefixes "Re: " unless the subject already is a reply
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	if subject == "" {
		return "Re: your request"
	}
	return "Re: " + subject
}

// References builds the References header: the known chain followed by the
// answered message, without duplicates
func References(chain []string, inReplyTo string) string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range append(append([]string{}, chain...), inReplyTo) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return strings.Join(ids, " ")
}
