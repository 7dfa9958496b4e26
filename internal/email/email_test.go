package email

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	Subject          string            `json:"subject"`
	Headers          map[string]string `json:"headers"`
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func newSendGridServer(t *testing.T, status int, captured *sentMail, auth *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			_ = json.Unmarshal(body, captured)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSendReply(t *testing.T) {
	var captured sentMail
	var auth string
	server := newSendGridServer(t, http.StatusAccepted, &captured, &auth)
	mailer := NewMailer("sg-key", "help@acme.io", "Acme Support").WithHost(server.URL)

	messageID, err := mailer.SendReply(context.Background(), Reply{
		ToEmail:    "jane@customer.com",
		ToName:     "Jane",
		Subject:    "Export failing",
		Body:       "Please retry with CSV.",
		InReplyTo:  "<b@customer.com>",
		References: []string{"<a@customer.com>", "<b@customer.com>"},
	})

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^<[0-9a-f-]{36}@acme\.io>$`), messageID)
	assert.Equal(t, "Bearer sg-key", auth)
	assert.Equal(t, "help@acme.io", captured.From.Email)
	assert.Equal(t, "Acme Support", captured.From.Name)
	assert.Equal(t, "Re: Export failing", captured.Subject)
	require.Len(t, captured.Personalizations, 1)
	assert.Equal(t, "jane@customer.com", captured.Personalizations[0].To[0].Email)
	require.Len(t, captured.Content, 1)
	assert.Equal(t, "Please retry with CSV.", captured.Content[0].Value)
	assert.Equal(t, "<b@customer.com>", captured.Headers["In-Reply-To"])
	assert.Equal(t, "<a@customer.com> <b@customer.com>", captured.Headers["References"])
	assert.Equal(t, messageID, captured.Headers["Message-ID"])
}

func TestSendReply_NotConfigured(t *testing.T) {
	_, err := NewMailer("", "", "").SendReply(context.Background(), Reply{ToEmail: "a@b.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendReply_APIError(t *testing.T) {
	server := newSendGridServer(t, http.StatusBadRequest, nil, nil)
	mailer := NewMailer("sg-key", "help@acme.io", "").WithHost(server.URL)

	_, err := mailer.SendReply(context.Background(), Reply{ToEmail: "a@b.com", Body: "x"})

	assert.ErrorContains(t, err, "SendGrid API error: status 400")
}

func TestSendReply_DeadlineAbortsRequest(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	mailer := NewMailer("sg-key", "help@acme.io", "").WithHost(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := mailer.SendReply(ctx, Reply{ToEmail: "a@b.com", Body: "x"})

	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to send email")
	assert.ErrorContains(t, err, "context deadline exceeded")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewMailer_Defaults(t *testing.T) {
	m := NewMailer("key", "", "")
	assert.Equal(t, "support@example.com", m.FromEmail())
	assert.Equal(t, "Support", m.fromName)
	assert.Equal(t, DefaultHost, m.host)
}

func TestReplySubject(t *testing.T) {
	tests := []struct {
		in, expected string
	}{
		{"Export failing", "Re: Export failing"},
		{"Re: Export failing", "Re: Export failing"},
		{"RE: Export failing", "RE: Export failing"},
		{"  ", "Re: your request"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ReplySubject(tt.in))
	}
}

func TestReferences(t *testing.T) {
	assert.Equal(t, "", References(nil, ""))
	assert.Equal(t, "<a>", References(nil, "<a>"))
	assert.Equal(t, "<a> <b>", References([]string{"<a>", " ", "<b>"}, "<a>"))
	assert.Equal(t, "<a> <b> <c>", References([]string{"<a>", "<b>"}, "<c>"))
}
