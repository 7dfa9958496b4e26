package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"helpdesk/internal/email"
	"helpdesk/internal/models"
	"helpdesk/internal/summarizer"
)

// ErrNoCustomerMessage is returned when a thread has nothing to reply to
var ErrNoCustomerMessage = errors.New("thread has no inbound message to reply to")

const defaultRefreshTimeout = 2 * time.Minute

// ThreadStore loads threads and records sent replies
type ThreadStore interface {
	GetThread(ctx context.Context, id string) (*models.EmailThread, error)
	AppendOutboundMessage(ctx context.Context, msg *models.EmailMessage) (*models.EmailMessage, error)
}

// Mailer delivers replies
type Mailer interface {
	SendReply(ctx context.Context, reply email.Reply) (string, error)
	FromEmail() string
}

// SummaryRefresher regenerates the ticket summary
type SummaryRefresher interface {
	UpdateTicketSummary(ctx context.Context, in summarizer.SummaryInput) (*models.Note, error)
}

// ReplyTracker records sent replies
type ReplyTracker interface {
	TrackReplySent(organizationID, draftID, recipient string) error
}

// Outcome is the result of an approve or modify that may send. A send
// failure leaves the draft approved or modified; it is reported in SendError.
type Outcome struct {
	Draft     *models.ResponseDraft
	Sent      bool
	MessageID string
	SendError error
}

// Dispatcher composes a transition with delivery of the reply. The two
// steps are not atomic.
type Dispatcher struct {
	workflow       *Workflow
	threads        ThreadStore
	mailer         Mailer
	summaries      SummaryRefresher
	tracker        ReplyTracker
	refreshTimeout time.Duration
	logger         zerolog.Logger
	wg             sync.WaitGroup
}

// NewDispatcher creates a dispatcher; summaries and tracker may be nil
func NewDispatcher(workflow *Workflow, threads ThreadStore, mailer Mailer, summaries SummaryRefresher, tracker ReplyTracker, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		workflow:       workflow,
		threads:        threads,
		mailer:         mailer,
		summaries:      summaries,
		tracker:        tracker,
		refreshTimeout: defaultRefreshTimeout,
		logger:         logger.With().Str("component", "dispatcher").Logger(),
	}
}

// ApproveAndSend approves the draft and sends its original content
func (d *Dispatcher) ApproveAndSend(ctx context.Context, draftID, actorID string) (*Outcome, error) {
	draft, err := d.workflow.Approve(ctx, draftID, actorID)
	if err != nil {
		return nil, err
	}
	return d.deliver(ctx, draft), nil
}

// ModifyAndSend stores the edited content and, when send is true, sends it
func (d *Dispatcher) ModifyAndSend(ctx context.Context, draftID, actorID, content string, send bool) (*Outcome, error) {
	draft, err := d.workflow.Modify(ctx, draftID, actorID, content)
	if err != nil {
		return nil, err
	}
	if !send {
		return &Outcome{Draft: draft}, nil
	}
	return d.deliver(ctx, draft), nil
}

func (d *Dispatcher) deliver(ctx context.Context, draft *models.ResponseDraft) *Outcome {
	outcome := &Outcome{Draft: draft}

	messageID, thread, err := d.send(ctx, draft)
	if err != nil {
		d.logger.Error().Err(err).Str("draft_id", draft.ID).Msg("Failed to send approved draft")
		outcome.SendError = err
		return outcome
	}
	outcome.Sent = true
	outcome.MessageID = messageID

	d.refreshSummary(draft, thread)
	return outcome
}

func (d *Dispatcher) send(ctx context.Context, draft *models.ResponseDraft) (string, *models.EmailThread, error) {
	thread, err := d.threads.GetThread(ctx, draft.ThreadID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load thread %s: %w", draft.ThreadID, err)
	}

	customer := lastInbound(thread)
	if customer == nil {
		return "", nil, ErrNoCustomerMessage
	}

	var customerName string
	if customer.FromName != nil {
		customerName = *customer.FromName
	}
	content := draft.OutgoingContent()

	messageID, err := d.mailer.SendReply(ctx, email.Reply{
		ToEmail:    customer.FromEmail,
		ToName:     customerName,
		Subject:    thread.Subject,
		Body:       content,
		InReplyTo:  customer.MessageID,
		References: thread.ProviderMessageIDs,
	})
	if err != nil {
		return "", nil, err
	}

	if d.tracker != nil {
		if err := d.tracker.TrackReplySent(draft.OrganizationID, draft.ID, customer.FromEmail); err != nil {
			d.logger.Warn().Err(err).Str("draft_id", draft.ID).Msg("Failed to track sent reply")
		}
	}

	inReplyTo := customer.MessageID
	saved, err := d.threads.AppendOutboundMessage(ctx, &models.EmailMessage{
		ThreadID:     thread.ID,
		MessageID:    messageID,
		InReplyTo:    &inReplyTo,
		ReferenceIDs: append([]string{}, thread.ProviderMessageIDs...),
		FromEmail:    d.mailer.FromEmail(),
		ToEmail:      customer.FromEmail,
		Subject:      email.ReplySubject(thread.Subject),
		TextBody:     &content,
		Direction:    models.DirectionOutbound,
	})
	if err != nil {
		// The mail is already out; the thread just misses the record
		d.logger.Error().Err(err).Str("draft_id", draft.ID).Str("message_id", messageID).Msg("Failed to record sent reply")
		return messageID, thread, nil
	}

	thread.Messages = append(thread.Messages, *saved)
	thread.ProviderMessageIDs = append(thread.ProviderMessageIDs, messageID)
	return messageID, thread, nil
}

// refreshSummary regenerates the ticket summary without holding up the caller
func (d *Dispatcher) refreshSummary(draft *models.ResponseDraft, thread *models.EmailThread) {
	if d.summaries == nil || thread == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Interface("panic", r).Str("ticket_id", draft.TicketID).Msg("Summary refresh panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.refreshTimeout)
		defer cancel()

		_, err := d.summaries.UpdateTicketSummary(ctx, summarizer.SummaryInput{
			OrganizationID: draft.OrganizationID,
			TicketID:       draft.TicketID,
			Thread:         thread,
		})
		if err != nil {
			d.logger.Error().Err(err).Str("ticket_id", draft.TicketID).Msg("Failed to refresh summary after reply")
		}
	}()
}

// Wait blocks until background summary refreshes finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func lastInbound(thread *models.EmailThread) *models.EmailMessage {
	for i := len(thread.Messages) - 1; i >= 0; i-- {
		if thread.Messages[i].Direction == models.DirectionInbound {
			return &thread.Messages[i]
		}
	}
	return nil
}
