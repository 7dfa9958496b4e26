// Package prompts renders the single-turn prompts used for drafting, grading
// and summarizing support conversations.
package prompts

import (
	"fmt"
	"strings"

	"helpdesk/internal/models"
	"helpdesk/internal/utils"
)

// ThreadSeparator separates messages in a rendered thread
const ThreadSeparator = "\n---\n"

const timestampLayout = "2006-01-02 15:04 MST"

// Prompt is a system instruction plus the user turn
type Prompt struct {
	System string
	User   string
}

// FormatThread renders messages oldest first as "[timestamp] sender:\nbody"
// blocks separated by "---"
func FormatThread(thread *models.EmailThread) string {
	if thread == nil || len(thread.Messages) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		body := strings.TrimSpace(msg.Text())
		if body == "" && msg.HTMLBody != nil {
			body = "(HTML-only message)"
		}
		blocks = append(blocks, fmt.Sprintf("[%s] %s:\n%s",
			msg.CreatedAt.UTC().Format(timestampLayout), msg.Sender(), body))
	}
	return strings.Join(blocks, ThreadSeparator)
}

// FormatNotes renders notes as a numbered list, or a fixed marker when there are none
func FormatNotes(notes []models.Note) string {
	if len(notes) == 0 {
		return "No relevant notes found."
	}

	var b strings.Builder
	for i, note := range notes {
		b.WriteString(fmt.Sprintf("%d. ", i+1))
		if note.Metadata.Type() == models.NoteTypeTicketSummary {
			b.WriteString("(ticket summary) ")
		}
		b.WriteString(strings.TrimSpace(note.Content))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SettingsSection renders the organization's response policy
func SettingsSection(settings models.AutoResponseSettings, customerText string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Tone: %s\n", settings.Tone))
	b.WriteString(fmt.Sprintf("Language: %s\n", utils.LanguageInstruction(settings.Language, customerText)))
	if settings.ResponseGuidelines != "" {
		b.WriteString("Response guidelines:\n")
		b.WriteString(settings.ResponseGuidelines)
		b.WriteString("\n")
	}
	if settings.ComplianceRequirements != "" {
		b.WriteString("Compliance requirements:\n")
		b.WriteString(settings.ComplianceRequirements)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// CustomerText returns the body of the most recent inbound message
func CustomerText(thread *models.EmailThread) string {
	if thread == nil {
		return ""
	}
	for i := len(thread.Messages) - 1; i >= 0; i-- {
		msg := thread.Messages[i]
		if msg.Direction == models.DirectionInbound && strings.TrimSpace(msg.Text()) != "" {
			return msg.Text()
		}
	}
	return ""
}

// Draft builds the reply-drafting prompt
func Draft(settings models.AutoResponseSettings, notes []models.Note, thread *models.EmailThread) Prompt {
	system := "You are a customer support agent writing the next reply in an email conversation.\n\n" +
		"Rules:\n" +
		"- Reply with the email body only, in plain text. No subject line.\n" +
		"- Ground every factual statement in the conversation or the internal notes.\n" +
		"- When information needed for the reply is not available, insert a short square-bracket placeholder such as [api documentation link] or [refund amount]. " +
		"Use placeholders only for missing information, never for content you can write.\n" +
		"- Do not invent order numbers, prices, dates or policies."

	var user strings.Builder
	user.WriteString("Organization settings:\n")
	user.WriteString(SettingsSection(settings, CustomerText(thread)))
	user.WriteString("\n\nInternal notes:\n")
	user.WriteString(FormatNotes(notes))
	user.WriteString("\n\nConversation (oldest first):\n")
	user.WriteString(FormatThread(thread))
	user.WriteString("\n\nWrite the reply to the latest customer message.")

	return Prompt{System: system, User: user.String()}
}

// Grade builds the prompt that scores a candidate reply as strict JSON
func Grade(settings models.AutoResponseSettings, notes []models.Note, thread *models.EmailThread, response string) Prompt {
	system := "You review customer support replies before they are sent.\n\n" +
		"Respond with a single JSON object and nothing else, exactly in this shape:\n" +
		`{"quality_score": <integer 1-5>, "accuracy_score": <integer 1-5>, "summary": "<one or two sentences>", "concerns": ["<concern>", ...]}` + "\n\n" +
		"quality_score rates tone, clarity and adherence to the organization settings.\n" +
		"accuracy_score rates whether every claim is supported by the conversation and notes.\n" +
		"Leave concerns as an empty array unless accuracy_score is 3 or lower."

	var user strings.Builder
	user.WriteString("Organization settings:\n")
	user.WriteString(SettingsSection(settings, CustomerText(thread)))
	user.WriteString("\n\nInternal notes:\n")
	user.WriteString(FormatNotes(notes))
	user.WriteString("\n\nConversation (oldest first):\n")
	user.WriteString(FormatThread(thread))
	user.WriteString("\n\nCandidate reply:\n")
	user.WriteString(response)

	return Prompt{System: system, User: user.String()}
}

// SummarySections are the headings every ticket summary must contain, in order
var SummarySections = []string{
	"Main Issue/Request",
	"Key Details",
	"Actions Taken",
	"Next Steps",
}

// Summary builds the rolling ticket summary prompt
func Summary(thread *models.EmailThread) Prompt {
	var system strings.Builder
	system.WriteString("You summarize support tickets for the agents working on them.\n")
	system.WriteString("Write markdown with exactly these sections, each as a level-2 heading, in this order:\n")
	for _, section := range SummarySections {
		system.WriteString(fmt.Sprintf("## %s\n", section))
	}
	system.WriteString("Keep each section short. Write \"None\" under a section with nothing to report.")

	user := "Conversation (oldest first):\n" + FormatThread(thread)
	return Prompt{System: system.String(), User: user}
}

// Priority builds the single-word priority classification prompt
func Priority(content string) Prompt {
	system := "Classify the urgency of a customer support request.\n" +
		"Answer with exactly one word: low, normal, high or urgent.\n" +
		"urgent: outage, security incident or data loss affecting the customer now.\n" +
		"high: a blocking problem or a deadline within a day.\n" +
		"normal: ordinary questions and non-blocking problems.\n" +
		"low: feedback, feature requests or general information."

	return Prompt{System: system, User: strings.TrimSpace(content)}
}
