// Package responder assembles prompts and turns them into replies,
// summaries, image descriptions and transcripts.
package responder

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/wiralab/wira/contacts"
	"github.com/wiralab/wira/pkg/config"
	"github.com/wiralab/wira/pkg/llm"
)

// Fixed fallbacks keep the conversation moving when a capability fails
const (
	FallbackReply      = "Sorry, I'm having trouble responding right now. Please try again in a moment."
	FallbackTranscript = "[voice message could not be transcribed]"
	FallbackVision     = "[image could not be processed]"
)

const defaultPersona = "You are Wira, a personal AI assistant answering chats on behalf of your owner. " +
	"Be warm, concise and helpful. Reply in the language the sender uses. " +
	"Never invent facts about the owner's schedule; rely only on the context below."

const actionProtocol = `When the sender asks you to manage the agenda, tasks, the owner note or the whitelist, append exactly one JSON object to your reply, for example:
{"action": "create_event", "summary": "Meeting", "start": "2026-01-02T15:00:00+07:00", "end": "2026-01-02T16:00:00+07:00"}
Supported actions: create_event, edit_event, delete_event, create_task, edit_task, delete_task, add_note, edit_note, delete_note, add_allowed_number, remove_allowed_number, add_allowed_group, remove_allowed_group.
Use the IDs shown in the schedule context for edits and deletions. Do not emit JSON otherwise.`

// Knowledge answers lexical retrieval queries
type Knowledge interface {
	Query(text string) string
}

// Agenda renders schedule context for the prompt
type Agenda interface {
	AgendaText(now time.Time) string
	TasksText() string
}

// Request carries everything needed to answer one flushed batch
type Request struct {
	SenderName string
	Contact    *contacts.Contact // nil for unknown senders
	Message    string            // merged batch text
	History    []string          // recent conversation lines, oldest first
	Note       string            // urgent owner note, "" when unset
	Now        time.Time
}

// Responder generates replies through the configured providers
type Responder struct {
	cfg         config.LLMConfig
	text        llm.TextProvider
	vision      llm.VisionProvider
	transcriber llm.Transcriber
	knowledge   Knowledge
	agenda      Agenda
	loc         *time.Location
	enc         *tiktoken.Tiktoken
}

// New creates a responder. vision, transcriber, knowledge and agenda may be
// nil; the corresponding prompt sections and capabilities degrade gracefully.
func New(cfg config.LLMConfig, text llm.TextProvider, vision llm.VisionProvider,
	transcriber llm.Transcriber, knowledge Knowledge, agenda Agenda, loc *time.Location) *Responder {
	if loc == nil {
		loc = time.Local
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Printf("[WARN] Responder: tiktoken unavailable, using estimate: %v", err)
		enc = nil
	}
	return &Responder{
		cfg:         cfg,
		text:        text,
		vision:      vision,
		transcriber: transcriber,
		knowledge:   knowledge,
		agenda:      agenda,
		loc:         loc,
		enc:         enc,
	}
}

// Reply answers one flushed batch. Generation failures degrade to a fixed
// fallback so the conversation never stalls on provider errors.
func (r *Responder) Reply(ctx context.Context, req Request) string {
	if r.text == nil {
		return FallbackReply
	}
	prompt := r.BuildPrompt(req)
	out, err := r.text.Generate(ctx, prompt, llm.GenerateOptions{
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		log.Printf("[WARN] Responder: generate failed: %v", err)
		return FallbackReply
	}
	if strings.TrimSpace(out) == "" {
		return FallbackReply
	}
	return out
}

// Summarize condenses a finished conversation window into a few sentences.
// Unlike Reply it surfaces the error; the caller decides what rollover does
// on failure.
func (r *Responder) Summarize(ctx context.Context, contactName string, history []string) (string, error) {
	if r.text == nil {
		return "", fmt.Errorf("no text provider")
	}
	var sb strings.Builder
	sb.WriteString("Summarize the following chat into at most three sentences. ")
	sb.WriteString("Keep names, commitments, dates and unresolved questions. Reply with the summary only.\n\n")
	if contactName != "" {
		fmt.Fprintf(&sb, "Conversation with %s:\n", contactName)
	}
	for _, line := range history {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	out, err := r.text.Generate(ctx, sb.String(), llm.GenerateOptions{
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// DescribeImage turns an inbound image into text for the reply pipeline
func (r *Responder) DescribeImage(ctx context.Context, caption string, media llm.Media) string {
	if r.vision == nil {
		return FallbackVision
	}
	out, err := r.vision.Describe(ctx, caption, media)
	if err != nil || strings.TrimSpace(out) == "" {
		log.Printf("[WARN] Responder: vision failed: %v", err)
		return FallbackVision
	}
	return out
}

// Transcribe turns a voice note into text for the reply pipeline
func (r *Responder) Transcribe(ctx context.Context, media llm.Media) string {
	if r.transcriber == nil {
		return FallbackTranscript
	}
	out, err := r.transcriber.Transcribe(ctx, media)
	if err != nil || strings.TrimSpace(out) == "" {
		log.Printf("[WARN] Responder: transcription failed: %v", err)
		return FallbackTranscript
	}
	return out
}

// BuildPrompt assembles the full generation prompt for one batch
func (r *Responder) BuildPrompt(req Request) string {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	var sb strings.Builder

	sb.WriteString(defaultPersona)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Current date and time: %s\n", now.In(r.loc).Format("Monday, 02 January 2006 15:04 MST"))

	if req.Contact != nil {
		fmt.Fprintf(&sb, "\nYou are talking to %s (%s).\n", req.Contact.Name, req.Contact.Role)
		if req.Contact.Instruction != "" {
			fmt.Fprintf(&sb, "Special instruction for this contact: %s\n", req.Contact.Instruction)
		}
	} else if req.SenderName != "" {
		fmt.Fprintf(&sb, "\nYou are talking to %s.\n", req.SenderName)
	}

	// An urgent note replaces the schedule context entirely: while it is
	// set, the note is what the owner wants relayed.
	if req.Note != "" {
		sb.WriteString("\n[URGENT NOTE FROM OWNER]\n")
		sb.WriteString(req.Note)
		sb.WriteString("\nRelay this note when relevant. It takes priority over the normal schedule.\n")
	} else if r.agenda != nil {
		if agenda := r.agenda.AgendaText(now); agenda != "" {
			sb.WriteString("\n[OWNER SCHEDULE]\n")
			sb.WriteString(agenda)
			sb.WriteByte('\n')
		}
		if tasks := r.agenda.TasksText(); tasks != "" {
			sb.WriteString("\n[OWNER TASKS]\n")
			sb.WriteString(tasks)
			sb.WriteByte('\n')
		}
	}

	if r.knowledge != nil {
		if ctx := r.knowledge.Query(req.Message); ctx != "" {
			sb.WriteString("\n[KNOWLEDGE CONTEXT]\n")
			sb.WriteString(ctx)
			sb.WriteByte('\n')
		}
	}

	sb.WriteString("\n")
	sb.WriteString(actionProtocol)
	sb.WriteString("\n")

	if history := r.trimHistory(req.History); len(history) > 0 {
		sb.WriteString("\n[CHAT HISTORY]\n")
		for _, line := range history {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	sb.WriteString("\n[NEW MESSAGE]\n")
	sb.WriteString(req.Message)
	sb.WriteString("\n\nYour reply:")
	return sb.String()
}

// trimHistory keeps the most recent lines that fit the token budget,
// preserving chronological order.
func (r *Responder) trimHistory(lines []string) []string {
	budget := r.cfg.HistoryTokens
	if budget <= 0 || len(lines) == 0 {
		return lines
	}
	used := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		used += r.countTokens(lines[i])
		if used > budget {
			break
		}
		start = i
	}
	return lines[start:]
}

func (r *Responder) countTokens(s string) int {
	if r.enc != nil {
		return len(r.enc.Encode(s, nil, nil))
	}
	// rough estimate when the encoder could not be loaded
	return len(s)/4 + 1
}
