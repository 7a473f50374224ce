// Package orchestrator is the conversation state machine: it gates inbound
// messages, batches them per conversation, runs the reply pipeline, and
// schedules summaries and owner notifications.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wiralab/wira/contacts"
	"github.com/wiralab/wira/pkg/config"
	"github.com/wiralab/wira/pkg/llm"
	"github.com/wiralab/wira/responder"
	"github.com/wiralab/wira/storage"
	"github.com/wiralab/wira/toolcall"
)

// Media kinds on inbound messages
const (
	MediaImage   = "image"
	MediaVoice   = "voice"
	MediaContact = "contact" // shared contact card
)

// Message is one inbound chat event
type Message struct {
	ConversationKey string
	SenderNumber    string
	SenderName      string
	GroupID         string // non-empty for group chats
	Text            string
	Media           *llm.Media
	MediaKind       string
	FromOwner       bool
	Mentioned       bool // the assistant was mentioned (groups)
	ReplyToBot      bool // the message replies to an assistant message
	Broadcast       bool // newsletter/broadcast channel, never answered
	Timestamp       time.Time
}

// Sender delivers outbound messages back to the transport
type Sender interface {
	Send(conversationKey, text string) error
}

// Options wire the orchestrator's collaborators
type Options struct {
	Config    *config.Config
	Store     *storage.Storage
	Contacts  *contacts.Book
	Gate      *contacts.Gate
	Responder *responder.Responder
	Executor  toolcall.Executor
	Sender    Sender
}

// Orchestrator coordinates the full inbound-to-reply pipeline
type Orchestrator struct {
	cfg    config.OrchestratorConfig
	bot    config.BotConfig
	llmCfg config.LLMConfig

	store *storage.Storage
	book  *contacts.Book
	gate  *contacts.Gate
	resp  *responder.Responder
	exec  toolcall.Executor
	send  Sender

	deb       *Debouncer
	summaries *SummaryScheduler
	cooldown  *Cooldown

	namesMu sync.Mutex
	names   map[string]string // conversation key -> last sender label

	active atomic.Bool
}

// New creates an orchestrator from its wired collaborators
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	o := &Orchestrator{
		cfg:    cfg.Orchestrator,
		bot:    cfg.Bot,
		llmCfg: cfg.LLM,
		store:  opts.Store,
		book:   opts.Contacts,
		gate:   opts.Gate,
		resp:   opts.Responder,
		exec:   opts.Executor,
		send:   opts.Sender,
		names:  make(map[string]string),
	}
	o.deb = NewDebouncer(cfg.Orchestrator.DebounceWindow, o.flush)
	o.summaries = NewSummaryScheduler(cfg.Orchestrator.SummaryWindow, o.onQuiet)
	o.cooldown = NewCooldown(cfg.Orchestrator.CooldownInterval)
	o.active.Store(cfg.Bot.ActiveOnBoot)
	return o
}

// SetSender wires the outbound transport. The gateway needs the
// orchestrator as its handler, so the sender is attached after both exist.
func (o *Orchestrator) SetSender(s Sender) { o.send = s }

// Active reports whether the assistant is answering
func (o *Orchestrator) Active() bool { return o.active.Load() }

// SetActive flips the engagement switch
func (o *Orchestrator) SetActive(on bool) { o.active.Store(on) }

// Stop cancels pending batches and inactivity timers
func (o *Orchestrator) Stop() {
	o.deb.Stop()
	o.summaries.Stop()
}

// HandleInbound runs engagement policy on one message and, when it passes,
// queues it for the next batch. Returns true when the message was accepted
// or consumed as a command.
func (o *Orchestrator) HandleInbound(msg Message) bool {
	if msg.Broadcast {
		return false
	}

	if strings.HasPrefix(msg.Text, "!") && o.commandAllowed(msg) {
		if reply, handled := o.handleCommand(msg.Text); handled {
			o.sendTo(msg.ConversationKey, reply)
			return true
		}
	}

	forced := false
	if o.bot.Prefix != "" && strings.HasPrefix(strings.ToLower(msg.Text), strings.ToLower(o.bot.Prefix)) {
		forced = true
		msg.Text = strings.TrimSpace(msg.Text[len(o.bot.Prefix):])
	}

	if !o.active.Load() && !forced {
		return false
	}

	// owner's own direct chat only engages on the prefix, otherwise the
	// assistant would answer the account it speaks for
	if msg.FromOwner && msg.GroupID == "" && !forced {
		return false
	}

	if !forced && !msg.FromOwner {
		allowed, err := o.senderAllowed(msg)
		if err != nil {
			log.Printf("[WARN] Orchestrator: whitelist check: %v", err)
			return false
		}
		if !allowed {
			return false
		}
	}

	// group chats engage only when addressed
	if msg.GroupID != "" && !forced && !msg.Mentioned && !msg.ReplyToBot {
		return false
	}

	o.rememberName(msg.ConversationKey, msg.SenderName)
	o.summaries.Touch(msg.ConversationKey)

	o.deb.Add(msg.ConversationKey, msg)
	return true
}

// commandAllowed gates chat commands: the owner always, whitelisted
// senders too.
func (o *Orchestrator) commandAllowed(msg Message) bool {
	if msg.FromOwner {
		return true
	}
	allowed, err := o.senderAllowed(msg)
	if err != nil {
		log.Printf("[WARN] Orchestrator: whitelist check: %v", err)
		return false
	}
	return allowed
}

// onQuiet fires from the inactivity timer once a conversation's window
// lapses with no new messages.
func (o *Orchestrator) onQuiet(key string) {
	o.rollover(key, o.contactName(key))
}

func (o *Orchestrator) rememberName(key, name string) {
	if name == "" {
		return
	}
	o.namesMu.Lock()
	o.names[key] = name
	o.namesMu.Unlock()
}

func (o *Orchestrator) contactName(key string) string {
	o.namesMu.Lock()
	defer o.namesMu.Unlock()
	return o.names[key]
}

func (o *Orchestrator) senderAllowed(msg Message) (bool, error) {
	if o.gate == nil {
		return false, nil
	}
	if msg.GroupID != "" {
		return o.gate.GroupAllowed(msg.GroupID)
	}
	return o.gate.NumberAllowed(msg.SenderNumber)
}

// rollover summarizes the finished window and clears raw history. History
// clears even when summarization fails; a lost summary must not wedge the
// conversation with stale context.
func (o *Orchestrator) rollover(key, contactName string) {
	entries, err := o.store.RecentHistory(key, 0)
	if err != nil {
		log.Printf("[WARN] Orchestrator: rollover read: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Text
	}

	ctx, cancel := o.llmContext()
	defer cancel()
	summary, err := o.resp.Summarize(ctx, contactName, lines)
	if err != nil {
		log.Printf("[WARN] Orchestrator: summarize failed: %v", err)
	} else if summary != "" {
		if err := o.store.AddSummary(key, contactName, summary); err != nil {
			log.Printf("[WARN] Orchestrator: store summary: %v", err)
		}
	}
	if err := o.store.ClearConversation(key); err != nil {
		log.Printf("[WARN] Orchestrator: clear history: %v", err)
	} else {
		log.Printf("[Orchestrator] Rolled over conversation %s (%d lines)", key, len(lines))
	}
}

// flush handles one released batch end to end
func (o *Orchestrator) flush(key string, items []Message) {
	merged, media, mediaKind := mergeBatch(items)
	first := items[0]

	ctx, cancel := o.llmContext()
	defer cancel()

	// media resolves to text before the reply pipeline sees it
	if media != nil {
		switch mediaKind {
		case MediaVoice:
			transcript := o.resp.Transcribe(ctx, *media)
			merged = joinNonEmpty(merged, "[Voice Note]\n"+transcript)
		case MediaImage:
			description := o.resp.DescribeImage(ctx, merged, *media)
			merged = joinNonEmpty(merged, "[Image] "+description)
		case MediaContact:
			card := strings.TrimSpace(string(media.Data))
			merged = joinNonEmpty(merged, "[System: user shared contact "+card+"]")
		default:
			merged = joinNonEmpty(merged, "[media]")
		}
	}
	if merged == "" {
		return
	}

	senderLabel := first.SenderName
	if senderLabel == "" {
		senderLabel = first.SenderNumber
	}
	// prompt history is captured before the batch joins it, so the new
	// message appears only in its own section
	history := o.historyLines(key)
	if err := o.store.AppendHistory(key, fmt.Sprintf("%s: %s", senderLabel, merged)); err != nil {
		log.Printf("[WARN] Orchestrator: append history: %v", err)
	}

	req := responder.Request{
		SenderName: senderLabel,
		Contact:    o.book.ByNumber(first.SenderNumber),
		Message:    merged,
		History:    history,
		Note:       o.store.Note(),
		Now:        time.Now(),
	}
	raw := o.resp.Reply(ctx, req)

	result := toolcall.Interpret(raw, o.exec)

	// split before attaching the action result: the [System] line belongs
	// to the user-visible reply, never to the owner notification
	primary, secondary := splitSecondary(result.CleanText)
	if result.ActionResult != "" {
		primary = strings.TrimSpace(primary + "\n\n[System]: " + result.ActionResult)
	}
	if primary == "" && secondary == "" {
		return
	}

	delay := o.cfg.ReplyDelayText
	if media != nil {
		delay = o.cfg.ReplyDelayMedia
	}
	time.Sleep(delay)
	if primary != "" {
		o.sendTo(key, primary)
		if err := o.store.AppendHistory(key, "Wira: "+primary); err != nil {
			log.Printf("[WARN] Orchestrator: append history: %v", err)
		}
	}

	if secondary != "" {
		o.notifyOwner(key, secondary, first.FromOwner)
	}
}

// notifyOwner forwards the model's secondary segment to the owner, at most
// once per conversation per cooldown interval.
func (o *Orchestrator) notifyOwner(key, text string, fromOwner bool) {
	if fromOwner || o.bot.OwnerNumber == "" || key == o.bot.OwnerNumber {
		return
	}
	if !o.cooldown.Allow(key, time.Now()) {
		return
	}
	time.Sleep(o.cfg.NotifyDelay)
	if err := o.send.Send(o.bot.OwnerNumber, o.bot.ReplyHeader+"\n"+text); err != nil {
		log.Printf("[WARN] Orchestrator: owner notify: %v", err)
	}
}

func (o *Orchestrator) sendTo(key, text string) {
	if text == "" {
		return
	}
	out := text
	if o.bot.ReplyHeader != "" {
		out = o.bot.ReplyHeader + "\n" + text
	}
	if err := o.send.Send(key, out); err != nil {
		log.Printf("[WARN] Orchestrator: send to %s: %v", key, err)
	}
}

func (o *Orchestrator) historyLines(key string) []string {
	entries, err := o.store.RecentHistory(key, o.cfg.HistoryLines)
	if err != nil {
		log.Printf("[WARN] Orchestrator: read history: %v", err)
		return nil
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Text
	}
	return lines
}

func (o *Orchestrator) llmContext() (context.Context, context.CancelFunc) {
	timeout := o.llmCfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

// mergeBatch joins the batch texts with newlines, skipping empty ones. The
// earliest media attachment wins; later ones are dropped.
func mergeBatch(items []Message) (string, *llm.Media, string) {
	var texts []string
	var media *llm.Media
	var kind string
	for _, it := range items {
		if t := strings.TrimSpace(it.Text); t != "" {
			texts = append(texts, t)
		}
		if media == nil && it.Media != nil {
			media = it.Media
			kind = it.MediaKind
		}
	}
	return strings.Join(texts, "\n"), media, kind
}

// splitSecondary splits a reply on the first ||| marker into the main reply
// and the owner-notification segment.
func splitSecondary(reply string) (string, string) {
	parts := strings.SplitN(reply, "|||", 2)
	if len(parts) == 1 {
		return strings.TrimSpace(parts[0]), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}
