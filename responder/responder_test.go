package responder

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/wiralab/wira/contacts"
	"github.com/wiralab/wira/pkg/config"
	"github.com/wiralab/wira/pkg/llm"
)

type fakeText struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeText) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

type fakeVision struct {
	out string
	err error
}

func (f *fakeVision) Describe(_ context.Context, _ string, _ llm.Media) (string, error) {
	return f.out, f.err
}

type fakeTranscriber struct {
	out string
	err error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ llm.Media) (string, error) {
	return f.out, f.err
}

type fakeKnowledge struct{ result string }

func (f *fakeKnowledge) Query(string) string { return f.result }

type fakeAgenda struct {
	agenda string
	tasks  string
}

func (f *fakeAgenda) AgendaText(time.Time) string { return f.agenda }
func (f *fakeAgenda) TasksText() string           { return f.tasks }

func testResponder(text *fakeText) *Responder {
	cfg := config.Default().LLM
	return New(cfg, text, nil, nil, nil, nil, time.UTC)
}

func TestReplyUsesProvider(t *testing.T) {
	text := &fakeText{reply: "Hello there."}
	r := testResponder(text)
	out := r.Reply(context.Background(), Request{Message: "hi"})
	if out != "Hello there." {
		t.Errorf("Expected provider reply, got %q", out)
	}
	if !strings.Contains(text.prompt, "[NEW MESSAGE]\nhi") {
		t.Errorf("Prompt must include the batch message, got %q", text.prompt)
	}
}

func TestReplyFallbackOnError(t *testing.T) {
	r := testResponder(&fakeText{err: fmt.Errorf("quota")})
	if out := r.Reply(context.Background(), Request{Message: "hi"}); out != FallbackReply {
		t.Errorf("Expected fixed fallback on provider error, got %q", out)
	}
}

func TestReplyFallbackOnEmpty(t *testing.T) {
	r := testResponder(&fakeText{reply: "  \n"})
	if out := r.Reply(context.Background(), Request{Message: "hi"}); out != FallbackReply {
		t.Errorf("Expected fallback on blank generation, got %q", out)
	}
}

func TestPromptContactInstructionOverride(t *testing.T) {
	r := testResponder(&fakeText{})
	c := &contacts.Contact{Name: "Budi", Role: "manager", Instruction: "Always be formal."}
	prompt := r.BuildPrompt(Request{Contact: c, Message: "hi"})

	if !strings.Contains(prompt, "Budi") || !strings.Contains(prompt, "Always be formal.") {
		t.Errorf("Prompt must carry the contact instruction, got %q", prompt)
	}
}

func TestPromptNoteOverridesSchedule(t *testing.T) {
	cfg := config.Default().LLM
	agenda := &fakeAgenda{agenda: "- [ID 1] Standup", tasks: "- [ID 2] Report"}
	r := New(cfg, &fakeText{}, nil, nil, nil, agenda, time.UTC)

	withNote := r.BuildPrompt(Request{Message: "hi", Note: "Out sick today, reschedule everything."})
	if !strings.Contains(withNote, "[URGENT NOTE FROM OWNER]") {
		t.Error("Prompt must carry the urgent note")
	}
	if strings.Contains(withNote, "[OWNER SCHEDULE]") || strings.Contains(withNote, "Standup") {
		t.Error("Urgent note must suppress the schedule section")
	}

	withoutNote := r.BuildPrompt(Request{Message: "hi"})
	if !strings.Contains(withoutNote, "[OWNER SCHEDULE]") || !strings.Contains(withoutNote, "[OWNER TASKS]") {
		t.Error("Without a note the schedule and tasks must appear")
	}
}

func TestPromptKnowledgeSection(t *testing.T) {
	cfg := config.Default().LLM
	r := New(cfg, &fakeText{}, nil, nil, &fakeKnowledge{result: "Office opens at nine."}, nil, time.UTC)
	prompt := r.BuildPrompt(Request{Message: "when does the office open"})
	if !strings.Contains(prompt, "[KNOWLEDGE CONTEXT]") || !strings.Contains(prompt, "Office opens at nine.") {
		t.Errorf("Prompt must embed retrieval results, got %q", prompt)
	}

	empty := New(cfg, &fakeText{}, nil, nil, &fakeKnowledge{}, nil, time.UTC)
	if strings.Contains(empty.BuildPrompt(Request{Message: "hi"}), "[KNOWLEDGE CONTEXT]") {
		t.Error("Empty retrieval result must omit the section")
	}
}

func TestTrimHistoryBudget(t *testing.T) {
	cfg := config.Default().LLM
	cfg.HistoryTokens = 10
	r := New(cfg, &fakeText{}, nil, nil, nil, nil, time.UTC)

	lines := []string{
		"User: a very long first line that should be dropped from the window entirely",
		"User: short",
		"Wira: ok",
	}
	got := r.trimHistory(lines)
	if len(got) >= len(lines) {
		t.Fatalf("Expected trimming under a tight budget, kept %d of %d", len(got), len(lines))
	}
	if got[len(got)-1] != "Wira: ok" {
		t.Error("Trimming must keep the most recent lines")
	}
}

func TestTrimHistoryNoBudget(t *testing.T) {
	cfg := config.Default().LLM
	cfg.HistoryTokens = 0
	r := New(cfg, &fakeText{}, nil, nil, nil, nil, time.UTC)
	lines := []string{"a", "b"}
	if got := r.trimHistory(lines); len(got) != 2 {
		t.Errorf("Zero budget must disable trimming, got %d lines", len(got))
	}
}

func TestSummarize(t *testing.T) {
	text := &fakeText{reply: "They agreed to meet Friday."}
	r := testResponder(text)
	out, err := r.Summarize(context.Background(), "Budi", []string{"Budi: Friday?", "Wira: Works."})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "They agreed to meet Friday." {
		t.Errorf("Expected summary text, got %q", out)
	}
	if !strings.Contains(text.prompt, "Conversation with Budi") {
		t.Errorf("Summary prompt must name the contact, got %q", text.prompt)
	}

	failing := testResponder(&fakeText{err: fmt.Errorf("down")})
	if _, err := failing.Summarize(context.Background(), "", nil); err == nil {
		t.Error("Summarize must surface provider errors")
	}
}

func TestMediaFallbacks(t *testing.T) {
	cfg := config.Default().LLM
	r := New(cfg, &fakeText{}, &fakeVision{err: fmt.Errorf("bad")}, &fakeTranscriber{err: fmt.Errorf("bad")}, nil, nil, time.UTC)

	if out := r.DescribeImage(context.Background(), "", llm.Media{}); out != FallbackVision {
		t.Errorf("Expected vision fallback, got %q", out)
	}
	if out := r.Transcribe(context.Background(), llm.Media{}); out != FallbackTranscript {
		t.Errorf("Expected transcript fallback, got %q", out)
	}

	ok := New(cfg, &fakeText{}, &fakeVision{out: "A cat."}, &fakeTranscriber{out: "hello"}, nil, nil, time.UTC)
	if out := ok.DescribeImage(context.Background(), "", llm.Media{}); out != "A cat." {
		t.Errorf("Expected vision output, got %q", out)
	}
	if out := ok.Transcribe(context.Background(), llm.Media{}); out != "hello" {
		t.Errorf("Expected transcript output, got %q", out)
	}
}
