package toolcall

import (
	"fmt"
	"strings"
	"testing"
)

// fakeExecutor records the last action and returns a canned result
type fakeExecutor struct {
	last   *Action
	result string
	err    error
	calls  int
}

func (f *fakeExecutor) Execute(action *Action) (string, error) {
	f.last = action
	f.calls++
	return f.result, f.err
}

func TestInterpretNoJSON(t *testing.T) {
	exec := &fakeExecutor{result: "done"}
	res := Interpret("Just a plain reply with no structure.", exec)
	if res.CleanText != "Just a plain reply with no structure." {
		t.Errorf("Expected text unchanged, got %q", res.CleanText)
	}
	if res.ActionResult != "" || exec.calls != 0 {
		t.Error("No JSON must mean no execution")
	}
}

func TestInterpretFencedBlock(t *testing.T) {
	exec := &fakeExecutor{result: "Note saved."}
	text := "Sure, noting that.\n```json\n{\"action\": \"add_note\", \"content\": \"Buy milk\"}\n```\nAnything else?"
	res := Interpret(text, exec)

	if exec.calls != 1 {
		t.Fatalf("Expected exactly one execution, got %d", exec.calls)
	}
	if exec.last.Kind != ActionAddNote {
		t.Errorf("Expected kind %q, got %q", ActionAddNote, exec.last.Kind)
	}
	if exec.last.Param("content") != "Buy milk" {
		t.Errorf("Expected content param, got %q", exec.last.Param("content"))
	}
	if res.ActionResult != "Note saved." {
		t.Errorf("Expected action result, got %q", res.ActionResult)
	}
	if strings.Contains(res.CleanText, "{") || strings.Contains(res.CleanText, "```") {
		t.Errorf("Executed action must be stripped, got %q", res.CleanText)
	}
	if !strings.Contains(res.CleanText, "Sure, noting that.") || !strings.Contains(res.CleanText, "Anything else?") {
		t.Errorf("Surrounding prose must survive, got %q", res.CleanText)
	}
}

func TestInterpretFencedBeatsTrailing(t *testing.T) {
	exec := &fakeExecutor{result: "ok"}
	text := "```json\n{\"action\": \"add_note\", \"content\": \"first\"}\n```\n{\"action\": \"delete_note\"}"
	Interpret(text, exec)

	if exec.calls != 1 {
		t.Fatalf("Expected one execution, got %d", exec.calls)
	}
	if exec.last.Kind != ActionAddNote {
		t.Errorf("Fenced block must win over trailing object, executed %q", exec.last.Kind)
	}
}

func TestInterpretTrailingObject(t *testing.T) {
	exec := &fakeExecutor{result: "Task created."}
	text := "I'll track that for you. {\"action\": \"create_task\", \"title\": \"Call dentist\"}"
	res := Interpret(text, exec)

	if exec.last == nil || exec.last.Kind != ActionCreateTask {
		t.Fatal("Expected trailing object to be extracted and executed")
	}
	if res.CleanText != "I'll track that for you." {
		t.Errorf("Expected stripped trailing object, got %q", res.CleanText)
	}
}

func TestInterpretTrailingMalformedAborts(t *testing.T) {
	exec := &fakeExecutor{result: "ok"}
	// Ends with a brace so the trailing tier matches, but the span is not
	// valid JSON. That aborts extraction entirely, even though an inner
	// object would parse on its own.
	text := "Prefix {\"action\": \"add_note\", \"content\": \"x\"} suffix {broken}"
	res := Interpret(text, exec)

	if exec.calls != 0 {
		t.Error("Malformed trailing object must abort without fall-through")
	}
	if res.CleanText != text {
		t.Errorf("Aborted extraction must leave text unchanged, got %q", res.CleanText)
	}
}

func TestInterpretFirstParseableObject(t *testing.T) {
	exec := &fakeExecutor{result: "Removed."}
	text := "Handled: {\"action\": \"delete_task\", \"id\": \"4\"} and that's all."
	res := Interpret(text, exec)

	if exec.last == nil || exec.last.Kind != ActionDeleteTask {
		t.Fatal("Expected mid-text object to be extracted")
	}
	if strings.Contains(res.CleanText, "delete_task") {
		t.Errorf("Executed span must be stripped, got %q", res.CleanText)
	}
}

func TestInterpretEmptyObjectAlwaysStripped(t *testing.T) {
	exec := &fakeExecutor{}
	res := Interpret("All clear.\n```json\n{}\n```", exec)
	if exec.calls != 0 {
		t.Error("Empty object must not be executed")
	}
	if res.CleanText != "All clear." {
		t.Errorf("Empty object must be stripped as noise, got %q", res.CleanText)
	}
}

func TestInterpretUnrecognizedKindStaysVisible(t *testing.T) {
	exec := &fakeExecutor{result: "never"}
	text := "Trying this. {\"action\": \"launch_rocket\"}"
	res := Interpret(text, exec)

	if exec.calls != 0 {
		t.Error("Unrecognized kind must not reach the executor")
	}
	if res.CleanText != text {
		t.Errorf("Unrecognized action must stay visible, got %q", res.CleanText)
	}
	if res.ActionResult != "" {
		t.Errorf("Expected no action result, got %q", res.ActionResult)
	}
}

func TestInterpretExecutorErrorStaysVisible(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("storage down")}
	text := "On it. {\"action\": \"add_note\", \"content\": \"x\"}"
	res := Interpret(text, exec)

	if res.ActionResult != "" {
		t.Errorf("Failed execution must not report a result, got %q", res.ActionResult)
	}
	if res.CleanText != text {
		t.Errorf("Failed action must stay visible, got %q", res.CleanText)
	}
}

func TestInterpretDeclinedExecutionStaysVisible(t *testing.T) {
	// Executor returns "" without error: recognized but not executed,
	// e.g. the capability is unavailable.
	exec := &fakeExecutor{result: ""}
	text := "Scheduling. {\"action\": \"create_event\", \"summary\": \"Standup\"}"
	res := Interpret(text, exec)

	if res.CleanText != text {
		t.Errorf("Declined action must stay visible, got %q", res.CleanText)
	}
}

func TestInterpretNilExecutor(t *testing.T) {
	text := "Hi. {\"action\": \"add_note\", \"content\": \"x\"}"
	res := Interpret(text, nil)
	if res.CleanText != text || res.ActionResult != "" {
		t.Error("Nil executor must leave text untouched")
	}
}
