// Package toolcall extracts a structured action embedded in generated free
// text, executes it at most once, and decides whether the JSON span stays
// visible in the user-facing reply.
package toolcall

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"
)

// Recognized action kinds
const (
	ActionCreateEvent         = "create_event"
	ActionEditEvent           = "edit_event"
	ActionDeleteEvent         = "delete_event"
	ActionCreateTask          = "create_task"
	ActionEditTask            = "edit_task"
	ActionDeleteTask          = "delete_task"
	ActionAddNote             = "add_note"
	ActionEditNote            = "edit_note" // edit = overwrite
	ActionDeleteNote          = "delete_note"
	ActionAddAllowedNumber    = "add_allowed_number"
	ActionEditAllowedNumber   = "edit_allowed_number"
	ActionRemoveAllowedNumber = "remove_allowed_number"
	ActionAddAllowedGroup     = "add_allowed_group"
	ActionEditAllowedGroup    = "edit_allowed_group"
	ActionRemoveAllowedGroup  = "remove_allowed_group"
)

var recognizedKinds = map[string]bool{
	ActionCreateEvent:         true,
	ActionEditEvent:           true,
	ActionDeleteEvent:         true,
	ActionCreateTask:          true,
	ActionEditTask:            true,
	ActionDeleteTask:          true,
	ActionAddNote:             true,
	ActionEditNote:            true,
	ActionDeleteNote:          true,
	ActionAddAllowedNumber:    true,
	ActionEditAllowedNumber:   true,
	ActionRemoveAllowedNumber: true,
	ActionAddAllowedGroup:     true,
	ActionEditAllowedGroup:    true,
	ActionRemoveAllowedGroup:  true,
}

// Action is a parsed tool request
type Action struct {
	Kind   string
	Params map[string]interface{}
}

// Param returns a string parameter, "" when absent or not a string
func (a *Action) Param(key string) string {
	if v, ok := a.Params[key].(string); ok {
		return v
	}
	return ""
}

// Executor runs a validated action. An empty result string means "not
// executed"; errors are logged by the interpreter and treated the same way.
type Executor interface {
	Execute(action *Action) (string, error)
}

// Result of interpreting one generated reply
type Result struct {
	CleanText    string
	ActionResult string // "" when nothing executed
}

// Extraction tiers, first match wins. A tier that matches but fails to
// parse aborts the whole extraction (no fall-through) - downstream behavior
// depends on this exact order.
var (
	fencedRe     = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	tailRe       = regexp.MustCompile(`(?s)(\{.*\})$`)
	relaxedRe    = regexp.MustCompile(`(?s)(\{.*\})`)
	emptyFenceRe = regexp.MustCompile("```(?:json)?\\s*```")
)

type candidate struct {
	span     string // full matched span to strip (fence included for tier 1)
	jsonText string
	found    bool
}

func extract(text string) candidate {
	if m := fencedRe.FindStringSubmatch(text); m != nil {
		return candidate{span: m[0], jsonText: m[1], found: true}
	}
	if m := tailRe.FindStringSubmatch(text); m != nil {
		return candidate{span: m[1], jsonText: m[1], found: true}
	}
	if m := relaxedRe.FindStringSubmatch(text); m != nil {
		if json.Valid([]byte(m[1])) {
			return candidate{span: m[1], jsonText: m[1], found: true}
		}
	}
	return candidate{}
}

// Interpret extracts an embedded action from generated text, dispatches it
// through exec, and strips the JSON span when the action executed or the
// object was empty. Failed or unrecognized actions stay visible in the reply.
func Interpret(generated string, exec Executor) Result {
	cand := extract(generated)
	if !cand.found {
		return Result{CleanText: generated}
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(cand.jsonText), &obj); err != nil {
		return Result{CleanText: generated}
	}

	actionResult := ""
	if kind, _ := obj["action"].(string); recognizedKinds[kind] && exec != nil {
		log.Printf("[ToolCall] Executing action: %s", kind)
		action := &Action{Kind: kind, Params: obj}
		result, err := exec.Execute(action)
		if err != nil {
			log.Printf("[ToolCall] Action %s failed: %v", kind, err)
		} else {
			actionResult = result
		}
	}

	// Strip only an executed action or an empty {}. Failed or unrecognized
	// actions stay visible in the reply.
	if actionResult != "" || len(obj) == 0 {
		clean := strings.Replace(generated, cand.span, "", 1)
		clean = emptyFenceRe.ReplaceAllString(clean, "")
		return Result{CleanText: strings.TrimSpace(clean), ActionResult: actionResult}
	}
	return Result{CleanText: generated, ActionResult: ""}
}
