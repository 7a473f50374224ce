package orchestrator

import (
	"log"
	"strings"
)

const helpText = `Commands:
!active - start answering chats
!pause - stop answering chats
!note <text> - set the urgent note
!shownote - show the current note
!delnote - clear the note
!help - this message`

// handleCommand interprets an owner control command. Returns the reply and
// whether the text was consumed as a command.
func (o *Orchestrator) handleCommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))

	switch cmd {
	case "!active":
		o.active.Store(true)
		log.Print("[Orchestrator] Activated by owner")
		return "Wira is now active and will answer chats.", true
	case "!pause":
		o.active.Store(false)
		log.Print("[Orchestrator] Paused by owner")
		return "Wira is paused. Use !active to resume.", true
	case "!help":
		return helpText, true
	case "!note":
		if rest == "" {
			return "Usage: !note <text>", true
		}
		if err := o.store.SetNote(rest); err != nil {
			log.Printf("[WARN] Orchestrator: set note: %v", err)
			return "Could not save the note.", true
		}
		return "Note saved.", true
	case "!shownote":
		if note := o.store.Note(); note != "" {
			return "Current note:\n" + note, true
		}
		return "No note set.", true
	case "!delnote":
		if err := o.store.DeleteNote(); err != nil {
			log.Printf("[WARN] Orchestrator: delete note: %v", err)
			return "Could not delete the note.", true
		}
		return "Note deleted.", true
	}
	return "", false
}
