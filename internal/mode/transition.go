package mode

import (
	"fmt"
	"strings"
)

const (
	exitGlobal  = `[SYSTEM LOG] Global attention SUSPENDED. Focus SHIFTED to specialized context. Trigger intent: "%s".`
	exitLocal   = `[SYSTEM LOG] Specialized session CLOSED. Outcomes LOGGED. Control handed over for intent: "%s".`
	entryGlobal = `[SYSTEM LOG] Global Context RESUMED. Workflow CONTINUED after specialized task. Summary of interim events: %s.`
	entryLocal  = `[SYSTEM LOG] Specialized session STARTED. Context ISOLATED. Objective defined as: "%s". Carried summary: %s.`
)

// Narrate returns the exit entry for prev and the entry entry for next. The
// wording follows each descriptor's type.
func Narrate(prev, next Descriptor, intent, summary string) (exit, entry string) {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		intent = "Not specified"
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = "No summary"
	}

	if prev.IsGlobal() {
		exit = fmt.Sprintf(exitGlobal, intent)
	} else {
		exit = fmt.Sprintf(exitLocal, intent)
	}
	if next.IsGlobal() {
		entry = fmt.Sprintf(entryGlobal, summary)
	} else {
		entry = fmt.Sprintf(entryLocal, intent, summary)
	}
	return exit, entry
}
