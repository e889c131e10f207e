package bots

import (
	"fmt"
	"strings"
)

// Responder synthesizes a reply command when an inbound whisper contains the
// trigger phrase. It is stateless: every invocation is independent and it
// never touches session state.
type Responder struct {
	trigger string
	command string
}

// NewResponder creates a responder for the given trigger phrase and reply
// command template (one %s placeholder for the target player).
func NewResponder(trigger, command string) *Responder {
	return &Responder{trigger: trigger, command: command}
}

// React scans a whisper for the trigger phrase. The scan is token-delimited:
// the trigger must appear as its own token. The target is the token
// immediately following the trigger; when none exists the whisper's sender
// is the target. Returns the reply command and whether one was triggered.
func (r *Responder) React(sender, content string) (string, bool) {
	tokens := strings.Fields(content)
	for i, tok := range tokens {
		if tok != r.trigger {
			continue
		}
		target := sender
		if i+1 < len(tokens) {
			target = tokens[i+1]
		}
		return fmt.Sprintf(r.command, target), true
	}
	return "", false
}
