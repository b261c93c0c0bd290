// Package notify sends desktop notifications for review workflow events.
package notify

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

type Sender interface {
	Send(title, message string) error
}

// Desktop sends macOS notifications via osascript with sound.
type Desktop struct{}

func (Desktop) Send(title, message string) error {
	title = escapeAppleScript(title)
	message = escapeAppleScript(message)

	script := fmt.Sprintf(
		`display notification %q with title %q sound name "default"`,
		message, title,
	)

	cmd := exec.Command("osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// Message renders the notification for ev. Only events someone has to act
// on are announced; ok is false for the rest.
func Message(production string, ev events.Event) (title, message string, ok bool) {
	taskID, _ := ev.Data["task_id"].(string)
	switch ev.Type {
	case events.EventReviewRequested:
		reviewers, _ := ev.Data["reviewers"].([]string)
		return production + ": review requested",
			fmt.Sprintf("%s #%v waits for %s", taskID, ev.Data["review_number"], strings.Join(reviewers, ", ")), true
	case events.EventReviewDecided:
		if ev.Data["status"] == string(model.ReviewStatusRequestedRevision) {
			return production + ": revision requested", taskID + " needs another pass", true
		}
	case events.EventStatusChanged:
		switch ev.Data["to"] {
		case string(model.StatusCompleted):
			return production + ": task completed", taskID + " was approved", true
		case string(model.StatusDependencyHasRevision):
			return production + ": dependency revised", taskID + " waits for a revised dependency", true
		}
	}
	return "", "", false
}

// Attach notifies through s for every announced event on bus until the
// returned function is called.
func Attach(bus *events.Bus, production string, s Sender, onError func(error)) func() {
	return bus.SubscribeAll(func(ev events.Event) {
		title, message, ok := Message(production, ev)
		if !ok {
			return
		}
		if err := s.Send(title, message); err != nil && onError != nil {
			onError(err)
		}
	})
}
