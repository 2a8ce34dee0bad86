// Package notify provides desktop notification support.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier sends desktop notifications when enabled. Delivery is
// best-effort: only macOS has an implementation, and failures are for
// the caller to log, not act on.
type Notifier struct {
	enabled bool
}

func NewNotifier(enabled bool) *Notifier {
	return &Notifier{enabled: enabled}
}

// Notify sends a notification, silently doing nothing when disabled or
// on a platform without support.
func (n *Notifier) Notify(title, message string) error {
	if !n.enabled || runtime.GOOS != "darwin" {
		return nil
	}
	return Send(title, message)
}

// Send sends a macOS notification via osascript with sound.
func Send(title, message string) error {
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
