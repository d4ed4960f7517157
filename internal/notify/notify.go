// Package notify sends a desktop notification when a run ends.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/gen2brain/beeep"

	"github.com/packtdl/packt-dl/internal/logging"
)

const appTitle = "packt-dl"

// Summary is what a finished run reports.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
	Directory  string
}

// Notifier handles desktop notifications. A disabled Notifier is a no-op.
type Notifier struct {
	logger  *logging.Logger
	enabled bool
	send    func(title, message string) error
}

// NewNotifier creates a notifier. Notifications are only sent when enabled.
func NewNotifier(enabled bool, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Notifier{
		logger:  logger,
		enabled: enabled,
		send: func(title, message string) error {
			// Windows toast, macOS notification center, Linux D-Bus.
			return beeep.Notify(title, message, "")
		},
	}
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	return n != nil && n.enabled
}

// RunComplete reports the outcome of a library sync.
func (n *Notifier) RunComplete(s Summary) {
	if !n.IsEnabled() {
		return
	}

	title := appTitle + ": library synced"
	if s.Failed > 0 {
		title = appTitle + ": finished with errors"
	}
	message := fmt.Sprintf("%d downloaded, %d already present, %d failed\n%s",
		s.Downloaded, s.Skipped, s.Failed, shortenPath(s.Directory))

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Msg("failed to send run complete notification")
	}
}

// RunFailed reports a run that stopped before finishing.
func (n *Notifier) RunFailed(reason string) {
	if !n.IsEnabled() {
		return
	}

	if err := n.send(appTitle+": run failed", truncate(reason, 100)); err != nil {
		n.logger.Warn().Err(err).Msg("failed to send run failed notification")
	}
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen-3]) + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}

	short := filepath.Join("...", filepath.Base(filepath.Dir(path)), filepath.Base(path))
	if vol := filepath.VolumeName(path); vol != "" && len(vol)+len(short)+1 <= maxLen {
		short = vol + string(filepath.Separator) + short
	}
	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	return short
}
