// Package notify provides cross-platform desktop notifications for finished
// conversion tasks. It uses github.com/gen2brain/beeep for cross-platform
// notification support.
package notify

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// sender abstracts beeep so tests can capture notifications.
type sender func(title, message, icon string) error

// Notifier sends a desktop notification for each task that reaches a
// terminal status. It satisfies the poll scheduler's Emitter interface.
type Notifier struct {
	logger  *logging.Logger
	send    sender
	enabled bool
	mu      sync.RWMutex
}

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent.
	Enabled bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{Enabled: true}
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}

	return &Notifier{
		logger:  logger,
		send:    beeep.Notify,
		enabled: cfg.Enabled,
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// TaskSucceeded sends a notification for a successfully converted document.
func (n *Notifier) TaskSucceeded(task models.Task) {
	if !n.IsEnabled() {
		return
	}

	title := "Conversion Complete"
	message := successMessage(task)

	if err := n.send(title, message, ""); err != nil {
		n.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to send success notification")
	}
}

// TaskFailed sends a notification for a failed conversion.
func (n *Notifier) TaskFailed(task models.Task) {
	if !n.IsEnabled() {
		return
	}

	title := "Conversion Failed"
	message := failureMessage(task)

	if err := n.send(title, message, ""); err != nil {
		n.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to send failure notification")
	}
}

func successMessage(task models.Task) string {
	name := sourceName(task)
	if task.Result != nil && len(task.Result.Warnings) > 0 {
		return fmt.Sprintf("\"%s\" converted with %d warning(s).", name, len(task.Result.Warnings))
	}
	return fmt.Sprintf("\"%s\" is ready for download.", name)
}

func failureMessage(task models.Task) string {
	name := sourceName(task)
	reason := "unknown error"
	if task.Result != nil && task.Result.ErrorMessage != "" {
		reason = task.Result.ErrorMessage
	}
	return fmt.Sprintf("\"%s\" failed:\n%s", name, truncate(reason, 100))
}

// sourceName prefers the original filename reported by the server and falls
// back to the task id.
func sourceName(task models.Task) string {
	if task.Result != nil && task.Result.SourceFilename != "" {
		return truncate(task.Result.SourceFilename, 40)
	}
	return truncate(task.ID, 40)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
