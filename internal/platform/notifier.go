package platform

import "github.com/rs/zerolog/log"

// Notifier surfaces user-visible messages, fire-and-forget.
type Notifier interface {
	Notify(kind, message string)
}

// LogNotifier writes notifications to the structured log. The embedding
// app replaces it with a bridge to the host platform's notification tray.
type LogNotifier struct{}

// Notify logs the notification.
func (LogNotifier) Notify(kind, message string) {
	log.Info().Str("kind", kind).Str("message", message).Msg("User notification")
}
