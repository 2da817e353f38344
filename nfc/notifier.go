package nfc

import "github.com/rs/zerolog"

// Notifier is the host's surface for transient user feedback: short
// messages and a busy indicator while a session runs.
type Notifier interface {
	Notify(message string)
	ShowLoading(title string)
	HideLoading()
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(message string) {
	n.Logger.Info().Msg(message)
}

func (n LogNotifier) ShowLoading(title string) {
	n.Logger.Debug().Str("loading", title).Msg("Busy")
}

func (n LogNotifier) HideLoading() {
	n.Logger.Debug().Msg("Idle")
}

type nopNotifier struct{}

func (nopNotifier) Notify(string)      {}
func (nopNotifier) ShowLoading(string) {}
func (nopNotifier) HideLoading()       {}
