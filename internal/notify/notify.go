package notify

import "log/slog"

// Notifier surfaces user-visible messages. Delivery is best-effort; the sync
// core never depends on a notification being shown.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

type slogNotifier struct {
	logger *slog.Logger
}

func NewSlogNotifier(logger *slog.Logger) Notifier {
	return &slogNotifier{logger: logger}
}

func (n *slogNotifier) Info(msg string) {
	n.logger.Info("notification", "message", msg)
}

func (n *slogNotifier) Error(msg string) {
	n.logger.Warn("notification", "message", msg, "level", "error")
}
