package notify

import "context"

// LogProvider writes every notification as a structured log line. It is
// the fallback channel when nothing else is configured.
type LogProvider struct {
	log Logger
}

// NewLogProvider creates a provider that logs notifications.
func NewLogProvider(log Logger) *LogProvider {
	return &LogProvider{log: log}
}

func (l *LogProvider) Name() string { return "log" }

func (l *LogProvider) Send(_ context.Context, title, body string) error {
	l.log.Info("notification", "title", title, "body", body)
	return nil
}
