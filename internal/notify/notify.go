package notify

import (
	"context"
	"log/slog"
)

// Sender delivers one push notification to a topic. Implementations wrap the
// actual push provider; the core never blocks on delivery confirmation.
type Sender interface {
	Send(ctx context.Context, topic, title, body string, data map[string]string) error
}

// Service wraps a Sender with the attempt-log-continue policy: a failed send
// must never fail the state transition that triggered it.
type Service struct {
	sender Sender
	log    *slog.Logger
}

func NewService(sender Sender, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{sender: sender, log: log.With(slog.String("component", "notify"))}
}

// Notify fires one notification and swallows any delivery error.
func (s *Service) Notify(ctx context.Context, topic, title, body string, data map[string]string) {
	if s == nil || s.sender == nil {
		return
	}
	if err := s.sender.Send(ctx, topic, title, body, data); err != nil {
		s.log.Warn("notification send failed",
			slog.Any("err", err),
			slog.String("topic", topic),
			slog.String("title", title),
		)
		return
	}
	s.log.Debug("notification sent", slog.String("topic", topic), slog.String("title", title))
}

// LogSender is the local/development sender: it only logs. Deployments plug
// in a real push provider behind the same interface.
type LogSender struct {
	Log *slog.Logger
}

func (l *LogSender) Send(ctx context.Context, topic, title, body string, data map[string]string) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("push notification",
		slog.String("topic", topic),
		slog.String("title", title),
		slog.String("body", body),
	)
	return nil
}
