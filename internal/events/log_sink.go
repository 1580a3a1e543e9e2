package events

import (
	"context"

	"go.uber.org/zap"
)

type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.Named("events")}
}

func (s *LogSink) Notify(_ context.Context, event Event) {
	s.log.Info("event",
		zap.String("event_id", event.ID),
		zap.String("event_kind", string(event.Kind)),
		zap.Time("event_time", event.Timestamp),
		zap.String("user", event.UserName()),
		zap.Stringer("message", event),
	)
}
