package sink

import (
	"context"
	"educonnect/domain/event"
	"educonnect/repositories"
	"fmt"
	"log/slog"
)

// IndexSink keeps the full-text index in line with persisted messages.
type IndexSink struct {
	index repositories.IMessageIndex
	log   *slog.Logger
}

func NewIndexSink(index repositories.IMessageIndex, log *slog.Logger) IndexSink {
	return IndexSink{index: index, log: log}
}

func (s IndexSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		return s.index.Index(evt.Message())
	case event.MessagesDeleted:
		return s.index.Delete(evt.IDs...)
	default:
		s.log.Debug(fmt.Sprintf("Not implemented event : %T", evt))
		return nil
	}
}
