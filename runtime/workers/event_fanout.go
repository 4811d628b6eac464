package workers

import (
	"context"
	"educonnect/contract"
	"educonnect/domain/event"
	"fmt"
	"log/slog"
	"time"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout forwards events that already reached the room members
// to the permanent in-process consumers (search index, projections).
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries. EventFanout is not a message broker.
// A slow sink is bounded by sinkTimeout and never stalls the others for longer.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, events: events, sinks: sinks, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Event channel is closed")
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout One sink for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink failed to consume event",
				"sink", fmt.Sprintf("%T", sink), "room_id", evt.RoomID(), "error", err)
		}
		cancel()
	}
}
