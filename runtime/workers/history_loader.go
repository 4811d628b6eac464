package workers

import (
	"context"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/errors"
	"educonnect/repositories"
	"fmt"
	"log/slog"
	"time"
)

var _ contract.Worker = (*HistoryLoader)(nil)

// HistoryRequest asks for the recent messages of Room on behalf of one connection.
type HistoryRequest struct {
	ConnID domain.ConnectionID
	Room   domain.RoomID
	Sink   contract.EventSink
}

// HistoryLoader is one unit of the history pool.
// Joins only enqueue a request, so a slow store never delays the join itself.
type HistoryLoader struct {
	log      *slog.Logger
	requests <-chan HistoryRequest
	messages repositories.IMessageRepository
	registry contract.IRegistry
	limit    int
	timeout  time.Duration
}

func NewHistoryLoader(
	log *slog.Logger,
	requests <-chan HistoryRequest,
	messages repositories.IMessageRepository,
	registry contract.IRegistry,
	limit int,
	timeout time.Duration) *HistoryLoader {
	return &HistoryLoader{
		log:      log,
		requests: requests,
		messages: messages,
		registry: registry,
		limit:    limit,
		timeout:  timeout,
	}
}

func (w *HistoryLoader) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping history loader")
			return nil
		case req, ok := <-w.requests:
			if !ok {
				w.log.Debug("History channel is closed")
				return nil
			}
			w.Load(ctx, req)
		}
	}
}

// Load fetches the latest messages and delivers them to the requesting connection only.
// Nothing is delivered when the connection moved to another room in the meantime.
func (w *HistoryLoader) Load(ctx context.Context, req HistoryRequest) {
	loadCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	messages, err := w.messages.GetLatest(loadCtx, req.Room, w.limit)
	if err != nil {
		w.log.Error("Unable to load room history", "room_id", req.Room, "conn_id", req.ConnID, "error", err)
		_ = req.Sink.Consume(ctx, event.ErrorRaised{
			Room:   req.Room,
			Code:   errors.Code(err),
			Reason: "failed to load messages",
		})
		return
	}

	if current, ok := w.registry.CurrentRoomOf(req.ConnID); !ok || current != req.Room {
		w.log.Debug("Connection left the room before its history was ready", "room_id", req.Room, "conn_id", req.ConnID)
		return
	}

	if err = req.Sink.Consume(ctx, event.RoomHistory{Room: req.Room, Messages: messages}); err != nil {
		w.log.Debug(fmt.Sprintf("History not delivered : %v", err), "conn_id", req.ConnID)
	}
}
