package sink

import (
	"context"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/errors"
	"log/slog"
	"sync"
)

var _ contract.EventSink = (*ConnectionSink)(nil)

// ConnectionSink is the outbound queue of one live connection.
// Consume never blocks the caller: when the queue is full the event is dropped
// and the connection is expected to resync from history.
type ConnectionSink struct {
	connID domain.ConnectionID
	events chan event.DomainEvent
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger
}

func NewConnectionSink(connID domain.ConnectionID, bufferSize int, log *slog.Logger) *ConnectionSink {
	return &ConnectionSink{
		connID: connID,
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Consume is called by the broadcaster and the history loader.
// Redirect the event to the owner of the connection, the write pump takes it from there.
func (s *ConnectionSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
		s.log.Warn("Connection queue full, event dropped", "conn_id", s.connID, "room_id", e.RoomID())
		return nil
	}
}

func (s *ConnectionSink) ConnectionID() domain.ConnectionID { return s.connID }

// Events is drained by the write pump.
func (s *ConnectionSink) Events() <-chan event.DomainEvent { return s.events }

// Done is closed once the connection is gone.
func (s *ConnectionSink) Done() <-chan struct{} { return s.done }

// Close can be called several times. The events channel is never closed
// so a late Consume can't panic.
func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}
