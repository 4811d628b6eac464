package runtime

import (
	"context"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/repositories"
	"educonnect/runtime/workers"
	"educonnect/sink"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

var (
	student = domain.Identity{UserID: "u-student", Username: "sam", Role: domain.RoleStudent}
	faculty = domain.Identity{UserID: "u-faculty", Username: "fiona", Role: domain.RoleFaculty}
)

type historyRecorder struct {
	mu       sync.Mutex
	requests []workers.HistoryRequest
}

func (h *historyRecorder) RequestHistory(_ context.Context, req workers.HistoryRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
}

func (h *historyRecorder) all() []workers.HistoryRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]workers.HistoryRequest(nil), h.requests...)
}

// chat wires the real-time core over a throwaway Badger store.
type chat struct {
	log         *slog.Logger
	rooms       repositories.RoomRepository
	messages    repositories.MessageRepository
	registry    *Registry
	broadcaster *Broadcaster
	presence    *Presence
	published   chan event.DomainEvent
	history     *historyRecorder
}

func newChat(t *testing.T, roomNames ...string) *chat {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &chat{
		log:       log,
		rooms:     repositories.NewRoomRepository(db, log, repositories.DefaultRetries),
		messages:  repositories.NewMessageRepository(db, log, repositories.DefaultRetries),
		registry:  NewRegistry(),
		published: make(chan event.DomainEvent, 100),
		history:   &historyRecorder{},
	}
	require.NoError(t, c.rooms.EnsureRooms(context.Background(), roomNames...))

	resolver := NewRoomResolver(c.rooms, "general")
	policy := domain.PostingPolicy{PrivilegedRoom: "announcements"}
	c.broadcaster = NewBroadcaster(log, c.registry, resolver, c.messages, nil, policy, c.published, 200, time.Second)
	c.presence = NewPresence(log, c.registry, resolver, c.broadcaster, c.history, policy)
	return c
}

func (c *chat) connect(t *testing.T, identity *domain.Identity) (*Session, *sink.ConnectionSink) {
	t.Helper()
	connID := newConn()
	s := sink.NewConnectionSink(connID, 16, c.log)
	return c.presence.Connect(connID, identity, s), s
}

func (c *chat) room(t *testing.T, name string) domain.Room {
	t.Helper()
	room, err := c.rooms.GetRoomByName(context.Background(), name)
	require.NoError(t, err)
	return room
}

// received drains what is queued on the sink without waiting.
func received(s *sink.ConnectionSink) []event.DomainEvent {
	var res []event.DomainEvent
	for {
		select {
		case e := <-s.Events():
			res = append(res, e)
		default:
			return res
		}
	}
}

func postedContents(events []event.DomainEvent) []string {
	var res []string
	for _, e := range events {
		if posted, ok := e.(event.MessagePosted); ok {
			res = append(res, posted.Content)
		}
	}
	return res
}
