package ws

import (
	"context"
	"educonnect/domain"
	"educonnect/errors"
	"educonnect/repositories"
	"educonnect/runtime"
	"educonnect/runtime/workers"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// headerIdentities trusts the X-User header, tests only.
type headerIdentities map[string]domain.Identity

func (h headerIdentities) ResolveIdentity(_ context.Context, r *http.Request) (domain.Identity, error) {
	identity, ok := h[r.Header.Get("X-User")]
	if !ok {
		return domain.Identity{}, errors.ErrUnauthenticated
	}
	return identity, nil
}

var identities = headerIdentities{
	"alice": {UserID: "u-alice", Username: "alice", Role: domain.RoleStudent},
	"bob":   {UserID: "u-bob", Username: "bob", Role: domain.RoleStudent},
	"fiona": {UserID: "u-fiona", Username: "fiona", Role: domain.RoleFaculty},
}

func newServer(t *testing.T, cfg Config) (*httptest.Server, *runtime.Orchestrator) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	rooms := repositories.NewRoomRepository(db, log, repositories.DefaultRetries)
	messages := repositories.NewMessageRepository(db, log, repositories.DefaultRetries)
	require.NoError(t, rooms.EnsureRooms(context.Background(), "general", "science", "announcements"))

	o, err := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond), rooms, messages, runtime.Options{
		HistoryWorkers:  2,
		HistoryLimit:    20,
		BufferSize:      16,
		MaxMessageSize:  500,
		PersistTimeout:  time.Second,
		SinkTimeout:     time.Second,
		MetricInterval:  time.Hour,
		DefaultRoom:     "general",
		PrivilegedRoom:  "announcements",
		CharReplacement: '*',
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = o.Start(ctx) }()

	server := httptest.NewServer(NewHandler(log, o.Presence(), identities, cfg))
	t.Cleanup(func() {
		server.Close()
		o.Stop()
		cancel()
	})
	return server, o
}

func dial(t *testing.T, server *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if user != "" {
		header.Set("X-User", user)
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Event: event, Data: raw}))
}

func next(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// nothing checks that no frame arrives for a short while.
func nothing(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func joined(t *testing.T, conn *websocket.Conn, room string) RoomMessagesView {
	t.Helper()
	send(t, conn, EventJoinRoom, room)
	frame := next(t, conn)
	require.Equal(t, EventRoomMessages, frame.Event)
	var history RoomMessagesView
	require.NoError(t, json.Unmarshal(frame.Data, &history))
	return history
}

func TestHandler_Message_Stays_In_Its_Room(t *testing.T) {
	req := require.New(t)
	server, o := newServer(t, Config{})

	// Given C1 in general and C2 in science
	c1 := dial(t, server, "alice")
	c2 := dial(t, server, "bob")
	general := joined(t, c1, "general")
	joined(t, c2, "science")

	// When C1 posts hello
	send(t, c1, EventMessage, map[string]string{"conversationId": general.Room, "message": "hello"})

	// Then only C1 receives it
	frame := next(t, c1)
	req.Equal(EventMessage, frame.Event)
	var message MessageView
	req.NoError(json.Unmarshal(frame.Data, &message))
	req.Equal("hello", message.Message)
	req.Equal(general.Room, message.ConversationID)
	req.Equal(SenderView{ID: "u-alice", Username: "alice", Role: domain.RoleStudent}, message.Sender)
	nothing(t, c2)
	req.Equal(2, o.Registry().Stats().Connections)
}

func TestHandler_History_On_Join(t *testing.T) {
	req := require.New(t)
	server, _ := newServer(t, Config{})
	c1 := dial(t, server, "alice")
	joined(t, c1, "general")

	// Given two messages posted the legacy ways
	send(t, c1, EventMessage, "first")
	next(t, c1)
	send(t, c1, EventMessage, map[string]string{"room": "general", "message": "second"})
	next(t, c1)

	// When another connection joins
	c2 := dial(t, server, "bob")
	history := joined(t, c2, "general")

	// Then it gets them oldest first
	req.Len(history.Messages, 2)
	req.Equal("first", history.Messages[0].Message)
	req.Equal("second", history.Messages[1].Message)
}

func TestHandler_Errors(t *testing.T) {
	server, _ := newServer(t, Config{})

	readError := func(t *testing.T, conn *websocket.Conn) ErrorView {
		frame := next(t, conn)
		require.Equal(t, EventError, frame.Event)
		var view ErrorView
		require.NoError(t, json.Unmarshal(frame.Data, &view))
		return view
	}

	t.Run("Anonymous connection can't join", func(t *testing.T) {
		conn := dial(t, server, "")
		send(t, conn, EventJoinRoom, "general")
		require.Equal(t, "unauthenticated", readError(t, conn).Code)
	})

	t.Run("Students can't post announcements", func(t *testing.T) {
		student := dial(t, server, "alice")
		faculty := dial(t, server, "fiona")
		joined(t, faculty, "announcements")

		send(t, student, EventMessage, map[string]string{"room": "announcements", "message": "hi"})

		require.Equal(t, "forbidden", readError(t, student).Code)
		nothing(t, faculty)
	})

	t.Run("Malformed payload", func(t *testing.T) {
		conn := dial(t, server, "alice")
		send(t, conn, EventMessage, 42)
		require.Equal(t, "invalid_payload", readError(t, conn).Code)
	})

	t.Run("Unknown room", func(t *testing.T) {
		conn := dial(t, server, "alice")
		send(t, conn, EventJoinRoom, "nowhere")
		require.Equal(t, "not_found", readError(t, conn).Code)
	})
}

func TestHandler_Rate_Limit(t *testing.T) {
	req := require.New(t)
	server, _ := newServer(t, Config{RateBurst: 2, RateInterval: time.Hour})
	conn := dial(t, server, "alice")

	send(t, conn, EventLeaveRoom, "general")
	send(t, conn, EventLeaveRoom, "general")
	send(t, conn, EventLeaveRoom, "general")

	frame := next(t, conn)
	req.Equal(EventError, frame.Event)
	req.Contains(string(frame.Data), "rate_limited")
}

func TestHandler_Disconnect_Cleans_The_Registry(t *testing.T) {
	req := require.New(t)
	server, o := newServer(t, Config{})
	conn := dial(t, server, "alice")
	joined(t, conn, "general")
	req.Equal(1, o.Registry().Stats().Members)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	req.Eventually(func() bool {
		stats := o.Registry().Stats()
		return stats.Connections == 0 && stats.Members == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_Rejects(t *testing.T) {
	server, _ := newServer(t, Config{AllowedOrigins: []string{"http://localhost:3000"}})

	t.Run("POST", func(t *testing.T) {
		req := require.New(t)
		resp, err := http.Post(server.URL, "application/json", nil)
		req.NoError(err)
		_ = resp.Body.Close()
		req.Equal(http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("Foreign origin", func(t *testing.T) {
		req := require.New(t)
		header := http.Header{"Origin": []string{"http://evil.example"}}
		_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
		req.ErrorIs(err, websocket.ErrBadHandshake)
		req.Equal(http.StatusForbidden, resp.StatusCode)
	})
}
