package runtime

import (
	"context"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/runtime/workers"
	"educonnect/sink"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newOrchestrator(t *testing.T, c *chat, limit int) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(c.log, workers.NewSupervisor(c.log, 10*time.Millisecond), c.rooms, c.messages, Options{
		HistoryWorkers:  2,
		HistoryLimit:    limit,
		BufferSize:      10,
		MaxMessageSize:  500,
		PersistTimeout:  time.Second,
		SinkTimeout:     time.Second,
		MetricInterval:  time.Hour,
		DefaultRoom:     "general",
		PrivilegedRoom:  "announcements",
		CharReplacement: '*',
		CensoredWords:   []string{"heck"},
	})
	require.NoError(t, err)
	return o
}

func TestOrchestrator_Join_Post_And_History(t *testing.T) {
	req := require.New(t)
	c := newChat(t, "general")
	general := c.room(t, "general")
	for i := 0; i < 25; i++ {
		_, err := c.broadcaster.Post(context.Background(), domain.PostMessageCommand{Identity: &student, Content: fmt.Sprintf("old-%02d", i)})
		req.NoError(err)
	}

	o := newOrchestrator(t, c, 20)
	permanent := &recordingSink{}
	o.Add(permanent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Start(ctx) }()
	defer o.Stop()

	// Given a connection joining general
	connID := newConn()
	connSink := sink.NewConnectionSink(connID, 16, c.log)
	session := o.Presence().Connect(connID, &student, connSink)
	_, err := session.Join(ctx, domain.JoinRoomCommand{Room: "general"})
	req.NoError(err)

	// Then the last 20 messages arrive oldest first
	var history event.RoomHistory
	select {
	case e := <-connSink.Events():
		history = e.(event.RoomHistory)
	case <-time.After(2 * time.Second):
		req.FailNow("history never arrived")
	}
	req.Equal(general.ID, history.Room)
	req.Len(history.Messages, 20)
	req.Equal("old-05", history.Messages[0].Content)
	req.Equal("old-24", history.Messages[19].Content)

	// When the connection posts a censored word
	message, err := session.Post(ctx, domain.PostMessageCommand{Content: "what the heck"})
	req.NoError(err)
	req.Equal("what the ****", message.Content)

	// Then it is broadcast and reaches the permanent sinks
	posted := (<-connSink.Events()).(event.MessagePosted)
	req.Equal(message.ID, posted.ID)
	req.Eventually(func() bool { return permanent.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestOrchestrator_Stop_Closes_Connections(t *testing.T) {
	req := require.New(t)
	c := newChat(t, "general")
	o := newOrchestrator(t, c, 20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = o.Start(ctx)
		close(done)
	}()

	connID := newConn()
	connSink := sink.NewConnectionSink(connID, 1, c.log)
	session := o.Presence().Connect(connID, &student, connSink)

	o.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.FailNow("orchestrator did not stop")
	}
	req.Equal(StateClosed, session.State())
	req.Equal(0, o.Presence().Count())
}

func TestOrchestrator_RequestHistory_Never_Blocks(t *testing.T) {
	req := require.New(t)
	c := newChat(t, "general")
	o := newOrchestrator(t, c, 20)
	ctx, cancel := context.WithCancel(context.Background())

	// Given a full queue and no loader running
	for i := 0; i < 10; i++ {
		o.RequestHistory(ctx, workers.HistoryRequest{ConnID: newConn(), Room: "general"})
	}

	// When one more request comes in
	returned := make(chan struct{})
	go func() {
		o.RequestHistory(ctx, workers.HistoryRequest{ConnID: newConn(), Room: "general"})
		close(returned)
	}()

	// Then the caller is not held up
	select {
	case <-returned:
	case <-time.After(time.Second):
		req.Fail("RequestHistory blocked")
	}
	cancel()
}

func TestOrchestrator_DisconnectUser_Closes_Live_Sessions(t *testing.T) {
	req := require.New(t)
	c := newChat(t, "general")
	o := newOrchestrator(t, c, 20)

	connID := newConn()
	connSink := sink.NewConnectionSink(connID, 16, c.log)
	session := o.Presence().Connect(connID, &student, connSink)
	_, err := session.Join(context.Background(), domain.JoinRoomCommand{Room: "general"})
	req.NoError(err)

	// When
	closed := o.DisconnectUser(student.UserID)

	// Then
	req.Equal(1, closed)
	req.Equal(StateClosed, session.State())
	req.Equal(0, o.Presence().Count())
	_, open := <-connSink.Done()
	req.False(open)
}
