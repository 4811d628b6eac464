package runtime

import (
	"context"
	"educonnect/domain"
	"educonnect/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSession_States(t *testing.T) {
	ctx := context.Background()
	c := newChat(t, "general", "science")

	t.Run("Anonymous connection can't join nor post", func(t *testing.T) {
		req := require.New(t)
		session, _ := c.connect(t, nil)
		req.Equal(StateConnected, session.State())
		req.Nil(session.Identity())

		_, err := session.Join(ctx, domain.JoinRoomCommand{Room: "general"})
		req.ErrorIs(err, errors.ErrUnauthenticated)
		_, err = session.Post(ctx, domain.PostMessageCommand{Room: "general", Content: "hi"})
		req.ErrorIs(err, errors.ErrUnauthenticated)
		req.Equal(StateConnected, session.State())
	})

	t.Run("Join then leave", func(t *testing.T) {
		req := require.New(t)
		session, _ := c.connect(t, &student)
		req.Equal(StateAuthenticated, session.State())

		room, err := session.Join(ctx, domain.JoinRoomCommand{Room: "general"})
		req.NoError(err)
		req.Equal(StateInRoom, session.State())
		current, ok := session.CurrentRoom()
		req.True(ok)
		req.Equal(room.ID, current.ID)

		req.NoError(session.Leave(ctx, domain.LeaveRoomCommand{Room: room.ID.String()}))
		req.Equal(StateAuthenticated, session.State())
		_, ok = c.registry.CurrentRoomOf(session.ConnectionID())
		req.False(ok)
	})

	t.Run("Failed join keeps the previous room", func(t *testing.T) {
		req := require.New(t)
		session, _ := c.connect(t, &student)
		general, err := session.Join(ctx, domain.JoinRoomCommand{Room: "general"})
		req.NoError(err)

		_, err = session.Join(ctx, domain.JoinRoomCommand{Room: "nowhere"})

		req.ErrorIs(err, errors.ErrRoomNotFound)
		req.Equal(StateInRoom, session.State())
		current, ok := c.registry.CurrentRoomOf(session.ConnectionID())
		req.True(ok)
		req.Equal(general.ID, current)
	})

	t.Run("Leave is advisory", func(t *testing.T) {
		req := require.New(t)
		session, _ := c.connect(t, &student)
		req.NoError(session.Leave(ctx, domain.LeaveRoomCommand{Room: "general"}))

		_, err := session.Join(ctx, domain.JoinRoomCommand{Room: "general"})
		req.NoError(err)
		req.NoError(session.Leave(ctx, domain.LeaveRoomCommand{Room: "science"}))
		req.NoError(session.Leave(ctx, domain.LeaveRoomCommand{Room: "nowhere"}))
		req.Equal(StateInRoom, session.State())
	})

	t.Run("Closed session refuses everything", func(t *testing.T) {
		req := require.New(t)
		session, _ := c.connect(t, &student)
		c.presence.Disconnect(session.ConnectionID())

		req.Equal(StateClosed, session.State())
		_, err := session.Join(ctx, domain.JoinRoomCommand{Room: "general"})
		req.ErrorIs(err, errors.ErrConnectionClosed)
		req.ErrorIs(session.Leave(ctx, domain.LeaveRoomCommand{Room: "general"}), errors.ErrConnectionClosed)
		_, err = session.Post(ctx, domain.PostMessageCommand{Room: "general", Content: "hi"})
		req.ErrorIs(err, errors.ErrConnectionClosed)
	})
}

func TestSession_Join_Moves_Between_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newChat(t, "general", "science")
	session, _ := c.connect(t, &student)

	// Given C1 in general
	_, err := session.Join(ctx, domain.JoinRoomCommand{Room: "general"})
	req.NoError(err)

	// When C1 joins science without leaving first
	science, err := session.Join(ctx, domain.JoinRoomCommand{Room: "science"})
	req.NoError(err)

	// Then the registry only shows C1 under science
	req.Empty(c.registry.MembersOf(c.room(t, "general").ID))
	req.Len(c.registry.MembersOf(science.ID), 1)
	req.Equal(1, roomsContaining(c.registry, session.ConnectionID()))

	// And a history load was asked for each join, for this connection only
	requests := c.history.all()
	req.Len(requests, 2)
	req.Equal(science.ID, requests[1].Room)
	req.Equal(session.ConnectionID(), requests[1].ConnID)
}

func TestSession_Post_Uses_The_Session_Identity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newChat(t, "announcements")
	session, _ := c.connect(t, &student)

	// When a student tries to post as faculty
	_, err := session.Post(ctx, domain.PostMessageCommand{Room: "announcements", Identity: &faculty, Content: "fake"})

	// Then the session identity wins
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestSession_Direct_Room_Access(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newChat(t)
	dm, _, err := c.rooms.FindOrCreateDM(ctx, student.UserID, faculty.UserID)
	req.NoError(err)
	outsider := domain.Identity{UserID: "u-other", Username: "otto", Role: domain.RoleStudent}

	s, _ := c.connect(t, &student)
	_, err = s.Join(ctx, domain.JoinRoomCommand{Room: dm.ID.String()})
	req.NoError(err)

	o, _ := c.connect(t, &outsider)
	_, err = o.Join(ctx, domain.JoinRoomCommand{Room: dm.ID.String()})
	req.ErrorIs(err, errors.ErrForbidden)
	req.Equal(StateAuthenticated, o.State())
}
