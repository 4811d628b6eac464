package api

import (
	"educonnect/auth"
	"educonnect/domain"
	"educonnect/errors"
	"educonnect/transport/ws"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type historyResponse struct {
	Room       string           `json:"room"`
	Messages   []ws.MessageView `json:"messages"`
	NextCursor *string          `json:"nextCursor,omitempty"`
}

// postRequest accepts the older "text" field next to "message".
type postRequest struct {
	Message string `json:"message"`
	Text    string `json:"text"`
}

type conversationRequest struct {
	ReceiverID string `json:"receiverId"`
}

type conversationResponse struct {
	Room    RoomView `json:"room"`
	Created bool     `json:"created"`
}

func (s *Server) listRooms(c *gin.Context) {
	rooms, err := s.deps.Chat.ListRooms(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoomViews(rooms))
}

func (s *Server) createRoom(c *gin.Context) {
	var req auth.RoomRequest
	if !s.bind(c, &req) {
		return
	}
	room, err := s.deps.Chat.CreateRoom(c.Request.Context(), identityOf(c), req)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRoomView(room))
}

// history pages backwards from the cursor, oldest first within a page.
func (s *Server) history(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	var cursor *string
	if value, ok := c.GetQuery("cursor"); ok && value != "" {
		cursor = &value
	}
	page, err := s.deps.Chat.History(c.Request.Context(), identityOf(c), c.Param("name"), cursor, limit)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, historyResponse{
		Room:       page.Room.ID.String(),
		Messages:   ws.NewMessageViews(page.Messages),
		NextCursor: page.NextCursor,
	})
}

func (s *Server) postMessage(c *gin.Context) {
	var req postRequest
	if !s.bind(c, &req) {
		return
	}
	content := req.Message
	if content == "" {
		content = req.Text
	}
	identity := identityOf(c)
	msg, err := s.deps.Chat.Post(c.Request.Context(), domain.PostMessageCommand{
		Room:     c.Param("name"),
		Identity: &identity,
		Content:  content,
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, ws.NewMessageView(msg))
}

func (s *Server) search(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	messages, err := s.deps.Chat.Search(c.Request.Context(), identityOf(c), c.Param("name"), c.Query("q"), limit)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, historyResponse{Room: c.Param("name"), Messages: ws.NewMessageViews(messages)})
}

func (s *Server) openConversation(c *gin.Context) {
	var req conversationRequest
	if !s.bind(c, &req) {
		return
	}
	room, created, err := s.deps.Chat.OpenConversation(c.Request.Context(), identityOf(c), req.ReceiverID)
	if err != nil {
		s.abort(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conversationResponse{Room: newRoomView(room), Created: created})
}

func (s *Server) deleteMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.abort(c, fmt.Errorf("%w: message id %q", errors.ErrInvalidPayload, c.Param("id")))
		return
	}
	if err = s.deps.Chat.DeleteMessage(c.Request.Context(), identityOf(c), id); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// queryLimit returns 0 when absent, the service applies its own default.
func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", errors.ErrInvalidPayload)
	}
	return limit, nil
}
