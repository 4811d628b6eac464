// Package api exposes the HTTP collaborator endpoints next to the WebSocket upgrade.
package api

import (
	"context"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/services"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionManager is the cookie session shared with the WebSocket upgrade.
type SessionManager interface {
	Save(w http.ResponseWriter, r *http.Request, userID string) error
	Clear(w http.ResponseWriter, r *http.Request) error
	ResolveIdentity(ctx context.Context, r *http.Request) (domain.Identity, error)
}

type Dependencies struct {
	Auth           services.IAuthService
	Chat           services.IChatService
	Sessions       SessionManager
	WebSocket      http.Handler
	Stats          func() contract.RegistryStats
	AllowedOrigins []string
}

type Server struct {
	log  *slog.Logger
	deps Dependencies
}

func NewRouter(log *slog.Logger, deps Dependencies) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{log: log, deps: deps}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.loggingMiddleware())
	engine.Use(s.corsMiddleware())

	engine.GET("/health", s.health)
	if deps.WebSocket != nil {
		engine.GET("/ws", gin.WrapH(deps.WebSocket))
	}

	engine.POST("/signup", s.signup)
	engine.POST("/login", s.login)
	engine.POST("/logout", s.logout)
	engine.POST("/forgot-password", s.forgotPassword)
	engine.POST("/reset-password/:token", s.resetPassword)

	authenticated := engine.Group("/", s.requireIdentity())
	authenticated.GET("/user", s.currentUser)
	authenticated.POST("/profile", s.completeProfile)
	authenticated.GET("/rooms", s.listRooms)
	authenticated.POST("/rooms", s.createRoom)
	authenticated.GET("/rooms/:name/messages", s.history)
	authenticated.POST("/rooms/:name/messages", s.postMessage)
	authenticated.GET("/rooms/:name/messages/search", s.search)
	authenticated.POST("/conversations", s.openConversation)

	admin := engine.Group("/admin", s.requireIdentity(), s.requireAdmin())
	admin.GET("/unapproved-faculty", s.unapprovedFaculty)
	admin.POST("/approve-faculty", s.approveFaculty)
	admin.DELETE("/users/:id", s.deleteUser)
	admin.DELETE("/messages/:id", s.deleteMessage)

	return engine
}

func (s *Server) health(c *gin.Context) {
	stats := contract.RegistryStats{}
	if s.deps.Stats != nil {
		stats = s.deps.Stats()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"connections": stats.Connections,
		"rooms":       stats.Rooms,
		"members":     stats.Members,
	})
}
