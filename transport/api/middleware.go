package api

import (
	"educonnect/domain"
	"educonnect/errors"
	goerrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.log.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware echoes allowed origins only, the session cookie needs credentials.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(s.deps.AllowedOrigins))
	for _, origin := range s.deps.AllowedOrigins {
		allowed[strings.TrimRight(strings.TrimSpace(origin), "/")] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.deps.Sessions.ResolveIdentity(c.Request.Context(), c.Request)
		if err != nil {
			s.abort(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityOf(c).IsAdmin() {
			s.abort(c, errors.ErrForbidden)
			return
		}
		c.Next()
	}
}

func identityOf(c *gin.Context) domain.Identity {
	identity, _ := c.MustGet(identityKey).(domain.Identity)
	return identity
}

// abort maps the error taxonomy to a status. Unknown errors stay opaque.
func (s *Server) abort(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	message := err.Error()
	switch {
	case goerrors.Is(err, errors.ErrDeliveryFailed):
		message = errors.ErrDeliveryFailed.Error()
	case status == http.StatusInternalServerError:
		s.log.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: errors.Code(err), Message: message})
}
