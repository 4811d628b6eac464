package api

import (
	"educonnect/auth"
	"educonnect/errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type emailRequest struct {
	Email string `json:"email"`
}

// bind reads the JSON body. Any decoding failure is an invalid payload.
func (s *Server) bind(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		s.abort(c, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
		return false
	}
	return true
}

func (s *Server) signup(c *gin.Context) {
	var req auth.SignupRequest
	if !s.bind(c, &req) {
		return
	}
	user, err := s.deps.Auth.Signup(c.Request.Context(), req)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, newUserView(user))
}

// login opens the cookie session the WebSocket upgrade reads later.
func (s *Server) login(c *gin.Context) {
	var req auth.LoginRequest
	if !s.bind(c, &req) {
		return
	}
	user, err := s.deps.Auth.Login(c.Request.Context(), req)
	if err != nil {
		s.abort(c, err)
		return
	}
	if err = s.deps.Sessions.Save(c.Writer, c.Request, user.ID); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

func (s *Server) logout(c *gin.Context) {
	if err := s.deps.Sessions.Clear(c.Writer, c.Request); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) currentUser(c *gin.Context) {
	user, err := s.deps.Auth.CurrentUser(c.Request.Context(), identityOf(c).UserID)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

func (s *Server) completeProfile(c *gin.Context) {
	var req auth.ProfileRequest
	if !s.bind(c, &req) {
		return
	}
	user, err := s.deps.Auth.CompleteProfile(c.Request.Context(), identityOf(c).UserID, req)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

// forgotPassword answers the same way whether the email is known or not.
func (s *Server) forgotPassword(c *gin.Context) {
	var req emailRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.deps.Auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "if the account exists, a reset link has been sent"})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req auth.ResetPasswordRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.deps.Auth.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (s *Server) unapprovedFaculty(c *gin.Context) {
	users, err := s.deps.Auth.ListUnapprovedFaculty(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserViews(users))
}

func (s *Server) approveFaculty(c *gin.Context) {
	var req emailRequest
	if !s.bind(c, &req) {
		return
	}
	user, err := s.deps.Auth.ApproveFaculty(c.Request.Context(), req.Email)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

func (s *Server) deleteUser(c *gin.Context) {
	deleted, err := s.deps.Auth.DeleteUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deletedMessages": len(deleted)})
}
