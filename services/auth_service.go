//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"context"
	"educonnect/auth"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/errors"
	"educonnect/repositories"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type IAuthService interface {
	Signup(ctx context.Context, req auth.SignupRequest) (domain.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (domain.User, error)
	CurrentUser(ctx context.Context, userID string) (domain.User, error)
	CompleteProfile(ctx context.Context, userID string, req auth.ProfileRequest) (domain.User, error)
	ListUnapprovedFaculty(ctx context.Context) ([]domain.User, error)
	ApproveFaculty(ctx context.Context, email string) (domain.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	DeleteUser(ctx context.Context, userID string) ([]uuid.UUID, error)
}

type AuthService struct {
	log       *slog.Logger
	users     repositories.IUserRepository
	messages  repositories.IMessageRepository
	tokens    auth.TokenIssuer
	mailer    Mailer
	publisher contract.IPublisher
	sessions  contract.IDisconnector
	clientURL string
}

func NewAuthService(
	log *slog.Logger,
	users repositories.IUserRepository,
	messages repositories.IMessageRepository,
	tokens auth.TokenIssuer,
	mailer Mailer,
	publisher contract.IPublisher,
	sessions contract.IDisconnector,
	clientURL string) *AuthService {
	return &AuthService{
		log:       log,
		users:     users,
		messages:  messages,
		tokens:    tokens,
		mailer:    mailer,
		publisher: publisher,
		sessions:  sessions,
		clientURL: strings.TrimRight(clientURL, "/"),
	}
}

// Signup creates the account. Students are approved straight away,
// faculty accounts wait for an admin.
func (s *AuthService) Signup(ctx context.Context, req auth.SignupRequest) (domain.User, error) {
	if err := auth.ValidateSignup(req); err != nil {
		return domain.User{}, err
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	role := domain.Role(req.Role)
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hashedPassword,
		Role:         role,
		IsApproved:   role == domain.RoleStudent,
		CreatedAt:    time.Now().UTC(),
	}
	if err = s.users.CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	s.log.Info("User signed up", "user_id", user.ID, "role", user.Role, "approved", user.IsApproved)
	return user, nil
}

// EnsureAdmin creates the admin account on first boot. An existing email is left untouched.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	_, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !goerrors.Is(err, errors.ErrUserNotFound) {
		return false, err
	}
	if err = auth.ValidatePassword(password); err != nil {
		return false, err
	}
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hashing failed: %w", err)
	}
	admin := domain.User{
		ID:               uuid.NewString(),
		Username:         username,
		Email:            email,
		PasswordHash:     hashedPassword,
		Role:             domain.RoleAdmin,
		IsApproved:       true,
		ProfileCompleted: true,
		CreatedAt:        time.Now().UTC(),
	}
	if err = s.users.CreateUser(ctx, admin); err != nil {
		return false, err
	}
	s.log.Info("Admin account created", "user_id", admin.ID, "email", email)
	return true, nil
}

func (s *AuthService) Login(ctx context.Context, req auth.LoginRequest) (domain.User, error) {
	if err := auth.Validate(req); err != nil {
		return domain.User{}, errors.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		// Same answer for unknown emails, no user enumeration
		if goerrors.Is(err, errors.ErrUserNotFound) {
			return domain.User{}, errors.ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return domain.User{}, errors.ErrInvalidCredentials
	}
	if !user.CanLogin() {
		return domain.User{}, errors.ErrNotApproved
	}
	return user, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (domain.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// CompleteProfile fills the role specific half of the profile.
func (s *AuthService) CompleteProfile(ctx context.Context, userID string, req auth.ProfileRequest) (domain.User, error) {
	if err := auth.Validate(req); err != nil {
		return domain.User{}, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	switch user.Role {
	case domain.RoleStudent:
		if req.EnrollmentNumber == "" || req.Program == "" {
			return domain.User{}, fmt.Errorf("%w: enrollment number and program are required", errors.ErrInvalidPayload)
		}
		user.Student = &domain.StudentProfile{EnrollmentNumber: req.EnrollmentNumber, Program: req.Program, Year: req.Year}
	case domain.RoleFaculty:
		if req.EmployeeID == "" || req.Department == "" {
			return domain.User{}, fmt.Errorf("%w: employee id and department are required", errors.ErrInvalidPayload)
		}
		user.Faculty = &domain.FacultyProfile{EmployeeID: req.EmployeeID, Department: req.Department, Designation: req.Designation}
	default:
		return domain.User{}, fmt.Errorf("%w: no profile for role %s", errors.ErrInvalidPayload, user.Role)
	}
	user.ProfileCompleted = true

	if err = s.users.UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *AuthService) ListUnapprovedFaculty(ctx context.Context) ([]domain.User, error) {
	return s.users.ListUnapprovedFaculty(ctx)
}

// ApproveFaculty is idempotent.
func (s *AuthService) ApproveFaculty(ctx context.Context, email string) (domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	if user.Role != domain.RoleFaculty {
		return domain.User{}, errors.ErrNotFaculty
	}
	if user.IsApproved {
		return user, nil
	}
	user.IsApproved = true
	if err = s.users.UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	s.log.Info("Faculty approved", "user_id", user.ID)
	return user, nil
}

// ForgotPassword mails a reset link. Unknown emails are ignored so the answer
// doesn't tell whether an account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if goerrors.Is(err, errors.ErrUserNotFound) {
		s.log.Debug("Password reset asked for an unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := s.tokens.IssueResetToken(user.ID)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", s.clientURL, url.QueryEscape(token))
	if err = s.mailer.SendResetLink(ctx, user.Email, link); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	userID, err := s.tokens.ParseResetToken(token)
	if err != nil {
		return err
	}
	if err = auth.Validate(auth.ResetPasswordRequest{Password: password}); err != nil {
		return err
	}
	if err = auth.ValidatePassword(password); err != nil {
		return err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash, err = auth.HashPassword(password); err != nil {
		return fmt.Errorf("hashing failed: %w", err)
	}
	if err = s.users.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.log.Info("Password reset", "user_id", user.ID)
	return nil
}

// DeleteUser removes the account, closes its live connections, then deletes every message it sent.
// Connections go before messages so nothing posted by them outlives the cascade.
func (s *AuthService) DeleteUser(ctx context.Context, userID string) ([]uuid.UUID, error) {
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return nil, err
	}
	s.sessions.DisconnectUser(userID)
	ids, err := s.messages.DeleteBySender(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.publisher.Publish(event.MessagesDeleted{IDs: ids})
	}
	s.log.Info(fmt.Sprintf("User deleted with %d messages", len(ids)), "user_id", userID)
	return ids, nil
}
