package repositories

import (
	"context"
	"educonnect/domain"
	"educonnect/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newUser(username string, role domain.Role, approved bool, at time.Time) domain.User {
	return domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@campus.edu",
		PasswordHash: "$argon2id$hash",
		Role:         role,
		IsApproved:   approved,
		CreatedAt:    at.Round(0),
	}
}

func TestUserRepository_Create_And_Lookup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t), slog.Default(), DefaultRetries)
	user := newUser("alice", domain.RoleStudent, true, time.Now().UTC())
	user.Student = &domain.StudentProfile{EnrollmentNumber: "EN-42", Program: "CS", Year: 2}

	req.NoError(repository.CreateUser(ctx, user))

	byID, err := repository.GetUserByID(ctx, user.ID)
	req.NoError(err)
	req.Equal(user, byID)

	byEmail, err := repository.GetUserByEmail(ctx, "ALICE@campus.edu")
	req.NoError(err)
	req.Equal(user.ID, byEmail.ID)

	byUsername, err := repository.GetUserByUsername(ctx, "Alice")
	req.NoError(err)
	req.Equal(user.ID, byUsername.ID)
}

func TestUserRepository_Email_And_Username_Are_Unique(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t), slog.Default(), DefaultRetries)
	now := time.Now().UTC()
	req.NoError(repository.CreateUser(ctx, newUser("alice", domain.RoleStudent, true, now)))

	sameUsername := newUser("alice", domain.RoleStudent, true, now)
	sameUsername.Email = "other@campus.edu"
	req.ErrorIs(repository.CreateUser(ctx, sameUsername), errors.ErrUserAlreadyExists)

	sameEmail := newUser("bob", domain.RoleStudent, true, now)
	sameEmail.Email = "alice@campus.edu"
	req.ErrorIs(repository.CreateUser(ctx, sameEmail), errors.ErrUserAlreadyExists)
}

func TestUserRepository_Update_Keeps_Identity_Keys(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t), slog.Default(), DefaultRetries)
	user := newUser("carol", domain.RoleFaculty, false, time.Now().UTC())
	req.NoError(repository.CreateUser(ctx, user))

	// When the account is approved and someone tries to rename it
	user.IsApproved = true
	user.Username = "mallory"
	req.NoError(repository.UpdateUser(ctx, user))

	// Then the approval sticks but the username doesn't change
	fetched, err := repository.GetUserByID(ctx, user.ID)
	req.NoError(err)
	req.True(fetched.IsApproved)
	req.Equal("carol", fetched.Username)

	req.ErrorIs(repository.UpdateUser(ctx, newUser("ghost", domain.RoleStudent, true, time.Now())), errors.ErrUserNotFound)
}

func TestUserRepository_ListUnapprovedFaculty(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t), slog.Default(), DefaultRetries)
	now := time.Now().UTC()
	pending2 := newUser("pending2", domain.RoleFaculty, false, now.Add(time.Minute))
	pending1 := newUser("pending1", domain.RoleFaculty, false, now)
	for _, u := range []domain.User{
		pending2,
		pending1,
		newUser("approved", domain.RoleFaculty, true, now),
		newUser("student", domain.RoleStudent, false, now),
	} {
		req.NoError(repository.CreateUser(ctx, u))
	}

	users, err := repository.ListUnapprovedFaculty(ctx)

	req.NoError(err)
	req.Len(users, 2)
	req.Equal(pending1.ID, users[0].ID)
	req.Equal(pending2.ID, users[1].ID)
}

func TestUserRepository_Delete_Releases_Email_And_Username(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t), slog.Default(), DefaultRetries)
	user := newUser("dave", domain.RoleStudent, true, time.Now().UTC())
	req.NoError(repository.CreateUser(ctx, user))

	req.NoError(repository.DeleteUser(ctx, user.ID))

	_, err := repository.GetUserByID(ctx, user.ID)
	req.ErrorIs(err, errors.ErrUserNotFound)
	_, err = repository.GetUserByEmail(ctx, user.Email)
	req.ErrorIs(err, errors.ErrUserNotFound)
	req.NoError(repository.CreateUser(ctx, newUser("dave", domain.RoleStudent, true, time.Now().UTC())))
	req.ErrorIs(repository.DeleteUser(ctx, user.ID), errors.ErrUserNotFound)
}
