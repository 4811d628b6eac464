//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"context"
	"educonnect/domain"
	"educonnect/errors"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) error
	ListUnapprovedFaculty(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type UserRepository struct {
	db      *badger.DB
	log     *slog.Logger
	retries int
}

func NewUserRepository(db *badger.DB, log *slog.Logger, retries int) UserRepository {
	return UserRepository{db: db, log: log, retries: retries}
}

// DiskUser is the persisted form of an account.
// Profiles are optional and only one of them is set depending on the role.
type DiskUser struct {
	ID               string       `json:"id"`
	Username         string       `json:"username"`
	Email            string       `json:"email"`
	PasswordHash     string       `json:"password_hash"`
	Role             string       `json:"role"`
	IsApproved       bool         `json:"is_approved"`
	ProfileCompleted bool         `json:"profile_completed"`
	Student          *DiskStudent `json:"student,omitempty"`
	Faculty          *DiskFaculty `json:"faculty,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

type DiskStudent struct {
	EnrollmentNumber string `json:"enrollment_number"`
	Program          string `json:"program"`
	Year             int    `json:"year"`
}

type DiskFaculty struct {
	EmployeeID  string `json:"employee_id"`
	Department  string `json:"department"`
	Designation string `json:"designation"`
}

const userIDPrefix = "user:id:"

func userIDKey(id string) string         { return userIDPrefix + id }
func userEmailKey(email string) string   { return "user:email:" + normalizeKey(email) }
func usernameKey(username string) string { return "user:username:" + normalizeKey(username) }

// CreateUser persists a new account.
// Email and username are both unique, compared case-insensitively.
func (u UserRepository) CreateUser(ctx context.Context, user domain.User) error {
	return update(ctx, u.db, u.retries, func(txn *badger.Txn) error {
		for _, key := range []string{userEmailKey(user.Email), usernameKey(user.Username)} {
			taken, err := exists(txn, key)
			if err != nil {
				return err
			}
			if taken {
				return errors.ErrUserAlreadyExists
			}
		}
		if err := setJSON(txn, userIDKey(user.ID), fromUser(user)); err != nil {
			return err
		}
		if err := txn.Set([]byte(userEmailKey(user.Email)), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(usernameKey(user.Username)), []byte(user.ID))
	})
}

func (u UserRepository) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var user domain.User
	err := view(ctx, u.db, func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func (u UserRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return u.getByIndex(ctx, userEmailKey(email))
}

func (u UserRepository) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return u.getByIndex(ctx, usernameKey(username))
}

func (u UserRepository) getByIndex(ctx context.Context, indexKey string) (domain.User, error) {
	var user domain.User
	err := view(ctx, u.db, func(txn *badger.Txn) error {
		id, err := getString(txn, indexKey)
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

// UpdateUser overwrites an existing account. Email and username are immutable.
func (u UserRepository) UpdateUser(ctx context.Context, user domain.User) error {
	return update(ctx, u.db, u.retries, func(txn *badger.Txn) error {
		existing, err := getUser(txn, user.ID)
		if err != nil {
			return err
		}
		user.Email = existing.Email
		user.Username = existing.Username
		return setJSON(txn, userIDKey(user.ID), fromUser(user))
	})
}

// ListUnapprovedFaculty returns the faculty accounts waiting for an admin, oldest first.
func (u UserRepository) ListUnapprovedFaculty(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := view(ctx, u.db, func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(userIDPrefix)
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var du DiskUser
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &du)
			}); err != nil {
				return err
			}
			if domain.Role(du.Role) == domain.RoleFaculty && !du.IsApproved {
				users = append(users, toUser(du))
			}
		}
		return nil
	})
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, err
}

// DeleteUser removes the account and releases its email and username.
func (u UserRepository) DeleteUser(ctx context.Context, id string) error {
	return update(ctx, u.db, u.retries, func(txn *badger.Txn) error {
		user, err := getUser(txn, id)
		if err != nil {
			return err
		}
		for _, key := range []string{userIDKey(id), userEmailKey(user.Email), usernameKey(user.Username)} {
			if err = txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

func getUser(txn *badger.Txn, id string) (domain.User, error) {
	var du DiskUser
	err := getJSON(txn, userIDKey(id), &du)
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(du), nil
}

func fromUser(user domain.User) DiskUser {
	du := DiskUser{
		ID:               user.ID,
		Username:         user.Username,
		Email:            user.Email,
		PasswordHash:     user.PasswordHash,
		Role:             string(user.Role),
		IsApproved:       user.IsApproved,
		ProfileCompleted: user.ProfileCompleted,
		CreatedAt:        user.CreatedAt,
	}
	if s := user.Student; s != nil {
		du.Student = &DiskStudent{EnrollmentNumber: s.EnrollmentNumber, Program: s.Program, Year: s.Year}
	}
	if f := user.Faculty; f != nil {
		du.Faculty = &DiskFaculty{EmployeeID: f.EmployeeID, Department: f.Department, Designation: f.Designation}
	}
	return du
}

func toUser(du DiskUser) domain.User {
	user := domain.User{
		ID:               du.ID,
		Username:         du.Username,
		Email:            du.Email,
		PasswordHash:     du.PasswordHash,
		Role:             domain.Role(du.Role),
		IsApproved:       du.IsApproved,
		ProfileCompleted: du.ProfileCompleted,
		CreatedAt:        du.CreatedAt.UTC(),
	}
	if s := du.Student; s != nil {
		user.Student = &domain.StudentProfile{EnrollmentNumber: s.EnrollmentNumber, Program: s.Program, Year: s.Year}
	}
	if f := du.Faculty; f != nil {
		user.Faculty = &domain.FacultyProfile{EmployeeID: f.EmployeeID, Department: f.Department, Designation: f.Designation}
	}
	return user
}
