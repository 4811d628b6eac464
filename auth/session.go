package auth

import (
	"context"
	"educonnect/domain"
	"educonnect/errors"
	"educonnect/repositories"
	goerrors "errors"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	sessionName = "educonnect-session"
	userIDKey   = "user_id"
)

// SessionStore is the signed cookie shared by the HTTP handlers and the WebSocket upgrade.
// It only holds the user id, the identity is read from the user store.
type SessionStore struct {
	store *sessions.CookieStore
	users repositories.IUserRepository
}

func NewSessionStore(secret string, secure bool, maxAge int, users repositories.IUserRepository) SessionStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return SessionStore{store: store, users: users}
}

func (s SessionStore) Save(w http.ResponseWriter, r *http.Request, userID string) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values[userIDKey] = userID
	return session.Save(r, w)
}

func (s SessionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, sessionName)
	delete(session.Values, userIDKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// ResolveIdentity reads the cookie once and loads the matching user.
// A missing cookie, an unknown user or an unapproved faculty is unauthenticated.
func (s SessionStore) ResolveIdentity(ctx context.Context, r *http.Request) (domain.Identity, error) {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		return domain.Identity{}, errors.ErrUnauthenticated
	}
	userID, ok := session.Values[userIDKey].(string)
	if !ok || userID == "" {
		return domain.Identity{}, errors.ErrUnauthenticated
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if goerrors.Is(err, errors.ErrUserNotFound) {
		return domain.Identity{}, errors.ErrUnauthenticated
	}
	if err != nil {
		return domain.Identity{}, err
	}
	if !user.CanLogin() {
		return domain.Identity{}, errors.ErrNotApproved
	}
	return user.Identity(), nil
}
