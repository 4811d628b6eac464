// Package domain contains core concepts of the chat system.
// This file defines the identities bound to live connections.
// No runtime, network, or UI logic should be added here.
package domain

// ConnectionID identifies one live real-time connection.
type ConnectionID string

func (c ConnectionID) String() string { return string(c) }

type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	}
	return false
}

// Identity is resolved once when a connection opens and never changes afterwards.
type Identity struct {
	UserID   string
	Username string
	Role     Role
}

// IsPrivileged reports whether the identity may post to the restricted room.
func (i Identity) IsPrivileged() bool {
	return i.Role == RoleFaculty
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
