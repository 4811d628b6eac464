package domain

import "time"

// User is the account record behind an Identity.
// Faculty accounts stay unapproved until an admin approves them.
type User struct {
	ID               string
	Username         string
	Email            string
	PasswordHash     string
	Role             Role
	IsApproved       bool
	ProfileCompleted bool
	Student          *StudentProfile
	Faculty          *FacultyProfile
	CreatedAt        time.Time
}

type StudentProfile struct {
	EnrollmentNumber string
	Program          string
	Year             int
}

type FacultyProfile struct {
	EmployeeID  string
	Department  string
	Designation string
}

func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// CanLogin applies the approval rule: faculty must be approved first.
func (u User) CanLogin() bool {
	return u.Role != RoleFaculty || u.IsApproved
}
