package api

import (
	"educonnect/domain"
	"time"

	"github.com/samber/lo"
)

type UserView struct {
	ID               string              `json:"id"`
	Username         string              `json:"username"`
	Email            string              `json:"email"`
	Role             domain.Role         `json:"role"`
	IsApproved       bool                `json:"isApproved"`
	ProfileCompleted bool                `json:"profileCompleted"`
	Student          *StudentProfileView `json:"studentProfile,omitempty"`
	Faculty          *FacultyProfileView `json:"facultyProfile,omitempty"`
}

type StudentProfileView struct {
	EnrollmentNumber string `json:"enrollmentNumber"`
	Program          string `json:"program"`
	Year             int    `json:"year"`
}

type FacultyProfileView struct {
	EmployeeID  string `json:"employeeId"`
	Department  string `json:"department"`
	Designation string `json:"designation"`
}

type RoomView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         domain.RoomType `json:"type"`
	Description  string          `json:"description,omitempty"`
	Participants []string        `json:"participants,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func newUserView(u domain.User) UserView {
	view := UserView{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Role:             u.Role,
		IsApproved:       u.IsApproved,
		ProfileCompleted: u.ProfileCompleted,
	}
	if u.Student != nil {
		view.Student = &StudentProfileView{
			EnrollmentNumber: u.Student.EnrollmentNumber,
			Program:          u.Student.Program,
			Year:             u.Student.Year,
		}
	}
	if u.Faculty != nil {
		view.Faculty = &FacultyProfileView{
			EmployeeID:  u.Faculty.EmployeeID,
			Department:  u.Faculty.Department,
			Designation: u.Faculty.Designation,
		}
	}
	return view
}

func newUserViews(users []domain.User) []UserView {
	return lo.Map(users, func(u domain.User, _ int) UserView { return newUserView(u) })
}

func newRoomView(r domain.Room) RoomView {
	return RoomView{
		ID:           r.ID.String(),
		Name:         r.Name,
		Type:         r.Type,
		Description:  r.Description,
		Participants: r.Participants,
		CreatedAt:    r.CreatedAt,
	}
}

func newRoomViews(rooms []domain.Room) []RoomView {
	return lo.Map(rooms, func(r domain.Room, _ int) RoomView { return newRoomView(r) })
}
