package auth

import (
	"educonnect/errors"
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
	Role     string `json:"role" validate:"required,oneof=student faculty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// ProfileRequest completes a signup; which half is required depends on the role.
type ProfileRequest struct {
	EnrollmentNumber string `json:"enrollmentNumber" validate:"omitempty,max=32"`
	Program          string `json:"program" validate:"omitempty,max=64"`
	Year             int    `json:"year" validate:"omitempty,min=1,max=8"`
	EmployeeID       string `json:"employeeId" validate:"omitempty,max=32"`
	Department       string `json:"department" validate:"omitempty,max=64"`
	Designation      string `json:"designation" validate:"omitempty,max=64"`
}

type RoomRequest struct {
	Name         string   `json:"name" validate:"required,min=2,max=48"`
	Description  string   `json:"description" validate:"max=256"`
	Participants []string `json:"participants" validate:"dive,required"`
}

// Validate checks the struct tags and wraps failures as invalid payloads.
func Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

func ValidateSignup(req SignupRequest) error {
	if err := Validate(req); err != nil {
		return err
	}
	return ValidatePassword(req.Password)
}

// ValidatePassword requires upper, lower, digit and a symbol.
func ValidatePassword(password string) error {
	if !isPasswordComplex(password) {
		return errors.ErrInvalidPassword
	}
	return nil
}

func isPasswordComplex(s string) bool {
	var (
		hasUpper   = false
		hasLower   = false
		hasNumber  = false
		hasSpecial = false
	)
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
