package auth

import (
	"educonnect/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const resetPurpose = "password-reset"

// ResetClaims is what a password reset link carries.
type ResetClaims struct {
	UserID  string `json:"user_id"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenIssuer signs short-lived HS256 tokens for the password reset flow.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, duration time.Duration) TokenIssuer {
	return TokenIssuer{secret: []byte(secret), duration: duration, now: time.Now}
}

func (i TokenIssuer) IssueResetToken(userID string) (string, error) {
	now := i.now()
	claims := &ResetClaims{
		UserID:  userID,
		Purpose: resetPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "educonnect",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return token, nil
}

// ParseResetToken checks signature, expiry and purpose, and returns the user id.
func (i TokenIssuer) ParseResetToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ResetClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ResetClaims)
	if !ok || !token.Valid || claims.Purpose != resetPurpose || claims.UserID == "" {
		return "", errors.ErrInvalidToken
	}
	return claims.UserID, nil
}
