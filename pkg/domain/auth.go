package domain

import (
	"errors"
	"fmt"
)

// LoginMethod discriminates how the identity was proven.
type LoginMethod string

const (
	LoginEmail LoginMethod = "email"
	LoginPhone LoginMethod = "phone"
)

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	IDToken     string      `json:"idToken"`
	LoginMethod LoginMethod `json:"loginMethod"`
}

// LoginUser is the user object inside a login envelope.
type LoginUser struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// LoginResponse is the envelope returned by POST /api/login.
type LoginResponse struct {
	Success    bool      `json:"success"`
	User       LoginUser `json:"user"`
	Role       Role      `json:"role"`
	StudentID  string    `json:"studentId,omitempty"`
	AdminToken string    `json:"adminToken,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Validate checks the fields a successful login must carry.
func (r *LoginResponse) Validate() error {
	if !r.Success {
		if r.Message != "" {
			return errors.New(r.Message)
		}
		return errors.New("login failed")
	}
	if r.User.UID == "" {
		return errors.New("login response missing user.uid")
	}
	if !r.Role.Known() {
		return fmt.Errorf("login response has unknown role %q", r.Role)
	}
	return nil
}

// Profile converts a successful envelope into the stored profile.
func (r *LoginResponse) Profile() Profile {
	return Profile{
		Role:       r.Role,
		StudentID:  r.StudentID,
		AdminToken: r.AdminToken,
		Name:       r.User.Name,
		Email:      r.User.Email,
	}
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Provider    string  `json:"provider"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Name        string  `json:"name"`
	PhoneNumber *string `json:"phoneNumber"`
}

// RegisterResponse is the body returned by POST /api/register.
type RegisterResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
