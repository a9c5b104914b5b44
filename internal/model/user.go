package model

import "time"

const (
	RoleUser    = "user"
	RolePartner = "partner"
	RoleAdmin   = "admin"
)

type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone,omitempty"`
	Name           string     `json:"name"`
	PasswordDigest string     `json:"-"`
	Role           string     `json:"role"`
	IsActive       bool       `json:"is_active"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Public strips credential material before a user leaves the service layer.
func (u User) Public() User {
	u.PasswordDigest = ""
	return u
}

func ValidRole(role string) bool {
	switch role {
	case RoleUser, RolePartner, RoleAdmin:
		return true
	}
	return false
}
