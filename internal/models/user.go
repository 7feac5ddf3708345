package models

import (
	"time"
)

// Roles known to the dashboard
const (
	RoleAdmin   = "admin"
	RoleAdvisor = "advisor"
)

// User profile as returned by backend '/auth/me'
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u User) IsAdvisor() bool {
	return u.Role == RoleAdvisor
}

// Payload to create new dashboard user (admin only)
type RegisterUser struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

type RoleUpdate struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Role   string `json:"role" validate:"required,oneof=admin advisor"`
}
