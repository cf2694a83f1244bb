package models

import "time"

type User struct {
	ID          string    `json:"user_id"`
	Name        string    `json:"name" validate:"required,min=2,max=100"`
	Phone       string    `json:"phone" validate:"required,numeric,min=10,max=15"`
	Email       string    `json:"email" validate:"omitempty,email"`
	TotalPoints int       `json:"total_points"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`
}

// Account is a registered user together with the credential the store checks on login.
type Account struct {
	User         User   `json:"user"`
	PasswordHash string `json:"password_hash"`
}
