// Package user defines the user entity and its repository contract.
package user

import (
	"context"
	"time"
)

// Role values.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// User is an account that can log in and own API keys.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository is the user-store contract the gateway consumes.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
