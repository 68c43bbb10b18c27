package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleClerk   UserRole = "clerk"
	UserRoleManager UserRole = "manager"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         UserRole
	Status       UserStatus
	CreatedAt    time.Time
}
