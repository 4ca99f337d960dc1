package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Email          string
	HashedPassword string
	Role           Role
}

// Identity is the subset of user fields carried by an access token
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}
