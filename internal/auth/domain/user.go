package domain

import "time"

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User is never hard-deleted; disabling is the only way to lock someone out.
type User struct {
	ID           string
	Email        string // lower-cased, unique
	FullName     string
	PasswordHash string // argon2id PHC string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) Active() bool { return u.Status == UserStatusActive }
