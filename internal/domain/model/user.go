package model

import (
	"fmt"
	"time"
)

// UserStatus is the durable presence flag of an account.
type UserStatus string

const (
	StatusOffline UserStatus = "offline"
	StatusOnline  UserStatus = "online"
	StatusAway    UserStatus = "away"
)

func ParseUserStatus(s string) (UserStatus, error) {
	switch st := UserStatus(s); st {
	case StatusOffline, StatusOnline, StatusAway:
		return st, nil
	default:
		return "", fmt.Errorf("unknown user status %q", s)
	}
}

// User is an account as seen by the delivery core.
// Profile fields are owned by external services; the core only mutates Status and LastOnline.
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	Status     UserStatus `json:"status"`
	LastOnline time.Time  `json:"last_online"`
}

// DisplayName falls back to the id when no profile name is set.
func (u *User) DisplayName() string {
	if u.Name == "" {
		return u.ID
	}
	return u.Name
}
