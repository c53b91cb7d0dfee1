// Package domain contains core concepts of the chat system.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

type UserID string

func (u UserID) String() string { return string(u) }

// User is the stored account. PasswordHash never leaves the repositories and services layers.
type User struct {
	ID           UserID
	Email        string
	DisplayName  string
	Avatar       string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// PublicUser is what other users see. Online is derived from presence, never stored.
type PublicUser struct {
	ID          UserID `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
	Online      bool   `json:"online"`
}

func (u User) Public(online bool) PublicUser {
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		Online:      online,
	}
}
