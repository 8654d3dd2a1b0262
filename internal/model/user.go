// Package model defines domain entities for the application.
package model

import "time"

// User is a registered account.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordDigest string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// PublicUser is the view of a user that any client may see.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Public returns the public projection of the user.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}

// Identity is the verified caller of a request. It lives for one request
// and is never persisted.
type Identity struct {
	UserID    int64
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
