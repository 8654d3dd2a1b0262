// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/recipebook/recipebook/internal/model"
)

// RegisterResponse is returned after an account is created.
type RegisterResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// LoginResponse carries a session token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyResponse describes the caller of an authenticated request.
type VerifyResponse struct {
	UID       int64     `json:"uid"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserListResponse is a page of public users.
type UserListResponse struct {
	Data       []model.PublicUser `json:"data"`
	Pagination Pagination         `json:"pagination"`
}

// Pagination echoes the window a listing was read with.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Count  int `json:"count"`
}

// ToUserListResponse converts users to their public view.
func ToUserListResponse(users []*model.User, offset, limit int) *UserListResponse {
	data := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		data = append(data, u.Public())
	}
	return &UserListResponse{
		Data:       data,
		Pagination: Pagination{Offset: offset, Limit: limit, Count: len(data)},
	}
}
