package models

import "time"

// Profile holds a user's display settings. The row is keyed by the identity
// provider's user id and is created on the first profile edit, not on signup.
type Profile struct {
	ID        string    `json:"id" gorm:"primaryKey;size:128"`
	Name      string    `json:"name" gorm:"size:100"`
	AvatarURL string    `json:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateProfileRequest is the body of PUT /api/user/profile
type UpdateProfileRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=100"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url,max=2048"`
}
