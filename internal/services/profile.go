package services

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/repositories"
	"gorm.io/gorm"
)

// ProfileService reads and edits the caller's own profile. There is no way to
// write another user's row.
type ProfileService struct {
	profiles repositories.ProfileRepository
	now      func() time.Time
}

// NewProfileService creates a new ProfileService
func NewProfileService(profiles repositories.ProfileRepository) *ProfileService {
	return &ProfileService{profiles: profiles, now: time.Now}
}

// Get returns the user's profile, or a NotFound error before the first edit
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized()
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("Profile not found")
	}
	if err != nil {
		return nil, apperrors.Persistence("Failed to fetch profile", err)
	}
	return profile, nil
}

// Update creates the profile on first edit and overwrites it afterwards
func (s *ProfileService) Update(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.Profile, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized()
	}
	profile := &models.Profile{
		ID:        userID,
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.profiles.UpsertProfile(ctx, profile); err != nil {
		return nil, apperrors.Persistence("Failed to update profile", err)
	}
	return profile, nil
}
