package handlers

import (
	"net/http"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/middleware"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// UserHandler handles HTTP requests for the caller's own profile
type UserHandler struct {
	profiles *services.ProfileService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(profiles *services.ProfileService) *UserHandler {
	return &UserHandler{profiles: profiles}
}

// RegisterProfileRoutes registers user profile-related routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/profile", h.GetProfile)    // Get own profile
	g.PUT("/profile", h.UpdateProfile) // Create or update own profile
}

// GetProfile retrieves the authenticated user's profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	profile, err := h.profiles.Get(c.Request().Context(), middleware.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"profile": profile})
}

// UpdateProfile writes the authenticated user's profile. The row id always
// comes from the verified token, never from the body.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	userID := middleware.UserIDFrom(c)
	if userID == "" {
		return apperrors.Unauthorized()
	}

	var req models.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidRequest("Invalid request", err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	profile, err := h.profiles.Update(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Profile updated successfully",
		"profile": profile,
	})
}
