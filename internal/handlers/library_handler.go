package handlers

import (
	"net/http"

	"github.com/anonto42/reelshelf/backend/internal/middleware"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// LibraryHandler answers per-title questions about the caller's library
type LibraryHandler struct {
	library *services.LibraryService
}

// NewLibraryHandler creates a new LibraryHandler
func NewLibraryHandler(library *services.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// RegisterLibraryRoutes registers library routes
func (h *LibraryHandler) RegisterLibraryRoutes(g *echo.Group) {
	g.GET("/library/status", h.Status)
}

// Status reports whether a title is bookmarked and favorited
func (h *LibraryHandler) Status(c echo.Context) error {
	ref, err := models.ParseItemRef(c.QueryParam("movieId"), c.QueryParam("showId"))
	if err != nil {
		return refError(err)
	}
	status, err := h.library.Status(c.Request().Context(), middleware.UserIDFrom(c), ref)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}
