package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/middleware"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// SavedItemHandler serves one saved-item store: bookmarks or favorites
type SavedItemHandler struct {
	store      models.StoreKind
	reconciler *services.Reconciler
	library    *services.LibraryService
}

// NewSavedItemHandler creates a handler bound to a store
func NewSavedItemHandler(store models.StoreKind, reconciler *services.Reconciler, library *services.LibraryService) *SavedItemHandler {
	return &SavedItemHandler{
		store:      store,
		reconciler: reconciler,
		library:    library,
	}
}

// RegisterSavedItemRoutes registers GET, POST and DELETE under /<store>
func (h *SavedItemHandler) RegisterSavedItemRoutes(g *echo.Group) {
	path := "/" + string(h.store)
	g.GET(path, h.List)
	g.POST(path, h.Save)
	g.DELETE(path, h.Unsave)
}

// List returns the user's saved items, movies first
func (h *SavedItemHandler) List(c echo.Context) error {
	lib, err := h.library.List(c.Request().Context(), middleware.UserIDFrom(c), h.store)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{string(h.store): lib.Items()})
}

// Save adds a movie or show to the store
func (h *SavedItemHandler) Save(c echo.Context) error {
	userID := middleware.UserIDFrom(c)
	if userID == "" {
		return apperrors.Unauthorized()
	}

	var req models.SaveItemRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidRequest("Invalid request", err)
	}
	ref, err := req.Ref()
	if err != nil {
		return refError(err)
	}
	payload := req.Payload(ref.Kind)
	if payload != nil {
		if err := c.Validate(payload); err != nil {
			return err
		}
	}

	res, err := h.reconciler.Save(c.Request().Context(), services.SaveCommand{
		UserID:  userID,
		Store:   h.store,
		Ref:     ref,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": res.Message, "outcome": res.Outcome})
}

// Unsave removes a movie or show from the store. Removing a title that is not
// saved still succeeds.
func (h *SavedItemHandler) Unsave(c echo.Context) error {
	userID := middleware.UserIDFrom(c)
	if userID == "" {
		return apperrors.Unauthorized()
	}

	ref, err := models.ParseItemRef(c.QueryParam("movieId"), c.QueryParam("showId"))
	if err != nil {
		return refError(err)
	}

	res, err := h.reconciler.Unsave(c.Request().Context(), services.UnsaveCommand{
		UserID: userID,
		Store:  h.store,
		Ref:    ref,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": res.Message})
}

func refError(err error) error {
	if errors.Is(err, models.ErrInvalidItemRef) {
		return apperrors.InvalidRequest(models.ErrInvalidItemRef.Error(), err)
	}
	return apperrors.InvalidRequest("Invalid request", err)
}
