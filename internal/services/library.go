package services

import (
	"context"
	"fmt"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/repositories"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
)

// LibraryService answers read queries over the saved-item stores. Every call
// goes to the database; nothing is cached in memory.
type LibraryService struct {
	log     *logger.Logger
	catalog repositories.CatalogRepository
	saved   repositories.SavedItemRepository
}

// NewLibraryService creates a new LibraryService
func NewLibraryService(catalog repositories.CatalogRepository, saved repositories.SavedItemRepository, log *logger.Logger) *LibraryService {
	return &LibraryService{
		log:     log.With("service", "LibraryService"),
		catalog: catalog,
		saved:   saved,
	}
}

// List returns the user's saved items of one store joined with their catalog
// cache entries, partitioned by media kind and newest first. A saved row whose
// cache entry is gone is left out instead of failing the whole listing.
func (s *LibraryService) List(ctx context.Context, userID string, store models.StoreKind) (models.Library, error) {
	if userID == "" {
		return models.Library{}, apperrors.Unauthorized()
	}
	if !store.Valid() {
		return models.Library{}, apperrors.InvalidRequest(fmt.Sprintf("unknown store %q", store), nil)
	}

	movieRows, err := s.saved.ListByUser(ctx, store, userID, models.MediaKindMovie)
	if err != nil {
		return models.Library{}, apperrors.Persistence("Failed to fetch "+string(store), err)
	}
	showRows, err := s.saved.ListByUser(ctx, store, userID, models.MediaKindShow)
	if err != nil {
		return models.Library{}, apperrors.Persistence("Failed to fetch "+string(store), err)
	}

	movies, err := s.catalog.MoviesByIDs(ctx, idsOf(movieRows, models.MediaKindMovie))
	if err != nil {
		return models.Library{}, apperrors.Persistence("Failed to fetch "+string(store), err)
	}
	shows, err := s.catalog.ShowsByIDs(ctx, idsOf(showRows, models.MediaKindShow))
	if err != nil {
		return models.Library{}, apperrors.Persistence("Failed to fetch "+string(store), err)
	}

	lib := models.Library{
		Movies: make([]models.SavedItemView, 0, len(movieRows)),
		Shows:  make([]models.SavedItemView, 0, len(showRows)),
	}
	for _, row := range movieRows {
		movie, ok := movies[*row.MovieID]
		if !ok {
			s.log.Debug("skipping saved movie without cache entry", "store", store, "user_id", userID, "movie_id", *row.MovieID)
			continue
		}
		view := viewOf(row)
		view.MovieDetails = movie
		lib.Movies = append(lib.Movies, view)
	}
	for _, row := range showRows {
		show, ok := shows[*row.ShowID]
		if !ok {
			s.log.Debug("skipping saved show without cache entry", "store", store, "user_id", userID, "show_id", *row.ShowID)
			continue
		}
		view := viewOf(row)
		view.ShowDetails = show
		lib.Shows = append(lib.Shows, view)
	}
	return lib, nil
}

// Status reports whether one title is in the user's bookmarks and favorites
func (s *LibraryService) Status(ctx context.Context, userID string, ref models.ItemRef) (models.LibraryStatus, error) {
	if userID == "" {
		return models.LibraryStatus{}, apperrors.Unauthorized()
	}
	if !ref.Valid() {
		return models.LibraryStatus{}, apperrors.InvalidRequest(models.ErrInvalidItemRef.Error(), models.ErrInvalidItemRef)
	}

	var status models.LibraryStatus
	for _, store := range models.StoreKinds {
		saved, err := s.saved.IsSaved(ctx, store, userID, ref)
		if err != nil {
			return models.LibraryStatus{}, apperrors.Persistence("Failed to check "+string(store), err)
		}
		if store == models.StoreFavorites {
			status.Favorited = saved
		} else {
			status.Bookmarked = saved
		}
	}
	return status, nil
}

func idsOf(rows []models.SavedItem, kind models.MediaKind) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if ref := row.Ref(); ref.Kind == kind {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

func viewOf(row models.SavedItem) models.SavedItemView {
	return models.SavedItemView{
		ID:        row.ID,
		UserID:    row.UserID,
		MovieID:   row.MovieID,
		ShowID:    row.ShowID,
		CreatedAt: row.CreatedAt,
	}
}
