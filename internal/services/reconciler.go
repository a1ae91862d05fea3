package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/repositories"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
)

// SaveOutcome tells a successful save apart from an idempotent no-op
type SaveOutcome string

const (
	OutcomeCreated      SaveOutcome = "created"
	OutcomeAlreadySaved SaveOutcome = "already_saved"
)

// SaveCommand asks to add a title to one of the user's stores. Payload is only
// used when the title has no catalog cache entry yet.
type SaveCommand struct {
	UserID  string
	Store   models.StoreKind
	Ref     models.ItemRef
	Payload *models.CatalogPayload
}

// SaveResult is the outcome of a save plus the message shown to the user
type SaveResult struct {
	Outcome      SaveOutcome `json:"outcome"`
	Message      string      `json:"message"`
	CacheCreated bool        `json:"-"`
}

// UnsaveCommand asks to remove a title from one of the user's stores
type UnsaveCommand struct {
	UserID string
	Store  models.StoreKind
	Ref    models.ItemRef
}

// UnsaveResult reports whether a row was actually removed. Removing a title
// that was never saved still succeeds.
type UnsaveResult struct {
	Removed bool   `json:"removed"`
	Message string `json:"message"`
}

// Reconciler performs idempotent save and unsave operations against the
// bookmark and favorite stores, creating catalog cache entries on first save.
// It does not announce changes itself; the storage layer does.
type Reconciler struct {
	log     *logger.Logger
	catalog repositories.CatalogRepository
	saved   repositories.SavedItemRepository
}

// NewReconciler creates a new Reconciler
func NewReconciler(catalog repositories.CatalogRepository, saved repositories.SavedItemRepository, log *logger.Logger) *Reconciler {
	return &Reconciler{
		log:     log.With("service", "Reconciler"),
		catalog: catalog,
		saved:   saved,
	}
}

// Save adds the title to the user's store. Saving a title that is already in
// the store returns OutcomeAlreadySaved and leaves the store unchanged.
func (r *Reconciler) Save(ctx context.Context, cmd SaveCommand) (SaveResult, error) {
	if err := checkTarget(cmd.UserID, cmd.Store, cmd.Ref); err != nil {
		return SaveResult{}, err
	}

	cacheCreated, err := r.ensureCatalogEntry(ctx, cmd.Ref, cmd.Payload)
	if err != nil {
		return SaveResult{}, apperrors.Persistence(fmt.Sprintf("Failed to save %s", cmd.Ref.Kind), err)
	}

	saved, err := r.saved.IsSaved(ctx, cmd.Store, cmd.UserID, cmd.Ref)
	if err != nil {
		return SaveResult{}, apperrors.Persistence(fmt.Sprintf("Failed to check %s", cmd.Store), err)
	}
	if saved {
		return alreadySaved(cmd, cacheCreated), nil
	}

	// The partial unique index decides concurrent saves of the same title;
	// the loser of the race sees ErrAlreadySaved.
	err = r.saved.Insert(ctx, cmd.Store, models.NewSavedItem(cmd.UserID, cmd.Ref))
	if errors.Is(err, repositories.ErrAlreadySaved) {
		return alreadySaved(cmd, cacheCreated), nil
	}
	if err != nil {
		r.log.Error("insert saved item failed", "store", cmd.Store, "user_id", cmd.UserID, "ref", cmd.Ref.String(), "error", err)
		return SaveResult{}, apperrors.Persistence(fmt.Sprintf("Failed to save %s", cmd.Ref.Kind), err)
	}

	r.log.Debug("saved item created", "store", cmd.Store, "user_id", cmd.UserID, "ref", cmd.Ref.String(), "cache_created", cacheCreated)
	return SaveResult{
		Outcome:      OutcomeCreated,
		Message:      createdMessage(cmd.Store, cmd.Ref.Kind),
		CacheCreated: cacheCreated,
	}, nil
}

// Unsave removes the title from the user's store. The catalog cache entry is
// left in place since other users may reference it.
func (r *Reconciler) Unsave(ctx context.Context, cmd UnsaveCommand) (UnsaveResult, error) {
	if err := checkTarget(cmd.UserID, cmd.Store, cmd.Ref); err != nil {
		return UnsaveResult{}, err
	}

	removed, err := r.saved.Delete(ctx, cmd.Store, cmd.UserID, cmd.Ref)
	if err != nil {
		r.log.Error("delete saved item failed", "store", cmd.Store, "user_id", cmd.UserID, "ref", cmd.Ref.String(), "error", err)
		return UnsaveResult{}, apperrors.Persistence(fmt.Sprintf("Failed to remove %s", cmd.Store.Noun()), err)
	}
	return UnsaveResult{
		Removed: removed > 0,
		Message: cmd.Store.Noun() + " removed successfully",
	}, nil
}

// ensureCatalogEntry writes the cache row when it is missing and a payload was
// supplied. Without a payload a missing row is left for the foreign key to
// reject.
func (r *Reconciler) ensureCatalogEntry(ctx context.Context, ref models.ItemRef, payload *models.CatalogPayload) (bool, error) {
	exists, err := r.catalog.Exists(ctx, ref)
	if err != nil || exists || payload == nil {
		return false, err
	}
	if ref.Kind == models.MediaKindShow {
		return r.catalog.EnsureShow(ctx, payload.ToShow(ref.ID))
	}
	return r.catalog.EnsureMovie(ctx, payload.ToMovie(ref.ID))
}

func checkTarget(userID string, store models.StoreKind, ref models.ItemRef) error {
	if userID == "" {
		return apperrors.Unauthorized()
	}
	if !store.Valid() {
		return apperrors.InvalidRequest(fmt.Sprintf("unknown store %q", store), nil)
	}
	if !ref.Valid() {
		return apperrors.InvalidRequest(models.ErrInvalidItemRef.Error(), models.ErrInvalidItemRef)
	}
	return nil
}

func alreadySaved(cmd SaveCommand, cacheCreated bool) SaveResult {
	return SaveResult{
		Outcome:      OutcomeAlreadySaved,
		Message:      alreadySavedMessage(cmd.Store, cmd.Ref.Kind),
		CacheCreated: cacheCreated,
	}
}

func createdMessage(store models.StoreKind, kind models.MediaKind) string {
	if store == models.StoreFavorites {
		return kind.Label() + " added to favorites successfully"
	}
	return kind.Label() + " bookmarked successfully"
}

func alreadySavedMessage(store models.StoreKind, kind models.MediaKind) string {
	if store == models.StoreFavorites {
		return kind.Label() + " already in favorites"
	}
	return kind.Label() + " already bookmarked"
}
