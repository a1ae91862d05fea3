package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"gorm.io/gorm"
)

// ErrAlreadySaved is returned by Insert when the unique index already holds a
// row for the same user and title.
var ErrAlreadySaved = errors.New("item already saved")

// SavedItemRepository defines the operations on the bookmarks and favorites tables
type SavedItemRepository interface {
	IsSaved(ctx context.Context, store models.StoreKind, userID string, ref models.ItemRef) (bool, error)
	Insert(ctx context.Context, store models.StoreKind, item *models.SavedItem) error
	Delete(ctx context.Context, store models.StoreKind, userID string, ref models.ItemRef) (int64, error)
	ListByUser(ctx context.Context, store models.StoreKind, userID string, kind models.MediaKind) ([]models.SavedItem, error)
}

// PostgresSavedItemRepository implements SavedItemRepository with GORM
type PostgresSavedItemRepository struct {
	db *gorm.DB
}

// NewPostgresSavedItemRepository creates a new PostgresSavedItemRepository
func NewPostgresSavedItemRepository(db *gorm.DB) *PostgresSavedItemRepository {
	return &PostgresSavedItemRepository{db: db}
}

func (r *PostgresSavedItemRepository) table(ctx context.Context, store models.StoreKind) *gorm.DB {
	return r.db.WithContext(ctx).Table(store.Table())
}

// IsSaved reports whether the user already has a row for the title
func (r *PostgresSavedItemRepository) IsSaved(ctx context.Context, store models.StoreKind, userID string, ref models.ItemRef) (bool, error) {
	var count int64
	err := r.table(ctx, store).
		Where("user_id = ? AND "+ref.Kind.Column()+" = ?", userID, ref.ID).
		Count(&count).Error
	return count > 0, err
}

// Insert creates the row. A unique violation maps to ErrAlreadySaved so two
// concurrent saves of the same title resolve to one row and one no-op.
func (r *PostgresSavedItemRepository) Insert(ctx context.Context, store models.StoreKind, item *models.SavedItem) error {
	err := r.table(ctx, store).Create(item).Error
	if err != nil && isDuplicateKey(err) {
		return ErrAlreadySaved
	}
	return err
}

// Delete removes the user's row for the title and returns the number of rows
// removed. Deleting a missing row is not an error.
//
// The destination value carries the user and title of the delete so statement
// callbacks can tell what changed; GORM only uses its (zero) primary key, so
// it does not alter the WHERE clause.
func (r *PostgresSavedItemRepository) Delete(ctx context.Context, store models.StoreKind, userID string, ref models.ItemRef) (int64, error) {
	res := r.table(ctx, store).
		Where("user_id = ? AND "+ref.Kind.Column()+" = ?", userID, ref.ID).
		Delete(models.NewSavedItem(userID, ref))
	return res.RowsAffected, res.Error
}

// ListByUser returns the user's rows referencing the given media kind, newest first.
func (r *PostgresSavedItemRepository) ListByUser(ctx context.Context, store models.StoreKind, userID string, kind models.MediaKind) ([]models.SavedItem, error) {
	query := r.table(ctx, store).Where("user_id = ?", userID)
	if kind == models.MediaKindShow {
		query = query.Where("show_id IS NOT NULL AND movie_id IS NULL")
	} else {
		query = query.Where("movie_id IS NOT NULL AND show_id IS NULL")
	}

	var items []models.SavedItem
	err := query.Order("created_at DESC").Order("id DESC").Find(&items).Error
	return items, err
}
