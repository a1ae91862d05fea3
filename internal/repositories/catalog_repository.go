package repositories

import (
	"context"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository manages the write-once movie and show cache tables
type CatalogRepository interface {
	Exists(ctx context.Context, ref models.ItemRef) (bool, error)
	EnsureMovie(ctx context.Context, movie *models.Movie) (bool, error)
	EnsureShow(ctx context.Context, show *models.Show) (bool, error)
	MoviesByIDs(ctx context.Context, ids []int64) (map[int64]*models.Movie, error)
	ShowsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Show, error)
}

// PostgresCatalogRepository implements CatalogRepository with GORM
type PostgresCatalogRepository struct {
	db *gorm.DB
}

// NewPostgresCatalogRepository creates a new PostgresCatalogRepository
func NewPostgresCatalogRepository(db *gorm.DB) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{db: db}
}

// Exists reports whether the title already has a cache entry
func (r *PostgresCatalogRepository) Exists(ctx context.Context, ref models.ItemRef) (bool, error) {
	var model interface{} = &models.Movie{}
	if ref.Kind == models.MediaKindShow {
		model = &models.Show{}
	}
	var count int64
	err := r.db.WithContext(ctx).Model(model).Where("id = ?", ref.ID).Count(&count).Error
	return count > 0, err
}

// EnsureMovie inserts the movie unless a row with its id exists. It reports
// whether this call created the row; losing an insert race is not an error.
func (r *PostgresCatalogRepository) EnsureMovie(ctx context.Context, movie *models.Movie) (bool, error) {
	return r.insertIfAbsent(ctx, movie)
}

// EnsureShow is EnsureMovie for shows
func (r *PostgresCatalogRepository) EnsureShow(ctx context.Context, show *models.Show) (bool, error) {
	return r.insertIfAbsent(ctx, show)
}

func (r *PostgresCatalogRepository) insertIfAbsent(ctx context.Context, row interface{}) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MoviesByIDs loads the cached movies with the given ids, keyed by id
func (r *PostgresCatalogRepository) MoviesByIDs(ctx context.Context, ids []int64) (map[int64]*models.Movie, error) {
	result := make(map[int64]*models.Movie, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var movies []models.Movie
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&movies).Error; err != nil {
		return nil, err
	}
	for i := range movies {
		result[movies[i].ID] = &movies[i]
	}
	return result, nil
}

// ShowsByIDs loads the cached shows with the given ids, keyed by id
func (r *PostgresCatalogRepository) ShowsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Show, error) {
	result := make(map[int64]*models.Show, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var shows []models.Show
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&shows).Error; err != nil {
		return nil, err
	}
	for i := range shows {
		result[shows[i].ID] = &shows[i]
	}
	return result, nil
}
