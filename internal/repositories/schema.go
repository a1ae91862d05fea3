package repositories

import (
	"errors"
	"fmt"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Migrate creates the catalog cache, profile and saved-item tables. Both
// saved-item tables share one row shape and get their own partial unique
// indexes: one row per (user, movie) and one row per (user, show).
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Movie{}, &models.Show{}, &models.Profile{}); err != nil {
		return fmt.Errorf("migrate catalog tables: %w", err)
	}

	for _, store := range models.StoreKinds {
		table := store.Table()
		if err := db.Table(table).AutoMigrate(&models.SavedItem{}); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
		stmts := []string{
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_user_id ON %[1]s (user_id)", table),
			fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_user_movie ON %[1]s (user_id, movie_id) WHERE movie_id IS NOT NULL", table),
			fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_user_show ON %[1]s (user_id, show_id) WHERE show_id IS NOT NULL", table),
		}
		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index %s: %w", table, err)
			}
		}
	}
	return nil
}

// isDuplicateKey reports whether err is a unique-constraint violation. GORM
// translates driver errors when TranslateError is on; the pgconn check covers
// connections opened without it.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
