// Package testutil opens throwaway databases for tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// DB returns a migrated in-memory SQLite database private to the test. One
// connection serialises statements, which keeps SQLite from reporting locked
// tables when tests write from several goroutines.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := repositories.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedMovie inserts a movie cache row
func SeedMovie(tb testing.TB, db *gorm.DB, id int64, title string) *models.Movie {
	tb.Helper()
	m := &models.Movie{ID: id, Title: title, MediaType: "movie"}
	if err := db.WithContext(context.Background()).Create(m).Error; err != nil {
		tb.Fatalf("seed movie: %v", err)
	}
	return m
}

// SeedShow inserts a show cache row
func SeedShow(tb testing.TB, db *gorm.DB, id int64, name string) *models.Show {
	tb.Helper()
	s := &models.Show{ID: id, Name: name, MediaType: "tv"}
	if err := db.WithContext(context.Background()).Create(s).Error; err != nil {
		tb.Fatalf("seed show: %v", err)
	}
	return s
}

// CountRows counts the rows of a table matching the optional condition
func CountRows(tb testing.TB, db *gorm.DB, table string, query string, args ...interface{}) int64 {
	tb.Helper()
	var n int64
	q := db.Table(table)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		tb.Fatalf("count %s: %v", table, err)
	}
	return n
}
