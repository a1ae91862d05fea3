package repositories_test

import (
	"context"
	"testing"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/repositories"
	"github.com/anonto42/reelshelf/backend/internal/repositories/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSavedItemRepository_InsertDuplicate(t *testing.T) {
	db := testutil.DB(t)
	repo := repositories.NewPostgresSavedItemRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u1", models.MovieRef(603))))
	err := repo.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u1", models.MovieRef(603)))
	assert.ErrorIs(t, err, repositories.ErrAlreadySaved)

	// Same title in the other store, for another user, or as a show is a different row.
	require.NoError(t, repo.Insert(ctx, models.StoreFavorites, models.NewSavedItem("u1", models.MovieRef(603))))
	require.NoError(t, repo.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u2", models.MovieRef(603))))
	require.NoError(t, repo.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u1", models.ShowRef(603))))

	assert.Equal(t, int64(3), testutil.CountRows(t, db, "bookmarks", ""))
	assert.Equal(t, int64(1), testutil.CountRows(t, db, "favorites", ""))
}

func TestSavedItemRepository_IsSavedAndDelete(t *testing.T) {
	db := testutil.DB(t)
	repo := repositories.NewPostgresSavedItemRepository(db)
	ctx := context.Background()
	ref := models.ShowRef(1399)

	saved, err := repo.IsSaved(ctx, models.StoreFavorites, "u1", ref)
	require.NoError(t, err)
	assert.False(t, saved)

	require.NoError(t, repo.Insert(ctx, models.StoreFavorites, models.NewSavedItem("u1", ref)))
	saved, err = repo.IsSaved(ctx, models.StoreFavorites, "u1", ref)
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = repo.IsSaved(ctx, models.StoreFavorites, "u1", models.MovieRef(1399))
	require.NoError(t, err)
	assert.False(t, saved, "movie and show ids live in separate columns")

	n, err := repo.Delete(ctx, models.StoreFavorites, "u1", ref)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.Delete(ctx, models.StoreFavorites, "u1", ref)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSavedItemRepository_ListByUserPartitions(t *testing.T) {
	db := testutil.DB(t)
	repo := repositories.NewPostgresSavedItemRepository(db)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, repo.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u1", models.MovieRef(id))))
	}
	for _, id := range []int64{10, 20} {
		require.NoError(t, repo.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u1", models.ShowRef(id))))
	}
	require.NoError(t, repo.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u2", models.MovieRef(4))))

	movies, err := repo.ListByUser(ctx, models.StoreBookmarks, "u1", models.MediaKindMovie)
	require.NoError(t, err)
	require.Len(t, movies, 3)
	for _, m := range movies {
		assert.NotNil(t, m.MovieID)
		assert.Nil(t, m.ShowID)
	}
	// newest first
	assert.Equal(t, int64(3), *movies[0].MovieID)

	shows, err := repo.ListByUser(ctx, models.StoreBookmarks, "u1", models.MediaKindShow)
	require.NoError(t, err)
	require.Len(t, shows, 2)
	for _, s := range shows {
		assert.NotNil(t, s.ShowID)
		assert.Nil(t, s.MovieID)
	}
}

func TestCatalogRepository_EnsureIsWriteOnce(t *testing.T) {
	db := testutil.DB(t)
	repo := repositories.NewPostgresCatalogRepository(db)
	ctx := context.Background()

	created, err := repo.EnsureMovie(ctx, &models.Movie{ID: 603, Title: "The Matrix"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.EnsureMovie(ctx, &models.Movie{ID: 603, Title: "Something Else"})
	require.NoError(t, err)
	assert.False(t, created)

	movies, err := repo.MoviesByIDs(ctx, []int64{603, 604})
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "The Matrix", movies[603].Title)

	exists, err := repo.Exists(ctx, models.MovieRef(603))
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.Exists(ctx, models.ShowRef(603))
	require.NoError(t, err)
	assert.False(t, exists)

	shows, err := repo.ShowsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, shows)
}

func TestProfileRepository_Upsert(t *testing.T) {
	db := testutil.DB(t)
	repo := repositories.NewPostgresProfileRepository(db)
	ctx := context.Background()

	_, err := repo.GetProfile(ctx, "u1")
	require.Error(t, err)

	require.NoError(t, repo.UpsertProfile(ctx, &models.Profile{ID: "u1", Name: "Neo"}))
	require.NoError(t, repo.UpsertProfile(ctx, &models.Profile{ID: "u1", Name: "Thomas", AvatarURL: "https://example.com/a.png"}))

	p, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Thomas", p.Name)
	assert.Equal(t, "https://example.com/a.png", p.AvatarURL)
	assert.Equal(t, int64(1), testutil.CountRows(t, db, "profiles", ""))
}
