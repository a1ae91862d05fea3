package services_test

import (
	"context"
	"testing"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/repositories"
	"github.com/anonto42/reelshelf/backend/internal/repositories/testutil"
	"github.com/anonto42/reelshelf/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibrary_MatrixScenario(t *testing.T) {
	db, rec, lib := newServices(t)
	ctx := context.Background()

	_, err := rec.Save(ctx, services.SaveCommand{UserID: "u1", Store: models.StoreBookmarks, Ref: models.MovieRef(603), Payload: matrixPayload()})
	require.NoError(t, err)

	assert.Equal(t, int64(1), testutil.CountRows(t, db, "movies", "id = ?", 603))
	assert.Equal(t, int64(1), testutil.CountRows(t, db, "bookmarks", "user_id = ? AND movie_id = ? AND show_id IS NULL", "u1", 603))

	got, err := lib.List(ctx, "u1", models.StoreBookmarks)
	require.NoError(t, err)
	require.Len(t, got.Movies, 1)
	assert.Empty(t, got.Shows)
	require.NotNil(t, got.Movies[0].MovieDetails)
	assert.Equal(t, "The Matrix", got.Movies[0].MovieDetails.Title)
	assert.Equal(t, "movie", got.Movies[0].MovieDetails.MediaType)
}

func TestLibrary_PartitionsMoviesAndShows(t *testing.T) {
	db, rec, lib := newServices(t)
	ctx := context.Background()

	for _, id := range []int64{11, 12, 13} {
		testutil.SeedMovie(t, db, id, "movie")
		_, err := rec.Save(ctx, services.SaveCommand{UserID: "u1", Store: models.StoreFavorites, Ref: models.MovieRef(id)})
		require.NoError(t, err)
	}
	for _, id := range []int64{21, 22} {
		testutil.SeedShow(t, db, id, "show")
		_, err := rec.Save(ctx, services.SaveCommand{UserID: "u1", Store: models.StoreFavorites, Ref: models.ShowRef(id)})
		require.NoError(t, err)
	}
	// noise from another user and the other store
	_, err := rec.Save(ctx, services.SaveCommand{UserID: "u2", Store: models.StoreFavorites, Ref: models.MovieRef(11)})
	require.NoError(t, err)
	_, err = rec.Save(ctx, services.SaveCommand{UserID: "u1", Store: models.StoreBookmarks, Ref: models.ShowRef(21)})
	require.NoError(t, err)

	got, err := lib.List(ctx, "u1", models.StoreFavorites)
	require.NoError(t, err)
	require.Len(t, got.Movies, 3)
	require.Len(t, got.Shows, 2)
	for _, v := range got.Movies {
		assert.Nil(t, v.ShowID)
		assert.Nil(t, v.ShowDetails)
		assert.NotNil(t, v.MovieDetails)
	}
	for _, v := range got.Shows {
		assert.Nil(t, v.MovieID)
		assert.Nil(t, v.MovieDetails)
		assert.NotNil(t, v.ShowDetails)
	}
	assert.Len(t, got.Items(), 5)
}

func TestLibrary_SkipsRowsWithoutCacheEntry(t *testing.T) {
	db, _, lib := newServices(t)
	ctx := context.Background()
	saved := repositories.NewPostgresSavedItemRepository(db)

	testutil.SeedMovie(t, db, 1, "Kept")
	require.NoError(t, saved.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u1", models.MovieRef(1))))
	// SQLite has no foreign keys here, which stands in for a cache row deleted concurrently.
	require.NoError(t, saved.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u1", models.MovieRef(2))))
	require.NoError(t, saved.Insert(ctx, models.StoreBookmarks, models.NewSavedItem("u1", models.ShowRef(3))))

	got, err := lib.List(ctx, "u1", models.StoreBookmarks)
	require.NoError(t, err)
	require.Len(t, got.Movies, 1)
	assert.Equal(t, "Kept", got.Movies[0].MovieDetails.Title)
	assert.Empty(t, got.Shows)
}

func TestLibrary_EmptyAndUnauthorized(t *testing.T) {
	_, _, lib := newServices(t)
	ctx := context.Background()

	got, err := lib.List(ctx, "nobody", models.StoreBookmarks)
	require.NoError(t, err)
	assert.NotNil(t, got.Movies)
	assert.NotNil(t, got.Shows)
	assert.Empty(t, got.Items())

	_, err = lib.List(ctx, "", models.StoreBookmarks)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestLibrary_Status(t *testing.T) {
	_, rec, lib := newServices(t)
	ctx := context.Background()
	ref := models.MovieRef(603)

	_, err := rec.Save(ctx, services.SaveCommand{UserID: "u1", Store: models.StoreFavorites, Ref: ref, Payload: matrixPayload()})
	require.NoError(t, err)

	status, err := lib.Status(ctx, "u1", ref)
	require.NoError(t, err)
	assert.Equal(t, models.LibraryStatus{Bookmarked: false, Favorited: true}, status)

	status, err = lib.Status(ctx, "u2", ref)
	require.NoError(t, err)
	assert.Equal(t, models.LibraryStatus{}, status)

	_, err = lib.Status(ctx, "u1", models.ItemRef{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}
