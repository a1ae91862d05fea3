package syncclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/realtime"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchFunc func(ctx context.Context, userID string) (models.Library, error)

// fakeBackend fetches through a queue of per-call functions and subscribes
// through a real hub.
type fakeBackend struct {
	hub *realtime.Hub

	mu      sync.Mutex
	fetches map[string]int
	queue   []fetchFunc
	def     fetchFunc

	saveFn   func(ref models.ItemRef) (string, error)
	unsaveFn func(ref models.ItemRef) (string, error)

	subscribes    int
	subscribeErrs int // upcoming Subscribe calls that fail
	subs          []*realtime.Subscription
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		hub:     realtime.NewHub(logger.Nop()),
		fetches: make(map[string]int),
		def: func(context.Context, string) (models.Library, error) {
			return libraryOf(), nil
		},
	}
}

func (b *fakeBackend) Fetch(ctx context.Context, userID string, _ models.StoreKind) (models.Library, error) {
	b.mu.Lock()
	b.fetches[userID]++
	fn := b.def
	if len(b.queue) > 0 {
		fn, b.queue = b.queue[0], b.queue[1:]
	}
	b.mu.Unlock()
	return fn(ctx, userID)
}

func (b *fakeBackend) Save(_ context.Context, _ string, _ models.StoreKind, ref models.ItemRef, _ *models.CatalogPayload) (string, error) {
	return b.saveFn(ref)
}

func (b *fakeBackend) Unsave(_ context.Context, _ string, _ models.StoreKind, ref models.ItemRef) (string, error) {
	return b.unsaveFn(ref)
}

func (b *fakeBackend) Subscribe(_ context.Context, userID string, store models.StoreKind) (Subscription, error) {
	b.mu.Lock()
	b.subscribes++
	if b.subscribeErrs > 0 {
		b.subscribeErrs--
		b.mu.Unlock()
		return nil, errors.New("stream unavailable")
	}
	b.mu.Unlock()

	sub, err := b.hub.Subscribe(userID, store)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// dropStreams ends every open subscription the way a server hang-up does
func (b *fakeBackend) dropStreams() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (b *fakeBackend) subscribeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribes
}

func (b *fakeBackend) fetchCount(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches[userID]
}

func (b *fakeBackend) enqueue(fns ...fetchFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, fns...)
}

func (b *fakeBackend) notify(userID string) {
	b.hub.Deliver(realtime.NewEvent(userID, models.StoreBookmarks, realtime.OpInsert, models.MovieRef(1), "test"))
}

func libraryOf(movieIDs ...int64) models.Library {
	lib := models.Library{Movies: []models.SavedItemView{}, Shows: []models.SavedItemView{}}
	for _, id := range movieIDs {
		lib.Movies = append(lib.Movies, models.SavedItemView{MovieID: &id, MovieDetails: &models.Movie{ID: id}})
	}
	return lib
}

func newTestHook(t *testing.T, userID string, b *fakeBackend) *Hook {
	t.Helper()
	h := NewHook(userID, models.StoreBookmarks, b, Options{Debounce: 40 * time.Millisecond})
	t.Cleanup(h.Close)
	return h
}

func TestHook_UnauthenticatedNeverFetches(t *testing.T) {
	b := newFakeBackend()
	h := newTestHook(t, "", b)

	require.NoError(t, h.Start(context.Background()))
	assert.Equal(t, StateUnauthenticated, h.Snapshot().State)
	assert.Equal(t, 0, b.fetchCount(""))
	assert.Equal(t, 0, b.hub.SubscriberCount(""))

	res, err := h.Toggle(context.Background(), models.MovieRef(1), nil)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.False(t, res.Success)
}

func TestHook_InitialLoad(t *testing.T) {
	b := newFakeBackend()
	b.enqueue(func(context.Context, string) (models.Library, error) { return libraryOf(603), nil })
	var states []State
	var mu sync.Mutex
	h := NewHook("u1", models.StoreBookmarks, b, Options{OnChange: func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	}})
	defer h.Close()

	require.NoError(t, h.Start(context.Background()))
	snap := h.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.True(t, snap.HasData)
	assert.True(t, snap.Library.Contains(models.MovieRef(603)))
	assert.Equal(t, 1, b.hub.SubscriberCount("u1"))

	mu.Lock()
	assert.Equal(t, []State{StateLoading, StateReady}, states)
	mu.Unlock()
}

func TestHook_DebouncesBurstOfNotifications(t *testing.T) {
	b := newFakeBackend()
	h := newTestHook(t, "u1", b)
	require.NoError(t, h.Start(context.Background()))
	require.Equal(t, 1, b.fetchCount("u1"))

	for i := 0; i < 5; i++ {
		b.notify("u1")
	}

	assert.Eventually(t, func() bool { return b.fetchCount("u1") == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 2, b.fetchCount("u1"), "a burst causes a single refetch")
	assert.Equal(t, StateReady, h.Snapshot().State)
}

func TestHook_NotificationForOtherUserIsIgnored(t *testing.T) {
	b := newFakeBackend()
	h1 := newTestHook(t, "u1", b)
	h2 := newTestHook(t, "u2", b)
	require.NoError(t, h1.Start(context.Background()))
	require.NoError(t, h2.Start(context.Background()))

	b.notify("u1")

	assert.Eventually(t, func() bool { return b.fetchCount("u1") == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, b.fetchCount("u2"))
}

func TestHook_StaleResponseDoesNotOverwriteNewer(t *testing.T) {
	b := newFakeBackend()
	h := newTestHook(t, "u1", b)
	require.NoError(t, h.Start(context.Background()))

	release := make(chan struct{})
	started := make(chan struct{})
	b.enqueue(
		func(context.Context, string) (models.Library, error) {
			close(started)
			<-release
			return libraryOf(1), nil // old view
		},
		func(context.Context, string) (models.Library, error) {
			return libraryOf(1, 2), nil // newer view
		},
	)

	slowDone := make(chan error, 1)
	go func() { slowDone <- h.Refresh(context.Background()) }()
	<-started

	snap := h.Snapshot()
	assert.Equal(t, StateRefreshing, snap.State, "old data stays visible while refetching")
	assert.True(t, snap.HasData)

	require.NoError(t, h.Refresh(context.Background()))
	assert.Len(t, h.Snapshot().Library.Movies, 2)

	close(release)
	require.NoError(t, <-slowDone)

	snap = h.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Len(t, snap.Library.Movies, 2, "late response from an older fetch is discarded")
}

func TestHook_ErrorRetainsPreviousData(t *testing.T) {
	b := newFakeBackend()
	b.enqueue(
		func(context.Context, string) (models.Library, error) { return libraryOf(603), nil },
		func(context.Context, string) (models.Library, error) {
			return models.Library{}, apperrors.Persistence("Failed to fetch bookmarks", errors.New("connection refused"))
		},
	)
	h := newTestHook(t, "u1", b)
	require.NoError(t, h.Start(context.Background()))

	err := h.Refresh(context.Background())
	require.Error(t, err)

	snap := h.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Error(t, snap.Err)
	assert.True(t, snap.Library.Contains(models.MovieRef(603)))

	require.NoError(t, h.Refresh(context.Background()))
	snap = h.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.NoError(t, snap.Err)
}

func TestHook_InitialLoadErrorWithoutData(t *testing.T) {
	b := newFakeBackend()
	b.enqueue(func(context.Context, string) (models.Library, error) {
		return models.Library{}, errors.New("boom")
	})
	h := newTestHook(t, "u1", b)

	assert.Error(t, h.Start(context.Background()))
	snap := h.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.False(t, snap.HasData)
}

func TestHook_CloseReleasesSubscription(t *testing.T) {
	b := newFakeBackend()
	h := NewHook("u1", models.StoreBookmarks, b, Options{Debounce: 10 * time.Millisecond})
	require.NoError(t, h.Start(context.Background()))
	require.Equal(t, 1, b.hub.SubscriberCount("u1"))

	h.Close()
	h.Close()
	assert.Equal(t, 0, b.hub.SubscriberCount("u1"))

	b.notify("u1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, b.fetchCount("u1"))
	assert.ErrorIs(t, h.Refresh(context.Background()), ErrClosed)
	assert.ErrorIs(t, h.Start(context.Background()), ErrClosed)
}

func TestHook_ToggleSavesThenRemoves(t *testing.T) {
	b := newFakeBackend()
	var saved atomic.Bool
	b.def = func(context.Context, string) (models.Library, error) {
		if saved.Load() {
			return libraryOf(603), nil
		}
		return libraryOf(), nil
	}
	b.saveFn = func(models.ItemRef) (string, error) { saved.Store(true); return "Movie bookmarked successfully", nil }
	b.unsaveFn = func(models.ItemRef) (string, error) { saved.Store(false); return "Bookmark removed successfully", nil }

	h := newTestHook(t, "u1", b)
	require.NoError(t, h.Start(context.Background()))

	res, err := h.Toggle(context.Background(), models.MovieRef(603), &models.CatalogPayload{Title: "The Matrix"})
	require.NoError(t, err)
	assert.Equal(t, ToggleResult{Success: true, Saved: true, Message: "Movie bookmarked successfully"}, res)
	assert.True(t, h.Snapshot().Library.Contains(models.MovieRef(603)))

	res, err = h.Toggle(context.Background(), models.MovieRef(603), nil)
	require.NoError(t, err)
	assert.Equal(t, ToggleResult{Success: true, Saved: false, Message: "Bookmark removed successfully"}, res)
	assert.False(t, h.Snapshot().Library.Contains(models.MovieRef(603)))
}

func TestHook_ToggleInFlightIsRejected(t *testing.T) {
	b := newFakeBackend()
	release := make(chan struct{})
	entered := make(chan struct{})
	b.saveFn = func(models.ItemRef) (string, error) {
		close(entered)
		<-release
		return "Movie bookmarked successfully", nil
	}

	h := newTestHook(t, "u1", b)
	require.NoError(t, h.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := h.Toggle(context.Background(), models.MovieRef(603), nil)
		done <- err
	}()
	<-entered

	assert.True(t, h.Toggling(models.MovieRef(603)))
	_, err := h.Toggle(context.Background(), models.MovieRef(603), nil)
	assert.ErrorIs(t, err, ErrToggleInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, h.Toggling(models.MovieRef(603)))
}

func TestHook_ToggleFailureKeepsState(t *testing.T) {
	b := newFakeBackend()
	b.enqueue(func(context.Context, string) (models.Library, error) { return libraryOf(7), nil })
	b.saveFn = func(models.ItemRef) (string, error) {
		return "", apperrors.Persistence("Failed to save movie", errors.New("db down"))
	}

	h := newTestHook(t, "u1", b)
	require.NoError(t, h.Start(context.Background()))

	res, err := h.Toggle(context.Background(), models.MovieRef(603), nil)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to save movie", res.Message)

	snap := h.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.True(t, snap.Library.Contains(models.MovieRef(7)))
	assert.Equal(t, 1, b.fetchCount("u1"))
}

func TestHook_ResubscribesWhenStreamEnds(t *testing.T) {
	b := newFakeBackend()
	h := NewHook("u1", models.StoreBookmarks, b, Options{Debounce: 10 * time.Millisecond, ReconnectDelay: 10 * time.Millisecond})
	t.Cleanup(h.Close)
	require.NoError(t, h.Start(context.Background()))
	require.Equal(t, 1, b.fetchCount("u1"))

	b.dropStreams()
	assert.Eventually(t, func() bool {
		return b.subscribeCount() == 2 && b.hub.SubscriberCount("u1") == 1
	}, time.Second, 5*time.Millisecond)
	// writes made while the stream was down are picked up
	assert.Eventually(t, func() bool { return b.fetchCount("u1") == 2 }, time.Second, 5*time.Millisecond)

	b.notify("u1")
	assert.Eventually(t, func() bool { return b.fetchCount("u1") == 3 }, time.Second, 5*time.Millisecond)
}

func TestHook_RetriesFailedInitialSubscribe(t *testing.T) {
	b := newFakeBackend()
	b.subscribeErrs = 2
	h := NewHook("u1", models.StoreBookmarks, b, Options{Debounce: 10 * time.Millisecond, ReconnectDelay: 5 * time.Millisecond})
	t.Cleanup(h.Close)

	require.NoError(t, h.Start(context.Background()))
	assert.Equal(t, StateReady, h.Snapshot().State)

	assert.Eventually(t, func() bool {
		return b.subscribeCount() == 3 && b.hub.SubscriberCount("u1") == 1
	}, time.Second, 5*time.Millisecond)

	before := b.fetchCount("u1")
	b.notify("u1")
	assert.Eventually(t, func() bool { return b.fetchCount("u1") > before }, time.Second, 5*time.Millisecond)
}

func TestHook_CloseDuringBackoffReturns(t *testing.T) {
	b := newFakeBackend()
	h := NewHook("u1", models.StoreBookmarks, b, Options{ReconnectDelay: time.Hour})
	require.NoError(t, h.Start(context.Background()))
	b.dropStreams()

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on the reconnect wait")
	}
	assert.Equal(t, 1, b.subscribeCount())
}

func TestHook_CloseWaitsForDebouncedFetch(t *testing.T) {
	b := newFakeBackend()
	h := newTestHook(t, "u1", b)
	require.NoError(t, h.Start(context.Background()))

	entered := make(chan struct{})
	var finished atomic.Bool
	b.enqueue(func(ctx context.Context, _ string) (models.Library, error) {
		close(entered)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return models.Library{}, ctx.Err()
	})
	b.notify("u1")

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("debounced fetch never started")
	}
	h.Close()
	assert.True(t, finished.Load(), "Close returned while the fetch was still running")
}
