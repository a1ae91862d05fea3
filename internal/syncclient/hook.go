// Package syncclient keeps a client's view of one saved-item store current.
// A Hook loads the user's library, toggles titles through the reconciler and
// re-fetches whenever the change stream reports a write for that user.
package syncclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/realtime"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
)

// State is the lifecycle position of a Hook
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateLoading         State = "loading"
	StateReady           State = "ready"
	StateRefreshing      State = "refreshing"
	StateError           State = "error"
)

const (
	DefaultDebounce       = 250 * time.Millisecond
	DefaultReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

var (
	// ErrClosed is returned by operations on a closed Hook.
	ErrClosed = errors.New("sync hook closed")
	// ErrToggleInFlight is returned when the same title is already being toggled.
	ErrToggleInFlight = errors.New("toggle already in progress")
)

// Fetcher loads the user's library of one store
type Fetcher interface {
	Fetch(ctx context.Context, userID string, store models.StoreKind) (models.Library, error)
}

// Mutator performs save and unsave and returns the user-facing message
type Mutator interface {
	Save(ctx context.Context, userID string, store models.StoreKind, ref models.ItemRef, payload *models.CatalogPayload) (string, error)
	Unsave(ctx context.Context, userID string, store models.StoreKind, ref models.ItemRef) (string, error)
}

// Subscription is a live change stream. C is closed once the stream ends.
type Subscription interface {
	C() <-chan realtime.Event
	Close()
}

// Subscriber opens change streams scoped to one user and store
type Subscriber interface {
	Subscribe(ctx context.Context, userID string, store models.StoreKind) (Subscription, error)
}

// Backend bundles the three collaborators of a Hook
type Backend interface {
	Fetcher
	Mutator
	Subscriber
}

// Snapshot is a consistent copy of a Hook's state
type Snapshot struct {
	State     State
	Library   models.Library
	HasData   bool
	Err       error
	UpdatedAt time.Time
}

// ToggleResult is the toast-style outcome of a Toggle
type ToggleResult struct {
	Success bool
	Saved   bool // whether the title is in the store after the toggle
	Message string
}

// Options tunes a Hook. Zero values select the defaults.
type Options struct {
	Debounce time.Duration
	// ReconnectDelay is the first wait before resubscribing to an ended
	// stream. It doubles per failed attempt up to 30s.
	ReconnectDelay time.Duration
	// OnChange is called after every state change, outside the hook's lock.
	OnChange func(Snapshot)
	Logger   *logger.Logger
}

// Hook is the client-side view of one user's store. Create it with NewHook,
// call Start once, and Close it when the view goes away.
type Hook struct {
	userID   string
	store    models.StoreKind
	backend  Backend
	debounce  time.Duration
	reconnect time.Duration
	onChange  func(Snapshot)
	log      *logger.Logger

	mu        sync.Mutex
	state     State
	lib       models.Library
	hasData   bool
	lastErr   error
	updatedAt time.Time
	gen       uint64 // last fetch started
	applied   uint64 // last fetch whose result was applied
	toggling  map[models.ItemRef]bool
	timer     *time.Timer
	sub       Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	closed    bool

	wg sync.WaitGroup
}

// NewHook creates a hook for userID; an empty userID yields a hook that stays
// Unauthenticated and never touches the backend.
func NewHook(userID string, store models.StoreKind, backend Backend, opts Options) *Hook {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Hook{
		userID:   userID,
		store:    store,
		backend:  backend,
		debounce:  opts.Debounce,
		reconnect: opts.ReconnectDelay,
		onChange:  opts.OnChange,
		log:       log.With("component", "sync_hook", "user_id", userID, "store", store),
		state:     StateUnauthenticated,
		toggling:  make(map[models.ItemRef]bool),
	}
}

// Start subscribes to the change stream and performs the initial load. The
// returned error is the load error, if any; the hook is usable either way.
// A stream that fails to open or later ends is retried in the background.
func (h *Hook) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	if h.userID == "" {
		h.mu.Unlock()
		return nil
	}
	h.ctx, h.cancel = context.WithCancel(context.WithoutCancel(ctx))
	// counted before unlocking so a racing Close waits for the watcher
	h.wg.Add(1)
	h.mu.Unlock()

	sub, err := h.backend.Subscribe(h.ctx, h.userID, h.store)
	if err != nil {
		// Until the retry succeeds data refreshes only on toggles.
		h.log.Warn("change subscription failed", "error", err)
		sub = nil
	} else if !h.setSub(sub) {
		sub.Close()
		h.wg.Done()
		return ErrClosed
	}
	go h.watch(sub)

	return h.Refresh(ctx)
}

// Snapshot returns the current state
func (h *Hook) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Refresh re-fetches the library. Existing data stays visible while the fetch
// runs and is kept if it fails. A response older than one already applied is
// discarded.
func (h *Hook) Refresh(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.userID == "" {
		h.mu.Unlock()
		return apperrors.Unauthorized()
	}
	h.gen++
	gen := h.gen
	if h.hasData {
		h.state = StateRefreshing
	} else {
		h.state = StateLoading
	}
	snap := h.snapshotLocked()
	h.mu.Unlock()
	h.notify(snap)

	lib, err := h.backend.Fetch(ctx, h.userID, h.store)

	h.mu.Lock()
	if h.closed || gen <= h.applied {
		h.mu.Unlock()
		return err
	}
	h.applied = gen
	if err != nil {
		h.lastErr = err
		h.state = StateError
		h.log.Warn("library fetch failed", "error", err)
	} else {
		h.lib = lib
		h.hasData = true
		h.lastErr = nil
		h.updatedAt = time.Now()
		if gen == h.gen {
			h.state = StateReady
		}
	}
	snap = h.snapshotLocked()
	h.mu.Unlock()
	h.notify(snap)
	return err
}

// Toggle saves the title when it is absent from the library and removes it
// otherwise, then re-fetches. A second Toggle of the same title while the
// first is in flight fails with ErrToggleInFlight.
func (h *Hook) Toggle(ctx context.Context, ref models.ItemRef, payload *models.CatalogPayload) (ToggleResult, error) {
	if h.userID == "" {
		return ToggleResult{Message: "Please sign in to save titles"}, apperrors.Unauthorized()
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ToggleResult{}, ErrClosed
	}
	if h.toggling[ref] {
		h.mu.Unlock()
		return ToggleResult{}, ErrToggleInFlight
	}
	h.toggling[ref] = true
	saved := h.lib.Contains(ref)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.toggling, ref)
		h.mu.Unlock()
	}()

	var (
		msg string
		err error
	)
	if saved {
		msg, err = h.backend.Unsave(ctx, h.userID, h.store, ref)
	} else {
		msg, err = h.backend.Save(ctx, h.userID, h.store, ref, payload)
	}
	if err != nil {
		_, errMsg := apperrors.StatusAndMessage(err)
		return ToggleResult{Saved: saved, Message: errMsg}, err
	}

	if rerr := h.Refresh(ctx); rerr != nil && !errors.Is(rerr, ErrClosed) {
		h.log.Debug("refresh after toggle failed", "error", rerr)
	}
	return ToggleResult{Success: true, Saved: !saved, Message: msg}, nil
}

// Toggling reports whether a toggle of ref is in flight, for disabling the
// control that triggers it.
func (h *Hook) Toggling(ref models.ItemRef) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.toggling[ref]
}

// Close releases the change subscription and stops pending refreshes. Safe to
// call more than once.
func (h *Hook) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if h.cancel != nil {
		h.cancel()
	}
	sub := h.sub
	h.sub = nil
	h.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	h.wg.Wait()
}

// watch follows the change stream until the hook closes. When the stream ends
// it resubscribes with backoff, then refetches to pick up writes made while
// it was down. sub is nil when the first subscribe failed.
func (h *Hook) watch(sub Subscription) {
	defer h.wg.Done()
	delay := h.reconnect
	for {
		if sub != nil {
			h.follow(sub)
			sub.Close()
		}
		if h.ctx.Err() != nil {
			return
		}

		t := time.NewTimer(delay)
		select {
		case <-h.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		next, err := h.backend.Subscribe(h.ctx, h.userID, h.store)
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}
			h.log.Warn("change resubscribe failed", "error", err, "retry_in", delay)
			sub = nil
			delay = min(delay*2, maxReconnectDelay)
			continue
		}
		if !h.setSub(next) {
			next.Close()
			return
		}
		h.log.Info("change stream reconnected")
		sub, delay = next, h.reconnect
		_ = h.Refresh(h.ctx)
	}
}

// follow turns the stream's events into debounced refreshes until the
// stream ends or the hook closes.
func (h *Hook) follow(sub Subscription) {
	for {
		select {
		case <-h.ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if ev.UserID != h.userID || (ev.Store != "" && ev.Store != h.store) {
				continue
			}
			h.scheduleRefresh()
		}
	}
}

// setSub records the live subscription so Close can end it. It reports false
// once the hook is closed.
func (h *Hook) setSub(sub Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sub = sub
	return true
}

// scheduleRefresh coalesces a burst of notifications into one fetch issued
// once the stream has been quiet for the debounce window.
func (h *Hook) scheduleRefresh() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.debounce, func() {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return
		}
		h.timer = nil
		ctx := h.ctx
		// Close waits for this fetch like it does for the watcher.
		h.wg.Add(1)
		h.mu.Unlock()
		defer h.wg.Done()
		_ = h.Refresh(ctx)
	})
}

func (h *Hook) snapshotLocked() Snapshot {
	lib := models.Library{
		Movies: append([]models.SavedItemView(nil), h.lib.Movies...),
		Shows:  append([]models.SavedItemView(nil), h.lib.Shows...),
	}
	return Snapshot{
		State:     h.state,
		Library:   lib,
		HasData:   h.hasData,
		Err:       h.lastErr,
		UpdatedAt: h.updatedAt,
	}
}

func (h *Hook) notify(s Snapshot) {
	if h.onChange != nil {
		h.onChange(s)
	}
}
