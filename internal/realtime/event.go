// Package realtime carries row-level change notifications for the saved-item
// stores to every live subscriber of the affected user.
//
// Events are signals, not deltas: a subscriber that receives one should
// re-fetch the user's saved items. Delivery is best-effort; a dropped event is
// healed by the next full fetch.
package realtime

import (
	"context"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/google/uuid"
)

// Op is the kind of row mutation
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event reports that a user's row in one saved-item store changed.
type Event struct {
	ID     string           `json:"id"`
	UserID string           `json:"user_id"`
	Store  models.StoreKind `json:"store"`
	Op     Op               `json:"op"`
	Ref    models.ItemRef   `json:"ref"`
	At     time.Time        `json:"at"`
	Source string           `json:"source,omitempty"`
}

// NewEvent stamps a change with a fresh id and the current time
func NewEvent(userID string, store models.StoreKind, op Op, ref models.ItemRef, source string) Event {
	return Event{
		ID:     uuid.NewString(),
		UserID: userID,
		Store:  store,
		Op:     op,
		Ref:    ref,
		At:     time.Now().UTC(),
		Source: source,
	}
}

// Publisher accepts change events for delivery
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber hands out per-user subscriptions
type Subscriber interface {
	Subscribe(userID string, stores ...models.StoreKind) (*Subscription, error)
}
