package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/jackc/pgx/v5"
)

// NotifyChannel is the PostgreSQL channel the saved-item triggers notify on.
const NotifyChannel = "saved_item_changes"

const (
	listenerMinBackoff = time.Second
	listenerMaxBackoff = 30 * time.Second
)

// PGListener receives the trigger notifications emitted for every insert,
// update and delete on the saved-item tables, including writes made outside
// this service, and delivers them to the hub.
type PGListener struct {
	connStr string
	pub     Publisher
	log     *logger.Logger
}

// NewPGListener creates a listener; Run starts it
func NewPGListener(connStr string, pub Publisher, log *logger.Logger) *PGListener {
	return &PGListener{connStr: connStr, pub: pub, log: log.With("component", "pg_listener")}
}

// Run listens until ctx is cancelled, reconnecting with exponential backoff
// after connection failures.
func (l *PGListener) Run(ctx context.Context) error {
	backoff := listenerMinBackoff
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("notification listener disconnected", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > listenerMaxBackoff {
			backoff = listenerMaxBackoff
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connStr)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.log.Info("listening for saved-item changes", "channel", NotifyChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := decodeNotification(n.Payload)
		if err != nil {
			l.log.Warn("bad change notification", "error", err, "payload", n.Payload)
			continue
		}
		if err := l.pub.Publish(ctx, ev); err != nil {
			l.log.Warn("publish change event", "error", err)
		}
	}
}

// notification is the JSON object built by notify_saved_item_change()
type notification struct {
	Table   string `json:"table"`
	Op      string `json:"op"`
	UserID  string `json:"user_id"`
	MovieID *int64 `json:"movie_id"`
	ShowID  *int64 `json:"show_id"`
}

func decodeNotification(payload string) (Event, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Event{}, err
	}
	store := models.StoreKind(n.Table)
	if !store.Valid() {
		return Event{}, fmt.Errorf("unknown table %q", n.Table)
	}
	if n.UserID == "" {
		return Event{}, fmt.Errorf("missing user_id")
	}
	op := Op(n.Op)
	switch op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Event{}, fmt.Errorf("unknown op %q", n.Op)
	}

	item := models.SavedItem{UserID: n.UserID, MovieID: n.MovieID, ShowID: n.ShowID}
	return NewEvent(n.UserID, store, op, item.Ref(), "postgres"), nil
}
