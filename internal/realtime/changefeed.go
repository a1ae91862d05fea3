package realtime

import (
	"context"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"gorm.io/gorm"
)

const publishTimeout = 2 * time.Second

// ChangeFeed is a GORM plugin that turns successful writes to the saved-item
// tables into change events. Every code path that writes through the shared
// *gorm.DB is covered, whichever service issued the statement.
type ChangeFeed struct {
	pub Publisher
	log *logger.Logger
}

// NewChangeFeed creates the plugin; register it with db.Use
func NewChangeFeed(pub Publisher, log *logger.Logger) *ChangeFeed {
	return &ChangeFeed{pub: pub, log: log.With("component", "changefeed")}
}

// Name implements gorm.Plugin
func (f *ChangeFeed) Name() string { return "reelshelf:changefeed" }

// Initialize implements gorm.Plugin
func (f *ChangeFeed) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().After("gorm:create").Register("reelshelf:changefeed_create", f.hook(OpInsert)); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("reelshelf:changefeed_update", f.hook(OpUpdate)); err != nil {
		return err
	}
	return db.Callback().Delete().After("gorm:delete").Register("reelshelf:changefeed_delete", f.hook(OpDelete))
}

func (f *ChangeFeed) hook(op Op) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Error != nil || db.Statement.RowsAffected == 0 {
			return
		}
		store := models.StoreKind(db.Statement.Table)
		if !store.Valid() {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		for _, item := range savedItemsOf(db.Statement.Dest) {
			if item.UserID == "" {
				continue
			}
			ev := NewEvent(item.UserID, store, op, item.Ref(), "gorm")
			f.publish(ctx, ev)
		}
	}
}

func (f *ChangeFeed) publish(ctx context.Context, ev Event) {
	// The write already committed; a cancelled request must not swallow the event.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := f.pub.Publish(ctx, ev); err != nil {
		f.log.Warn("publish change event", "error", err, "user_id", ev.UserID, "store", ev.Store, "op", ev.Op)
	}
}

func savedItemsOf(dest interface{}) []models.SavedItem {
	switch v := dest.(type) {
	case *models.SavedItem:
		if v != nil {
			return []models.SavedItem{*v}
		}
	case models.SavedItem:
		return []models.SavedItem{v}
	case []models.SavedItem:
		return v
	case *[]models.SavedItem:
		if v != nil {
			return *v
		}
	}
	return nil
}
