package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/middleware"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/realtime"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/labstack/echo/v4"
)

const defaultHeartbeat = 30 * time.Second

// StreamHandler pushes the caller's saved-item change events as Server-Sent
// Events. Each connection holds one hub subscription for its lifetime.
type StreamHandler struct {
	subscriber realtime.Subscriber
	log        *logger.Logger
	heartbeat  time.Duration
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(subscriber realtime.Subscriber, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		subscriber: subscriber,
		log:        log.With("handler", "stream"),
		heartbeat:  defaultHeartbeat,
	}
}

// RegisterStreamRoutes registers the event stream route
func (h *StreamHandler) RegisterStreamRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/stream", h.Stream, m...)
}

// Stream serves GET /stream?store=bookmarks|favorites. Without a store filter
// events from both stores are sent.
func (h *StreamHandler) Stream(c echo.Context) error {
	userID := middleware.UserIDFrom(c)
	if userID == "" {
		return apperrors.Unauthorized()
	}

	var stores []models.StoreKind
	if raw := c.QueryParam("store"); raw != "" {
		store := models.StoreKind(raw)
		if !store.Valid() {
			return apperrors.InvalidRequest(fmt.Sprintf("unknown store %q", raw), nil)
		}
		stores = append(stores, store)
	}

	sub, err := h.subscriber.Subscribe(userID, stores...)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	log := h.log.With("user_id", userID, "subscription_id", sub.ID())
	if err := writeEvent(w, "connected", echo.Map{"subscription_id": sub.ID()}); err != nil {
		return nil
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				log.Debug("subscription closed by hub")
				return nil
			}
			if err := writeEvent(w, "change", ev); err != nil {
				log.Debug("client gone during send", "error", err)
				return nil
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func writeEvent(w *echo.Response, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw); err != nil {
		return err
	}
	w.Flush()
	return nil
}
