package syncclient

import (
	"context"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/realtime"
	"github.com/anonto42/reelshelf/backend/internal/services"
)

// ServiceBackend runs a Hook against the services and hub of the same process
type ServiceBackend struct {
	reconciler *services.Reconciler
	library    *services.LibraryService
	subscriber realtime.Subscriber
}

// NewServiceBackend creates a new ServiceBackend
func NewServiceBackend(reconciler *services.Reconciler, library *services.LibraryService, subscriber realtime.Subscriber) *ServiceBackend {
	return &ServiceBackend{reconciler: reconciler, library: library, subscriber: subscriber}
}

func (b *ServiceBackend) Fetch(ctx context.Context, userID string, store models.StoreKind) (models.Library, error) {
	return b.library.List(ctx, userID, store)
}

func (b *ServiceBackend) Save(ctx context.Context, userID string, store models.StoreKind, ref models.ItemRef, payload *models.CatalogPayload) (string, error) {
	res, err := b.reconciler.Save(ctx, services.SaveCommand{UserID: userID, Store: store, Ref: ref, Payload: payload})
	return res.Message, err
}

func (b *ServiceBackend) Unsave(ctx context.Context, userID string, store models.StoreKind, ref models.ItemRef) (string, error) {
	res, err := b.reconciler.Unsave(ctx, services.UnsaveCommand{UserID: userID, Store: store, Ref: ref})
	return res.Message, err
}

func (b *ServiceBackend) Subscribe(_ context.Context, userID string, store models.StoreKind) (Subscription, error) {
	sub, err := b.subscriber.Subscribe(userID, store)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
