package order

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"carecart/pkg/storage"
)

// Repository isolates the single current order slot so the tracker does not depend on
// how many orders the storage can hold.
type Repository interface {
	// CurrentOrder reports false when no order is stored.
	CurrentOrder(ctx context.Context) (Order, bool, error)
	PutCurrentOrder(ctx context.Context, o Order) error
}

// StorageRepository keeps the current order under the currentOrder key of a storage port.
type StorageRepository struct {
	port   storage.Port
	logger *zap.Logger
}

// NewRepository wires the port the order document is written through.
func NewRepository(port storage.Port, logger *zap.Logger) *StorageRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageRepository{port: port, logger: logger}
}

// CurrentOrder loads the stored order. A corrupt document counts as no order.
func (r *StorageRepository) CurrentOrder(ctx context.Context) (Order, bool, error) {
	var o Order
	ok, err := storage.GetJSON(ctx, r.port, storage.KeyCurrentOrder, &o)
	var decodeErr *storage.DecodeError
	if errors.As(err, &decodeErr) {
		r.logger.Warn("discarding corrupt stored value", zap.String("key", storage.KeyCurrentOrder), zap.Error(err))
		return Order{}, false, nil
	}
	if err != nil || !ok {
		return Order{}, false, err
	}
	if o.ID == "" || len(o.Steps) != StepCount {
		r.logger.Warn("discarding malformed order", zap.String("key", storage.KeyCurrentOrder), zap.String("order_id", o.ID))
		return Order{}, false, nil
	}
	return o, true, nil
}

// PutCurrentOrder overwrites the slot; last write wins.
func (r *StorageRepository) PutCurrentOrder(ctx context.Context, o Order) error {
	return storage.PutJSON(ctx, r.port, storage.KeyCurrentOrder, o)
}
