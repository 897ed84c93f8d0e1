package memory

import (
	"context"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/repositories"
)

// OrderRepository is the in-memory OrderRepository. Order numbers are unique.
type OrderRepository struct {
	store *Store
}

func (r *OrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.orders[order.ID]; exists {
		return repositories.NewConflictError("orders.insert", "order")
	}
	for _, existing := range r.store.orders {
		if existing.OrderNumber == order.OrderNumber {
			return repositories.NewConflictError("orders.insert", "order")
		}
	}
	r.store.orders[order.ID] = cloneOrder(order)
	r.store.orderOrder = append(r.store.orderOrder, order.ID)
	return nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, userID string, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[orderID]
	if !ok || o.UserID != userID {
		return domain.Order{}, repositories.NewNotFoundError("orders.update_status", "order")
	}
	o.Status = status
	o.UpdatedAt = updatedAt
	r.store.orders[orderID] = o
	return cloneOrder(o), nil
}

func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, id := range r.store.orderOrder {
		if o := r.store.orders[id]; o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *OrderRepository) FindByIDs(_ context.Context, orderIDs []string) ([]domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	wanted := idSet(orderIDs)
	out := make([]domain.Order, 0, len(wanted))
	for _, id := range r.store.orderOrder {
		if _, ok := wanted[id]; ok {
			out = append(out, cloneOrder(r.store.orders[id]))
		}
	}
	return out, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
