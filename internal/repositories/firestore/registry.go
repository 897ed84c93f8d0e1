package firestore

import (
	"context"
	"errors"
	"strings"

	pfirestore "github.com/gemvault/api/internal/platform/firestore"
	"github.com/gemvault/api/internal/platform/idempotency"
	"github.com/gemvault/api/internal/repositories"
)

// Registry wires every Firestore repository to one shared provider.
type Registry struct {
	provider   *pfirestore.Provider
	categories *CategoryRepository
	types      *TypeRepository
	products   *ProductRepository
	users      *UserRepository
	orders     *OrderRepository
}

// NewRegistry constructs the Firestore repositories. The registry owns the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider}
	var err error
	if reg.categories, err = NewCategoryRepository(provider); err != nil {
		return nil, err
	}
	if reg.types, err = NewTypeRepository(provider); err != nil {
		return nil, err
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	return reg, nil
}

// Close releases the underlying client.
func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

// Ping checks that the database answers.
func (r *Registry) Ping(ctx context.Context) error { return r.provider.Ping(ctx) }

func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }
func (r *Registry) Types() repositories.TypeRepository          { return r.types }
func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Users() repositories.UserRepository          { return r.users }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }

// IdempotencyStore keeps Idempotency-Key replays in the shared Firestore project.
func (r *Registry) IdempotencyStore() idempotency.Store {
	return idempotency.NewFirestoreStore(r.provider)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ repositories.Registry = (*Registry)(nil)
