// Package memory keeps every collection in process memory. Each mutation runs
// under the store lock, matching the single-document atomicity of the real backends.
package memory

import (
	"context"
	"sync"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/idempotency"
	"github.com/gemvault/api/internal/repositories"
)

// Store holds the collections shared by the memory repositories.
type Store struct {
	mu         sync.RWMutex
	categories map[string]domain.Category
	types      map[string]domain.ProductType
	products   map[string]domain.Product
	users      map[string]domain.User
	orders     map[string]domain.Order

	// insertion order keeps list results stable
	categoryOrder []string
	typeOrder     []string
	productOrder  []string
	orderOrder    []string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		categories: make(map[string]domain.Category),
		types:      make(map[string]domain.ProductType),
		products:   make(map[string]domain.Product),
		users:      make(map[string]domain.User),
		orders:     make(map[string]domain.Order),
	}
}

// Registry exposes the memory repositories through repositories.Registry.
type Registry struct {
	store      *Store
	replays    *idempotency.MemoryStore
	categories *CategoryRepository
	types      *TypeRepository
	products   *ProductRepository
	users      *UserRepository
	orders     *OrderRepository
}

// NewRegistry builds a registry over a fresh store.
func NewRegistry() *Registry {
	store := NewStore()
	return &Registry{
		store:      store,
		replays:    idempotency.NewMemoryStore(),
		categories: &CategoryRepository{store: store},
		types:      &TypeRepository{store: store},
		products:   &ProductRepository{store: store},
		users:      &UserRepository{store: store},
		orders:     &OrderRepository{store: store},
	}
}

func (r *Registry) Close(context.Context) error { return nil }
func (r *Registry) Ping(context.Context) error  { return nil }

func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }
func (r *Registry) Types() repositories.TypeRepository           { return r.types }
func (r *Registry) Products() repositories.ProductRepository     { return r.products }
func (r *Registry) Users() repositories.UserRepository           { return r.users }
func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }

// IdempotencyStore keeps Idempotency-Key replays next to the data they guard.
func (r *Registry) IdempotencyStore() idempotency.Store { return r.replays }

// Store exposes the backing store, mainly so tests can seed or inspect state.
func (r *Registry) Store() *Store { return r.store }

var _ repositories.Registry = (*Registry)(nil)

func cloneCategory(c domain.Category) domain.Category {
	c.Subcategories = append([]domain.Subcategory(nil), c.Subcategories...)
	return c
}

func cloneProduct(p domain.Product) domain.Product {
	p.Images = append([]string(nil), p.Images...)
	variants := make([]domain.Variant, len(p.Variants))
	for i, v := range p.Variants {
		v.Images = append([]string(nil), v.Images...)
		variants[i] = v
	}
	p.Variants = variants
	return p
}

func cloneUser(u domain.User) domain.User {
	u.Addresses = append([]domain.Address(nil), u.Addresses...)
	u.Orders = append([]string(nil), u.Orders...)
	return u
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
