package memory

import (
	"context"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/repositories"
)

// ProductRepository is the in-memory ProductRepository.
type ProductRepository struct {
	store *Store
}

func (r *ProductRepository) ListActive(context.Context) ([]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.Product, 0, len(r.store.productOrder))
	for _, id := range r.store.productOrder {
		if p := r.store.products[id]; !p.IsDeleted {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (r *ProductRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	p, ok := r.store.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.get", "product")
	}
	return cloneProduct(p), nil
}

func (r *ProductRepository) FindByIDs(_ context.Context, productIDs []string) ([]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	wanted := idSet(productIDs)
	out := make([]domain.Product, 0, len(wanted))
	for _, id := range r.store.productOrder {
		if _, ok := wanted[id]; ok {
			out = append(out, cloneProduct(r.store.products[id]))
		}
	}
	return out, nil
}

func (r *ProductRepository) Insert(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.products[product.ID]; exists {
		return repositories.NewConflictError("products.insert", "product")
	}
	r.store.products[product.ID] = cloneProduct(product)
	r.store.productOrder = append(r.store.productOrder, product.ID)
	return nil
}

func (r *ProductRepository) Replace(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.products[product.ID]; !ok {
		return repositories.NewNotFoundError("products.replace", "product")
	}
	r.store.products[product.ID] = cloneProduct(product)
	return nil
}

func (r *ProductRepository) SoftDelete(_ context.Context, productID string, deletedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.products[productID]
	if !ok {
		return repositories.NewNotFoundError("products.delete", "product")
	}
	p.IsDeleted = true
	p.UpdatedAt = deletedAt
	r.store.products[productID] = p
	return nil
}

func (r *ProductRepository) FindByVariant(_ context.Context, variantID string) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, id := range r.store.productOrder {
		p := r.store.products[id]
		if _, _, ok := p.FindVariant(variantID); ok {
			return cloneProduct(p), nil
		}
	}
	return domain.Product{}, repositories.NewNotFoundError("products.find_by_variant", "variant")
}

// SetVariant replaces the embedded variant with the same id and returns the product.
func (r *ProductRepository) SetVariant(_ context.Context, variant domain.Variant) (domain.Product, error) {
	return r.mutateVariant("products.set_variant", variant.ID, func(v *domain.Variant) {
		*v = variant
		v.Images = append([]string(nil), variant.Images...)
	})
}

// SoftDeleteVariant flags an embedded variant as deleted and returns the product.
func (r *ProductRepository) SoftDeleteVariant(_ context.Context, variantID string, deletedAt time.Time) (domain.Product, error) {
	return r.mutateVariant("products.delete_variant", variantID, func(v *domain.Variant) {
		v.IsDeleted = true
		v.UpdatedAt = deletedAt
	})
}

func (r *ProductRepository) mutateVariant(op, variantID string, mutate func(*domain.Variant)) (domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, id := range r.store.productOrder {
		p := r.store.products[id]
		_, idx, ok := p.FindVariant(variantID)
		if !ok {
			continue
		}
		p = cloneProduct(p)
		mutate(&p.Variants[idx])
		r.store.products[id] = p
		return cloneProduct(p), nil
	}
	return domain.Product{}, repositories.NewNotFoundError(op, "variant")
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
