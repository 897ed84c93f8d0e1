package memory

import (
	"context"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/repositories"
)

// CategoryRepository is the in-memory CategoryRepository.
type CategoryRepository struct {
	store *Store
}

func (r *CategoryRepository) ListActive(context.Context) ([]domain.Category, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.Category, 0, len(r.store.categoryOrder))
	for _, id := range r.store.categoryOrder {
		if c := r.store.categories[id]; !c.IsDeleted {
			out = append(out, cloneCategory(c))
		}
	}
	return out, nil
}

func (r *CategoryRepository) FindActiveByID(_ context.Context, categoryID string) (domain.Category, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	c, ok := r.store.categories[categoryID]
	if !ok || c.IsDeleted {
		return domain.Category{}, repositories.NewNotFoundError("categories.get", "category")
	}
	return cloneCategory(c), nil
}

func (r *CategoryRepository) FindByIDs(_ context.Context, categoryIDs []string) ([]domain.Category, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	wanted := idSet(categoryIDs)
	out := make([]domain.Category, 0, len(wanted))
	for _, id := range r.store.categoryOrder {
		if _, ok := wanted[id]; ok {
			out = append(out, cloneCategory(r.store.categories[id]))
		}
	}
	return out, nil
}

func (r *CategoryRepository) Insert(_ context.Context, category domain.Category) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.categories[category.ID]; exists {
		return repositories.NewConflictError("categories.insert", "category")
	}
	r.store.categories[category.ID] = cloneCategory(category)
	r.store.categoryOrder = append(r.store.categoryOrder, category.ID)
	return nil
}

func (r *CategoryRepository) Rename(_ context.Context, categoryID string, name string, updatedAt time.Time) (domain.Category, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.categories[categoryID]
	if !ok || c.IsDeleted {
		return domain.Category{}, repositories.NewNotFoundError("categories.rename", "category")
	}
	c.Name = name
	c.UpdatedAt = updatedAt
	r.store.categories[categoryID] = c
	return cloneCategory(c), nil
}

func (r *CategoryRepository) SoftDelete(_ context.Context, categoryID string, deletedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.categories[categoryID]
	if !ok {
		return repositories.NewNotFoundError("categories.delete", "category")
	}
	c.IsDeleted = true
	c.UpdatedAt = deletedAt
	r.store.categories[categoryID] = c
	return nil
}

func (r *CategoryRepository) FindActiveBySubcategory(_ context.Context, subcategoryID string) (domain.Category, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, id := range r.store.categoryOrder {
		c := r.store.categories[id]
		if c.IsDeleted {
			continue
		}
		if _, ok := c.FindSubcategory(subcategoryID); ok {
			return cloneCategory(c), nil
		}
	}
	return domain.Category{}, repositories.NewNotFoundError("categories.find_by_subcategory", "subcategory")
}

// PushSubcategory appends sub to an active category and returns the updated category.
func (r *CategoryRepository) PushSubcategory(_ context.Context, categoryID string, sub domain.Subcategory, updatedAt time.Time) (domain.Category, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.categories[categoryID]
	if !ok || c.IsDeleted {
		return domain.Category{}, repositories.NewNotFoundError("categories.push_subcategory", "category")
	}
	c = cloneCategory(c)
	c.Subcategories = append(c.Subcategories, sub)
	c.UpdatedAt = updatedAt
	r.store.categories[categoryID] = c
	return cloneCategory(c), nil
}

// PullSubcategory removes the subcategory from the category. ErrNoEffect reports that nothing was removed.
func (r *CategoryRepository) PullSubcategory(_ context.Context, categoryID string, subcategoryID string, updatedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.categories[categoryID]
	if !ok {
		return repositories.NewNotFoundError("categories.pull_subcategory", "category")
	}
	kept := make([]domain.Subcategory, 0, len(c.Subcategories))
	for _, sub := range c.Subcategories {
		if sub.ID != subcategoryID {
			kept = append(kept, sub)
		}
	}
	if len(kept) == len(c.Subcategories) {
		return repositories.ErrNoEffect
	}
	c.Subcategories = kept
	c.UpdatedAt = updatedAt
	r.store.categories[categoryID] = c
	return nil
}

// RenameSubcategory renames an embedded subcategory in place and returns its category.
func (r *CategoryRepository) RenameSubcategory(_ context.Context, subcategoryID string, name string, updatedAt time.Time) (domain.Category, error) {
	return r.mutateSubcategory("categories.rename_subcategory", subcategoryID, true, func(sub *domain.Subcategory) {
		sub.Name = name
		sub.UpdatedAt = updatedAt
	})
}

// SoftDeleteSubcategory flags an embedded subcategory as deleted and returns its category.
func (r *CategoryRepository) SoftDeleteSubcategory(_ context.Context, subcategoryID string, deletedAt time.Time) (domain.Category, error) {
	return r.mutateSubcategory("categories.delete_subcategory", subcategoryID, false, func(sub *domain.Subcategory) {
		sub.IsDeleted = true
		sub.UpdatedAt = deletedAt
	})
}

func (r *CategoryRepository) mutateSubcategory(op, subcategoryID string, activeParentOnly bool, mutate func(*domain.Subcategory)) (domain.Category, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, id := range r.store.categoryOrder {
		c := r.store.categories[id]
		if activeParentOnly && c.IsDeleted {
			continue
		}
		for i := range c.Subcategories {
			if c.Subcategories[i].ID != subcategoryID {
				continue
			}
			c = cloneCategory(c)
			mutate(&c.Subcategories[i])
			r.store.categories[id] = c
			return cloneCategory(c), nil
		}
	}
	return domain.Category{}, repositories.NewNotFoundError(op, "subcategory")
}

// TypeRepository is the in-memory TypeRepository.
type TypeRepository struct {
	store *Store
}

func (r *TypeRepository) ListActive(context.Context) ([]domain.ProductType, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.ProductType, 0, len(r.store.typeOrder))
	for _, id := range r.store.typeOrder {
		if t := r.store.types[id]; !t.IsDeleted {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *TypeRepository) FindByIDs(_ context.Context, typeIDs []string) ([]domain.ProductType, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	wanted := idSet(typeIDs)
	out := make([]domain.ProductType, 0, len(wanted))
	for _, id := range r.store.typeOrder {
		if _, ok := wanted[id]; ok {
			out = append(out, r.store.types[id])
		}
	}
	return out, nil
}

func (r *TypeRepository) Insert(_ context.Context, productType domain.ProductType) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.types[productType.ID]; exists {
		return repositories.NewConflictError("types.insert", "type")
	}
	r.store.types[productType.ID] = productType
	r.store.typeOrder = append(r.store.typeOrder, productType.ID)
	return nil
}

func (r *TypeRepository) SoftDelete(_ context.Context, typeID string, deletedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.types[typeID]
	if !ok {
		return repositories.NewNotFoundError("types.delete", "type")
	}
	t.IsDeleted = true
	t.UpdatedAt = deletedAt
	r.store.types[typeID] = t
	return nil
}

var (
	_ repositories.CategoryRepository = (*CategoryRepository)(nil)
	_ repositories.TypeRepository     = (*TypeRepository)(nil)
)
