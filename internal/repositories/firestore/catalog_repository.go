package firestore

import (
	"context"
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/gemvault/api/internal/domain"
	pfirestore "github.com/gemvault/api/internal/platform/firestore"
	"github.com/gemvault/api/internal/repositories"
)

const (
	categoryCollection = "categories"
	typeCollection     = "types"
)

type categoryDocument struct {
	Name           string                `firestore:"name"`
	Subcategories  []subcategoryDocument `firestore:"subcategories"`
	SubcategoryIDs []string              `firestore:"subcategoryIds"`
	IsDeleted      bool                  `firestore:"isDeleted"`
	CreatedAt      time.Time             `firestore:"createdAt"`
	UpdatedAt      time.Time             `firestore:"updatedAt"`
}

type subcategoryDocument struct {
	ID         string    `firestore:"id"`
	Name       string    `firestore:"name"`
	CategoryID string    `firestore:"categoryId"`
	IsDeleted  bool      `firestore:"isDeleted"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// CategoryRepository stores categories with their subcategories embedded in one document.
// subcategoryIds mirrors the embedded ids so ownership lookups can use array-contains.
type CategoryRepository struct {
	coll *pfirestore.Collection[categoryDocument]
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	return &CategoryRepository{coll: pfirestore.NewCollection[categoryDocument](provider, categoryCollection)}, nil
}

// ListActive returns categories that are not soft-deleted, oldest first.
func (r *CategoryRepository) ListActive(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.coll.Query(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainCategory(doc))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FindActiveByID loads a category unless it is missing or soft-deleted.
func (r *CategoryRepository) FindActiveByID(ctx context.Context, categoryID string) (domain.Category, error) {
	doc, err := r.coll.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	if doc.Data.IsDeleted {
		return domain.Category{}, repositories.NewNotFoundError(r.coll.Op("get"), "category")
	}
	return toDomainCategory(doc), nil
}

// FindByIDs loads the given categories, including deleted ones. Unknown ids are skipped.
func (r *CategoryRepository) FindByIDs(ctx context.Context, categoryIDs []string) ([]domain.Category, error) {
	docs, err := r.coll.GetAll(ctx, categoryIDs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainCategory(doc))
	}
	return out, nil
}

// Insert stores a new category.
func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	return r.coll.Create(ctx, category.ID, fromDomainCategory(category))
}

// Rename sets the name of an active category and returns it.
func (r *CategoryRepository) Rename(ctx context.Context, categoryID string, name string, updatedAt time.Time) (domain.Category, error) {
	doc, err := r.coll.Mutate(ctx, categoryID, func(c *categoryDocument) error {
		if c.IsDeleted {
			return repositories.NewNotFoundError(r.coll.Op("rename"), "category")
		}
		c.Name = name
		c.UpdatedAt = updatedAt
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return toDomainCategory(doc), nil
}

// SoftDelete flags a category as deleted.
func (r *CategoryRepository) SoftDelete(ctx context.Context, categoryID string, deletedAt time.Time) error {
	_, err := r.coll.Mutate(ctx, categoryID, func(c *categoryDocument) error {
		c.IsDeleted = true
		c.UpdatedAt = deletedAt
		return nil
	})
	return err
}

// FindActiveBySubcategory returns the active category embedding the subcategory.
func (r *CategoryRepository) FindActiveBySubcategory(ctx context.Context, subcategoryID string) (domain.Category, error) {
	doc, err := r.coll.First(ctx, "subcategory", func(q firestore.Query) firestore.Query {
		return activeOnly(q).Where("subcategoryIds", "array-contains", subcategoryID)
	})
	if err != nil {
		return domain.Category{}, err
	}
	return toDomainCategory(doc), nil
}

// PushSubcategory appends sub inside a transaction on the category document and returns the result.
func (r *CategoryRepository) PushSubcategory(ctx context.Context, categoryID string, sub domain.Subcategory, updatedAt time.Time) (domain.Category, error) {
	doc, err := r.coll.Mutate(ctx, categoryID, func(c *categoryDocument) error {
		if c.IsDeleted {
			return repositories.NewNotFoundError(r.coll.Op("push_subcategory"), "category")
		}
		c.Subcategories = append(c.Subcategories, fromDomainSubcategory(sub))
		c.SubcategoryIDs = append(c.SubcategoryIDs, sub.ID)
		c.UpdatedAt = updatedAt
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return toDomainCategory(doc), nil
}

// PullSubcategory removes the subcategory from the category. ErrNoEffect reports that nothing was removed.
func (r *CategoryRepository) PullSubcategory(ctx context.Context, categoryID string, subcategoryID string, updatedAt time.Time) error {
	_, err := r.coll.Mutate(ctx, categoryID, func(c *categoryDocument) error {
		kept := make([]subcategoryDocument, 0, len(c.Subcategories))
		for _, sub := range c.Subcategories {
			if sub.ID != subcategoryID {
				kept = append(kept, sub)
			}
		}
		if len(kept) == len(c.Subcategories) {
			return repositories.ErrNoEffect
		}
		c.Subcategories = kept
		c.SubcategoryIDs = subcategoryIDs(kept)
		c.UpdatedAt = updatedAt
		return nil
	})
	return err
}

// RenameSubcategory renames an embedded subcategory in place and returns its category.
func (r *CategoryRepository) RenameSubcategory(ctx context.Context, subcategoryID string, name string, updatedAt time.Time) (domain.Category, error) {
	return r.mutateSubcategory(ctx, subcategoryID, true, func(sub *subcategoryDocument) {
		sub.Name = name
		sub.UpdatedAt = updatedAt
	})
}

// SoftDeleteSubcategory flags an embedded subcategory as deleted and returns its category.
func (r *CategoryRepository) SoftDeleteSubcategory(ctx context.Context, subcategoryID string, deletedAt time.Time) (domain.Category, error) {
	return r.mutateSubcategory(ctx, subcategoryID, false, func(sub *subcategoryDocument) {
		sub.IsDeleted = true
		sub.UpdatedAt = deletedAt
	})
}

// mutateSubcategory updates the embedded element in place, the positional update of a
// document store.
func (r *CategoryRepository) mutateSubcategory(ctx context.Context, subcategoryID string, activeParentOnly bool, mutate func(*subcategoryDocument)) (domain.Category, error) {
	doc, err := r.coll.MutateFirst(ctx, "subcategory", func(q firestore.Query) firestore.Query {
		if activeParentOnly {
			q = activeOnly(q)
		}
		return q.Where("subcategoryIds", "array-contains", subcategoryID)
	}, func(c *categoryDocument) error {
		for i := range c.Subcategories {
			if c.Subcategories[i].ID == subcategoryID {
				mutate(&c.Subcategories[i])
				return nil
			}
		}
		return repositories.NewNotFoundError(r.coll.Op("mutate_subcategory"), "subcategory")
	})
	if err != nil {
		return domain.Category{}, err
	}
	return toDomainCategory(doc), nil
}

type typeDocument struct {
	Name      string    `firestore:"name"`
	IsDeleted bool      `firestore:"isDeleted"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// TypeRepository stores product types as flat documents.
type TypeRepository struct {
	coll *pfirestore.Collection[typeDocument]
}

// NewTypeRepository constructs a Firestore-backed type repository.
func NewTypeRepository(provider *pfirestore.Provider) (*TypeRepository, error) {
	if provider == nil {
		return nil, errors.New("type repository requires firestore provider")
	}
	return &TypeRepository{coll: pfirestore.NewCollection[typeDocument](provider, typeCollection)}, nil
}

// ListActive returns product types that are not soft-deleted.
func (r *TypeRepository) ListActive(ctx context.Context) ([]domain.ProductType, error) {
	docs, err := r.coll.Query(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProductType, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainType(doc))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FindByIDs loads the given types. Unknown ids are skipped.
func (r *TypeRepository) FindByIDs(ctx context.Context, typeIDs []string) ([]domain.ProductType, error) {
	docs, err := r.coll.GetAll(ctx, typeIDs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProductType, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainType(doc))
	}
	return out, nil
}

// Insert stores a new product type.
func (r *TypeRepository) Insert(ctx context.Context, productType domain.ProductType) error {
	return r.coll.Create(ctx, productType.ID, typeDocument{
		Name:      productType.Name,
		IsDeleted: productType.IsDeleted,
		CreatedAt: productType.CreatedAt,
		UpdatedAt: productType.UpdatedAt,
	})
}

// SoftDelete flags a product type as deleted.
func (r *TypeRepository) SoftDelete(ctx context.Context, typeID string, deletedAt time.Time) error {
	_, err := r.coll.Mutate(ctx, typeID, func(t *typeDocument) error {
		t.IsDeleted = true
		t.UpdatedAt = deletedAt
		return nil
	})
	return err
}

func activeOnly(q firestore.Query) firestore.Query {
	return q.Where("isDeleted", "==", false)
}

func toDomainCategory(doc pfirestore.Document[categoryDocument]) domain.Category {
	c := domain.Category{
		ID:        doc.ID,
		Name:      doc.Data.Name,
		IsDeleted: doc.Data.IsDeleted,
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: doc.Data.UpdatedAt,
	}
	for _, sub := range doc.Data.Subcategories {
		c.Subcategories = append(c.Subcategories, domain.Subcategory{
			ID:         sub.ID,
			Name:       sub.Name,
			CategoryID: sub.CategoryID,
			IsDeleted:  sub.IsDeleted,
			CreatedAt:  sub.CreatedAt,
			UpdatedAt:  sub.UpdatedAt,
		})
	}
	return c
}

func fromDomainCategory(c domain.Category) categoryDocument {
	doc := categoryDocument{
		Name:           c.Name,
		Subcategories:  make([]subcategoryDocument, 0, len(c.Subcategories)),
		SubcategoryIDs: make([]string, 0, len(c.Subcategories)),
		IsDeleted:      c.IsDeleted,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	for _, sub := range c.Subcategories {
		doc.Subcategories = append(doc.Subcategories, fromDomainSubcategory(sub))
		doc.SubcategoryIDs = append(doc.SubcategoryIDs, sub.ID)
	}
	return doc
}

func fromDomainSubcategory(sub domain.Subcategory) subcategoryDocument {
	return subcategoryDocument{
		ID:         sub.ID,
		Name:       sub.Name,
		CategoryID: sub.CategoryID,
		IsDeleted:  sub.IsDeleted,
		CreatedAt:  sub.CreatedAt,
		UpdatedAt:  sub.UpdatedAt,
	}
}

func subcategoryIDs(subs []subcategoryDocument) []string {
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	return ids
}

func toDomainType(doc pfirestore.Document[typeDocument]) domain.ProductType {
	return domain.ProductType{
		ID:        doc.ID,
		Name:      doc.Data.Name,
		IsDeleted: doc.Data.IsDeleted,
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: doc.Data.UpdatedAt,
	}
}

var (
	_ repositories.CategoryRepository = (*CategoryRepository)(nil)
	_ repositories.TypeRepository     = (*TypeRepository)(nil)
)
