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

const productCollection = "products"

type productDocument struct {
	Name          string            `firestore:"name"`
	Description   string            `firestore:"description"`
	CategoryID    string            `firestore:"categoryId"`
	SubcategoryID string            `firestore:"subcategoryId"`
	TypeID        string            `firestore:"typeId"`
	Images        []string          `firestore:"images"`
	Variants      []variantDocument `firestore:"variants"`
	VariantIDs    []string          `firestore:"variantIds"`
	IsDeleted     bool              `firestore:"isDeleted"`
	CreatedAt     time.Time         `firestore:"createdAt"`
	UpdatedAt     time.Time         `firestore:"updatedAt"`
}

type variantDocument struct {
	ID        string    `firestore:"id"`
	ProductID string    `firestore:"productId"`
	Name      string    `firestore:"name"`
	Price     float64   `firestore:"price"`
	Stock     int       `firestore:"stock"`
	Size      string    `firestore:"size"`
	Material  string    `firestore:"material"`
	Images    []string  `firestore:"images"`
	IsDeleted bool      `firestore:"isDeleted"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// ProductRepository stores products with their variants embedded in one document.
type ProductRepository struct {
	coll *pfirestore.Collection[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{coll: pfirestore.NewCollection[productDocument](provider, productCollection)}, nil
}

// ListActive returns products that are not soft-deleted, oldest first.
func (r *ProductRepository) ListActive(ctx context.Context) ([]domain.Product, error) {
	docs, err := r.coll.Query(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := toDomainProducts(docs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FindByID returns the product even when soft deleted.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.coll.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc), nil
}

// FindByIDs loads the given products. Unknown ids are skipped.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	docs, err := r.coll.GetAll(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	return toDomainProducts(docs), nil
}

// Insert stores a new product with its variants.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.coll.Create(ctx, product.ID, fromDomainProduct(product))
}

// Replace overwrites an existing product document.
func (r *ProductRepository) Replace(ctx context.Context, product domain.Product) error {
	replacement := fromDomainProduct(product)
	_, err := r.coll.Mutate(ctx, product.ID, func(p *productDocument) error {
		*p = replacement
		return nil
	})
	return err
}

// SoftDelete flags a product as deleted.
func (r *ProductRepository) SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error {
	_, err := r.coll.Mutate(ctx, productID, func(p *productDocument) error {
		p.IsDeleted = true
		p.UpdatedAt = deletedAt
		return nil
	})
	return err
}

// FindByVariant returns the product embedding the variant.
func (r *ProductRepository) FindByVariant(ctx context.Context, variantID string) (domain.Product, error) {
	doc, err := r.coll.First(ctx, "variant", byVariant(variantID))
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc), nil
}

// SetVariant replaces the embedded variant with the same id and returns the product.
func (r *ProductRepository) SetVariant(ctx context.Context, variant domain.Variant) (domain.Product, error) {
	replacement := fromDomainVariant(variant)
	return r.mutateVariant(ctx, variant.ID, func(v *variantDocument) {
		*v = replacement
	})
}

// SoftDeleteVariant flags an embedded variant as deleted and returns the product.
func (r *ProductRepository) SoftDeleteVariant(ctx context.Context, variantID string, deletedAt time.Time) (domain.Product, error) {
	return r.mutateVariant(ctx, variantID, func(v *variantDocument) {
		v.IsDeleted = true
		v.UpdatedAt = deletedAt
	})
}

func (r *ProductRepository) mutateVariant(ctx context.Context, variantID string, mutate func(*variantDocument)) (domain.Product, error) {
	doc, err := r.coll.MutateFirst(ctx, "variant", byVariant(variantID), func(p *productDocument) error {
		for i := range p.Variants {
			if p.Variants[i].ID == variantID {
				mutate(&p.Variants[i])
				return nil
			}
		}
		return repositories.NewNotFoundError(r.coll.Op("mutate_variant"), "variant")
	})
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc), nil
}

func byVariant(variantID string) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		return q.Where("variantIds", "array-contains", variantID)
	}
}

func toDomainProducts(docs []pfirestore.Document[productDocument]) []domain.Product {
	out := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainProduct(doc))
	}
	return out
}

func toDomainProduct(doc pfirestore.Document[productDocument]) domain.Product {
	p := domain.Product{
		ID:            doc.ID,
		Name:          doc.Data.Name,
		Description:   doc.Data.Description,
		CategoryID:    doc.Data.CategoryID,
		SubcategoryID: doc.Data.SubcategoryID,
		TypeID:        doc.Data.TypeID,
		Images:        append([]string(nil), doc.Data.Images...),
		IsDeleted:     doc.Data.IsDeleted,
		CreatedAt:     doc.Data.CreatedAt,
		UpdatedAt:     doc.Data.UpdatedAt,
	}
	for _, v := range doc.Data.Variants {
		p.Variants = append(p.Variants, domain.Variant{
			ID:        v.ID,
			ProductID: v.ProductID,
			Name:      v.Name,
			Price:     v.Price,
			Stock:     v.Stock,
			Size:      v.Size,
			Material:  v.Material,
			Images:    append([]string(nil), v.Images...),
			IsDeleted: v.IsDeleted,
			CreatedAt: v.CreatedAt,
			UpdatedAt: v.UpdatedAt,
		})
	}
	return p
}

func fromDomainProduct(p domain.Product) productDocument {
	doc := productDocument{
		Name:          p.Name,
		Description:   p.Description,
		CategoryID:    p.CategoryID,
		SubcategoryID: p.SubcategoryID,
		TypeID:        p.TypeID,
		Images:        append([]string{}, p.Images...),
		Variants:      make([]variantDocument, 0, len(p.Variants)),
		VariantIDs:    make([]string, 0, len(p.Variants)),
		IsDeleted:     p.IsDeleted,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	for _, v := range p.Variants {
		doc.Variants = append(doc.Variants, fromDomainVariant(v))
		doc.VariantIDs = append(doc.VariantIDs, v.ID)
	}
	return doc
}

func fromDomainVariant(v domain.Variant) variantDocument {
	return variantDocument{
		ID:        v.ID,
		ProductID: v.ProductID,
		Name:      v.Name,
		Price:     v.Price,
		Stock:     v.Stock,
		Size:      v.Size,
		Material:  v.Material,
		Images:    append([]string{}, v.Images...),
		IsDeleted: v.IsDeleted,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
