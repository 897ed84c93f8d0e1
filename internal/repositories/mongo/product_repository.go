package mongo

import (
	"context"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/mongodb"
	"github.com/gemvault/api/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const productCollection = "products"

type productDocument struct {
	ID            primitive.ObjectID `bson:"_id"`
	Name          string             `bson:"name"`
	Description   string             `bson:"description"`
	CategoryID    string             `bson:"categoryId"`
	SubcategoryID string             `bson:"subcategoryId"`
	TypeID        string             `bson:"typeId"`
	Images        []string           `bson:"images"`
	Variants      []variantDocument  `bson:"variants"`
	IsDeleted     bool               `bson:"isDeleted"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

type variantDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	ProductID string             `bson:"productId"`
	Name      string             `bson:"name"`
	Price     float64            `bson:"price"`
	Stock     int                `bson:"stock"`
	Size      string             `bson:"size"`
	Material  string             `bson:"material"`
	Images    []string           `bson:"images"`
	IsDeleted bool               `bson:"isDeleted"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// ProductRepository stores products with their variants embedded as an array.
type ProductRepository struct {
	coll *mongo.Collection
}

// ListActive returns products that are not soft-deleted, oldest first.
func (r *ProductRepository) ListActive(ctx context.Context) ([]domain.Product, error) {
	var docs []productDocument
	if err := findAll(ctx, r.coll, bson.M{"isDeleted": false}, &docs); err != nil {
		return nil, mongodb.WrapError("products.list", err)
	}
	return mapSlice(docs, toDomainProduct), nil
}

// FindByID loads a product, including a soft-deleted one.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	oid, ok := mongodb.ObjectID(productID)
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.get", "product")
	}
	var doc productDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return domain.Product{}, mongodb.WrapError("products.get", err)
	}
	return toDomainProduct(doc), nil
}

// FindByIDs loads the given products. Unknown ids are skipped.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	var docs []productDocument
	if err := findAll(ctx, r.coll, bson.M{"_id": bson.M{"$in": mongodb.ObjectIDs(productIDs)}}, &docs); err != nil {
		return nil, mongodb.WrapError("products.find_by_ids", err)
	}
	return mapSlice(docs, toDomainProduct), nil
}

// Insert stores a new product with its variants.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	doc, err := fromDomainProduct(product)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, doc)
	return mongodb.WrapError("products.insert", err)
}

// Replace overwrites an existing product document.
func (r *ProductRepository) Replace(ctx context.Context, product domain.Product) error {
	doc, err := fromDomainProduct(product)
	if err != nil {
		return err
	}
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return mongodb.WrapError("products.replace", err)
	}
	if res.MatchedCount == 0 {
		return repositories.NewNotFoundError("products.replace", "product")
	}
	return nil
}

// SoftDelete flags a product as deleted.
func (r *ProductRepository) SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error {
	oid, ok := mongodb.ObjectID(productID)
	if !ok {
		return repositories.NewNotFoundError("products.delete", "product")
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"isDeleted": true, "updatedAt": deletedAt}})
	if err != nil {
		return mongodb.WrapError("products.delete", err)
	}
	if res.MatchedCount == 0 {
		return repositories.NewNotFoundError("products.delete", "product")
	}
	return nil
}

// FindByVariant returns the product embedding the variant.
func (r *ProductRepository) FindByVariant(ctx context.Context, variantID string) (domain.Product, error) {
	oid, ok := mongodb.ObjectID(variantID)
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.find_by_variant", "variant")
	}
	var doc productDocument
	if err := r.coll.FindOne(ctx, bson.M{"variants._id": oid}).Decode(&doc); err != nil {
		return domain.Product{}, mongodb.WrapError("products.find_by_variant", err)
	}
	return toDomainProduct(doc), nil
}

// SetVariant replaces the matching element of the variants array and returns the product.
func (r *ProductRepository) SetVariant(ctx context.Context, variant domain.Variant) (domain.Product, error) {
	doc, err := fromDomainVariant(variant)
	if err != nil {
		return domain.Product{}, err
	}
	return r.updateVariant(ctx, "products.set_variant", doc.ID, bson.M{"variants.$": doc})
}

// SoftDeleteVariant flags an embedded variant as deleted and returns the product.
func (r *ProductRepository) SoftDeleteVariant(ctx context.Context, variantID string, deletedAt time.Time) (domain.Product, error) {
	oid, ok := mongodb.ObjectID(variantID)
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.delete_variant", "variant")
	}
	return r.updateVariant(ctx, "products.delete_variant", oid, bson.M{
		"variants.$.isDeleted": true,
		"variants.$.updatedAt": deletedAt,
	})
}

func (r *ProductRepository) updateVariant(ctx context.Context, op string, variantID primitive.ObjectID, set bson.M) (domain.Product, error) {
	var doc productDocument
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"variants._id": variantID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return domain.Product{}, mongodb.WrapError(op, err)
	}
	return toDomainProduct(doc), nil
}

func toDomainProduct(doc productDocument) domain.Product {
	p := domain.Product{
		ID:            doc.ID.Hex(),
		Name:          doc.Name,
		Description:   doc.Description,
		CategoryID:    doc.CategoryID,
		SubcategoryID: doc.SubcategoryID,
		TypeID:        doc.TypeID,
		Images:        doc.Images,
		IsDeleted:     doc.IsDeleted,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	for _, v := range doc.Variants {
		p.Variants = append(p.Variants, domain.Variant{
			ID:        v.ID.Hex(),
			ProductID: v.ProductID,
			Name:      v.Name,
			Price:     v.Price,
			Stock:     v.Stock,
			Size:      v.Size,
			Material:  v.Material,
			Images:    v.Images,
			IsDeleted: v.IsDeleted,
			CreatedAt: v.CreatedAt,
			UpdatedAt: v.UpdatedAt,
		})
	}
	return p
}

func fromDomainProduct(p domain.Product) (productDocument, error) {
	oid, ok := mongodb.ObjectID(p.ID)
	if !ok {
		return productDocument{}, invalidID("products.encode", p.ID)
	}
	doc := productDocument{
		ID:            oid,
		Name:          p.Name,
		Description:   p.Description,
		CategoryID:    p.CategoryID,
		SubcategoryID: p.SubcategoryID,
		TypeID:        p.TypeID,
		Images:        append([]string{}, p.Images...),
		Variants:      make([]variantDocument, 0, len(p.Variants)),
		IsDeleted:     p.IsDeleted,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	for _, v := range p.Variants {
		vDoc, err := fromDomainVariant(v)
		if err != nil {
			return productDocument{}, err
		}
		doc.Variants = append(doc.Variants, vDoc)
	}
	return doc, nil
}

func fromDomainVariant(v domain.Variant) (variantDocument, error) {
	oid, ok := mongodb.ObjectID(v.ID)
	if !ok {
		return variantDocument{}, invalidID("products.encode_variant", v.ID)
	}
	return variantDocument{
		ID:        oid,
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
	}, nil
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
