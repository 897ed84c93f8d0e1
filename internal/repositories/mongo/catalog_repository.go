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

const (
	categoryCollection = "categories"
	typeCollection     = "types"
)

type categoryDocument struct {
	ID            primitive.ObjectID    `bson:"_id"`
	Name          string                `bson:"name"`
	Subcategories []subcategoryDocument `bson:"subcategories"`
	IsDeleted     bool                  `bson:"isDeleted"`
	CreatedAt     time.Time             `bson:"createdAt"`
	UpdatedAt     time.Time             `bson:"updatedAt"`
}

type subcategoryDocument struct {
	ID         primitive.ObjectID `bson:"_id"`
	Name       string             `bson:"name"`
	CategoryID string             `bson:"categoryId"`
	IsDeleted  bool               `bson:"isDeleted"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

// CategoryRepository stores categories with subcategories embedded as an array. Subcategory
// writes use the positional operator against the owning document.
type CategoryRepository struct {
	coll *mongo.Collection
}

// ListActive returns categories that are not soft-deleted, oldest first.
func (r *CategoryRepository) ListActive(ctx context.Context) ([]domain.Category, error) {
	var docs []categoryDocument
	if err := findAll(ctx, r.coll, bson.M{"isDeleted": false}, &docs); err != nil {
		return nil, mongodb.WrapError("categories.list", err)
	}
	return mapSlice(docs, toDomainCategory), nil
}

// FindActiveByID loads a category unless it is missing or soft-deleted.
func (r *CategoryRepository) FindActiveByID(ctx context.Context, categoryID string) (domain.Category, error) {
	oid, ok := mongodb.ObjectID(categoryID)
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("categories.get", "category")
	}
	var doc categoryDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid, "isDeleted": false}).Decode(&doc); err != nil {
		return domain.Category{}, mongodb.WrapError("categories.get", err)
	}
	return toDomainCategory(doc), nil
}

// FindByIDs loads the given categories, including deleted ones. Unknown ids are skipped.
func (r *CategoryRepository) FindByIDs(ctx context.Context, categoryIDs []string) ([]domain.Category, error) {
	var docs []categoryDocument
	if err := findAll(ctx, r.coll, bson.M{"_id": bson.M{"$in": mongodb.ObjectIDs(categoryIDs)}}, &docs); err != nil {
		return nil, mongodb.WrapError("categories.find_by_ids", err)
	}
	return mapSlice(docs, toDomainCategory), nil
}

// Insert stores a new category.
func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	doc, err := fromDomainCategory(category)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, doc)
	return mongodb.WrapError("categories.insert", err)
}

// Rename sets the name of an active category and returns it.
func (r *CategoryRepository) Rename(ctx context.Context, categoryID string, name string, updatedAt time.Time) (domain.Category, error) {
	oid, ok := mongodb.ObjectID(categoryID)
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("categories.rename", "category")
	}
	return r.findAndUpdate(ctx, "categories.rename",
		bson.M{"_id": oid, "isDeleted": false},
		bson.M{"$set": bson.M{"name": name, "updatedAt": updatedAt}})
}

// SoftDelete flags a category as deleted.
func (r *CategoryRepository) SoftDelete(ctx context.Context, categoryID string, deletedAt time.Time) error {
	oid, ok := mongodb.ObjectID(categoryID)
	if !ok {
		return repositories.NewNotFoundError("categories.delete", "category")
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"isDeleted": true, "updatedAt": deletedAt}})
	if err != nil {
		return mongodb.WrapError("categories.delete", err)
	}
	if res.MatchedCount == 0 {
		return repositories.NewNotFoundError("categories.delete", "category")
	}
	return nil
}

// FindActiveBySubcategory returns the active category embedding the subcategory.
func (r *CategoryRepository) FindActiveBySubcategory(ctx context.Context, subcategoryID string) (domain.Category, error) {
	oid, ok := mongodb.ObjectID(subcategoryID)
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("categories.find_by_subcategory", "subcategory")
	}
	var doc categoryDocument
	if err := r.coll.FindOne(ctx, bson.M{"isDeleted": false, "subcategories._id": oid}).Decode(&doc); err != nil {
		return domain.Category{}, mongodb.WrapError("categories.find_by_subcategory", err)
	}
	return toDomainCategory(doc), nil
}

// PushSubcategory appends sub to an active category and returns the updated category.
func (r *CategoryRepository) PushSubcategory(ctx context.Context, categoryID string, sub domain.Subcategory, updatedAt time.Time) (domain.Category, error) {
	oid, ok := mongodb.ObjectID(categoryID)
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("categories.push_subcategory", "category")
	}
	subDoc, err := fromDomainSubcategory(sub)
	if err != nil {
		return domain.Category{}, err
	}
	return r.findAndUpdate(ctx, "categories.push_subcategory",
		bson.M{"_id": oid, "isDeleted": false},
		bson.M{"$push": bson.M{"subcategories": subDoc}, "$set": bson.M{"updatedAt": updatedAt}})
}

// PullSubcategory removes the subcategory from the category. ErrNoEffect reports that nothing was removed.
func (r *CategoryRepository) PullSubcategory(ctx context.Context, categoryID string, subcategoryID string, updatedAt time.Time) error {
	oid, ok := mongodb.ObjectID(categoryID)
	if !ok {
		return repositories.NewNotFoundError("categories.pull_subcategory", "category")
	}
	subOID, _ := mongodb.ObjectID(subcategoryID)
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "subcategories._id": subOID},
		bson.M{"$pull": bson.M{"subcategories": bson.M{"_id": subOID}}, "$set": bson.M{"updatedAt": updatedAt}})
	if err != nil {
		return mongodb.WrapError("categories.pull_subcategory", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	exists, err := r.coll.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return mongodb.WrapError("categories.pull_subcategory", err)
	}
	if exists == 0 {
		return repositories.NewNotFoundError("categories.pull_subcategory", "category")
	}
	return repositories.ErrNoEffect
}

// RenameSubcategory renames an embedded subcategory through the positional operator and returns its category.
func (r *CategoryRepository) RenameSubcategory(ctx context.Context, subcategoryID string, name string, updatedAt time.Time) (domain.Category, error) {
	oid, ok := mongodb.ObjectID(subcategoryID)
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("categories.rename_subcategory", "subcategory")
	}
	return r.findAndUpdate(ctx, "categories.rename_subcategory",
		bson.M{"isDeleted": false, "subcategories._id": oid},
		bson.M{"$set": bson.M{"subcategories.$.name": name, "subcategories.$.updatedAt": updatedAt}})
}

// SoftDeleteSubcategory flags an embedded subcategory as deleted and returns its category.
func (r *CategoryRepository) SoftDeleteSubcategory(ctx context.Context, subcategoryID string, deletedAt time.Time) (domain.Category, error) {
	oid, ok := mongodb.ObjectID(subcategoryID)
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("categories.delete_subcategory", "subcategory")
	}
	return r.findAndUpdate(ctx, "categories.delete_subcategory",
		bson.M{"subcategories._id": oid},
		bson.M{"$set": bson.M{"subcategories.$.isDeleted": true, "subcategories.$.updatedAt": deletedAt}})
}

func (r *CategoryRepository) findAndUpdate(ctx context.Context, op string, filter, update bson.M) (domain.Category, error) {
	var doc categoryDocument
	err := r.coll.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return domain.Category{}, mongodb.WrapError(op, err)
	}
	return toDomainCategory(doc), nil
}

type typeDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	IsDeleted bool               `bson:"isDeleted"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// TypeRepository stores product types as flat documents.
type TypeRepository struct {
	coll *mongo.Collection
}

// ListActive returns product types that are not soft-deleted.
func (r *TypeRepository) ListActive(ctx context.Context) ([]domain.ProductType, error) {
	var docs []typeDocument
	if err := findAll(ctx, r.coll, bson.M{"isDeleted": false}, &docs); err != nil {
		return nil, mongodb.WrapError("types.list", err)
	}
	return mapSlice(docs, toDomainType), nil
}

// FindByIDs loads the given types. Unknown ids are skipped.
func (r *TypeRepository) FindByIDs(ctx context.Context, typeIDs []string) ([]domain.ProductType, error) {
	var docs []typeDocument
	if err := findAll(ctx, r.coll, bson.M{"_id": bson.M{"$in": mongodb.ObjectIDs(typeIDs)}}, &docs); err != nil {
		return nil, mongodb.WrapError("types.find_by_ids", err)
	}
	return mapSlice(docs, toDomainType), nil
}

// Insert stores a new product type.
func (r *TypeRepository) Insert(ctx context.Context, productType domain.ProductType) error {
	oid, ok := mongodb.ObjectID(productType.ID)
	if !ok {
		return invalidID("types.insert", productType.ID)
	}
	_, err := r.coll.InsertOne(ctx, typeDocument{
		ID:        oid,
		Name:      productType.Name,
		IsDeleted: productType.IsDeleted,
		CreatedAt: productType.CreatedAt,
		UpdatedAt: productType.UpdatedAt,
	})
	return mongodb.WrapError("types.insert", err)
}

// SoftDelete flags a product type as deleted.
func (r *TypeRepository) SoftDelete(ctx context.Context, typeID string, deletedAt time.Time) error {
	oid, ok := mongodb.ObjectID(typeID)
	if !ok {
		return repositories.NewNotFoundError("types.delete", "type")
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"isDeleted": true, "updatedAt": deletedAt}})
	if err != nil {
		return mongodb.WrapError("types.delete", err)
	}
	if res.MatchedCount == 0 {
		return repositories.NewNotFoundError("types.delete", "type")
	}
	return nil
}

func toDomainCategory(doc categoryDocument) domain.Category {
	c := domain.Category{
		ID:        doc.ID.Hex(),
		Name:      doc.Name,
		IsDeleted: doc.IsDeleted,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, sub := range doc.Subcategories {
		c.Subcategories = append(c.Subcategories, domain.Subcategory{
			ID:         sub.ID.Hex(),
			Name:       sub.Name,
			CategoryID: sub.CategoryID,
			IsDeleted:  sub.IsDeleted,
			CreatedAt:  sub.CreatedAt,
			UpdatedAt:  sub.UpdatedAt,
		})
	}
	return c
}

func fromDomainCategory(c domain.Category) (categoryDocument, error) {
	oid, ok := mongodb.ObjectID(c.ID)
	if !ok {
		return categoryDocument{}, invalidID("categories.insert", c.ID)
	}
	doc := categoryDocument{
		ID:            oid,
		Name:          c.Name,
		Subcategories: make([]subcategoryDocument, 0, len(c.Subcategories)),
		IsDeleted:     c.IsDeleted,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	for _, sub := range c.Subcategories {
		subDoc, err := fromDomainSubcategory(sub)
		if err != nil {
			return categoryDocument{}, err
		}
		doc.Subcategories = append(doc.Subcategories, subDoc)
	}
	return doc, nil
}

func fromDomainSubcategory(sub domain.Subcategory) (subcategoryDocument, error) {
	oid, ok := mongodb.ObjectID(sub.ID)
	if !ok {
		return subcategoryDocument{}, invalidID("categories.subcategory", sub.ID)
	}
	return subcategoryDocument{
		ID:         oid,
		Name:       sub.Name,
		CategoryID: sub.CategoryID,
		IsDeleted:  sub.IsDeleted,
		CreatedAt:  sub.CreatedAt,
		UpdatedAt:  sub.UpdatedAt,
	}, nil
}

func toDomainType(doc typeDocument) domain.ProductType {
	return domain.ProductType{
		ID:        doc.ID.Hex(),
		Name:      doc.Name,
		IsDeleted: doc.IsDeleted,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

var (
	_ repositories.CategoryRepository = (*CategoryRepository)(nil)
	_ repositories.TypeRepository     = (*TypeRepository)(nil)
)
