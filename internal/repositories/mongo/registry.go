package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/gemvault/api/internal/platform/idempotency"
	"github.com/gemvault/api/internal/platform/mongodb"
	"github.com/gemvault/api/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Registry wires every MongoDB repository to one provider.
type Registry struct {
	provider   *mongodb.Provider
	categories *CategoryRepository
	types      *TypeRepository
	products   *ProductRepository
	users      *UserRepository
	orders     *OrderRepository
}

// NewRegistry binds the repositories to their collections and ensures the unique and lookup
// indexes exist. The registry owns the provider.
func NewRegistry(ctx context.Context, provider *mongodb.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("mongo registry requires provider")
	}
	if err := provider.EnsureIndexes(ctx, Indexes()); err != nil {
		return nil, err
	}
	return &Registry{
		provider:   provider,
		categories: &CategoryRepository{coll: provider.Collection(categoryCollection)},
		types:      &TypeRepository{coll: provider.Collection(typeCollection)},
		products:   &ProductRepository{coll: provider.Collection(productCollection)},
		users:      &UserRepository{coll: provider.Collection(userCollection)},
		orders:     &OrderRepository{coll: provider.Collection(orderCollection)},
	}, nil
}

// Indexes lists the indexes the repositories rely on.
func Indexes() []mongodb.IndexSpec {
	return []mongodb.IndexSpec{
		{Collection: categoryCollection, Models: []mongo.IndexModel{
			{Keys: bson.D{{Key: "subcategories._id", Value: 1}}},
		}},
		{Collection: productCollection, Models: []mongo.IndexModel{
			{Keys: bson.D{{Key: "variants._id", Value: 1}}},
		}},
		{Collection: userCollection, Models: []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "phoneNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{Collection: orderCollection, Models: []mongo.IndexModel{
			{Keys: bson.D{{Key: "orderNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}}},
		}},
		{Collection: idempotency.MongoCollection, Models: idempotency.MongoIndexes()},
	}
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

// IdempotencyStore keeps Idempotency-Key replays in the same database, expired by a TTL index.
func (r *Registry) IdempotencyStore() idempotency.Store {
	return idempotency.NewMongoStore(r.provider.Collection(idempotency.MongoCollection))
}

// findAll runs filter sorted by creation time and decodes every match into out.
func findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, out any) error {
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func mapSlice[D, T any](docs []D, convert func(D) T) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		out = append(out, convert(doc))
	}
	return out
}

func invalidID(op, id string) error {
	return &repositories.Error{Op: op, Err: fmt.Errorf("invalid object id %q", id)}
}

var _ repositories.Registry = (*Registry)(nil)
