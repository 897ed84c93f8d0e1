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

const orderCollection = "orders"

type orderDocument struct {
	ID          primitive.ObjectID  `bson:"_id"`
	OrderNumber string              `bson:"orderNumber"`
	UserID      string              `bson:"userId"`
	AddressID   string              `bson:"addressId"`
	Items       []orderItemDocument `bson:"items"`
	TotalAmount float64             `bson:"totalAmount"`
	Status      string              `bson:"status"`
	IsDeleted   bool                `bson:"isDeleted"`
	CreatedAt   time.Time           `bson:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string  `bson:"productId"`
	VariantID string  `bson:"variantId"`
	Quantity  int     `bson:"quantity"`
	Price     float64 `bson:"price"`
}

// OrderRepository stores orders. A unique index on orderNumber rejects duplicates.
type OrderRepository struct {
	coll *mongo.Collection
}

// Insert stores a new order. A reused order number is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	oid, ok := mongodb.ObjectID(order.ID)
	if !ok {
		return invalidID("orders.insert", order.ID)
	}
	doc := orderDocument{
		ID:          oid,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		AddressID:   order.AddressID,
		Items:       make([]orderItemDocument, 0, len(order.Items)),
		TotalAmount: order.TotalAmount,
		Status:      string(order.Status),
		IsDeleted:   order.IsDeleted,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	_, err := r.coll.InsertOne(ctx, doc)
	return mongodb.WrapError("orders.insert", err)
}

// UpdateStatus sets the status of an order owned by userID and returns the order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, userID string, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	oid, ok := mongodb.ObjectID(orderID)
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.update_status", "order")
	}
	var doc orderDocument
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "userId": userID},
		bson.M{"$set": bson.M{"status": string(status), "updatedAt": updatedAt}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return domain.Order{}, mongodb.WrapError("orders.update_status", err)
	}
	return toDomainOrder(doc), nil
}

// ListByUser returns the orders placed by userID, oldest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	var docs []orderDocument
	if err := findAll(ctx, r.coll, bson.M{"userId": userID}, &docs); err != nil {
		return nil, mongodb.WrapError("orders.list_by_user", err)
	}
	return mapSlice(docs, toDomainOrder), nil
}

// FindByIDs loads the given orders. Unknown ids are skipped.
func (r *OrderRepository) FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error) {
	var docs []orderDocument
	if err := findAll(ctx, r.coll, bson.M{"_id": bson.M{"$in": mongodb.ObjectIDs(orderIDs)}}, &docs); err != nil {
		return nil, mongodb.WrapError("orders.find_by_ids", err)
	}
	return mapSlice(docs, toDomainOrder), nil
}

func toDomainOrder(doc orderDocument) domain.Order {
	o := domain.Order{
		ID:          doc.ID.Hex(),
		OrderNumber: doc.OrderNumber,
		UserID:      doc.UserID,
		AddressID:   doc.AddressID,
		TotalAmount: doc.TotalAmount,
		Status:      domain.OrderStatus(doc.Status),
		IsDeleted:   doc.IsDeleted,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		o.Items = append(o.Items, domain.OrderItem(item))
	}
	return o
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
