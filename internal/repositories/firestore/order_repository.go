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

const orderCollection = "orders"

type orderDocument struct {
	OrderNumber string              `firestore:"orderNumber"`
	UserID      string              `firestore:"userId"`
	AddressID   string              `firestore:"addressId"`
	Items       []orderItemDocument `firestore:"items"`
	TotalAmount float64             `firestore:"totalAmount"`
	Status      string              `firestore:"status"`
	IsDeleted   bool                `firestore:"isDeleted"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string  `firestore:"productId"`
	VariantID string  `firestore:"variantId"`
	Quantity  int     `firestore:"quantity"`
	Price     float64 `firestore:"price"`
}

// OrderRepository stores orders as top-level documents keyed by order id.
type OrderRepository struct {
	provider *pfirestore.Provider
	coll     *pfirestore.Collection[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		coll:     pfirestore.NewCollection[orderDocument](provider, orderCollection),
	}, nil
}

// Insert enforces order number uniqueness in the same transaction as the create.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	coll, err := r.coll.Ref(ctx)
	if err != nil {
		return err
	}
	doc := fromDomainOrder(order)
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		clashes, err := pfirestore.DecodeAll[orderDocument](tx.Documents(coll.Where("orderNumber", "==", doc.OrderNumber).Limit(1)))
		if err != nil {
			return err
		}
		if len(clashes) > 0 {
			return repositories.NewConflictError(r.coll.Op("insert"), "order")
		}
		return tx.Create(coll.Doc(order.ID), doc)
	})
	return pfirestore.WrapError(r.coll.Op("insert"), err)
}

// UpdateStatus sets the status of an order owned by userID and returns the order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, userID string, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	doc, err := r.coll.Mutate(ctx, orderID, func(o *orderDocument) error {
		if o.UserID != userID {
			return repositories.NewNotFoundError(r.coll.Op("update_status"), "order")
		}
		o.Status = string(status)
		o.UpdatedAt = updatedAt
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc), nil
}

// ListByUser returns the orders placed by userID, oldest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainOrder(doc))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FindByIDs loads the given orders. Unknown ids are skipped.
func (r *OrderRepository) FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error) {
	docs, err := r.coll.GetAll(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainOrder(doc))
	}
	return out, nil
}

func toDomainOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	o := domain.Order{
		ID:          doc.ID,
		OrderNumber: doc.Data.OrderNumber,
		UserID:      doc.Data.UserID,
		AddressID:   doc.Data.AddressID,
		TotalAmount: doc.Data.TotalAmount,
		Status:      domain.OrderStatus(doc.Data.Status),
		IsDeleted:   doc.Data.IsDeleted,
		CreatedAt:   doc.Data.CreatedAt,
		UpdatedAt:   doc.Data.UpdatedAt,
	}
	for _, item := range doc.Data.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return o
}

func fromDomainOrder(o domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		AddressID:   o.AddressID,
		Items:       make([]orderItemDocument, 0, len(o.Items)),
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		IsDeleted:   o.IsDeleted,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return doc
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
