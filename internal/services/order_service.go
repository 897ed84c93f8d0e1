package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/textutil"
	"github.com/gemvault/api/internal/repositories"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Users       repositories.UserRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Meter       metric.Meter
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	users    repositories.UserRepository
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	linkGaps gapCounter
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("order service: user repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = domain.NewID
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &orderService{
		orders:   deps.Orders,
		users:    deps.Users,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		linkGaps: newGapCounter(deps.Meter, metricOrderLinkGaps, "Orders persisted without a reference on the owning user."),
		logger:   logger,
	}, nil
}

func (s *orderService) AddOrder(ctx context.Context, cmd AddOrderCommand) (OrderPlacement, error) {
	const op = "orders.add"
	userID, err := requireID(op, "user id", cmd.UserID)
	if err != nil {
		return OrderPlacement{}, err
	}
	orderNumber := textutil.Clean(cmd.OrderNumber)
	if orderNumber == "" {
		return OrderPlacement{}, validationError(op, "order number is required")
	}
	addressID, err := requireID(op, "address id", cmd.AddressID)
	if err != nil {
		return OrderPlacement{}, err
	}
	if len(cmd.Items) == 0 {
		return OrderPlacement{}, validationError(op, "order must contain at least one item")
	}
	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		if _, err := requireID(op, fmt.Sprintf("items[%d] product id", i), item.ProductID); err != nil {
			return OrderPlacement{}, err
		}
		if _, err := requireID(op, fmt.Sprintf("items[%d] variant id", i), item.VariantID); err != nil {
			return OrderPlacement{}, err
		}
		if item.Quantity <= 0 {
			return OrderPlacement{}, validationError(op, "items[%d] quantity must be greater than zero", i)
		}
		if item.Price <= 0 {
			return OrderPlacement{}, validationError(op, "items[%d] price must be greater than zero", i)
		}
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.VariantID = strings.TrimSpace(item.VariantID)
		items = append(items, item)
	}
	if cmd.TotalAmount <= 0 {
		return OrderPlacement{}, validationError(op, "total amount must be greater than zero")
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return OrderPlacement{}, translateRepoError(op, "user", err)
	}

	now := s.clock()
	order := domain.Order{
		ID:          s.newID(),
		OrderNumber: orderNumber,
		UserID:      userID,
		AddressID:   addressID,
		Items:       items,
		TotalAmount: cmd.TotalAmount,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		return OrderPlacement{}, translateRepoError(op, "order", err)
	}

	if err := s.users.PushOrder(ctx, userID, order.ID, now); err != nil {
		s.linkGaps.record(ctx, attribute.String("user_id", userID))
		s.logger(ctx, "orders.link_gap", map[string]any{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"userId":      userID,
			"error":       err.Error(),
		})
		msg := fmt.Sprintf("order %s persisted but not linked to user %s", order.OrderNumber, userID)
		return OrderPlacement{}, persistenceError(op, msg, err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        OrderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      userID,
		Status:      order.Status,
		OccurredAt:  now,
	})

	userOrders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return OrderPlacement{}, translateRepoError(op, "order", err)
	}
	return OrderPlacement{Order: order, UserOrders: userOrders}, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	const op = "orders.update_status"
	userID, err := requireID(op, "user id", cmd.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	orderID, err := requireID(op, "order id", cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(cmd.Status)))
	if status == "" {
		return domain.Order{}, validationError(op, "status is required")
	}
	if !status.Valid() {
		return domain.Order{}, validationError(op, "unknown order status %q", cmd.Status)
	}

	now := s.clock()
	updated, err := s.orders.UpdateStatus(ctx, userID, orderID, status, now)
	if err != nil {
		return domain.Order{}, translateRepoError(op, "order", err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        OrderEventStatusChanged,
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		UserID:      updated.UserID,
		Status:      updated.Status,
		OccurredAt:  now,
	})
	return updated, nil
}

func (s *orderService) GetUserOrders(ctx context.Context, email string) ([]OrderView, error) {
	const op = "orders.list_for_user"
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, validationError(op, "email is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, translateRepoError(op, "user", err)
	}
	return populateOrders(ctx, op, s.orders, s.products, user.Orders)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"status": string(event.Status),
			"error":  err.Error(),
		})
	}
}

// populateOrders loads the referenced orders in reference order and resolves a product
// summary for every line item.
func populateOrders(ctx context.Context, op string, orders repositories.OrderRepository, products repositories.ProductRepository, orderIDs []string) ([]OrderView, error) {
	if len(orderIDs) == 0 {
		return []OrderView{}, nil
	}
	found, err := orders.FindByIDs(ctx, uniqueStrings(orderIDs))
	if err != nil {
		return nil, translateRepoError(op, "order", err)
	}
	orderByID := make(map[string]domain.Order, len(found))
	productIDs := make([]string, 0)
	for _, o := range found {
		orderByID[o.ID] = o
		for _, item := range o.Items {
			productIDs = append(productIDs, item.ProductID)
		}
	}

	summaries := make(map[string]ProductSummary)
	if len(productIDs) > 0 {
		list, err := products.FindByIDs(ctx, uniqueStrings(productIDs))
		if err != nil {
			return nil, translateRepoError(op, "product", err)
		}
		for _, p := range list {
			summaries[p.ID] = ProductSummary{ID: p.ID, Name: p.Name, Variants: p.ActiveVariants()}
		}
	}

	views := make([]OrderView, 0, len(found))
	seen := make(map[string]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		o, ok := orderByID[id]
		if !ok || o.IsDeleted {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		items := make([]OrderItemView, 0, len(o.Items))
		for _, item := range o.Items {
			view := OrderItemView{OrderItem: item}
			if summary, ok := summaries[item.ProductID]; ok {
				view.Product = &summary
			}
			items = append(items, view)
		}
		views = append(views, OrderView{Order: o, Items: items})
	}
	return views, nil
}
