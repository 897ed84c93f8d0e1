package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/idempotency"
	"github.com/gemvault/api/internal/services"
)

func newOrderRouter(orders services.OrderService) http.Handler {
	orderHandlers := NewOrderHandlers(orders)
	userHandlers := NewUserHandlers(&stubUserService{}, WithUserScopedRoutes(orderHandlers.UserRoutes))
	return NewRouter(WithUserRoutes(userHandlers), WithOrderRoutes(orderHandlers))
}

func TestAddOrderAcceptsItemsEncodedAsString(t *testing.T) {
	t.Parallel()

	var got services.AddOrderCommand
	orders := &stubOrderService{
		addOrder: func(_ context.Context, cmd services.AddOrderCommand) (services.OrderPlacement, error) {
			got = cmd
			order := domain.Order{ID: "order-1", OrderNumber: cmd.OrderNumber, UserID: cmd.UserID, Status: domain.OrderStatusPending}
			return services.OrderPlacement{Order: order, UserOrders: []domain.Order{order}}, nil
		},
	}

	rr := serve(newOrderRouter(orders), newJSONRequest(t, http.MethodPost, "/api/v1/users/user-1/orders", map[string]any{
		"orderNumber": "GV-1001",
		"addressId":   "addr-1",
		"items":       `[{"productId":"prod-1","variantId":"var-1","quantity":"2","price":"150.25"}]`,
		"totalAmount": "300.50",
	}))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, 300.5, got.TotalAmount)
	require.Len(t, got.Items, 1)
	assert.Equal(t, domain.OrderItem{ProductID: "prod-1", VariantID: "var-1", Quantity: 2, Price: 150.25}, got.Items[0])

	body := decodeBody(t, rr)
	assert.Equal(t, "pending", body["order"].(map[string]any)["status"])
	assert.Len(t, body["orders"], 1)
}

func TestAddOrderReplaysRetriedPlacement(t *testing.T) {
	t.Parallel()

	var calls int
	orders := &stubOrderService{
		addOrder: func(_ context.Context, cmd services.AddOrderCommand) (services.OrderPlacement, error) {
			calls++
			return services.OrderPlacement{Order: domain.Order{ID: "order-9", OrderNumber: cmd.OrderNumber}}, nil
		},
	}
	orderHandlers := NewOrderHandlers(orders, WithPlacementMiddleware(idempotency.Middleware(idempotency.NewMemoryStore())))
	router := NewRouter(WithUserRoutes(NewUserHandlers(&stubUserService{}, WithUserScopedRoutes(orderHandlers.UserRoutes))))

	payload := map[string]any{
		"orderNumber": "GV-2001",
		"addressId":   "addr-1",
		"items":       []map[string]any{{"productId": "prod-1", "variantId": "var-1", "quantity": 1, "price": 10}},
		"totalAmount": 10,
	}
	var codes []int
	for i := 0; i < 2; i++ {
		req := newJSONRequest(t, http.MethodPost, "/api/v1/users/user-1/orders", payload)
		req.Header.Set(idempotency.HeaderName, "retry-1")
		rr := serve(router, req)
		codes = append(codes, rr.Code)
		if i == 1 {
			assert.Equal(t, "true", rr.Header().Get(idempotency.ReplayHeader))
			assert.Equal(t, "order-9", decodeBody(t, rr)["order"].(map[string]any)["id"])
		}
	}

	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated}, codes)
	assert.Equal(t, 1, calls)
}

func TestAddOrderAcceptsItemsArray(t *testing.T) {
	t.Parallel()

	var got services.AddOrderCommand
	orders := &stubOrderService{
		addOrder: func(_ context.Context, cmd services.AddOrderCommand) (services.OrderPlacement, error) {
			got = cmd
			return services.OrderPlacement{Order: domain.Order{ID: "order-2"}}, nil
		},
	}

	rr := serve(newOrderRouter(orders), newJSONRequest(t, http.MethodPost, "/api/v1/users/user-1/orders", map[string]any{
		"orderNumber": "GV-1002",
		"addressId":   "addr-1",
		"items":       []map[string]any{{"productId": "prod-1", "variantId": "var-1", "quantity": 1, "price": 10}},
		"totalAmount": 10,
	}))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, got.Items, 1)
	assert.Equal(t, 1, got.Items[0].Quantity)
}

func TestAddOrderRejectsBadItems(t *testing.T) {
	t.Parallel()

	router := newOrderRouter(&stubOrderService{})

	rr := serve(router, newJSONRequest(t, http.MethodPost, "/api/v1/users/user-1/orders", map[string]any{
		"orderNumber": "GV-1",
		"addressId":   "addr-1",
		"items":       []map[string]any{{"productId": "p", "variantId": "v", "quantity": "many", "price": 1}},
		"totalAmount": 1,
	}))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["fields"], "items[0].quantity")
}

func TestUpdateOrderStatusSurfacesValidation(t *testing.T) {
	t.Parallel()

	var got services.UpdateOrderStatusCommand
	orders := &stubOrderService{
		updateOrderStatus: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
			got = cmd
			return domain.Order{}, &services.Error{Kind: services.KindValidation, Message: `unknown order status "lost"`}
		},
	}

	rr := serve(newOrderRouter(orders), newJSONRequest(t, http.MethodPut, "/api/v1/users/user-1/orders/order-9", map[string]string{"status": "lost"}))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "order-9", got.OrderID)
	assert.Equal(t, "validation", decodeBody(t, rr)["error"])
}

func TestGetUserOrdersByEmail(t *testing.T) {
	t.Parallel()

	var gotEmail string
	orders := &stubOrderService{
		getUserOrders: func(_ context.Context, email string) ([]services.OrderView, error) {
			gotEmail = email
			return nil, nil
		},
	}

	rr := serve(newOrderRouter(orders), newJSONRequest(t, http.MethodGet, "/api/v1/orders?email=ada@example.com", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ada@example.com", gotEmail)
	assert.Equal(t, []any{}, decodeBody(t, rr)["orders"])
}
