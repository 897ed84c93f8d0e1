package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/services"
)

// OrderHandlers exposes order placement, status changes and order history.
type OrderHandlers struct {
	orders    services.OrderService
	placement []func(http.Handler) http.Handler
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithPlacementMiddleware wraps only the order placement endpoint, e.g. with the
// Idempotency-Key guard.
func WithPlacementMiddleware(mw ...func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.placement = append(h.placement, mw...)
	}
}

// NewOrderHandlers constructs order handlers backed by the order service.
func NewOrderHandlers(orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the order history endpoint on the API router.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Get("/orders", h.getUserOrders)
}

// UserRoutes registers the endpoints scoped to one user. It is mounted under /users/{userID}.
func (h *OrderHandlers) UserRoutes(r chi.Router) {
	r.With(h.placement...).Post("/orders", h.addOrder)
	r.Put("/orders/{orderID}", h.updateOrderStatus)
}

type addOrderRequest struct {
	OrderNumber string          `json:"orderNumber" validate:"required"`
	AddressID   string          `json:"addressId" validate:"required"`
	Items       json.RawMessage `json:"items" validate:"required"`
	TotalAmount any             `json:"totalAmount" validate:"required"`
}

// orderItemRequest accepts numbers or numeric strings for quantity and price.
type orderItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  any    `json:"quantity"`
	Price     any    `json:"price"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *OrderHandlers) addOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req addOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	items, field, err := parseOrderItems(req.Items)
	if err != nil {
		writeFormError(w, r, field, err.Error())
		return
	}
	total, err := cast.ToFloat64E(req.TotalAmount)
	if err != nil {
		writeFormError(w, r, "totalAmount", "must be a number")
		return
	}

	placement, err := h.orders.AddOrder(ctx, services.AddOrderCommand{
		UserID:      chi.URLParam(r, "userID"),
		OrderNumber: req.OrderNumber,
		AddressID:   req.AddressID,
		Items:       items,
		TotalAmount: total,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+placement.Order.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"order":  buildOrderPayload(placement.Order),
		"orders": buildOrderPayloads(placement.UserOrders),
	})
}

func (h *OrderHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateOrderStatusRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	order, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		UserID:  chi.URLParam(r, "userID"),
		OrderID: chi.URLParam(r, "orderID"),
		Status:  req.Status,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) getUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeFormError(w, r, "email", "is required")
		return
	}
	views, err := h.orders.GetUserOrders(ctx, email)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": buildOrderViewPayloads(views)})
}

// parseOrderItems reads items given either as a JSON array or as a string holding one.
func parseOrderItems(raw json.RawMessage) ([]domain.OrderItem, string, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}
	var reqs []orderItemRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		return nil, "items", fmt.Errorf("must be a list of order items")
	}
	items := make([]domain.OrderItem, 0, len(reqs))
	for i, req := range reqs {
		quantity, err := cast.ToIntE(req.Quantity)
		if err != nil {
			return nil, fmt.Sprintf("items[%d].quantity", i), fmt.Errorf("must be an integer")
		}
		price, err := cast.ToFloat64E(req.Price)
		if err != nil {
			return nil, fmt.Sprintf("items[%d].price", i), fmt.Errorf("must be a number")
		}
		items = append(items, domain.OrderItem{
			ProductID: req.ProductID,
			VariantID: req.VariantID,
			Quantity:  quantity,
			Price:     price,
		})
	}
	return items, "", nil
}
