package handlers

import (
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/services"
)

type subcategoryPayload struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CategoryID string    `json:"categoryId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type categoryPayload struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Subcategories []subcategoryPayload `json:"subcategories"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

type typePayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type variantPayload struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	Size      string    `json:"size"`
	Material  string    `json:"material"`
	Images    []string  `json:"images"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type productPayload struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	CategoryID    string           `json:"categoryId"`
	SubcategoryID string           `json:"subcategoryId"`
	TypeID        string           `json:"typeId"`
	Images        []string         `json:"images"`
	Variants      []variantPayload `json:"variants"`
	IsDeleted     bool             `json:"isDeleted"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	Category      *categoryRef     `json:"category,omitempty"`
	Type          *typeRef         `json:"type,omitempty"`
}

type categoryRef struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Subcategories []subcategoryPayload `json:"subcategories"`
}

type typeRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type addressPayload struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Country   string    `json:"country"`
	Pincode   string    `json:"pincode"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type userPayload struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	PhoneNumber string           `json:"phoneNumber"`
	Gender      string           `json:"gender"`
	Addresses   []addressPayload `json:"addresses"`
	Orders      []string         `json:"orders"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type orderItemPayload struct {
	ProductID string       `json:"productId"`
	VariantID string       `json:"variantId"`
	Quantity  int          `json:"quantity"`
	Price     float64      `json:"price"`
	Product   *productStub `json:"product,omitempty"`
}

type productStub struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Variants []variantPayload `json:"variants"`
}

type orderPayload struct {
	ID          string             `json:"id"`
	OrderNumber string             `json:"orderNumber"`
	UserID      string             `json:"userId"`
	AddressID   string             `json:"addressId"`
	Items       []orderItemPayload `json:"items"`
	TotalAmount float64            `json:"totalAmount"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func buildSubcategoryPayloads(subs []domain.Subcategory) []subcategoryPayload {
	out := make([]subcategoryPayload, 0, len(subs))
	for _, sub := range subs {
		out = append(out, buildSubcategoryPayload(sub))
	}
	return out
}

func buildSubcategoryPayload(sub domain.Subcategory) subcategoryPayload {
	return subcategoryPayload{
		ID:         sub.ID,
		Name:       sub.Name,
		CategoryID: sub.CategoryID,
		CreatedAt:  sub.CreatedAt,
		UpdatedAt:  sub.UpdatedAt,
	}
}

// buildCategoryPayload exposes only the active subcategories.
func buildCategoryPayload(category domain.Category) categoryPayload {
	return categoryPayload{
		ID:            category.ID,
		Name:          category.Name,
		Subcategories: buildSubcategoryPayloads(category.ActiveSubcategories()),
		CreatedAt:     category.CreatedAt,
		UpdatedAt:     category.UpdatedAt,
	}
}

func buildTypePayload(t domain.ProductType) typePayload {
	return typePayload{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

func buildVariantPayloads(variants []domain.Variant) []variantPayload {
	out := make([]variantPayload, 0, len(variants))
	for _, v := range variants {
		out = append(out, buildVariantPayload(v))
	}
	return out
}

func buildVariantPayload(v domain.Variant) variantPayload {
	return variantPayload{
		ID:        v.ID,
		ProductID: v.ProductID,
		Name:      v.Name,
		Price:     v.Price,
		Stock:     v.Stock,
		Size:      v.Size,
		Material:  v.Material,
		Images:    nonNil(v.Images),
		IsDeleted: v.IsDeleted,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

func buildProductPayload(p domain.Product) productPayload {
	return productPayload{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		CategoryID:    p.CategoryID,
		SubcategoryID: p.SubcategoryID,
		TypeID:        p.TypeID,
		Images:        nonNil(p.Images),
		Variants:      buildVariantPayloads(p.Variants),
		IsDeleted:     p.IsDeleted,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func buildProductViewPayload(view services.ProductView) productPayload {
	payload := buildProductPayload(view.Product)
	if view.Category != nil {
		payload.Category = &categoryRef{
			ID:            view.Category.ID,
			Name:          view.Category.Name,
			Subcategories: buildSubcategoryPayloads(view.Category.Subcategories),
		}
	}
	if view.Type != nil {
		payload.Type = &typeRef{ID: view.Type.ID, Name: view.Type.Name}
	}
	return payload
}

func buildAddressPayloads(addresses []domain.Address) []addressPayload {
	out := make([]addressPayload, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, buildAddressPayload(a))
	}
	return out
}

func buildAddressPayload(a domain.Address) addressPayload {
	return addressPayload{
		ID:        a.ID,
		Address:   a.Address,
		City:      a.City,
		State:     a.State,
		Country:   a.Country,
		Pincode:   a.Pincode,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// buildUserPayload never exposes the password hash or stored token.
func buildUserPayload(u domain.User) userPayload {
	return userPayload{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Gender:      u.Gender,
		Addresses:   buildAddressPayloads(u.ActiveAddresses()),
		Orders:      nonNil(u.Orders),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func buildOrderPayload(o domain.Order) orderPayload {
	payload := orderPayload{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		AddressID:   o.AddressID,
		Items:       make([]orderItemPayload, 0, len(o.Items)),
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for _, item := range o.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return payload
}

func buildOrderPayloads(orders []domain.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, o := range orders {
		out = append(out, buildOrderPayload(o))
	}
	return out
}

func buildOrderViewPayloads(views []services.OrderView) []orderPayload {
	out := make([]orderPayload, 0, len(views))
	for _, view := range views {
		payload := buildOrderPayload(view.Order)
		payload.Items = make([]orderItemPayload, 0, len(view.Items))
		for _, item := range view.Items {
			entry := orderItemPayload{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
				Price:     item.Price,
			}
			if item.Product != nil {
				entry.Product = &productStub{
					ID:       item.Product.ID,
					Name:     item.Product.Name,
					Variants: buildVariantPayloads(item.Product.Variants),
				}
			}
			payload.Items = append(payload.Items, entry)
		}
		out = append(out, payload)
	}
	return out
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
