package domain

import (
	"time"
)

// MaxVariantImages caps the number of image filenames stored on a single variant.
const MaxVariantImages = 4

// Category groups products and owns its embedded subcategories.
type Category struct {
	ID            string
	Name          string
	Subcategories []Subcategory
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Subcategory lives inside exactly one Category. CategoryID always equals the owner's ID.
type Subcategory struct {
	ID         string
	Name       string
	CategoryID string
	IsDeleted  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ActiveSubcategories returns the non-deleted subcategories that point back to the category.
func (c Category) ActiveSubcategories() []Subcategory {
	out := make([]Subcategory, 0, len(c.Subcategories))
	for _, sub := range c.Subcategories {
		if sub.IsDeleted || sub.CategoryID != c.ID {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// FindSubcategory returns the embedded subcategory with the given id.
func (c Category) FindSubcategory(id string) (Subcategory, bool) {
	for _, sub := range c.Subcategories {
		if sub.ID == id {
			return sub, true
		}
	}
	return Subcategory{}, false
}

// ProductType is the flat product classification ("ring", "necklace", ...).
type ProductType struct {
	ID        string
	Name      string
	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product owns an ordered list of embedded variants.
type Product struct {
	ID            string
	Name          string
	Description   string
	CategoryID    string
	SubcategoryID string
	TypeID        string
	Images        []string
	Variants      []Variant
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Variant is a purchasable configuration of a product.
type Variant struct {
	ID        string
	ProductID string
	Name      string
	Price     float64
	Stock     int
	Size      string
	Material  string
	Images    []string
	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveVariants returns the variants that have not been soft deleted.
func (p Product) ActiveVariants() []Variant {
	out := make([]Variant, 0, len(p.Variants))
	for _, variant := range p.Variants {
		if !variant.IsDeleted {
			out = append(out, variant)
		}
	}
	return out
}

// FindVariant returns the embedded variant and its position.
func (p Product) FindVariant(id string) (Variant, int, bool) {
	for i, variant := range p.Variants {
		if variant.ID == id {
			return variant, i, true
		}
	}
	return Variant{}, -1, false
}

// Gender values accepted on user profiles.
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
)

// User is a storefront customer. Addresses are embedded, orders are referenced by id.
type User struct {
	ID              string
	Name            string
	Email           string
	PhoneNumber     string
	PasswordHash    string
	Gender          string
	Addresses       []Address
	Orders          []string
	CredentialToken string
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Address is a postal address embedded in a User.
type Address struct {
	ID        string
	Address   string
	City      string
	State     string
	Country   string
	Pincode   string
	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveAddresses returns the user's non-deleted addresses.
func (u User) ActiveAddresses() []Address {
	out := make([]Address, 0, len(u.Addresses))
	for _, addr := range u.Addresses {
		if !addr.IsDeleted {
			out = append(out, addr)
		}
	}
	return out
}

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether the status is one of the known states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Order references a user, one of the user's addresses, and snapshot line items.
type Order struct {
	ID          string
	OrderNumber string
	UserID      string
	AddressID   string
	Items       []OrderItem
	TotalAmount float64
	Status      OrderStatus
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderItem captures the price at the time the order was placed.
type OrderItem struct {
	ProductID string
	VariantID string
	Quantity  int
	Price     float64
}

// HealthStatus values reported by readiness checks.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck captures one dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates the dependency probes of a readiness check.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
