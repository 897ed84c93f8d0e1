package services

import (
	"context"
	"time"

	domain "github.com/gemvault/api/internal/domain"
)

// CatalogService manages categories, their embedded subcategories and product types.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	AddCategory(ctx context.Context, name string) (domain.Category, error)
	UpdateCategory(ctx context.Context, categoryID string, name string) (domain.Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	ListSubcategories(ctx context.Context, categoryID string) ([]domain.Subcategory, error)
	AddSubcategory(ctx context.Context, categoryID string, name string) (domain.Category, error)
	UpdateSubcategory(ctx context.Context, cmd UpdateSubcategoryCommand) (domain.Subcategory, error)
	DeleteSubcategory(ctx context.Context, subcategoryID string) error

	ListTypes(ctx context.Context) ([]domain.ProductType, error)
	AddType(ctx context.Context, name string) (domain.ProductType, error)
	DeleteType(ctx context.Context, typeID string) error
}

// ProductService manages products and their embedded variants.
type ProductService interface {
	ListProducts(ctx context.Context) ([]ProductView, error)
	ListVariants(ctx context.Context, productID string) ([]domain.Variant, error)
	AddProduct(ctx context.Context, cmd AddProductCommand) (domain.Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	UpdateVariant(ctx context.Context, cmd UpdateVariantCommand) (domain.Variant, error)
	DeleteVariant(ctx context.Context, variantID string) error
}

// OrderService places orders and tracks their status.
type OrderService interface {
	AddOrder(ctx context.Context, cmd AddOrderCommand) (OrderPlacement, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
	GetUserOrders(ctx context.Context, email string) ([]OrderView, error)
}

// UserService manages accounts, profiles and embedded addresses.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (AuthResult, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthResult, error)
	Logout(ctx context.Context, userID string) error
	GetUserByEmail(ctx context.Context, email string) (UserProfile, error)
	UpdateUser(ctx context.Context, cmd UpdateUserCommand) (domain.User, error)

	AddAddress(ctx context.Context, cmd AddAddressCommand) (domain.Address, error)
	ListAddresses(ctx context.Context, userID string) ([]domain.Address, error)
	UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (domain.Address, error)
	DeleteAddress(ctx context.Context, userID string, addressID string) error
}

// UpdateSubcategoryCommand renames a subcategory or moves it under another category.
type UpdateSubcategoryCommand struct {
	SubcategoryID string
	Name          domain.Optional[string]
	CategoryID    domain.Optional[string]
}

// ImageMapping associates stored upload filenames with the product or its variants.
// Building it from multipart field names is the transport's job.
type ImageMapping struct {
	Cover       string
	ByIndex     map[int][]string
	ByVariantID map[string][]string
	New         map[int][]string
}

// VariantInput carries the scalar fields of one variant.
type VariantInput struct {
	Name     domain.Optional[string]
	Price    domain.Optional[float64]
	Stock    domain.Optional[int]
	Size     domain.Optional[string]
	Material domain.Optional[string]
}

// AddProductCommand creates a product together with VariantCount variants.
type AddProductCommand struct {
	Name          string
	Description   string
	CategoryID    string
	SubcategoryID string
	TypeID        string
	VariantCount  int
	Variants      []VariantInput
	Images        ImageMapping
}

// VariantPatch updates an existing variant when ID is set, otherwise appends a new one.
type VariantPatch struct {
	ID string
	VariantInput
}

// UpdateProductCommand patches a product. Omitted fields keep their stored values.
type UpdateProductCommand struct {
	ProductID     string
	Name          domain.Optional[string]
	Description   domain.Optional[string]
	CategoryID    domain.Optional[string]
	SubcategoryID domain.Optional[string]
	TypeID        domain.Optional[string]
	Images        domain.Optional[[]string]
	Variants      []VariantPatch
	Uploads       ImageMapping
}

// UpdateVariantCommand patches one embedded variant. Non-empty Images replace the stored set.
type UpdateVariantCommand struct {
	VariantID string
	VariantInput
	Images []string
}

// CategorySummary is the category projection attached to product listings.
type CategorySummary struct {
	ID            string
	Name          string
	Subcategories []domain.Subcategory
}

// TypeSummary is the type projection attached to product listings.
type TypeSummary struct {
	ID   string
	Name string
}

// ProductView is a product with its category and type references resolved.
type ProductView struct {
	domain.Product
	Category *CategorySummary
	Type     *TypeSummary
}

// AddOrderCommand places an order for a user.
type AddOrderCommand struct {
	UserID      string
	OrderNumber string
	AddressID   string
	Items       []domain.OrderItem
	TotalAmount float64
}

// UpdateOrderStatusCommand changes the status of an order owned by UserID.
type UpdateOrderStatusCommand struct {
	UserID  string
	OrderID string
	Status  string
}

// OrderPlacement is the result of AddOrder: the new order and the user's orders re-read.
type OrderPlacement struct {
	Order      domain.Order
	UserOrders []domain.Order
}

// ProductSummary is the product projection attached to order line items.
type ProductSummary struct {
	ID       string
	Name     string
	Variants []domain.Variant
}

// OrderItemView is an order line item with its product resolved.
type OrderItemView struct {
	domain.OrderItem
	Product *ProductSummary
}

// OrderView is an order with product summaries on every line item.
type OrderView struct {
	domain.Order
	Items []OrderItemView
}

// OrderEvent is published when orders are created or change status.
type OrderEvent struct {
	Type        string
	OrderID     string
	OrderNumber string
	UserID      string
	Status      domain.OrderStatus
	OccurredAt  time.Time
}

// Order event types.
const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
)

// OrderEventPublisher delivers order events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// RegisterCommand creates an account.
type RegisterCommand struct {
	Name            string
	Email           string
	PhoneNumber     string
	Password        string
	ConfirmPassword string
	Gender          string
}

// LoginCommand authenticates by email or phone number.
type LoginCommand struct {
	Email       string
	PhoneNumber string
	Password    string
}

// AuthResult carries the issued token and the authenticated user.
type AuthResult struct {
	Token string
	User  domain.User
}

// UserProfile is a user with populated orders.
type UserProfile struct {
	User   domain.User
	Orders []OrderView
}

// UpdateUserCommand patches profile fields.
type UpdateUserCommand struct {
	UserID string
	Name   domain.Optional[string]
	Gender domain.Optional[string]
	Email  domain.Optional[string]
}

// AddAddressCommand appends an address to a user.
type AddAddressCommand struct {
	UserID  string
	Address string
	City    string
	State   string
	Country string
	Pincode string
}

// UpdateAddressCommand patches one embedded address.
type UpdateAddressCommand struct {
	UserID    string
	AddressID string
	Address   domain.Optional[string]
	City      domain.Optional[string]
	State     domain.Optional[string]
	Country   domain.Optional[string]
	Pincode   domain.Optional[string]
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash string, password string) error
}

// TokenIssuer issues credential tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}
