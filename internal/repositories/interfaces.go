package repositories

import (
	"context"
	"time"

	domain "github.com/gemvault/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Categories() CategoryRepository
	Types() TypeRepository
	Products() ProductRepository
	Users() UserRepository
	Orders() OrderRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CategoryRepository persists categories together with their embedded subcategories.
// Subcategory mutations are single-document writes against the owning category.
type CategoryRepository interface {
	ListActive(ctx context.Context) ([]domain.Category, error)
	FindActiveByID(ctx context.Context, categoryID string) (domain.Category, error)
	FindByIDs(ctx context.Context, categoryIDs []string) ([]domain.Category, error)
	Insert(ctx context.Context, category domain.Category) error
	// Rename only matches non-deleted categories.
	Rename(ctx context.Context, categoryID string, name string, updatedAt time.Time) (domain.Category, error)
	SoftDelete(ctx context.Context, categoryID string, deletedAt time.Time) error

	// FindActiveBySubcategory returns the non-deleted category whose array holds the subcategory.
	FindActiveBySubcategory(ctx context.Context, subcategoryID string) (domain.Category, error)
	// PushSubcategory appends to a non-deleted category.
	PushSubcategory(ctx context.Context, categoryID string, sub domain.Subcategory, updatedAt time.Time) (domain.Category, error)
	PullSubcategory(ctx context.Context, categoryID string, subcategoryID string, updatedAt time.Time) error
	RenameSubcategory(ctx context.Context, subcategoryID string, name string, updatedAt time.Time) (domain.Category, error)
	SoftDeleteSubcategory(ctx context.Context, subcategoryID string, deletedAt time.Time) (domain.Category, error)
}

// TypeRepository persists the flat product type collection.
type TypeRepository interface {
	ListActive(ctx context.Context) ([]domain.ProductType, error)
	FindByIDs(ctx context.Context, typeIDs []string) ([]domain.ProductType, error)
	Insert(ctx context.Context, productType domain.ProductType) error
	SoftDelete(ctx context.Context, typeID string, deletedAt time.Time) error
}

// ProductRepository persists products together with their embedded variants.
type ProductRepository interface {
	ListActive(ctx context.Context) ([]domain.Product, error)
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error)
	Insert(ctx context.Context, product domain.Product) error
	// Replace overwrites the whole product document, variants included.
	Replace(ctx context.Context, product domain.Product) error
	SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error

	FindByVariant(ctx context.Context, variantID string) (domain.Product, error)
	// SetVariant overwrites the embedded variant matched by variant.ID in place.
	SetVariant(ctx context.Context, variant domain.Variant) (domain.Product, error)
	SoftDeleteVariant(ctx context.Context, variantID string, deletedAt time.Time) (domain.Product, error)
}

// UserRepository persists users together with their embedded addresses and order references.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	// FindByLogin matches a non-deleted user by email or phone number, whichever is supplied.
	FindByLogin(ctx context.Context, email string, phoneNumber string) (domain.User, error)
	EmailTaken(ctx context.Context, email string, excludeUserID string) (bool, error)
	PhoneTaken(ctx context.Context, phoneNumber string, excludeUserID string) (bool, error)
	// UpdateProfile writes name, gender, email and updatedAt.
	UpdateProfile(ctx context.Context, user domain.User) error
	SetCredentialToken(ctx context.Context, userID string, token string, updatedAt time.Time) error

	PushAddress(ctx context.Context, userID string, address domain.Address) error
	SetAddress(ctx context.Context, userID string, address domain.Address) error
	SoftDeleteAddress(ctx context.Context, userID string, addressID string, deletedAt time.Time) error
	PushOrder(ctx context.Context, userID string, orderID string, updatedAt time.Time) error
}

// OrderRepository persists orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// UpdateStatus only matches an order owned by userID.
	UpdateStatus(ctx context.Context, userID string, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error)
}

// HealthRepository gathers dependency health information.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
