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

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Categories  repositories.CategoryRepository
	Types       repositories.TypeRepository
	Clock       func() time.Time
	IDGenerator func() string
	Meter       metric.Meter
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	categories   repositories.CategoryRepository
	types        repositories.TypeRepository
	clock        func() time.Time
	newID        func() string
	reassignGaps gapCounter
	logger       func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	if deps.Types == nil {
		return nil, errors.New("catalog service: type repository is required")
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

	return &catalogService{
		categories: deps.Categories,
		types:      deps.Types,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        idGen,
		reassignGaps: newGapCounter(deps.Meter, metricReassignGaps, "Subcategories removed from one category but not added to the next."),
		logger:       logger,
	}, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	const op = "catalog.list_categories"
	categories, err := s.categories.ListActive(ctx)
	if err != nil {
		return nil, translateRepoError(op, "category", err)
	}
	if len(categories) == 0 {
		return nil, notFoundError(op, "no categories found")
	}
	return categories, nil
}

func (s *catalogService) AddCategory(ctx context.Context, name string) (domain.Category, error) {
	const op = "catalog.add_category"
	name = textutil.Clean(name)
	if name == "" {
		return domain.Category{}, validationError(op, "category name is required")
	}

	now := s.clock()
	category := domain.Category{
		ID:            s.newID(),
		Name:          name,
		Subcategories: []domain.Subcategory{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		return domain.Category{}, translateRepoError(op, "category", err)
	}
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, categoryID string, name string) (domain.Category, error) {
	const op = "catalog.update_category"
	categoryID, err := requireID(op, "category id", categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	name = textutil.Clean(name)
	if name == "" {
		return domain.Category{}, validationError(op, "category name is required")
	}

	updated, err := s.categories.Rename(ctx, categoryID, name, s.clock())
	if err != nil {
		return domain.Category{}, translateRepoError(op, "category", err)
	}
	return updated, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	const op = "catalog.delete_category"
	categoryID, err := requireID(op, "category id", categoryID)
	if err != nil {
		return err
	}
	if err := s.categories.SoftDelete(ctx, categoryID, s.clock()); err != nil {
		return translateRepoError(op, "category", err)
	}
	return nil
}

func (s *catalogService) ListSubcategories(ctx context.Context, categoryID string) ([]domain.Subcategory, error) {
	const op = "catalog.list_subcategories"
	categoryID, err := requireID(op, "category id", categoryID)
	if err != nil {
		return nil, err
	}
	category, err := s.categories.FindActiveByID(ctx, categoryID)
	if err != nil {
		return nil, translateRepoError(op, "category", err)
	}
	subs := category.ActiveSubcategories()
	if len(subs) == 0 {
		return nil, notFoundError(op, "no subcategories found")
	}
	return subs, nil
}

func (s *catalogService) AddSubcategory(ctx context.Context, categoryID string, name string) (domain.Category, error) {
	const op = "catalog.add_subcategory"
	categoryID, err := requireID(op, "category id", categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	name = textutil.Clean(name)
	if name == "" {
		return domain.Category{}, validationError(op, "subcategory name is required")
	}

	now := s.clock()
	sub := domain.Subcategory{
		ID:         s.newID(),
		Name:       name,
		CategoryID: categoryID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	updated, err := s.categories.PushSubcategory(ctx, categoryID, sub, now)
	if err != nil {
		return domain.Category{}, translateRepoError(op, "category", err)
	}
	return updated, nil
}

func (s *catalogService) UpdateSubcategory(ctx context.Context, cmd UpdateSubcategoryCommand) (domain.Subcategory, error) {
	const op = "catalog.update_subcategory"
	subID, err := requireID(op, "subcategory id", cmd.SubcategoryID)
	if err != nil {
		return domain.Subcategory{}, err
	}

	name := ""
	if cmd.Name.IsSet() {
		name = textutil.Clean(cmd.Name.Value())
		if name == "" {
			return domain.Subcategory{}, validationError(op, "subcategory name must not be blank")
		}
	}

	current, err := s.categories.FindActiveBySubcategory(ctx, subID)
	if err != nil {
		return domain.Subcategory{}, translateRepoError(op, "subcategory", err)
	}

	if cmd.CategoryID.IsSet() {
		targetID, err := requireID(op, "category id", cmd.CategoryID.Value())
		if err != nil {
			return domain.Subcategory{}, err
		}
		if targetID != current.ID {
			return s.reassignSubcategory(ctx, current, subID, targetID, name)
		}
	}

	if name == "" {
		return domain.Subcategory{}, validationError(op, "no update provided")
	}
	updated, err := s.categories.RenameSubcategory(ctx, subID, name, s.clock())
	if err != nil {
		return domain.Subcategory{}, translateRepoError(op, "subcategory", err)
	}
	sub, ok := updated.FindSubcategory(subID)
	if !ok {
		return domain.Subcategory{}, notFoundError(op, "subcategory not found")
	}
	return sub, nil
}

// reassignSubcategory pulls the subcategory from its parent and pushes it into the target.
// The two writes are independent; a failed push leaves the subcategory in neither category.
func (s *catalogService) reassignSubcategory(ctx context.Context, current domain.Category, subID, targetID, name string) (domain.Subcategory, error) {
	const op = "catalog.reassign_subcategory"
	if _, err := s.categories.FindActiveByID(ctx, targetID); err != nil {
		return domain.Subcategory{}, translateRepoError(op, "category", err)
	}

	sub, ok := current.FindSubcategory(subID)
	if !ok {
		return domain.Subcategory{}, notFoundError(op, "subcategory not found")
	}
	now := s.clock()
	if name != "" {
		sub.Name = name
	}
	sub.CategoryID = targetID
	sub.UpdatedAt = now

	if err := s.categories.PullSubcategory(ctx, current.ID, subID, now); err != nil {
		return domain.Subcategory{}, translateRepoError(op, "subcategory", err)
	}
	if _, err := s.categories.PushSubcategory(ctx, targetID, sub, now); err != nil {
		s.reassignGaps.record(ctx,
			attribute.String("from_category", current.ID),
			attribute.String("to_category", targetID),
		)
		s.logger(ctx, "catalog.subcategory.reassign_gap", map[string]any{
			"subcategoryId":  subID,
			"fromCategoryId": current.ID,
			"toCategoryId":   targetID,
			"error":          err.Error(),
		})
		msg := fmt.Sprintf("subcategory %s removed from category %s but not added to category %s", subID, current.ID, targetID)
		return domain.Subcategory{}, persistenceError(op, msg, err)
	}
	return sub, nil
}

func (s *catalogService) DeleteSubcategory(ctx context.Context, subcategoryID string) error {
	const op = "catalog.delete_subcategory"
	subID, err := requireID(op, "subcategory id", subcategoryID)
	if err != nil {
		return err
	}
	if _, err := s.categories.SoftDeleteSubcategory(ctx, subID, s.clock()); err != nil {
		return translateRepoError(op, "subcategory", err)
	}
	return nil
}

func (s *catalogService) ListTypes(ctx context.Context) ([]domain.ProductType, error) {
	const op = "catalog.list_types"
	types, err := s.types.ListActive(ctx)
	if err != nil {
		return nil, translateRepoError(op, "type", err)
	}
	if len(types) == 0 {
		return nil, notFoundError(op, "no types found")
	}
	return types, nil
}

func (s *catalogService) AddType(ctx context.Context, name string) (domain.ProductType, error) {
	const op = "catalog.add_type"
	name = textutil.Clean(name)
	if name == "" {
		return domain.ProductType{}, validationError(op, "type name is required")
	}
	now := s.clock()
	productType := domain.ProductType{
		ID:        s.newID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.types.Insert(ctx, productType); err != nil {
		return domain.ProductType{}, translateRepoError(op, "type", err)
	}
	return productType, nil
}

func (s *catalogService) DeleteType(ctx context.Context, typeID string) error {
	const op = "catalog.delete_type"
	typeID, err := requireID(op, "type id", typeID)
	if err != nil {
		return err
	}
	if err := s.types.SoftDelete(ctx, typeID, s.clock()); err != nil {
		return translateRepoError(op, "type", err)
	}
	return nil
}

// requireID trims the identifier and checks that it is a well-formed document id.
func requireID(op, field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", validationError(op, "%s is required", field)
	}
	if !domain.IsValidID(value) {
		return "", validationError(op, "%s is malformed", field)
	}
	return value, nil
}
