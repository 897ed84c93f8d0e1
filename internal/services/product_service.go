package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/textutil"
	"github.com/gemvault/api/internal/repositories"
)

// ProductServiceDeps bundles collaborators required to construct the product service.
type ProductServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Types       repositories.TypeRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type productService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	types      repositories.TypeRepository
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewProductService wires dependencies into a ProductService implementation.
func NewProductService(deps ProductServiceDeps) (ProductService, error) {
	if deps.Products == nil {
		return nil, errors.New("product service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("product service: category repository is required")
	}
	if deps.Types == nil {
		return nil, errors.New("product service: type repository is required")
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

	return &productService{
		products:   deps.Products,
		categories: deps.Categories,
		types:      deps.Types,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *productService) ListProducts(ctx context.Context) ([]ProductView, error) {
	const op = "products.list"
	products, err := s.products.ListActive(ctx)
	if err != nil {
		return nil, translateRepoError(op, "product", err)
	}
	if len(products) == 0 {
		return []ProductView{}, nil
	}

	categoryIDs := make([]string, 0, len(products))
	typeIDs := make([]string, 0, len(products))
	for _, p := range products {
		if p.CategoryID != "" {
			categoryIDs = append(categoryIDs, p.CategoryID)
		}
		if p.TypeID != "" {
			typeIDs = append(typeIDs, p.TypeID)
		}
	}

	categories, err := s.categories.FindByIDs(ctx, uniqueStrings(categoryIDs))
	if err != nil {
		return nil, translateRepoError(op, "category", err)
	}
	types, err := s.types.FindByIDs(ctx, uniqueStrings(typeIDs))
	if err != nil {
		return nil, translateRepoError(op, "type", err)
	}

	categoryByID := make(map[string]CategorySummary, len(categories))
	for _, c := range categories {
		categoryByID[c.ID] = CategorySummary{ID: c.ID, Name: c.Name, Subcategories: c.ActiveSubcategories()}
	}
	typeByID := make(map[string]TypeSummary, len(types))
	for _, t := range types {
		typeByID[t.ID] = TypeSummary{ID: t.ID, Name: t.Name}
	}

	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		p.Variants = p.ActiveVariants()
		view := ProductView{Product: p}
		if c, ok := categoryByID[p.CategoryID]; ok {
			view.Category = &c
		}
		if t, ok := typeByID[p.TypeID]; ok {
			view.Type = &t
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *productService) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	const op = "products.list_variants"
	productID, err := requireID(op, "product id", productID)
	if err != nil {
		return nil, err
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return []domain.Variant{}, nil
		}
		return nil, translateRepoError(op, "product", err)
	}
	if product.IsDeleted {
		return []domain.Variant{}, nil
	}
	return product.ActiveVariants(), nil
}

func (s *productService) AddProduct(ctx context.Context, cmd AddProductCommand) (domain.Product, error) {
	const op = "products.add"
	name := textutil.Clean(cmd.Name)
	if name == "" {
		return domain.Product{}, validationError(op, "product name is required")
	}
	description := textutil.Clean(cmd.Description)
	if description == "" {
		return domain.Product{}, validationError(op, "product description is required")
	}
	categoryID, err := requireID(op, "category id", cmd.CategoryID)
	if err != nil {
		return domain.Product{}, err
	}
	subcategoryID, err := requireID(op, "subcategory id", cmd.SubcategoryID)
	if err != nil {
		return domain.Product{}, err
	}
	typeID, err := requireID(op, "type id", cmd.TypeID)
	if err != nil {
		return domain.Product{}, err
	}
	if cmd.VariantCount < 1 {
		return domain.Product{}, validationError(op, "at least one variant is required")
	}
	if cmd.VariantCount > len(cmd.Variants) {
		return domain.Product{}, validationError(op, "missing required variant fields for variant %d", len(cmd.Variants))
	}

	now := s.clock()
	productID := s.newID()
	variants := make([]domain.Variant, 0, cmd.VariantCount)
	for i := 0; i < cmd.VariantCount; i++ {
		var input VariantInput
		if i < len(cmd.Variants) {
			input = cmd.Variants[i]
		}
		variant, err := s.newVariant(op, i, productID, input, cmd.Images.ByIndex[i], now)
		if err != nil {
			return domain.Product{}, err
		}
		variants = append(variants, variant)
	}

	images := []string{}
	if cmd.Images.Cover != "" {
		images = []string{cmd.Images.Cover}
	}

	product := domain.Product{
		ID:            productID,
		Name:          name,
		Description:   description,
		CategoryID:    categoryID,
		SubcategoryID: subcategoryID,
		TypeID:        typeID,
		Images:        images,
		Variants:      variants,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return domain.Product{}, translateRepoError(op, "product", err)
	}
	return product, nil
}

func (s *productService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (domain.Product, error) {
	const op = "products.update"
	productID, err := requireID(op, "product id", cmd.ProductID)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, translateRepoError(op, "product", err)
	}
	if product.IsDeleted {
		return domain.Product{}, notFoundError(op, "product not found")
	}

	if cmd.Name.IsSet() {
		if product.Name = textutil.Clean(cmd.Name.Value()); product.Name == "" {
			return domain.Product{}, validationError(op, "product name must not be blank")
		}
	}
	if cmd.Description.IsSet() {
		if product.Description = textutil.Clean(cmd.Description.Value()); product.Description == "" {
			return domain.Product{}, validationError(op, "product description must not be blank")
		}
	}
	for _, ref := range []struct {
		field  string
		value  domain.Optional[string]
		target *string
	}{
		{"category id", cmd.CategoryID, &product.CategoryID},
		{"subcategory id", cmd.SubcategoryID, &product.SubcategoryID},
		{"type id", cmd.TypeID, &product.TypeID},
	} {
		if !ref.value.IsSet() {
			continue
		}
		id, err := requireID(op, ref.field, ref.value.Value())
		if err != nil {
			return domain.Product{}, err
		}
		*ref.target = id
	}

	switch {
	case cmd.Uploads.Cover != "":
		product.Images = []string{cmd.Uploads.Cover}
	case cmd.Images.IsSet():
		product.Images = append([]string{}, cmd.Images.Value()...)
	}

	now := s.clock()
	newCounter := 0
	for _, patch := range cmd.Variants {
		if patch.ID == "" {
			variant, err := s.newVariant(op, len(product.Variants), product.ID, patch.VariantInput, cmd.Uploads.New[newCounter], now)
			if err != nil {
				return domain.Product{}, err
			}
			newCounter++
			product.Variants = append(product.Variants, variant)
			continue
		}

		_, idx, ok := product.FindVariant(patch.ID)
		if !ok {
			return domain.Product{}, notFoundError(op, "variant "+patch.ID+" not found")
		}
		variant := product.Variants[idx]
		if err := applyVariantInput(op, &variant, patch.VariantInput); err != nil {
			return domain.Product{}, err
		}
		if files := cmd.Uploads.ByVariantID[patch.ID]; len(files) > 0 {
			variant.Images = capImages(files)
		}
		variant.ProductID = product.ID
		variant.UpdatedAt = now
		product.Variants[idx] = variant
	}
	for i := range product.Variants {
		product.Variants[i].ProductID = product.ID
	}
	product.UpdatedAt = now

	if err := s.products.Replace(ctx, product); err != nil {
		return domain.Product{}, translateRepoError(op, "product", err)
	}
	return product, nil
}

func (s *productService) DeleteProduct(ctx context.Context, productID string) error {
	const op = "products.delete"
	productID, err := requireID(op, "product id", productID)
	if err != nil {
		return err
	}
	if err := s.products.SoftDelete(ctx, productID, s.clock()); err != nil {
		return translateRepoError(op, "product", err)
	}
	return nil
}

func (s *productService) UpdateVariant(ctx context.Context, cmd UpdateVariantCommand) (domain.Variant, error) {
	const op = "products.update_variant"
	variantID, err := requireID(op, "variant id", cmd.VariantID)
	if err != nil {
		return domain.Variant{}, err
	}
	if !cmd.hasChanges() {
		return domain.Variant{}, validationError(op, "no update provided")
	}

	product, err := s.products.FindByVariant(ctx, variantID)
	if err != nil {
		return domain.Variant{}, translateRepoError(op, "variant", err)
	}
	variant, _, ok := product.FindVariant(variantID)
	if !ok {
		return domain.Variant{}, notFoundError(op, "variant not found")
	}
	if err := applyVariantInput(op, &variant, cmd.VariantInput); err != nil {
		return domain.Variant{}, err
	}
	if len(cmd.Images) > 0 {
		variant.Images = capImages(cmd.Images)
	}
	variant.UpdatedAt = s.clock()

	updated, err := s.products.SetVariant(ctx, variant)
	if err != nil {
		return domain.Variant{}, translateRepoError(op, "variant", err)
	}
	if stored, _, ok := updated.FindVariant(variantID); ok {
		return stored, nil
	}
	return variant, nil
}

func (s *productService) DeleteVariant(ctx context.Context, variantID string) error {
	const op = "products.delete_variant"
	variantID, err := requireID(op, "variant id", variantID)
	if err != nil {
		return err
	}
	if _, err := s.products.SoftDeleteVariant(ctx, variantID, s.clock()); err != nil {
		return translateRepoError(op, "variant", err)
	}
	return nil
}

// newVariant builds a variant from input where every scalar field is mandatory.
func (s *productService) newVariant(op string, index int, productID string, input VariantInput, images []string, now time.Time) (domain.Variant, error) {
	if !input.Name.IsSet() || !input.Price.IsSet() || !input.Stock.IsSet() || !input.Size.IsSet() || !input.Material.IsSet() {
		return domain.Variant{}, validationError(op, "missing required variant fields for variant %d", index)
	}
	variant := domain.Variant{
		ID:        s.newID(),
		ProductID: productID,
		Images:    capImages(images),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyVariantInput(op, &variant, input); err != nil {
		return domain.Variant{}, err
	}
	return variant, nil
}

func (cmd UpdateVariantCommand) hasChanges() bool {
	in := cmd.VariantInput
	return in.Name.IsSet() || in.Price.IsSet() || in.Stock.IsSet() || in.Size.IsSet() || in.Material.IsSet() || len(cmd.Images) > 0
}

// applyVariantInput copies the supplied fields onto the variant. Unset fields keep their values.
func applyVariantInput(op string, variant *domain.Variant, in VariantInput) error {
	if in.Name.IsSet() {
		if variant.Name = textutil.Clean(in.Name.Value()); variant.Name == "" {
			return validationError(op, "variant name must not be blank")
		}
	}
	if in.Price.IsSet() {
		if in.Price.Value() <= 0 {
			return validationError(op, "variant price must be greater than zero")
		}
		variant.Price = in.Price.Value()
	}
	if in.Stock.IsSet() {
		if in.Stock.Value() < 0 {
			return validationError(op, "variant stock must not be negative")
		}
		variant.Stock = in.Stock.Value()
	}
	if in.Size.IsSet() {
		if variant.Size = textutil.Clean(in.Size.Value()); variant.Size == "" {
			return validationError(op, "variant size must not be blank")
		}
	}
	if in.Material.IsSet() {
		if variant.Material = textutil.Clean(in.Material.Value()); variant.Material == "" {
			return validationError(op, "variant material must not be blank")
		}
	}
	return nil
}

func capImages(images []string) []string {
	if len(images) > domain.MaxVariantImages {
		images = images[:domain.MaxVariantImages]
	}
	return append([]string{}, images...)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
