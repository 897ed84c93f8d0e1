package services

import (
	"context"
	"errors"
	"math"
	"testing"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/repositories/memory"
)

func newTestProductService(t *testing.T, reg *memory.Registry) ProductService {
	t.Helper()
	svc, err := NewProductService(ProductServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Types:      reg.Types(),
		Clock:      fixedClock,
	})
	if err != nil {
		t.Fatalf("NewProductService: %v", err)
	}
	return svc
}

func variantInput(name string, price float64, stock int) VariantInput {
	return VariantInput{
		Name:     domain.Some(name),
		Price:    domain.Some(price),
		Stock:    domain.Some(stock),
		Size:     domain.Some("7"),
		Material: domain.Some("Gold"),
	}
}

func baseAddProduct(count int) AddProductCommand {
	variants := make([]VariantInput, count)
	for i := range variants {
		variants[i] = variantInput("Variant", 120.5, 3)
	}
	return AddProductCommand{
		Name:          "Aurora Ring",
		Description:   "Brilliant cut",
		CategoryID:    domain.NewID(),
		SubcategoryID: domain.NewID(),
		TypeID:        domain.NewID(),
		VariantCount:  count,
		Variants:      variants,
	}
}

func TestProductServiceAddProductImagesByIndex(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestProductService(t, reg)

	cmd := baseAddProduct(3)
	cmd.Images = ImageMapping{
		Cover:   "cover.jpg",
		ByIndex: map[int][]string{1: {"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"}},
	}

	product, err := svc.AddProduct(ctx, cmd)
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if len(product.Variants) != 3 {
		t.Fatalf("expected 3 variants, got %d", len(product.Variants))
	}
	if len(product.Images) != 1 || product.Images[0] != "cover.jpg" {
		t.Fatalf("expected cover image, got %v", product.Images)
	}
	for i, v := range product.Variants {
		if v.ProductID != product.ID {
			t.Fatalf("variant %d product id %s, want %s", i, v.ProductID, product.ID)
		}
		switch i {
		case 1:
			if len(v.Images) != domain.MaxVariantImages {
				t.Fatalf("expected images capped at %d, got %v", domain.MaxVariantImages, v.Images)
			}
		default:
			if len(v.Images) != 0 {
				t.Fatalf("expected variant %d to have no images, got %v", i, v.Images)
			}
		}
	}

	stored, err := reg.Products().FindByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(stored.Variants) != 3 {
		t.Fatalf("expected variants persisted with product, got %d", len(stored.Variants))
	}
}

func TestProductServiceAddProductValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestProductService(t, memory.NewRegistry())

	missing := baseAddProduct(2)
	missing.Variants[1].Size = domain.None[string]()
	if _, err := svc.AddProduct(ctx, missing); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for missing variant field, got %v", err)
	}

	short := baseAddProduct(1)
	short.VariantCount = 2
	if _, err := svc.AddProduct(ctx, short); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation when fewer variants than count, got %v", err)
	}

	for _, count := range []int{math.MaxInt, 1 << 34} {
		oversized := baseAddProduct(1)
		oversized.VariantCount = count
		if _, err := svc.AddProduct(ctx, oversized); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation for variant count %d, got %v", count, err)
		}
	}

	none := baseAddProduct(1)
	none.VariantCount = 0
	if _, err := svc.AddProduct(ctx, none); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for zero variants, got %v", err)
	}

	badPrice := baseAddProduct(1)
	badPrice.Variants[0].Price = domain.Some(0.0)
	if _, err := svc.AddProduct(ctx, badPrice); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for zero price, got %v", err)
	}

	badID := baseAddProduct(1)
	badID.TypeID = "ring"
	if _, err := svc.AddProduct(ctx, badID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for malformed type id, got %v", err)
	}

	zeroStock := baseAddProduct(1)
	zeroStock.Variants[0].Stock = domain.Some(0)
	product, err := svc.AddProduct(ctx, zeroStock)
	if err != nil {
		t.Fatalf("expected explicit zero stock to be accepted, got %v", err)
	}
	if product.Variants[0].Stock != 0 {
		t.Fatalf("expected stock 0, got %d", product.Variants[0].Stock)
	}
}

func TestProductServiceUpdateProductKeepsVariantOwnership(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestProductService(t, reg)

	product, err := svc.AddProduct(ctx, baseAddProduct(2))
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	first := product.Variants[0]

	updated, err := svc.UpdateProduct(ctx, UpdateProductCommand{
		ProductID: product.ID,
		Name:      domain.Some("Aurora Band"),
		Variants: []VariantPatch{
			{ID: first.ID, VariantInput: VariantInput{Stock: domain.Some(0)}},
			{VariantInput: variantInput("New", 99, 1)},
			{VariantInput: variantInput("Newer", 89, 2)},
		},
		Uploads: ImageMapping{
			Cover:       "new-cover.jpg",
			ByVariantID: map[string][]string{first.ID: {"f1.jpg"}},
			New:         map[int][]string{1: {"n1.jpg", "n2.jpg"}},
		},
		Images: domain.Some([]string{"ignored.jpg"}),
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}

	if updated.Name != "Aurora Band" {
		t.Fatalf("expected name updated, got %q", updated.Name)
	}
	if updated.Description != product.Description {
		t.Fatalf("expected description preserved, got %q", updated.Description)
	}
	if len(updated.Images) != 1 || updated.Images[0] != "new-cover.jpg" {
		t.Fatalf("expected cover upload to win, got %v", updated.Images)
	}
	if len(updated.Variants) != 4 {
		t.Fatalf("expected 4 variants, got %d", len(updated.Variants))
	}
	for _, v := range updated.Variants {
		if v.ProductID != product.ID {
			t.Fatalf("variant %s product id %s, want %s", v.ID, v.ProductID, product.ID)
		}
	}
	patched := updated.Variants[0]
	if patched.Stock != 0 || patched.Name != first.Name || patched.Price != first.Price {
		t.Fatalf("expected stock patched and other fields kept, got %+v", patched)
	}
	if len(patched.Images) != 1 || patched.Images[0] != "f1.jpg" {
		t.Fatalf("expected variant images replaced, got %v", patched.Images)
	}
	if len(updated.Variants[2].Images) != 0 {
		t.Fatalf("expected first new variant without images, got %v", updated.Variants[2].Images)
	}
	if len(updated.Variants[3].Images) != 2 {
		t.Fatalf("expected second new variant to receive counter 1 images, got %v", updated.Variants[3].Images)
	}

	stored, err := reg.Products().FindByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	for _, v := range stored.Variants {
		if v.ProductID != product.ID {
			t.Fatalf("stored variant %s product id %s", v.ID, v.ProductID)
		}
	}
}

func TestProductServiceUpdateProductNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestProductService(t, memory.NewRegistry())

	_, err := svc.UpdateProduct(ctx, UpdateProductCommand{ProductID: domain.NewID(), Name: domain.Some("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	product, err := svc.AddProduct(ctx, baseAddProduct(1))
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if err := svc.DeleteProduct(ctx, product.ID); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, err := svc.UpdateProduct(ctx, UpdateProductCommand{ProductID: product.ID, Name: domain.Some("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for deleted product, got %v", err)
	}
}

func TestProductServiceListProductsResolvesReferences(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	catalog := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)
	svc := newTestProductService(t, reg)

	cat, _ := catalog.AddCategory(ctx, "Rings")
	withSub, _ := catalog.AddSubcategory(ctx, cat.ID, "Solitaire")
	ring, _ := catalog.AddType(ctx, "Ring")

	cmd := baseAddProduct(1)
	cmd.CategoryID = cat.ID
	cmd.SubcategoryID = withSub.Subcategories[0].ID
	cmd.TypeID = ring.ID
	kept, err := svc.AddProduct(ctx, cmd)
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	removed, err := svc.AddProduct(ctx, baseAddProduct(1))
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if err := svc.DeleteProduct(ctx, removed.ID); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}

	views, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(views) != 1 || views[0].ID != kept.ID {
		t.Fatalf("expected only active product, got %+v", views)
	}
	view := views[0]
	if view.Category == nil || view.Category.Name != "Rings" || len(view.Category.Subcategories) != 1 {
		t.Fatalf("expected category summary, got %+v", view.Category)
	}
	if view.Type == nil || view.Type.Name != "Ring" {
		t.Fatalf("expected type summary, got %+v", view.Type)
	}
}

func TestProductServiceVariants(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestProductService(t, reg)

	variants, err := svc.ListVariants(ctx, domain.NewID())
	if err != nil {
		t.Fatalf("ListVariants on missing product: %v", err)
	}
	if len(variants) != 0 {
		t.Fatalf("expected empty list for missing product, got %v", variants)
	}

	product, err := svc.AddProduct(ctx, baseAddProduct(2))
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	target := product.Variants[1]

	updated, err := svc.UpdateVariant(ctx, UpdateVariantCommand{
		VariantID:    target.ID,
		VariantInput: VariantInput{Price: domain.Some(150.0)},
		Images:       []string{"v1.jpg", "v2.jpg"},
	})
	if err != nil {
		t.Fatalf("UpdateVariant: %v", err)
	}
	if updated.Price != 150 || updated.Name != target.Name || len(updated.Images) != 2 {
		t.Fatalf("unexpected updated variant: %+v", updated)
	}

	if _, err := svc.UpdateVariant(ctx, UpdateVariantCommand{VariantID: target.ID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for empty patch, got %v", err)
	}
	if _, err := svc.UpdateVariant(ctx, UpdateVariantCommand{VariantID: domain.NewID(), VariantInput: VariantInput{Stock: domain.Some(1)}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown variant, got %v", err)
	}

	if err := svc.DeleteVariant(ctx, target.ID); err != nil {
		t.Fatalf("DeleteVariant: %v", err)
	}
	variants, err = svc.ListVariants(ctx, product.ID)
	if err != nil {
		t.Fatalf("ListVariants: %v", err)
	}
	if len(variants) != 1 || variants[0].ID != product.Variants[0].ID {
		t.Fatalf("expected deleted variant hidden, got %+v", variants)
	}
}
