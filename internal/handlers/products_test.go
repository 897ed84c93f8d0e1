package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/services"
)

func newProductRouter(products services.ProductService, store *memoryBlobStore) http.Handler {
	return NewRouter(WithProductRoutes(NewProductHandlers(products, store, WithUploadConcurrency(2))))
}

func TestAddProductMapsFieldsAndUploads(t *testing.T) {
	t.Parallel()

	store := newMemoryBlobStore()
	var got services.AddProductCommand
	products := &stubProductService{
		addProduct: func(_ context.Context, cmd services.AddProductCommand) (domain.Product, error) {
			got = cmd
			return domain.Product{ID: "prod-1", Name: cmd.Name, Images: []string{cmd.Images.Cover}}, nil
		},
	}
	req := newMultipartRequest(t, http.MethodPost, "/api/v1/products", map[string]string{
		"name":                   "Aurora Ring",
		"description":            "Platinum band",
		"category":               "cat-1",
		"subcategory":            "sub-1",
		"type":                   "type-1",
		"variants_count":         "2",
		"variant_0_name":         "Small",
		"variant_0_price":        "199.50",
		"variant_0_stock":        "3",
		"variant_1_variant_name": "Large",
		"variant_1_price":        "249",
		"variant_1_size":         "9",
	},
		formFile{field: "product_cover", name: "cover.png", content: "cover"},
		formFile{field: "variant_images_0", name: "a.jpg", content: "a"},
		formFile{field: "variant_images_0", name: "b.jpg", content: "b"},
		formFile{field: "variant_images_1", name: "c.webp", content: "c"},
	)

	rr := serve(newProductRouter(products, store), req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "Aurora Ring", got.Name)
	assert.Equal(t, "cat-1", got.CategoryID)
	assert.Equal(t, "sub-1", got.SubcategoryID)
	assert.Equal(t, "type-1", got.TypeID)
	assert.Equal(t, 2, got.VariantCount)
	require.Len(t, got.Variants, 2)
	assert.Equal(t, "Small", got.Variants[0].Name.Value())
	assert.Equal(t, 199.5, got.Variants[0].Price.Value())
	assert.Equal(t, 3, got.Variants[0].Stock.Value())
	assert.Equal(t, "Large", got.Variants[1].Name.Value())
	assert.False(t, got.Variants[1].Stock.IsSet())
	assert.Equal(t, "9", got.Variants[1].Size.Value())

	assert.True(t, strings.HasPrefix(got.Images.Cover, "products/covers/"))
	require.Len(t, got.Images.ByIndex[0], 2)
	require.Len(t, got.Images.ByIndex[1], 1)
	assert.True(t, strings.HasSuffix(got.Images.ByIndex[0][0], ".jpg"))
	assert.True(t, strings.HasSuffix(got.Images.ByIndex[1][0], ".webp"))
	assert.Len(t, store.names(), 4)
	assert.Equal(t, "/api/v1/products/prod-1", rr.Header().Get("Location"))
}

func TestAddProductDiscardsUploadsWhenServiceFails(t *testing.T) {
	t.Parallel()

	store := newMemoryBlobStore()
	products := &stubProductService{
		addProduct: func(context.Context, services.AddProductCommand) (domain.Product, error) {
			return domain.Product{}, &services.Error{Kind: services.KindNotFound, Message: "category not found"}
		},
	}
	req := newMultipartRequest(t, http.MethodPost, "/api/v1/products",
		map[string]string{"name": "Ring", "variants_count": "0"},
		formFile{field: "product_cover", name: "cover.png", content: "cover"},
	)

	rr := serve(newProductRouter(products, store), req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, store.names())
	assert.Len(t, store.deleted, 1)
}

func TestAddProductRejectsBadInputBeforeStoring(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields map[string]string
		file   formFile
		code   string
	}{
		{
			name:   "non numeric count",
			fields: map[string]string{"variants_count": "two"},
			file:   formFile{field: "product_cover", name: "cover.png", content: "x"},
			code:   "validation_failed",
		},
		{
			name:   "non numeric price",
			fields: map[string]string{"variants_count": "1", "variant_0_price": "cheap"},
			file:   formFile{field: "product_cover", name: "cover.png", content: "x"},
			code:   "validation_failed",
		},
		{
			name:   "unsupported extension",
			fields: map[string]string{"variants_count": "0"},
			file:   formFile{field: "product_cover", name: "cover.exe", content: "x"},
			code:   "invalid_upload",
		},
		{
			name:   "unexpected file field",
			fields: map[string]string{"variants_count": "0"},
			file:   formFile{field: "avatar", name: "me.png", content: "x"},
			code:   "invalid_upload",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryBlobStore()
			products := &stubProductService{
				addProduct: func(context.Context, services.AddProductCommand) (domain.Product, error) {
					t.Fatal("service must not be called")
					return domain.Product{}, nil
				},
			}
			req := newMultipartRequest(t, http.MethodPost, "/api/v1/products", tc.fields, tc.file)

			rr := serve(newProductRouter(products, store), req)

			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tc.code, decodeBody(t, rr)["error"])
			assert.Empty(t, store.names())
		})
	}
}

func TestAddProductRemovesPartialUploadsOnStoreFailure(t *testing.T) {
	t.Parallel()

	store := newMemoryBlobStore()
	store.failOn = "products/variants/"
	products := &stubProductService{
		addProduct: func(context.Context, services.AddProductCommand) (domain.Product, error) {
			t.Fatal("service must not be called")
			return domain.Product{}, nil
		},
	}
	req := newMultipartRequest(t, http.MethodPost, "/api/v1/products",
		map[string]string{"variants_count": "1"},
		formFile{field: "product_cover", name: "cover.png", content: "cover"},
		formFile{field: "variant_images_0", name: "a.png", content: "a"},
	)

	rr := serve(newProductRouter(products, store), req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, store.names())
}

func TestUpdateProductParsesVariantListAndUploads(t *testing.T) {
	t.Parallel()

	store := newMemoryBlobStore()
	var got services.UpdateProductCommand
	products := &stubProductService{
		updateProduct: func(_ context.Context, cmd services.UpdateProductCommand) (domain.Product, error) {
			got = cmd
			return domain.Product{ID: cmd.ProductID}, nil
		},
	}
	req := newMultipartRequest(t, http.MethodPut, "/api/v1/products/prod-1", map[string]string{
		"name":     "Aurora Ring II",
		"images":   `["products/covers/old.png"]`,
		"variants": `[{"variant_id":"var-1","variantName":"Petite","price":"210","stock":4},{"name":"Grand","price":320.5,"stock":"1","size":""}]`,
	},
		formFile{field: "variant_images_var-1", name: "p.png", content: "p"},
		formFile{field: "variant_images_new_0", name: "g.png", content: "g"},
	)

	rr := serve(newProductRouter(products, store), req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "prod-1", got.ProductID)
	assert.Equal(t, "Aurora Ring II", got.Name.Value())
	assert.False(t, got.Description.IsSet())
	assert.False(t, got.CategoryID.IsSet())
	require.True(t, got.Images.IsSet())
	assert.Equal(t, []string{"products/covers/old.png"}, got.Images.Value())

	require.Len(t, got.Variants, 2)
	assert.Equal(t, "var-1", got.Variants[0].ID)
	assert.Equal(t, "Petite", got.Variants[0].Name.Value())
	assert.Equal(t, 210.0, got.Variants[0].Price.Value())
	assert.Equal(t, 4, got.Variants[0].Stock.Value())
	assert.Empty(t, got.Variants[1].ID)
	assert.Equal(t, 320.5, got.Variants[1].Price.Value())
	assert.Equal(t, 1, got.Variants[1].Stock.Value())
	assert.False(t, got.Variants[1].Size.IsSet())

	require.Len(t, got.Uploads.ByVariantID["var-1"], 1)
	require.Len(t, got.Uploads.New[0], 1)
	assert.NotContains(t, got.Uploads.ByVariantID, "new_0")
}

func TestUpdateProductRejectsMalformedVariantList(t *testing.T) {
	t.Parallel()

	router := newProductRouter(&stubProductService{}, newMemoryBlobStore())
	req := newMultipartRequest(t, http.MethodPut, "/api/v1/products/prod-1", map[string]string{"variants": `{"oops":true}`})

	rr := serve(router, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["fields"], "variants")
}

func TestUpdateVariantUsesVariantImagesField(t *testing.T) {
	t.Parallel()

	store := newMemoryBlobStore()
	var got services.UpdateVariantCommand
	products := &stubProductService{
		updateVariant: func(_ context.Context, cmd services.UpdateVariantCommand) (domain.Variant, error) {
			got = cmd
			return domain.Variant{ID: cmd.VariantID, Images: cmd.Images}, nil
		},
	}
	req := newMultipartRequest(t, http.MethodPut, "/api/v1/variants/var-7",
		map[string]string{"price": "99.99", "material": "Gold"},
		formFile{field: "variant_images", name: "1.png", content: "1"},
		formFile{field: "variant_images", name: "2.png", content: "2"},
	)

	rr := serve(newProductRouter(products, store), req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "var-7", got.VariantID)
	assert.Equal(t, 99.99, got.Price.Value())
	assert.Equal(t, "Gold", got.Material.Value())
	assert.False(t, got.Name.IsSet())
	assert.Len(t, got.Images, 2)
	variant := decodeBody(t, rr)["variant"].(map[string]any)
	assert.Len(t, variant["images"], 2)
}

func TestUpdateVariantAcceptsURLEncodedForm(t *testing.T) {
	t.Parallel()

	var got services.UpdateVariantCommand
	products := &stubProductService{
		updateVariant: func(_ context.Context, cmd services.UpdateVariantCommand) (domain.Variant, error) {
			got = cmd
			return domain.Variant{ID: cmd.VariantID}, nil
		},
	}
	req := newJSONRequest(t, http.MethodPut, "/api/v1/variants/var-7", "stock=12")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := serve(newProductRouter(products, newMemoryBlobStore()), req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 12, got.Stock.Value())
	assert.Empty(t, got.Images)
}

func TestListProductsIncludesResolvedReferences(t *testing.T) {
	t.Parallel()

	products := &stubProductService{
		listProducts: func(context.Context) ([]services.ProductView, error) {
			return []services.ProductView{
				{
					Product:  domain.Product{ID: "prod-1", Name: "Ring", CategoryID: "cat-1", TypeID: "type-1"},
					Category: &services.CategorySummary{ID: "cat-1", Name: "Rings"},
					Type:     &services.TypeSummary{ID: "type-1", Name: "Gold"},
				},
				{Product: domain.Product{ID: "prod-2", Name: "Orphan", CategoryID: "gone"}},
			}, nil
		},
	}

	rr := serve(newProductRouter(products, newMemoryBlobStore()), newJSONRequest(t, http.MethodGet, "/api/v1/products", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody(t, rr)["products"].([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "Rings", first["category"].(map[string]any)["name"])
	assert.Equal(t, "Gold", first["type"].(map[string]any)["name"])
	assert.NotContains(t, list[1].(map[string]any), "category")
}

func TestAddProductRejectsVariantCountAboveLimit(t *testing.T) {
	t.Parallel()

	products := &stubProductService{
		addProduct: func(context.Context, services.AddProductCommand) (domain.Product, error) {
			t.Fatal("service must not be called")
			return domain.Product{}, nil
		},
	}
	req := newMultipartRequest(t, http.MethodPost, "/api/v1/products", map[string]string{
		"name":           "Aurora Ring",
		"variants_count": "17179869184",
	})

	rr := serve(newProductRouter(products, newMemoryBlobStore()), req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "variants_count")
}

func TestAddProductRejectsOversizedForm(t *testing.T) {
	t.Parallel()

	store := newMemoryBlobStore()
	products := &stubProductService{
		addProduct: func(context.Context, services.AddProductCommand) (domain.Product, error) {
			t.Fatal("service must not be called")
			return domain.Product{}, nil
		},
	}
	router := NewRouter(WithProductRoutes(NewProductHandlers(products, store, WithMaxFormBody(1<<10))))
	req := newMultipartRequest(t, http.MethodPost, "/api/v1/products", map[string]string{
		"name":           "Aurora Ring",
		"variants_count": "1",
	}, formFile{field: "product_cover", name: "cover.png", content: strings.Repeat("x", 4<<10)})

	rr := serve(router, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "payload_too_large")
	assert.Empty(t, store.names())
}
