package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/services"
)

func TestCatalogListCategoriesHidesDeletedSubcategories(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	catalog := &stubCatalogService{
		listCategories: func(context.Context) ([]domain.Category, error) {
			return []domain.Category{{
				ID:   "cat-1",
				Name: "Rings",
				Subcategories: []domain.Subcategory{
					{ID: "sub-1", Name: "Solitaire", CategoryID: "cat-1", CreatedAt: now},
					{ID: "sub-2", Name: "Retired", CategoryID: "cat-1", IsDeleted: true},
				},
				CreatedAt: now,
			}}, nil
		},
	}
	router := NewRouter(WithCatalogRoutes(NewCatalogHandlers(catalog)))

	rr := serve(router, newJSONRequest(t, http.MethodGet, "/api/v1/categories", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	categories := body["categories"].([]any)
	require.Len(t, categories, 1)
	subs := categories[0].(map[string]any)["subcategories"].([]any)
	require.Len(t, subs, 1)
	assert.Equal(t, "Solitaire", subs[0].(map[string]any)["name"])
}

func TestCatalogAddCategory(t *testing.T) {
	t.Parallel()

	var gotName string
	catalog := &stubCatalogService{
		addCategory: func(_ context.Context, name string) (domain.Category, error) {
			gotName = name
			return domain.Category{ID: "cat-9", Name: name}, nil
		},
	}
	router := NewRouter(WithCatalogRoutes(NewCatalogHandlers(catalog)))

	rr := serve(router, newJSONRequest(t, http.MethodPost, "/api/v1/categories", map[string]string{"name": "Necklaces"}))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "Necklaces", gotName)
	assert.Equal(t, "/api/v1/categories/cat-9", rr.Header().Get("Location"))
	category := decodeBody(t, rr)["category"].(map[string]any)
	assert.Equal(t, "cat-9", category["id"])
	assert.Equal(t, []any{}, category["subcategories"])
}

func TestCatalogAddCategoryRejectsMissingName(t *testing.T) {
	t.Parallel()

	router := NewRouter(WithCatalogRoutes(NewCatalogHandlers(&stubCatalogService{})))

	rr := serve(router, newJSONRequest(t, http.MethodPost, "/api/v1/categories", map[string]string{}))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Equal(t, "is required", body["fields"].(map[string]any)["name"])
}

func TestCatalogRejectsEmptyAndMalformedBodies(t *testing.T) {
	t.Parallel()

	router := NewRouter(WithCatalogRoutes(NewCatalogHandlers(&stubCatalogService{})))

	rr := serve(router, newJSONRequest(t, http.MethodPost, "/api/v1/categories", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "request body is required", decodeBody(t, rr)["message"])

	rr = serve(router, newJSONRequest(t, http.MethodPost, "/api/v1/categories", `{"name":`))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid JSON payload", decodeBody(t, rr)["message"])
}

func TestCatalogUpdateSubcategoryPassesOnlyProvidedFields(t *testing.T) {
	t.Parallel()

	var got services.UpdateSubcategoryCommand
	catalog := &stubCatalogService{
		updateSubcategory: func(_ context.Context, cmd services.UpdateSubcategoryCommand) (domain.Subcategory, error) {
			got = cmd
			return domain.Subcategory{ID: cmd.SubcategoryID, Name: "Halo", CategoryID: cmd.CategoryID.Value()}, nil
		},
	}
	router := NewRouter(WithCatalogRoutes(NewCatalogHandlers(catalog)))

	rr := serve(router, newJSONRequest(t, http.MethodPut, "/api/v1/subcategories/sub-1", map[string]string{"categoryId": "cat-2"}))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "sub-1", got.SubcategoryID)
	assert.False(t, got.Name.IsSet())
	require.True(t, got.CategoryID.IsSet())
	assert.Equal(t, "cat-2", got.CategoryID.Value())
}

func TestCatalogMapsServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", &services.Error{Kind: services.KindNotFound, Message: "type not found"}, http.StatusNotFound, "not_found"},
		{"conflict", &services.Error{Kind: services.KindConflict, Message: "type in use"}, http.StatusConflict, "conflict"},
		{"persistence", &services.Error{Kind: services.KindPersistence, Op: "types.delete"}, http.StatusInternalServerError, "persistence"},
		{"unclassified", context.Canceled, http.StatusGatewayTimeout, "request_timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			catalog := &stubCatalogService{
				deleteType: func(context.Context, string) error { return tc.err },
			}
			router := NewRouter(WithCatalogRoutes(NewCatalogHandlers(catalog)))

			rr := serve(router, newJSONRequest(t, http.MethodDelete, "/api/v1/types/type-1", nil))

			require.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.code, decodeBody(t, rr)["error"])
		})
	}
}
