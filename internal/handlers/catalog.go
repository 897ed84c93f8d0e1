package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gemvault/api/internal/services"
)

// CatalogHandlers exposes categories, subcategories and product types.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers backed by the catalog service.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the catalog endpoints on the API router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Post("/", h.addCategory)
		r.Route("/{categoryID}", func(r chi.Router) {
			r.Put("/", h.updateCategory)
			r.Delete("/", h.deleteCategory)
			r.Get("/subcategories", h.listSubcategories)
			r.Post("/subcategories", h.addSubcategory)
		})
	})
	r.Route("/subcategories/{subcategoryID}", func(r chi.Router) {
		r.Put("/", h.updateSubcategory)
		r.Delete("/", h.deleteSubcategory)
	})
	r.Route("/types", func(r chi.Router) {
		r.Get("/", h.listTypes)
		r.Post("/", h.addType)
		r.Delete("/{typeID}", h.deleteType)
	})
}

type nameRequest struct {
	Name string `json:"name" validate:"required"`
}

type updateSubcategoryRequest struct {
	Name       *string `json:"name"`
	CategoryID *string `json:"categoryId"`
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	payload := make([]categoryPayload, 0, len(categories))
	for _, c := range categories {
		payload = append(payload, buildCategoryPayload(c))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": payload})
}

func (h *CatalogHandlers) addCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req nameRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	category, err := h.catalog.AddCategory(ctx, req.Name)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+category.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req nameRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	category, err := h.catalog.UpdateCategory(ctx, chi.URLParam(r, "categoryID"), req.Name)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCategory(r.Context(), chi.URLParam(r, "categoryID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeMessage(w, http.StatusOK, "category deleted")
}

func (h *CatalogHandlers) listSubcategories(w http.ResponseWriter, r *http.Request) {
	subs, err := h.catalog.ListSubcategories(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"subcategories": buildSubcategoryPayloads(subs)})
}

func (h *CatalogHandlers) addSubcategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req nameRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	category, err := h.catalog.AddSubcategory(ctx, chi.URLParam(r, "categoryID"), req.Name)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CatalogHandlers) updateSubcategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateSubcategoryRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	sub, err := h.catalog.UpdateSubcategory(ctx, services.UpdateSubcategoryCommand{
		SubcategoryID: chi.URLParam(r, "subcategoryID"),
		Name:          optionalString(req.Name),
		CategoryID:    optionalString(req.CategoryID),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"subcategory": buildSubcategoryPayload(sub)})
}

func (h *CatalogHandlers) deleteSubcategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteSubcategory(r.Context(), chi.URLParam(r, "subcategoryID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeMessage(w, http.StatusOK, "subcategory deleted")
}

func (h *CatalogHandlers) listTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.ListTypes(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	payload := make([]typePayload, 0, len(types))
	for _, t := range types {
		payload = append(payload, buildTypePayload(t))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"types": payload})
}

func (h *CatalogHandlers) addType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req nameRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	t, err := h.catalog.AddType(ctx, req.Name)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"type": buildTypePayload(t)})
}

func (h *CatalogHandlers) deleteType(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteType(r.Context(), chi.URLParam(r, "typeID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeMessage(w, http.StatusOK, "type deleted")
}

