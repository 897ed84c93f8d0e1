package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/httpx"
	"github.com/gemvault/api/internal/platform/storage"
	"github.com/gemvault/api/internal/services"
)

// ProductHandlers exposes products and their variants. Create and update requests are
// multipart forms whose files are stored before the service call.
type ProductHandlers struct {
	products  services.ProductService
	uploads   *imageUploader
	maxMemory int64
	maxBody   int64
}

// ProductOption customises product handlers.
type ProductOption func(*ProductHandlers)

// WithUploadConcurrency bounds how many files of one request are stored in parallel.
func WithUploadConcurrency(n int) ProductOption {
	return func(h *ProductHandlers) {
		if n > 0 {
			h.uploads.concurrency = n
		}
	}
}

// WithMultipartMemory sets how much of a multipart body is kept in memory.
func WithMultipartMemory(bytes int64) ProductOption {
	return func(h *ProductHandlers) {
		if bytes > 0 {
			h.maxMemory = bytes
		}
	}
}

// WithMaxFormBody caps the total size of a create or update form.
func WithMaxFormBody(bytes int64) ProductOption {
	return func(h *ProductHandlers) {
		if bytes > 0 {
			h.maxBody = bytes
		}
	}
}

// NewProductHandlers constructs product handlers storing images in store.
func NewProductHandlers(products services.ProductService, store storage.BlobStore, opts ...ProductOption) *ProductHandlers {
	h := &ProductHandlers{
		products:  products,
		uploads:   newImageUploader(store, defaultUploadWorkers),
		maxMemory: defaultMultipartMemory,
		maxBody:   defaultMaxFormBody,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the product endpoints on the API router.
func (h *ProductHandlers) Routes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.addProduct)
		r.Route("/{productID}", func(r chi.Router) {
			r.Put("/", h.updateProduct)
			r.Delete("/", h.deleteProduct)
			r.Get("/variants", h.listVariants)
		})
	})
	r.Route("/variants/{variantID}", func(r chi.Router) {
		r.Put("/", h.updateVariant)
		r.Delete("/", h.deleteVariant)
	})
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	views, err := h.products.ListProducts(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	payload := make([]productPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, buildProductViewPayload(view))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"products": payload})
}

func (h *ProductHandlers) listVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.products.ListVariants(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"variants": buildVariantPayloads(variants)})
}

func (h *ProductHandlers) addProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}

	count, err := cast.ToIntE(strings.TrimSpace(form.get("variants_count")))
	if err != nil {
		writeFormError(w, r, "variants_count", "must be an integer")
		return
	}
	if count > maxVariantsPerRequest {
		writeFormError(w, r, "variants_count", fmt.Sprintf("must not exceed %d", maxVariantsPerRequest))
		return
	}
	cmd := services.AddProductCommand{
		Name:          form.get("name"),
		Description:   form.get("description"),
		CategoryID:    form.first("categoryId", "category"),
		SubcategoryID: form.first("subcategoryId", "subcategory"),
		TypeID:        form.first("typeId", "type"),
		VariantCount:  count,
	}
	for i := 0; i < count; i++ {
		prefix := fmt.Sprintf("variant_%d_", i)
		input, field, err := form.variantInput(prefix)
		if err != nil {
			writeFormError(w, r, field, err.Error())
			return
		}
		cmd.Variants = append(cmd.Variants, input)
	}

	files, err := h.uploads.storeAll(ctx, r.MultipartForm)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	cmd.Images = services.ImageMapping{
		Cover:   firstOf(files[fieldProductCover]),
		ByIndex: map[int][]string{},
	}
	for field, names := range files {
		if idx, ok := indexedField(field, fieldVariantImages+"_"); ok {
			cmd.Images.ByIndex[idx] = names
		}
	}

	product, err := h.products.AddProduct(ctx, cmd)
	if err != nil {
		h.uploads.discard(ctx, files)
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+product.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{"product": buildProductPayload(product)})
}

// variantPatchRequest is one entry of the "variants" JSON list on product updates.
type variantPatchRequest struct {
	VariantID   string `json:"variant_id"`
	Name        any    `json:"name"`
	VariantName any    `json:"variantName"`
	Price       any    `json:"price"`
	Stock       any    `json:"stock"`
	Size        any    `json:"size"`
	Material    any    `json:"material"`
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:     chi.URLParam(r, "productID"),
		Name:          form.optional("name"),
		Description:   form.optional("description"),
		CategoryID:    form.optional("categoryId", "category"),
		SubcategoryID: form.optional("subcategoryId", "subcategory"),
		TypeID:        form.optional("typeId", "type"),
	}
	if raw := form.get("images"); raw != "" {
		var images []string
		if err := json.Unmarshal([]byte(raw), &images); err != nil {
			writeFormError(w, r, "images", "must be a JSON list of strings")
			return
		}
		cmd.Images = domain.Some(images)
	}
	if raw := form.get("variants"); raw != "" {
		var patches []variantPatchRequest
		if err := json.Unmarshal([]byte(raw), &patches); err != nil {
			writeFormError(w, r, "variants", "must be a JSON list")
			return
		}
		for i, patch := range patches {
			input, err := patch.input()
			if err != nil {
				writeFormError(w, r, fmt.Sprintf("variants[%d]", i), err.Error())
				return
			}
			cmd.Variants = append(cmd.Variants, services.VariantPatch{ID: strings.TrimSpace(patch.VariantID), VariantInput: input})
		}
	}

	files, err := h.uploads.storeAll(ctx, r.MultipartForm)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	cmd.Uploads = services.ImageMapping{
		Cover:       firstOf(files[fieldProductCover]),
		ByVariantID: map[string][]string{},
		New:         map[int][]string{},
	}
	for field, names := range files {
		if idx, ok := indexedField(field, fieldVariantImages+"_new_"); ok {
			cmd.Uploads.New[idx] = names
			continue
		}
		if id, ok := strings.CutPrefix(field, fieldVariantImages+"_"); ok && id != "" {
			cmd.Uploads.ByVariantID[id] = names
		}
	}

	product, err := h.products.UpdateProduct(ctx, cmd)
	if err != nil {
		h.uploads.discard(ctx, files)
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeMessage(w, http.StatusOK, "product deleted")
}

func (h *ProductHandlers) updateVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	input, field, err := form.variantInput("")
	if err != nil {
		writeFormError(w, r, field, err.Error())
		return
	}

	files, err := h.uploads.storeAll(ctx, r.MultipartForm)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	variant, err := h.products.UpdateVariant(ctx, services.UpdateVariantCommand{
		VariantID:    chi.URLParam(r, "variantID"),
		VariantInput: input,
		Images:       files[fieldVariantImages],
	})
	if err != nil {
		h.uploads.discard(ctx, files)
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"variant": buildVariantPayload(variant)})
}

func (h *ProductHandlers) deleteVariant(w http.ResponseWriter, r *http.Request) {
	if err := h.products.DeleteVariant(r.Context(), chi.URLParam(r, "variantID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeMessage(w, http.StatusOK, "variant deleted")
}

const maxVariantsPerRequest = 100

// formValues reads scalar multipart or urlencoded fields. Blank values count as omitted.
type formValues struct {
	r *http.Request
}

func (h *ProductHandlers) parseForm(w http.ResponseWriter, r *http.Request) (formValues, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	err := r.ParseMultipartForm(h.maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", fmt.Sprintf("form body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge))
		return formValues{}, false
	}
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "invalid form body", http.StatusBadRequest))
		return formValues{}, false
	}
	return formValues{r: r}, true
}

func (f formValues) get(key string) string {
	return strings.TrimSpace(f.r.FormValue(key))
}

func (f formValues) first(keys ...string) string {
	for _, key := range keys {
		if v := f.get(key); v != "" {
			return v
		}
	}
	return ""
}

func (f formValues) optional(keys ...string) domain.Optional[string] {
	if v := f.first(keys...); v != "" {
		return domain.Some(v)
	}
	return domain.None[string]()
}

// variantInput reads <prefix>name (or <prefix>variant_name), price, stock, size and material.
// It returns the offending field name on a parse failure.
func (f formValues) variantInput(prefix string) (services.VariantInput, string, error) {
	input := services.VariantInput{
		Name:     f.optional(prefix+"name", prefix+"variant_name"),
		Size:     f.optional(prefix + "size"),
		Material: f.optional(prefix + "material"),
	}
	if raw := f.get(prefix + "price"); raw != "" {
		price, err := cast.ToFloat64E(raw)
		if err != nil {
			return input, prefix + "price", errors.New("must be a number")
		}
		input.Price = domain.Some(price)
	}
	if raw := f.get(prefix + "stock"); raw != "" {
		stock, err := cast.ToIntE(raw)
		if err != nil {
			return input, prefix + "stock", errors.New("must be an integer")
		}
		input.Stock = domain.Some(stock)
	}
	return input, "", nil
}

func (p variantPatchRequest) input() (services.VariantInput, error) {
	var input services.VariantInput
	name := p.Name
	if isBlank(name) {
		name = p.VariantName
	}
	if !isBlank(name) {
		input.Name = domain.Some(cast.ToString(name))
	}
	if !isBlank(p.Size) {
		input.Size = domain.Some(cast.ToString(p.Size))
	}
	if !isBlank(p.Material) {
		input.Material = domain.Some(cast.ToString(p.Material))
	}
	if !isBlank(p.Price) {
		price, err := cast.ToFloat64E(p.Price)
		if err != nil {
			return input, errors.New("price must be a number")
		}
		input.Price = domain.Some(price)
	}
	if !isBlank(p.Stock) {
		stock, err := cast.ToIntE(p.Stock)
		if err != nil {
			return input, errors.New("stock must be an integer")
		}
		input.Stock = domain.Some(stock)
	}
	return input, nil
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func indexedField(field, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(field, prefix)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func writeFormError(w http.ResponseWriter, r *http.Request, field, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError("validation_failed", "request validation failed", http.StatusBadRequest).WithField(field, message))
}

func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errInvalidUpload) {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_upload", err.Error(), http.StatusBadRequest))
		return
	}
	writeServiceError(r.Context(), w, err)
}
