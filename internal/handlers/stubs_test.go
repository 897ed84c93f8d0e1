package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/services"
)

type stubCatalogService struct {
	services.CatalogService
	listCategories    func(ctx context.Context) ([]domain.Category, error)
	addCategory       func(ctx context.Context, name string) (domain.Category, error)
	updateSubcategory func(ctx context.Context, cmd services.UpdateSubcategoryCommand) (domain.Subcategory, error)
	deleteType        func(ctx context.Context, typeID string) error
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.listCategories(ctx)
}

func (s *stubCatalogService) AddCategory(ctx context.Context, name string) (domain.Category, error) {
	return s.addCategory(ctx, name)
}

func (s *stubCatalogService) UpdateSubcategory(ctx context.Context, cmd services.UpdateSubcategoryCommand) (domain.Subcategory, error) {
	return s.updateSubcategory(ctx, cmd)
}

func (s *stubCatalogService) DeleteType(ctx context.Context, typeID string) error {
	return s.deleteType(ctx, typeID)
}

type stubProductService struct {
	services.ProductService
	addProduct    func(ctx context.Context, cmd services.AddProductCommand) (domain.Product, error)
	updateProduct func(ctx context.Context, cmd services.UpdateProductCommand) (domain.Product, error)
	updateVariant func(ctx context.Context, cmd services.UpdateVariantCommand) (domain.Variant, error)
	listProducts  func(ctx context.Context) ([]services.ProductView, error)
}

func (s *stubProductService) AddProduct(ctx context.Context, cmd services.AddProductCommand) (domain.Product, error) {
	return s.addProduct(ctx, cmd)
}

func (s *stubProductService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (domain.Product, error) {
	return s.updateProduct(ctx, cmd)
}

func (s *stubProductService) UpdateVariant(ctx context.Context, cmd services.UpdateVariantCommand) (domain.Variant, error) {
	return s.updateVariant(ctx, cmd)
}

func (s *stubProductService) ListProducts(ctx context.Context) ([]services.ProductView, error) {
	return s.listProducts(ctx)
}

type stubUserService struct {
	services.UserService
	register       func(ctx context.Context, cmd services.RegisterCommand) (services.AuthResult, error)
	login          func(ctx context.Context, cmd services.LoginCommand) (services.AuthResult, error)
	getUserByEmail func(ctx context.Context, email string) (services.UserProfile, error)
	updateAddress  func(ctx context.Context, cmd services.UpdateAddressCommand) (domain.Address, error)
}

func (s *stubUserService) Register(ctx context.Context, cmd services.RegisterCommand) (services.AuthResult, error) {
	return s.register(ctx, cmd)
}

func (s *stubUserService) Login(ctx context.Context, cmd services.LoginCommand) (services.AuthResult, error) {
	return s.login(ctx, cmd)
}

func (s *stubUserService) GetUserByEmail(ctx context.Context, email string) (services.UserProfile, error) {
	return s.getUserByEmail(ctx, email)
}

func (s *stubUserService) UpdateAddress(ctx context.Context, cmd services.UpdateAddressCommand) (domain.Address, error) {
	return s.updateAddress(ctx, cmd)
}

type stubOrderService struct {
	addOrder          func(ctx context.Context, cmd services.AddOrderCommand) (services.OrderPlacement, error)
	updateOrderStatus func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error)
	getUserOrders     func(ctx context.Context, email string) ([]services.OrderView, error)
}

func (s *stubOrderService) AddOrder(ctx context.Context, cmd services.AddOrderCommand) (services.OrderPlacement, error) {
	return s.addOrder(ctx, cmd)
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	return s.updateOrderStatus(ctx, cmd)
}

func (s *stubOrderService) GetUserOrders(ctx context.Context, email string) ([]services.OrderView, error) {
	return s.getUserOrders(ctx, email)
}

// memoryBlobStore keeps uploads in memory and can fail writes for names containing failOn.
type memoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failOn  string
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: map[string][]byte{}}
}

func (s *memoryBlobStore) Put(_ context.Context, name string, _ string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && strings.Contains(name, s.failOn) {
		return errors.New("bucket unavailable")
	}
	s.objects[name] = data
	return nil
}

func (s *memoryBlobStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	s.deleted = append(s.deleted, name)
	return nil
}

func (s *memoryBlobStore) Ping(context.Context) error { return nil }

func (s *memoryBlobStore) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for name := range s.objects {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type formFile struct {
	field   string
	name    string
	content string
}

func newMultipartRequest(t *testing.T, method, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newJSONRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body io.Reader
	switch v := payload.(type) {
	case nil:
	case string:
		body = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}
