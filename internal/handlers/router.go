package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gemvault/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	registrars  []RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware, probes and the API routes.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers(nil)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, register := range cfg.registrars {
			register(api)
		}
	})
	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithBasePath changes the prefix the API routes are mounted under.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithRoutes adds registrars invoked against the API sub-router, in order.
func WithRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		for _, r := range reg {
			if r != nil {
				cfg.registrars = append(cfg.registrars, r)
			}
		}
	}
}

// WithCatalogRoutes mounts the category, subcategory and type endpoints.
func WithCatalogRoutes(h *CatalogHandlers) Option {
	return withHandlers(h != nil, func() RouteRegistrar { return h.Routes })
}

// WithProductRoutes mounts the product and variant endpoints.
func WithProductRoutes(h *ProductHandlers) Option {
	return withHandlers(h != nil, func() RouteRegistrar { return h.Routes })
}

// WithUserRoutes mounts the user endpoints, including any user scoped routes they carry.
func WithUserRoutes(h *UserHandlers) Option {
	return withHandlers(h != nil, func() RouteRegistrar { return h.Routes })
}

// WithOrderRoutes mounts the order history endpoint.
func WithOrderRoutes(h *OrderHandlers) Option {
	return withHandlers(h != nil, func() RouteRegistrar { return h.Routes })
}

func withHandlers(ok bool, registrar func() RouteRegistrar) Option {
	if !ok {
		return nil
	}
	return WithRoutes(registrar())
}
