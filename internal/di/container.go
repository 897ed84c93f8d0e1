package di

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gemvault/api/internal/platform/config"
	"github.com/gemvault/api/internal/platform/credentials"
	pfirestore "github.com/gemvault/api/internal/platform/firestore"
	"github.com/gemvault/api/internal/platform/idempotency"
	"github.com/gemvault/api/internal/platform/jobs"
	"github.com/gemvault/api/internal/platform/mongodb"
	"github.com/gemvault/api/internal/platform/observability"
	"github.com/gemvault/api/internal/platform/storage"
	"github.com/gemvault/api/internal/repositories"
	firestorerepo "github.com/gemvault/api/internal/repositories/firestore"
	"github.com/gemvault/api/internal/repositories/memory"
	mongorepo "github.com/gemvault/api/internal/repositories/mongo"
	"github.com/gemvault/api/internal/services"
)

const meterName = "github.com/gemvault/api"

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog  services.CatalogService
	Products services.ProductService
	Orders   services.OrderService
	Users    services.UserService
	System   services.SystemService
}

// Container wires repositories, infrastructure clients and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Blobs        storage.BlobStore
	Tokens       *credentials.JWTIssuer
	// Replays backs the Idempotency-Key guard on order placement.
	Replays      idempotency.Store
	Services     Services

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Option overrides a dependency NewContainer would otherwise build from configuration.
type Option func(*options)

type options struct {
	registry  repositories.Registry
	blobs     storage.BlobStore
	publisher services.OrderEventPublisher
	logger    *zap.Logger
	meter     metric.Meter
	clock     func() time.Time
	startedAt time.Time
}

// WithRegistry supplies the repositories instead of opening the configured database.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithBlobStore supplies the image store instead of opening the configured one.
func WithBlobStore(store storage.BlobStore) Option {
	return func(o *options) { o.blobs = store }
}

// WithOrderEventPublisher supplies the order event publisher instead of dialing Pub/Sub.
func WithOrderEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *options) { o.publisher = publisher }
}

// WithLogger sets the logger services fall back to outside of a request.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMeter sets the meter services record gap counters on.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithClock overrides the clock shared by services and health checks.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithStartedAt records the process start time reported by the health endpoints.
func WithStartedAt(t time.Time) Option {
	return func(o *options) { o.startedAt = t }
}

// NewContainer constructs the runtime dependencies. Anything opened here is released by Close,
// including on a failed construction.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (c *Container, err error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.meter == nil {
		o.meter = otel.GetMeterProvider().Meter(meterName)
	}
	if o.startedAt.IsZero() {
		o.startedAt = o.clock()
	}

	c = &Container{Config: cfg}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = c.Close(closeCtx)
			c = nil
		}
	}()

	checks := make([]repositories.DependencyCheck, 0, 3)

	c.Repositories = o.registry
	if c.Repositories == nil {
		if c.Repositories, err = openRegistry(ctx, cfg.Database); err != nil {
			return c, err
		}
		c.addCloser("repositories", c.Repositories.Close)
	}
	checks = append(checks, repositories.DependencyCheck{Name: "database", Check: c.Repositories.Ping})
	c.Replays = idempotency.NewMemoryStore()
	if source, ok := c.Repositories.(interface{ IdempotencyStore() idempotency.Store }); ok {
		c.Replays = source.IdempotencyStore()
	}

	c.Blobs = o.blobs
	if c.Blobs == nil {
		if c.Blobs, err = c.openBlobStore(ctx, cfg.Storage); err != nil {
			return c, err
		}
	}
	if pinger, ok := c.Blobs.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, repositories.DependencyCheck{Name: "storage", Check: pinger.Ping})
	}

	publisher := o.publisher
	if publisher == nil && strings.TrimSpace(cfg.Events.OrderTopic) != "" {
		var check repositories.DependencyCheck
		if publisher, check, err = c.openOrderPublisher(ctx, cfg.Events); err != nil {
			return c, err
		}
		checks = append(checks, check)
	}

	if c.Tokens, err = credentials.NewJWTIssuer(cfg.Auth.JWTSecret,
		credentials.WithTTL(cfg.Auth.TokenTTL),
		credentials.WithClock(o.clock),
	); err != nil {
		return c, fmt.Errorf("di: token issuer: %w", err)
	}

	if c.Services, err = buildServices(c.Repositories, c.Tokens, publisher, o); err != nil {
		return c, err
	}

	health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithHealthClock(o.clock))
	if err != nil {
		return c, fmt.Errorf("di: health checks: %w", err)
	}
	if c.Services.System, err = services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: health,
		Clock:            o.clock,
		Build: services.BuildInfo{
			Version:     cfg.Server.Version,
			Environment: cfg.Server.Environment,
			StartedAt:   o.startedAt,
		},
	}); err != nil {
		return c, fmt.Errorf("di: system service: %w", err)
	}
	return c, nil
}

func buildServices(reg repositories.Registry, tokens services.TokenIssuer, publisher services.OrderEventPublisher, o options) (Services, error) {
	logger := observability.EventLogger(o.logger.Named("services"))
	var (
		svc Services
		err error
	)

	if svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Categories: reg.Categories(),
		Types:      reg.Types(),
		Clock:      o.clock,
		Meter:      o.meter,
		Logger:     logger,
	}); err != nil {
		return Services{}, fmt.Errorf("di: catalog service: %w", err)
	}

	if svc.Products, err = services.NewProductService(services.ProductServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Types:      reg.Types(),
		Clock:      o.clock,
		Logger:     logger,
	}); err != nil {
		return Services{}, fmt.Errorf("di: product service: %w", err)
	}

	if svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Users:    reg.Users(),
		Products: reg.Products(),
		Clock:    o.clock,
		Events:   publisher,
		Meter:    o.meter,
		Logger:   logger,
	}); err != nil {
		return Services{}, fmt.Errorf("di: order service: %w", err)
	}

	if svc.Users, err = services.NewUserService(services.UserServiceDeps{
		Users:     reg.Users(),
		Orders:    reg.Orders(),
		Products:  reg.Products(),
		Passwords: credentials.NewBcryptHasher(credentials.DefaultBcryptCost),
		Tokens:    tokens,
		Clock:     o.clock,
		Logger:    logger,
	}); err != nil {
		return Services{}, fmt.Errorf("di: user service: %w", err)
	}
	return svc, nil
}

// openRegistry connects the configured document store and binds the repositories to it.
func openRegistry(ctx context.Context, cfg config.DatabaseConfig) (repositories.Registry, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return memory.NewRegistry(), nil
	case config.DriverMongo:
		provider, err := mongodb.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		reg, err := mongorepo.NewRegistry(ctx, provider)
		if err != nil {
			_ = provider.Close(context.WithoutCancel(ctx))
			return nil, err
		}
		return reg, nil
	case config.DriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, err
		}
		reg, err := firestorerepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, err
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("di: unsupported database driver %q", cfg.Driver)
	}
}

func (c *Container) openBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	switch cfg.Driver {
	case config.StorageLocal, "":
		return storage.NewLocalStore(cfg.LocalDir)
	case config.StorageGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("di: storage client: %w", err)
		}
		c.addCloser("storage", func(context.Context) error { return client.Close() })
		return storage.NewGCSStore(client, cfg.Bucket)
	default:
		return nil, fmt.Errorf("di: unsupported storage driver %q", cfg.Driver)
	}
}

// openOrderPublisher dials Pub/Sub and returns a publisher for the order topic plus a health
// check confirming the topic exists.
func (c *Container) openOrderPublisher(ctx context.Context, cfg config.EventsConfig) (services.OrderEventPublisher, repositories.DependencyCheck, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, repositories.DependencyCheck{}, errors.New("di: events project id is required when an order topic is set")
	}
	var opts []option.ClientOption
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" && os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, repositories.DependencyCheck{}, fmt.Errorf("di: pubsub client: %w", err)
	}
	c.addCloser("pubsub", func(context.Context) error { return client.Close() })

	topic := client.Topic(strings.TrimSpace(cfg.OrderTopic))
	topic.EnableMessageOrdering = true
	publisher, err := jobs.NewPubSubOrderPublisher(topic)
	if err != nil {
		return nil, repositories.DependencyCheck{}, err
	}
	c.addCloser("order events", func(context.Context) error {
		publisher.Stop()
		return nil
	})

	check := repositories.DependencyCheck{
		Name: "events",
		Check: func(ctx context.Context) error {
			ok, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("topic %s does not exist", topic.ID())
			}
			return nil
		},
	}
	return publisher, check, nil
}

func (c *Container) addCloser(name string, fn func(context.Context) error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Close releases clients in reverse order of acquisition and joins their errors.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.closers[i].name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
