package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultDatabaseDriver  = DriverMemory
	defaultMongoDatabase   = "gemvault"
	defaultMongoTimeout    = 10 * time.Second
	defaultStorageDriver   = StorageLocal
	defaultStorageDir      = "uploads"
	defaultTokenTTL        = 7 * 24 * time.Hour
	defaultOrderTopic      = "order-events"
	defaultUploadMaxMemory = 32 << 20
	defaultUploadMaxBody   = 64 << 20
	defaultUploadWorkers   = 4
	defaultLogMaxSizeMB    = 64
	defaultLogMaxBackups   = 7
	defaultLogMaxAgeDays   = 7
)

// Database drivers.
const (
	DriverMemory    = "memory"
	DriverMongo     = "mongo"
	DriverFirestore = "firestore"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Events   EventsConfig
	Uploads  UploadConfig
	Logging  LoggingConfig
	Secrets  SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Version      string
	Environment  string
}

// DatabaseConfig selects the document store backing the repositories.
type DatabaseConfig struct {
	Driver    string
	Mongo     MongoConfig
	Firestore FirestoreConfig
}

// MongoConfig stores MongoDB connection parameters.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// FirestoreConfig stores Firestore project parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig selects where uploaded images are written.
type StorageConfig struct {
	Driver   string
	Bucket   string
	LocalDir string
}

// AuthConfig configures credential tokens.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// Required rejects user-scoped requests that carry no bearer token.
	Required bool
}

// EventsConfig configures order event publishing. An empty topic disables publishing.
type EventsConfig struct {
	ProjectID    string
	OrderTopic   string
	EmulatorHost string
}

// UploadConfig bounds multipart handling.
type UploadConfig struct {
	MaxMemory   int64
	MaxBody     int64
	Concurrency int
}

// LoggingConfig configures the optional rotating log file.
type LoggingConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface. Secret names are redacted.
func (e *MissingSecretsError) Error() string {
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Auth.JWTSecret") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	googleProject := stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")
	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			Version:      stringWithDefault(lookup, "API_VERSION", "dev"),
			Environment:  stringWithDefault(lookup, "API_ENVIRONMENT", "local"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "API_DATABASE_DRIVER", defaultDatabaseDriver)),
			Mongo: MongoConfig{
				URI:            stringWithDefault(lookup, "API_MONGO_URI", ""),
				Database:       stringWithDefault(lookup, "API_MONGO_DATABASE", defaultMongoDatabase),
				ConnectTimeout: durationWithDefault(lookup, "API_MONGO_CONNECT_TIMEOUT", defaultMongoTimeout),
			},
			Firestore: FirestoreConfig{
				ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", googleProject),
				EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
			},
		},
		Storage: StorageConfig{
			Driver:   strings.ToLower(stringWithDefault(lookup, "API_STORAGE_DRIVER", defaultStorageDriver)),
			Bucket:   stringWithDefault(lookup, "API_STORAGE_BUCKET", ""),
			LocalDir: stringWithDefault(lookup, "API_STORAGE_LOCAL_DIR", defaultStorageDir),
		},
		Auth: AuthConfig{
			JWTSecret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			TokenTTL:  durationWithDefault(lookup, "API_AUTH_TOKEN_TTL", defaultTokenTTL),
			Required:  boolWithDefault(lookup, "API_AUTH_REQUIRED", false),
		},
		Events: EventsConfig{
			ProjectID:    stringWithDefault(lookup, "API_EVENTS_PROJECT_ID", googleProject),
			OrderTopic:   stringWithDefault(lookup, "API_EVENTS_ORDER_TOPIC", ""),
			EmulatorHost: stringWithDefault(lookup, "PUBSUB_EMULATOR_HOST", ""),
		},
		Uploads: UploadConfig{
			MaxMemory:   int64(intWithDefault(lookup, "API_UPLOAD_MAX_MEMORY", defaultUploadMaxMemory)),
			MaxBody:     int64(intWithDefault(lookup, "API_UPLOAD_MAX_BODY", defaultUploadMaxBody)),
			Concurrency: intWithDefault(lookup, "API_UPLOAD_CONCURRENCY", defaultUploadWorkers),
		},
		Logging: LoggingConfig{
			File:       stringWithDefault(lookup, "API_LOG_FILE", ""),
			MaxSizeMB:  intWithDefault(lookup, "API_LOG_MAX_SIZE_MB", defaultLogMaxSizeMB),
			MaxBackups: intWithDefault(lookup, "API_LOG_MAX_BACKUPS", defaultLogMaxBackups),
			MaxAgeDays: intWithDefault(lookup, "API_LOG_MAX_AGE_DAYS", defaultLogMaxAgeDays),
		},
		Secrets: secretsConfig(lookup),
	}
	if boolWithDefault(lookup, "API_EVENTS_ENABLED", false) && cfg.Events.OrderTopic == "" {
		cfg.Events.OrderTopic = defaultOrderTopic
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
		{"Database.Mongo.URI", &cfg.Database.Mongo.URI},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

// LoadSecrets reads only the Secret Manager settings, which are needed to build the resolver
// passed to Load.
func LoadSecrets(opts ...Option) (SecretsConfig, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := options.lookup()
	if err != nil {
		return SecretsConfig{}, err
	}
	return secretsConfig(lookup), nil
}

func secretsConfig(lookup func(string) (string, bool)) SecretsConfig {
	return SecretsConfig{
		ProjectID:    stringWithDefault(lookup, "API_SECRETS_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
		FallbackFile: stringWithDefault(lookup, "API_SECRETS_FALLBACK_FILE", ".secrets.local"),
	}
}

// lookup layers explicit values over the process environment over the .env file.
func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnvValues, err := readDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := o.envMap[key]; ok {
			return value, true
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Database.Driver {
	case DriverMemory:
	case DriverMongo:
		if cfg.Database.Mongo.URI == "" {
			missing = append(missing, "Database.Mongo.URI")
		}
		if cfg.Database.Mongo.Database == "" {
			missing = append(missing, "Database.Mongo.Database")
		}
	case DriverFirestore:
		if cfg.Database.Firestore.ProjectID == "" {
			missing = append(missing, "Database.Firestore.ProjectID")
		}
	default:
		missing = append(missing, "Database.Driver")
	}
	switch cfg.Storage.Driver {
	case StorageLocal:
		if cfg.Storage.LocalDir == "" {
			missing = append(missing, "Storage.LocalDir")
		}
	case StorageGCS:
		if cfg.Storage.Bucket == "" {
			missing = append(missing, "Storage.Bucket")
		}
	default:
		missing = append(missing, "Storage.Driver")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "Auth.JWTSecret")
	}
	if cfg.Auth.TokenTTL <= 0 {
		missing = append(missing, "Auth.TokenTTL")
	}
	if cfg.Events.OrderTopic != "" && cfg.Events.ProjectID == "" {
		missing = append(missing, "Events.ProjectID")
	}
	if cfg.Uploads.MaxMemory <= 0 {
		missing = append(missing, "Uploads.MaxMemory")
	}
	if cfg.Uploads.MaxBody <= 0 {
		missing = append(missing, "Uploads.MaxBody")
	}
	if cfg.Uploads.Concurrency <= 0 {
		missing = append(missing, "Uploads.Concurrency")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
