package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gemvault/api/internal/platform/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultConnectTimeout = 10 * time.Second

// Provider owns the MongoDB client and the database every repository writes to.
type Provider struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and verifies the primary answers before returning.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Provider, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("mongodb: uri is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	return &Provider{client: client, db: client.Database(cfg.Database)}, nil
}

// Database returns the configured database handle.
func (p *Provider) Database() *mongo.Database {
	return p.db
}

// Collection returns a handle to the named collection.
func (p *Provider) Collection(name string) *mongo.Collection {
	return p.db.Collection(name)
}

// Ping checks the primary is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	return WrapError("mongodb.ping", p.client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Disconnect(ctx)
}

// IndexSpec declares the indexes one collection needs.
type IndexSpec struct {
	Collection string
	Models     []mongo.IndexModel
}

// EnsureIndexes creates the declared indexes. Creating an index that already exists is a no-op.
func (p *Provider) EnsureIndexes(ctx context.Context, specs []IndexSpec) error {
	for _, spec := range specs {
		if len(spec.Models) == 0 {
			continue
		}
		if _, err := p.Collection(spec.Collection).Indexes().CreateMany(ctx, spec.Models); err != nil {
			return WrapError(spec.Collection+".ensure_indexes", err)
		}
	}
	return nil
}

// ObjectID converts a hex id. Invalid ids report false.
func ObjectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}

// ObjectIDs converts hex ids, dropping the invalid ones.
func ObjectIDs(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, ok := ObjectID(id); ok {
			out = append(out, oid)
		}
	}
	return out
}
