package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/gemvault/api/internal/repositories"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded entity with its Firestore id and timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection provides typed helpers around one Firestore collection. T must be a struct
// carrying firestore tags.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection to the provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Op formats an operation label such as "categories.rename".
func (c *Collection[T]) Op(action string) string {
	return c.name + "." + action
}

// Ref returns the collection reference.
func (c *Collection[T]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

// Doc returns the reference of a document in the collection.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("firestore: document id is required")
	}
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Create writes a new document and reports a conflict when the id is taken.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, value)
	return WrapError(c.Op("create"), err)
}

// Get loads a document by id.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.Op("get"), err)
	}
	return Decode[T](snap)
}

// GetAll loads the documents for ids in one round trip, preserving the order of ids and
// skipping ids that do not exist.
func (c *Collection[T]) GetAll(ctx context.Context, ids []string) ([]Document[T], error) {
	if len(ids) == 0 {
		return nil, nil
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	coll := client.Collection(c.name)
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			refs = append(refs, coll.Doc(id))
		}
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, WrapError(c.Op("get_all"), err)
	}
	docs := make([]Document[T], 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		doc, err := Decode[T](snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Query executes a collection query and returns the decoded documents.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	docs, err := DecodeAll[T](query.Documents(ctx))
	if err != nil {
		return nil, WrapError(c.Op("query"), err)
	}
	return docs, nil
}

// First returns the first document matched by the query or a not-found error naming subject.
func (c *Collection[T]) First(ctx context.Context, subject string, build QueryBuilder) (Document[T], error) {
	docs, err := c.Query(ctx, func(q firestore.Query) firestore.Query {
		return build(q).Limit(1)
	})
	if err != nil {
		return Document[T]{}, err
	}
	if len(docs) == 0 {
		return Document[T]{}, repositories.NewNotFoundError(c.Op("find"), subject)
	}
	return docs[0], nil
}

// Mutate reads the document inside a transaction, applies fn, and writes the result back.
// fn may return an error to abort without writing.
func (c *Collection[T]) Mutate(ctx context.Context, id string, fn func(*T) error) (Document[T], error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	var out Document[T]
	err = c.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := Decode[T](snap)
		if err != nil {
			return err
		}
		if err := fn(&doc.Data); err != nil {
			return err
		}
		out = doc
		return tx.Set(ref, doc.Data)
	})
	if err != nil {
		return Document[T]{}, WrapError(c.Op("mutate"), err)
	}
	return out, nil
}

// MutateFirst runs Mutate against the first document matched by the query. The query is
// evaluated inside the transaction so the match cannot move between read and write.
func (c *Collection[T]) MutateFirst(ctx context.Context, subject string, build QueryBuilder, fn func(*T) error) (Document[T], error) {
	coll, err := c.Ref(ctx)
	if err != nil {
		return Document[T]{}, err
	}
	var out Document[T]
	err = c.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		docs, err := DecodeAll[T](tx.Documents(build(coll.Query).Limit(1)))
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return repositories.NewNotFoundError(c.Op("mutate"), subject)
		}
		doc := docs[0]
		if err := fn(&doc.Data); err != nil {
			return err
		}
		out = doc
		return tx.Set(coll.Doc(doc.ID), doc.Data)
	})
	if err != nil {
		return Document[T]{}, WrapError(c.Op("mutate"), err)
	}
	return out, nil
}

// Decode converts a snapshot into a typed document.
func Decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       data,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

// DecodeAll drains the iterator, decoding every snapshot.
func DecodeAll[T any](iter *firestore.DocumentIterator) ([]Document[T], error) {
	defer iter.Stop()
	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		doc, err := Decode[T](snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}
