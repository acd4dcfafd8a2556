// Package mongostore implements EntityStore on MongoDB. Batches run inside a
// session transaction so the all-or-nothing contract holds across collections.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/venuelink/rolodex/pkg/store"
)

// defaultMaxBatchOps caps one transactional batch. Kept well under the 16MB
// transaction oplog limit for our document sizes.
const defaultMaxBatchOps = 500

// Store is a MongoDB-backed document store.
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	maxBatchOps int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBatchOps overrides the transactional batch cap.
func WithMaxBatchOps(n int) Option {
	return func(s *Store) {
		s.maxBatchOps = n
	}
}

// Connect dials MongoDB and pings the primary before returning a Store.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	s := &Store{
		client:      client,
		db:          client.Database(database),
		maxBatchOps: defaultMaxBatchOps,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks connectivity to the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) MaxBatchOps() int {
	return s.maxBatchOps
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get %s/%s: %w", collection, id, err)
	}
	return toDocument(raw), nil
}

func (s *Store) List(ctx context.Context, collection string, filters ...store.Filter) ([]store.Document, error) {
	query := bson.M{}
	for _, f := range filters {
		query[f.Field] = f.Value
	}

	cursor, err := s.db.Collection(collection).Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var out []store.Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("mongostore: list %s: decode: %w", collection, err)
		}
		out = append(out, toDocument(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongostore: list %s: cursor: %w", collection, err)
	}
	return out, nil
}

// Query streams the full collection and applies the predicate client side.
// Filters that can be expressed as equality should use List instead.
func (s *Store) Query(ctx context.Context, collection string, predicate func(id string, doc store.Document) bool) ([]store.Document, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongostore: query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var out []store.Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("mongostore: query %s: decode: %w", collection, err)
		}
		id, _ := raw["_id"].(string)
		doc := toDocument(raw)
		if predicate(id, doc) {
			out = append(out, doc)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongostore: query %s: cursor: %w", collection, err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, doc store.Document) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, toBSON(id, doc))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongostore: create %s/%s: already exists", collection, id)
	}
	if err != nil {
		return fmt.Errorf("mongostore: create %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch store.Document) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id}, patchUpdate(patch))
	if err != nil {
		return fmt.Errorf("mongostore: update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongostore: delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CommitBatch applies every op inside a single transaction. Version
// preconditions are encoded into the op filters; a miss aborts the
// transaction with ErrVersionConflict or ErrNotFound.
func (s *Store) CommitBatch(ctx context.Context, ops []store.Op) error {
	if s.maxBatchOps > 0 && len(ops) > s.maxBatchOps {
		return fmt.Errorf("mongostore: batch of %d ops exceeds limit %d", len(ops), s.maxBatchOps)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongostore: start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		for _, op := range ops {
			if err := s.applyOp(txCtx, op); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) applyOp(ctx context.Context, op store.Op) error {
	coll := s.db.Collection(op.Collection)

	switch op.Kind {
	case store.OpCreate:
		_, err := coll.InsertOne(ctx, toBSON(op.ID, op.Doc))
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("mongostore: create %s/%s: already exists", op.Collection, op.ID)
		}
		if err != nil {
			return fmt.Errorf("mongostore: create %s/%s: %w", op.Collection, op.ID, err)
		}
		return nil

	case store.OpUpdate:
		res, err := coll.UpdateOne(ctx, opFilter(op), patchUpdate(op.Patch))
		if err != nil {
			return fmt.Errorf("mongostore: update %s/%s: %w", op.Collection, op.ID, err)
		}
		if res.MatchedCount == 0 {
			return s.missReason(ctx, op)
		}
		return nil

	case store.OpDelete:
		res, err := coll.DeleteOne(ctx, opFilter(op))
		if err != nil {
			return fmt.Errorf("mongostore: delete %s/%s: %w", op.Collection, op.ID, err)
		}
		if res.DeletedCount == 0 {
			return s.missReason(ctx, op)
		}
		return nil

	default:
		return fmt.Errorf("mongostore: unknown op kind %q", op.Kind)
	}
}

// missReason distinguishes a missing document from a version precondition
// failure after a conditional write matched nothing.
func (s *Store) missReason(ctx context.Context, op store.Op) error {
	if op.ExpectedVersion == nil {
		return store.ErrNotFound
	}
	err := s.db.Collection(op.Collection).
		FindOne(ctx, bson.M{"_id": op.ID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return store.ErrVersionConflict
}

func opFilter(op store.Op) bson.M {
	filter := bson.M{"_id": op.ID}
	if op.ExpectedVersion != nil {
		filter["version"] = *op.ExpectedVersion
	}
	return filter
}

func patchUpdate(patch store.Document) bson.M {
	set := bson.M{}
	unset := bson.M{}
	for k, v := range patch {
		if v == nil {
			unset[k] = ""
			continue
		}
		set[k] = v
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		update["$set"] = bson.M{}
	}
	return update
}

func toBSON(id string, doc store.Document) bson.M {
	out := bson.M{"_id": id}
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func toDocument(raw bson.M) store.Document {
	doc := make(store.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = v
	}
	return doc
}
