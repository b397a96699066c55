package docstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/harun/docsess/internal/observability"
	"github.com/harun/docsess/internal/tracing"
	"github.com/harun/docsess/pkg/document"
	"github.com/harun/docsess/pkg/journal"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel/attribute"
)

const (
	driverMongo = "mongo"

	defaultMongoTimeout = 10 * time.Second
)

// MongoConfig configures a MongoDB collection store
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Mongo stores documents in a MongoDB collection keyed by _id.
// Update specs are evaluated by the server.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongo connects to the server and verifies it with a ping
func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	observability.EnsureRegistered()

	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri cannot be empty")
	}
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("mongo database and collection are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMongoTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	log.Info().
		Str("database", cfg.Database).
		Str("collection", cfg.Collection).
		Msg("MongoDB document store connected")

	return NewMongoWithClient(client, cfg.Database, cfg.Collection, cfg.Timeout), nil
}

// NewMongoWithClient wraps an already connected client
func NewMongoWithClient(client *mongo.Client, database, collection string, timeout time.Duration) *Mongo {
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}
	return &Mongo{
		client:     client,
		collection: client.Database(database).Collection(collection),
		timeout:    timeout,
	}
}

// FindOne returns the document whose _id is id
func (m *Mongo) FindOne(ctx context.Context, id string) (document.Map, error) {
	ctx, span := tracing.StartSpan(ctx, "docsess.docstore", "mongo.find_one", attribute.String("driver", driverMongo))
	defer span.End()
	start := time.Now()

	doc, err := m.findOne(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		tracing.Fail(span, err)
	}
	observability.RecordStoreOperation(driverMongo, "find_one", time.Since(start), ignoreNotFound(err))
	return doc, err
}

func (m *Mongo) findOne(ctx context.Context, id string) (document.Map, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var raw bson.M
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	return fromBSON(raw)
}

// Upsert sends spec as the update document of an upserting UpdateOne
func (m *Mongo) Upsert(ctx context.Context, id string, spec journal.Spec) error {
	ctx, span := tracing.StartSpan(ctx, "docsess.docstore", "mongo.upsert", attribute.String("driver", driverMongo))
	defer span.End()
	start := time.Now()

	err := m.upsert(ctx, id, spec)
	observability.RecordStoreOperation(driverMongo, "upsert", time.Since(start), err)
	return tracing.Fail(span, err)
}

func (m *Mongo) upsert(ctx context.Context, id string, spec journal.Spec) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := journal.Validate(spec); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, toUpdate(spec), options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

// Remove deletes the document whose _id is id
func (m *Mongo) Remove(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "docsess.docstore", "mongo.remove", attribute.String("driver", driverMongo))
	defer span.End()
	start := time.Now()

	err := checkID(id)
	if err == nil {
		opCtx, cancel := context.WithTimeout(ctx, m.timeout)
		if _, delErr := m.collection.DeleteOne(opCtx, bson.M{"_id": id}); delErr != nil {
			err = fmt.Errorf("failed to delete document: %w", delErr)
		}
		cancel()
	}
	observability.RecordStoreOperation(driverMongo, "remove", time.Since(start), err)
	return tracing.Fail(span, err)
}

// PurgeBefore deletes documents whose update timestamp is older than cutoff
func (m *Mongo) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "docsess.docstore", "mongo.purge_before", attribute.String("driver", driverMongo))
	defer span.End()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.collection.DeleteMany(ctx, bson.M{UpdatedAtField: bson.M{"$lt": primitive.NewDateTimeFromTime(cutoff)}})
	if err != nil {
		err = fmt.Errorf("failed to purge documents: %w", err)
		observability.RecordStoreOperation(driverMongo, "purge", time.Since(start), err)
		return 0, tracing.Fail(span, err)
	}
	observability.RecordStoreOperation(driverMongo, "purge", time.Since(start), nil)
	span.SetAttributes(attribute.Int64("purged", res.DeletedCount))
	return int(res.DeletedCount), nil
}

// Close disconnects the client
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// toUpdate converts a journal spec into a bson update document and stamps the update time
func toUpdate(spec journal.Spec) bson.M {
	update := bson.M{}
	for op, fields := range spec {
		if len(fields) == 0 {
			continue
		}
		update[op] = bson.M(fields)
	}
	update["$currentDate"] = bson.M{UpdatedAtField: true}
	return update
}

// fromBSON converts a decoded bson document into a normalized document,
// dropping the _id key and the bookkeeping timestamp
func fromBSON(raw bson.M) (document.Map, error) {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		if key == UpdatedAtField {
			continue
		}
		out[key] = fromBSONValue(value)
	}
	doc, err := document.NormalizeMap(out)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}
	return stripReserved(doc), nil
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = fromBSONValue(item)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSONValue(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSONValue(item)
		}
		return out
	case []any:
		return fromBSONValue(primitive.A(t))
	case map[string]any:
		return fromBSONValue(primitive.M(t))
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		return t.String()
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(t.Data)
	case primitive.Null, primitive.Undefined:
		return nil
	}
	return v
}
