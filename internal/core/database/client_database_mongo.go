package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/markdave123-py/prescodata/internal/config"
	"github.com/markdave123-py/prescodata/internal/core"
)

const duplicateKeyCode = 11000

var _ core.DbClient = (*MongoClient)(nil)

// MongoClient stores each collection as a MongoDB collection of the same name.
type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoClient(ctx context.Context, cfg *config.Config) (*MongoClient, error) {
	opts := options.Client().
		ApplyURI(cfg.DatabaseURL).
		SetMaxPoolSize(20).
		SetServerSelectionTimeout(30 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoClient{client: client, db: client.Database(cfg.DatabaseName)}, nil
}

func (c *MongoClient) EnsureIndexes(ctx context.Context, collection string, indexes []core.IndexSpec) error {
	if len(indexes) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, spec := range indexes {
		keys := bson.D{}
		for _, f := range spec.Fields {
			if spec.Text {
				keys = append(keys, bson.E{Key: f, Value: "text"})
			} else {
				keys = append(keys, bson.E{Key: f, Value: 1})
			}
		}
		opts := options.Index().SetName(spec.Name)
		if spec.Unique {
			opts.SetUnique(true)
		}
		models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
	}
	if _, err := c.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes on %s: %w", collection, err)
	}
	return nil
}

func (c *MongoClient) InsertMany(ctx context.Context, collection string, docs []core.Document) (core.InsertResult, error) {
	if len(docs) == 0 {
		return core.InsertResult{}, nil
	}
	now := time.Now().UTC()
	batch := make([]interface{}, len(docs))
	for i, d := range docs {
		batch[i] = stampForInsert(d, now)
	}

	res, err := c.db.Collection(collection).InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err == nil {
		return core.InsertResult{Inserted: len(res.InsertedIDs)}, nil
	}

	if out, ok := partialInsert(err, len(docs)); ok {
		return out, nil
	}
	return core.InsertResult{}, fmt.Errorf("insert into %s: %w", collection, err)
}

// partialInsert reports the outcome of an unordered insert that failed on some
// documents only. Anything else, a write concern error included, is not partial.
func partialInsert(err error, total int) (core.InsertResult, bool) {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return core.InsertResult{}, false
	}
	out := core.InsertResult{Inserted: total - len(bwe.WriteErrors)}
	for _, we := range bwe.WriteErrors {
		out.Failed = append(out.Failed, core.DocumentError{Index: we.Index, Err: classifyWriteError(we.WriteError)})
	}
	return out, true
}

func (c *MongoClient) InsertOne(ctx context.Context, collection string, doc core.Document) error {
	_, err := c.db.Collection(collection).InsertOne(ctx, stampForInsert(doc, time.Now().UTC()))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert into %s: %w", collection, core.ErrDuplicateKey)
		}
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

func (c *MongoClient) Upsert(ctx context.Context, collection, keyField string, doc core.Document) error {
	key, ok := doc[keyField]
	if !ok {
		return fmt.Errorf("upsert: document has no %q", keyField)
	}
	now := time.Now().UTC()
	set := bson.M{core.FieldUpdatedAt: now}
	for k, v := range doc {
		if k == core.FieldID || k == core.FieldCreatedAt || k == core.FieldUpdatedAt {
			continue
		}
		set[k] = v
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{core.FieldCreatedAt: now},
	}
	_, err := c.db.Collection(collection).UpdateOne(ctx, bson.M{keyField: key}, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("upsert into %s: %w", collection, core.ErrDuplicateKey)
		}
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}
	return nil
}

func (c *MongoClient) DeleteAll(ctx context.Context, collection string) (int64, error) {
	res, err := c.db.Collection(collection).DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

func (c *MongoClient) Find(ctx context.Context, collection string, filter core.Filter, opts core.FindOptions) ([]core.Document, error) {
	fo := options.Find().SetSort(sortFor(opts))
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}

	cur, err := c.db.Collection(collection).Find(ctx, toBSON(filter), fo)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}

	out := make([]core.Document, len(raw))
	for i, m := range raw {
		out[i] = normalizeDocument(m)
	}
	return out, nil
}

func (c *MongoClient) FindOne(ctx context.Context, collection string, filter core.Filter, opts core.FindOptions) (core.Document, error) {
	fo := options.FindOne().SetSort(sortFor(opts))
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	var raw bson.M
	err := c.db.Collection(collection).FindOne(ctx, toBSON(filter), fo).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one in %s: %w", collection, err)
	}
	return normalizeDocument(raw), nil
}

func (c *MongoClient) Count(ctx context.Context, collection string, filter core.Filter) (int64, error) {
	n, err := c.db.Collection(collection).CountDocuments(ctx, toBSON(filter))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (c *MongoClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *MongoClient) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func classifyWriteError(we mongo.WriteError) error {
	if we.Code == duplicateKeyCode {
		return fmt.Errorf("%s: %w", we.Message, core.ErrDuplicateKey)
	}
	return errors.New(we.Message)
}

func stampForInsert(doc core.Document, now time.Time) bson.M {
	out := make(bson.M, len(doc)+2)
	for k, v := range doc {
		if k == core.FieldID {
			if s, _ := v.(string); s == "" {
				continue
			}
		}
		out[k] = v
	}
	out[core.FieldCreatedAt] = now
	out[core.FieldUpdatedAt] = now
	return out
}

func sortFor(opts core.FindOptions) bson.D {
	if opts.NewestFirst {
		return bson.D{{Key: core.FieldUpdatedAt, Value: -1}, {Key: core.FieldID, Value: -1}}
	}
	return bson.D{{Key: core.FieldID, Value: 1}}
}

// toBSON translates a store filter into a MongoDB query document.
func toBSON(filter core.Filter) bson.D {
	if filter.IsEmpty() {
		return bson.D{}
	}
	clauses := make(bson.A, 0, len(filter.Any))
	for _, cond := range filter.Any {
		clauses = append(clauses, bson.D{{Key: cond.Field, Value: conditionValue(cond)}})
	}
	if len(clauses) == 1 {
		return clauses[0].(bson.D)
	}
	return bson.D{{Key: "$or", Value: clauses}}
}

func conditionValue(cond core.Condition) any {
	if cond.Op == core.MatchContains {
		s, _ := cond.Value.(string)
		return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
	}
	return cond.Value
}

func normalizeDocument(m bson.M) core.Document {
	out := make(core.Document, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	case int32:
		return int64(x)
	case primitive.Decimal128:
		return x.String()
	case primitive.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeValue(item)
		}
		return out
	case bson.M:
		return map[string]any(normalizeDocument(x))
	case bson.D:
		return map[string]any(normalizeDocument(x.Map()))
	}
	return v
}
