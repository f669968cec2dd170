package mongodb

import (
	"context"

	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Database describes one database of the deployment
type Database struct {
	Name       string `json:"name"`
	SizeOnDisk int64  `json:"size_on_disk"`
	Empty      bool   `json:"empty"`
}

// FindParams selects documents for Find
type FindParams struct {
	Filter     bson.D
	Projection bson.D
	Sort       bson.D
	Limit      int64
	Skip       int64
}

// InsertResult reports inserted document ids
type InsertResult struct {
	InsertedIDs []any `json:"inserted_ids"`
}

// UpdateResult reports the outcome of UpdateMany
type UpdateResult struct {
	MatchedCount  int64 `json:"matched_count"`
	ModifiedCount int64 `json:"modified_count"`
	UpsertedCount int64 `json:"upserted_count"`
	UpsertedID    any   `json:"upserted_id,omitempty"`
}

// ListDatabases returns the databases of the deployment
func (c *Client) ListDatabases(ctx context.Context) ([]Database, error) {
	res, err := c.client.ListDatabases(ctx, bson.D{})
	if err != nil {
		return nil, operationError(err, "listDatabases")
	}
	return lo.Map(res.Databases, func(d mongo.DatabaseSpecification, _ int) Database {
		return Database{Name: d.Name, SizeOnDisk: d.SizeOnDisk, Empty: d.Empty}
	}), nil
}

// ListCollections returns the collection names of a database
func (c *Client) ListCollections(ctx context.Context, db string) ([]string, error) {
	if db == "" {
		return nil, invalidArgument("database name is required")
	}
	names, err := c.client.Database(db).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, operationError(err, "listCollections")
	}
	return names, nil
}

// Find returns the documents matching p.Filter
func (c *Client) Find(ctx context.Context, db, coll string, p FindParams) ([]bson.D, error) {
	if p.Skip < 0 {
		return nil, invalidArgument("skip must not be negative")
	}
	col, err := c.collection(db, coll)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetLimit(c.Limit(p.Limit))
	if p.Skip > 0 {
		opts.SetSkip(p.Skip)
	}
	if len(p.Projection) > 0 {
		opts.SetProjection(p.Projection)
	}
	if len(p.Sort) > 0 {
		opts.SetSort(p.Sort)
	}

	cur, err := col.Find(ctx, filterOrEmpty(p.Filter), opts)
	if err != nil {
		return nil, operationError(err, "find")
	}
	docs, err := collect(ctx, cur, 0)
	if err != nil {
		return nil, operationError(err, "find")
	}
	return docs, nil
}

// Aggregate runs a pipeline and returns at most limit result documents
func (c *Client) Aggregate(ctx context.Context, db, coll string, pipeline []bson.D, limit int64) ([]bson.D, error) {
	if c.readOnly {
		if stage, ok := lo.Find(pipeline, isWriteStage); ok {
			return nil, c.checkWritable("aggregate with " + stage[0].Key)
		}
	}
	col, err := c.collection(db, coll)
	if err != nil {
		return nil, err
	}

	cur, err := col.Aggregate(ctx, mongo.Pipeline(pipeline))
	if err != nil {
		return nil, operationError(err, "aggregate")
	}
	docs, err := collect(ctx, cur, c.Limit(limit))
	if err != nil {
		return nil, operationError(err, "aggregate")
	}
	return docs, nil
}

func isWriteStage(stage bson.D) bool {
	if len(stage) == 0 {
		return false
	}
	return stage[0].Key == "$out" || stage[0].Key == "$merge"
}

// Count returns the number of documents matching filter
func (c *Client) Count(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	col, err := c.collection(db, coll)
	if err != nil {
		return 0, err
	}
	n, err := col.CountDocuments(ctx, filterOrEmpty(filter))
	if err != nil {
		return 0, operationError(err, "count")
	}
	return n, nil
}

// InsertOne inserts a single document
func (c *Client) InsertOne(ctx context.Context, db, coll string, doc bson.D) (InsertResult, error) {
	if err := c.checkWritable("insert"); err != nil {
		return InsertResult{}, err
	}
	col, err := c.collection(db, coll)
	if err != nil {
		return InsertResult{}, err
	}
	res, err := col.InsertOne(ctx, doc)
	if err != nil {
		return InsertResult{}, operationError(err, "insert")
	}
	return InsertResult{InsertedIDs: []any{res.InsertedID}}, nil
}

// InsertMany inserts several documents in order
func (c *Client) InsertMany(ctx context.Context, db, coll string, docs []bson.D) (InsertResult, error) {
	if err := c.checkWritable("insert"); err != nil {
		return InsertResult{}, err
	}
	if len(docs) == 0 {
		return InsertResult{}, invalidArgument("at least one document is required")
	}
	col, err := c.collection(db, coll)
	if err != nil {
		return InsertResult{}, err
	}
	res, err := col.InsertMany(ctx, docs)
	if err != nil {
		return InsertResult{}, operationError(err, "insert")
	}
	return InsertResult{InsertedIDs: res.InsertedIDs}, nil
}

// UpdateMany applies update to every document matching filter
func (c *Client) UpdateMany(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (UpdateResult, error) {
	if err := c.checkWritable("update"); err != nil {
		return UpdateResult{}, err
	}
	if len(update) == 0 {
		return UpdateResult{}, invalidArgument("update document is required")
	}
	col, err := c.collection(db, coll)
	if err != nil {
		return UpdateResult{}, err
	}
	res, err := col.UpdateMany(ctx, filterOrEmpty(filter), update, options.UpdateMany().SetUpsert(upsert))
	if err != nil {
		return UpdateResult{}, operationError(err, "update")
	}
	return UpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}, nil
}

// DeleteMany removes every document matching filter.
// An empty filter is rejected so a collection is never emptied by accident.
func (c *Client) DeleteMany(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	if err := c.checkWritable("delete"); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, invalidArgument("a non-empty filter is required to delete documents")
	}
	col, err := c.collection(db, coll)
	if err != nil {
		return 0, err
	}
	res, err := col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, operationError(err, "delete")
	}
	return res.DeletedCount, nil
}

// ListIndexes returns the index specifications of a collection
func (c *Client) ListIndexes(ctx context.Context, db, coll string) ([]bson.D, error) {
	col, err := c.collection(db, coll)
	if err != nil {
		return nil, err
	}
	cur, err := col.Indexes().List(ctx)
	if err != nil {
		return nil, operationError(err, "listIndexes")
	}
	docs, err := collect(ctx, cur, 0)
	if err != nil {
		return nil, operationError(err, "listIndexes")
	}
	return docs, nil
}

// CreateIndex creates an index and returns its name
func (c *Client) CreateIndex(ctx context.Context, db, coll string, keys bson.D, name string, unique bool) (string, error) {
	if err := c.checkWritable("createIndex"); err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", invalidArgument("index keys are required")
	}
	col, err := c.collection(db, coll)
	if err != nil {
		return "", err
	}

	opts := options.Index().SetUnique(unique)
	if name != "" {
		opts.SetName(name)
	}
	created, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts})
	if err != nil {
		return "", operationError(err, "createIndex")
	}
	return created, nil
}

// CollectionStats returns storage statistics of a collection
func (c *Client) CollectionStats(ctx context.Context, db, coll string) (bson.D, error) {
	if _, err := c.collection(db, coll); err != nil {
		return nil, err
	}

	var stats bson.D
	cmd := bson.D{{Key: "collStats", Value: coll}}
	if err := c.client.Database(db).RunCommand(ctx, cmd).Decode(&stats); err != nil {
		return nil, operationError(err, "collStats")
	}
	return stats, nil
}

// SampleSchema infers field types from a random sample of at most n documents
func (c *Client) SampleSchema(ctx context.Context, db, coll string, n int64) (Schema, error) {
	col, err := c.collection(db, coll)
	if err != nil {
		return Schema{}, err
	}
	size := c.Limit(n)

	pipeline := mongo.Pipeline{{{Key: "$sample", Value: bson.D{{Key: "size", Value: size}}}}}
	cur, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return Schema{}, operationError(err, "sample")
	}
	defer cur.Close(ctx)

	b := newSchemaBuilder()
	for cur.Next(ctx) {
		if err := b.add(cur.Current); err != nil {
			return Schema{}, failure.Wrap(err, failure.WithCode(ErrOperation))
		}
	}
	if err := cur.Err(); err != nil {
		return Schema{}, operationError(err, "sample")
	}
	return b.schema(), nil
}

func filterOrEmpty(filter bson.D) bson.D {
	if filter == nil {
		return bson.D{}
	}
	return filter
}
