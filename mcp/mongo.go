package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ka2n/mcp-servers/mongodb"
	"github.com/ka2n/mcp-servers/mongojson"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/morikuni/failure/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MongoVersion is reported to MCP clients by the MongoDB server
const MongoVersion = "0.1.0"

// MongoStore is the set of MongoDB operations exposed as tools.
// *mongodb.Client satisfies it.
type MongoStore interface {
	ReadOnly() bool
	ListDatabases(ctx context.Context) ([]mongodb.Database, error)
	ListCollections(ctx context.Context, db string) ([]string, error)
	Find(ctx context.Context, db, coll string, p mongodb.FindParams) ([]bson.D, error)
	Aggregate(ctx context.Context, db, coll string, pipeline []bson.D, limit int64) ([]bson.D, error)
	Count(ctx context.Context, db, coll string, filter bson.D) (int64, error)
	InsertOne(ctx context.Context, db, coll string, doc bson.D) (mongodb.InsertResult, error)
	InsertMany(ctx context.Context, db, coll string, docs []bson.D) (mongodb.InsertResult, error)
	UpdateMany(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (mongodb.UpdateResult, error)
	DeleteMany(ctx context.Context, db, coll string, filter bson.D) (int64, error)
	ListIndexes(ctx context.Context, db, coll string) ([]bson.D, error)
	CreateIndex(ctx context.Context, db, coll string, keys bson.D, name string, unique bool) (string, error)
	CollectionStats(ctx context.Context, db, coll string) (bson.D, error)
	SampleSchema(ctx context.Context, db, coll string, n int64) (mongodb.Schema, error)
}

// MongoServer exposes a MongoDB deployment over MCP
type MongoServer struct {
	*Server
	store MongoStore
}

// NewMongoServer creates the MongoDB MCP server.
// Write tools are only registered when the store accepts writes.
func NewMongoServer(store MongoStore, opts ...Option) *MongoServer {
	s := &MongoServer{
		Server: newServer("mongo-mcp", MongoVersion, opts),
		store:  store,
	}
	s.server.AddTools(s.readTools()...)
	if !store.ReadOnly() {
		s.server.AddTools(s.writeTools()...)
	}
	return s
}

func withTarget(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append([]mcp.ToolOption{
		mcp.WithString("database", mcp.Required(), mcp.Description("Database name")),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
	}, opts...)
}

func (s *MongoServer) readTools() []server.ServerTool {
	return []server.ServerTool{
		newServerTool(mcp.NewTool("list_databases",
			mcp.WithDescription("List the databases of the deployment"),
		), s.handleListDatabases),
		newServerTool(mcp.NewTool("list_collections",
			mcp.WithDescription("List the collections of a database"),
			mcp.WithString("database", mcp.Required(), mcp.Description("Database name")),
		), s.handleListCollections),
		newServerTool(mcp.NewTool("find_documents", append([]mcp.ToolOption{
			mcp.WithDescription("Find documents. Filters, projections and sorts are MongoDB Extended JSON documents."),
		}, withTarget(
			mcp.WithString("filter", mcp.Description(`Query filter, e.g. {"age": {"$gt": 30}}`)),
			mcp.WithString("projection", mcp.Description("Fields to include or exclude")),
			mcp.WithString("sort", mcp.Description(`Sort specification, e.g. {"created": -1}`)),
			mcp.WithNumber("limit", mcp.Description("Maximum number of documents (default: 20)")),
			mcp.WithNumber("skip", mcp.Description("Number of documents to skip")),
		)...)...), s.handleFind),
		newServerTool(mcp.NewTool("aggregate", append([]mcp.ToolOption{
			mcp.WithDescription("Run an aggregation pipeline"),
		}, withTarget(
			mcp.WithString("pipeline", mcp.Required(), mcp.Description("Extended JSON array of pipeline stages")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of result documents (default: 20)")),
		)...)...), s.handleAggregate),
		newServerTool(mcp.NewTool("count_documents", append([]mcp.ToolOption{
			mcp.WithDescription("Count the documents matching a filter"),
		}, withTarget(
			mcp.WithString("filter", mcp.Description("Query filter")),
		)...)...), s.handleCount),
		newServerTool(mcp.NewTool("list_indexes", append([]mcp.ToolOption{
			mcp.WithDescription("List the indexes of a collection"),
		}, withTarget()...)...), s.handleListIndexes),
		newServerTool(mcp.NewTool("collection_stats", append([]mcp.ToolOption{
			mcp.WithDescription("Show storage statistics of a collection"),
		}, withTarget()...)...), s.handleCollectionStats),
		newServerTool(mcp.NewTool("infer_schema", append([]mcp.ToolOption{
			mcp.WithDescription("Infer field names and types from a random sample of documents"),
		}, withTarget(
			mcp.WithNumber("sample_size", mcp.Description("Number of documents to sample (default: 20)")),
		)...)...), s.handleInferSchema),
	}
}

func (s *MongoServer) writeTools() []server.ServerTool {
	return []server.ServerTool{
		newServerTool(mcp.NewTool("insert_document", append([]mcp.ToolOption{
			mcp.WithDescription("Insert one document, or several when given a JSON array"),
		}, withTarget(
			mcp.WithString("document", mcp.Required(), mcp.Description("Extended JSON document or array of documents")),
		)...)...), s.handleInsert),
		newServerTool(mcp.NewTool("update_documents", append([]mcp.ToolOption{
			mcp.WithDescription("Update every document matching a filter"),
		}, withTarget(
			mcp.WithString("filter", mcp.Required(), mcp.Description("Query filter")),
			mcp.WithString("update", mcp.Required(), mcp.Description(`Update document, e.g. {"$set": {"status": "done"}}`)),
			mcp.WithBoolean("upsert", mcp.Description("Insert a document when nothing matches (default: false)")),
		)...)...), s.handleUpdate),
		newServerTool(mcp.NewTool("delete_documents", append([]mcp.ToolOption{
			mcp.WithDescription("Delete every document matching a non-empty filter"),
		}, withTarget(
			mcp.WithString("filter", mcp.Required(), mcp.Description("Query filter")),
		)...)...), s.handleDelete),
		newServerTool(mcp.NewTool("create_index", append([]mcp.ToolOption{
			mcp.WithDescription("Create an index on a collection"),
		}, withTarget(
			mcp.WithString("keys", mcp.Required(), mcp.Description(`Index keys, e.g. {"email": 1}`)),
			mcp.WithString("name", mcp.Description("Index name")),
			mcp.WithBoolean("unique", mcp.Description("Reject duplicate keys (default: false)")),
		)...)...), s.handleCreateIndex),
	}
}

// target names the collection a tool operates on
type target struct {
	Database   string `json:"database" validate:"required"`
	Collection string `json:"collection" validate:"required"`
}

// documentArg accepts a document either as an Extended JSON string or as a JSON object
func documentArg(v any) (bson.D, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return mongodb.ParseDocument(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(mongodb.ErrInvalidArgument))
	}
	return mongodb.ParseDocument(string(b))
}

// rawJSONArg returns v as Extended JSON text
func rawJSONArg(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", failure.Wrap(err, failure.WithCode(mongodb.ErrInvalidArgument))
	}
	return string(b), nil
}

// serialized returns v rendered by mongojson as a text result
func serialized(v any) (*mcp.CallToolResult, error) {
	out, err := mongojson.Serialize(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *MongoServer) handleListDatabases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbs, err := s.store.ListDatabases(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"databases": dbs})
}

func (s *MongoServer) handleListCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		Database string `json:"database" validate:"required"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	names, err := s.store.ListCollections(ctx, args.Database)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"database": args.Database, "collections": names})
}

func (s *MongoServer) handleFind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		target     `json:",squash"`
		Filter     any   `json:"filter"`
		Projection any   `json:"projection"`
		Sort       any   `json:"sort"`
		Limit      int64 `json:"limit" validate:"gte=0"`
		Skip       int64 `json:"skip" validate:"gte=0"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p := mongodb.FindParams{Limit: args.Limit, Skip: args.Skip}
	for _, f := range []struct {
		in  any
		out *bson.D
	}{{args.Filter, &p.Filter}, {args.Projection, &p.Projection}, {args.Sort, &p.Sort}} {
		d, err := documentArg(f.in)
		if err != nil {
			return toolError(err), nil
		}
		*f.out = d
	}

	docs, err := s.store.Find(ctx, args.Database, args.Collection, p)
	if err != nil {
		return toolError(err), nil
	}
	return serialized(bson.D{{Key: "count", Value: len(docs)}, {Key: "documents", Value: docs}})
}

func (s *MongoServer) handleAggregate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		target   `json:",squash"`
		Pipeline any   `json:"pipeline" validate:"required"`
		Limit    int64 `json:"limit" validate:"gte=0"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, err := rawJSONArg(args.Pipeline)
	if err != nil {
		return toolError(err), nil
	}
	pipeline, err := mongodb.ParsePipeline(text)
	if err != nil {
		return toolError(err), nil
	}

	docs, err := s.store.Aggregate(ctx, args.Database, args.Collection, pipeline, args.Limit)
	if err != nil {
		return toolError(err), nil
	}
	return serialized(bson.D{{Key: "count", Value: len(docs)}, {Key: "documents", Value: docs}})
}

func (s *MongoServer) handleCount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		target `json:",squash"`
		Filter any `json:"filter"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter, err := documentArg(args.Filter)
	if err != nil {
		return toolError(err), nil
	}

	n, err := s.store.Count(ctx, args.Database, args.Collection, filter)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"count": n})
}

func (s *MongoServer) handleInsert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		target   `json:",squash"`
		Document any `json:"document" validate:"required"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, err := rawJSONArg(args.Document)
	if err != nil {
		return toolError(err), nil
	}

	var res mongodb.InsertResult
	if strings.HasPrefix(strings.TrimSpace(text), "[") {
		docs, err := mongodb.ParseDocuments(text)
		if err != nil {
			return toolError(err), nil
		}
		res, err = s.store.InsertMany(ctx, args.Database, args.Collection, docs)
		if err != nil {
			return toolError(err), nil
		}
	} else {
		doc, err := mongodb.ParseDocument(text)
		if err != nil {
			return toolError(err), nil
		}
		res, err = s.store.InsertOne(ctx, args.Database, args.Collection, doc)
		if err != nil {
			return toolError(err), nil
		}
	}
	return serialized(bson.D{{Key: "inserted_count", Value: len(res.InsertedIDs)}, {Key: "inserted_ids", Value: res.InsertedIDs}})
}

func (s *MongoServer) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		target `json:",squash"`
		Filter any  `json:"filter" validate:"required"`
		Update any  `json:"update" validate:"required"`
		Upsert bool `json:"upsert"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter, err := documentArg(args.Filter)
	if err != nil {
		return toolError(err), nil
	}
	update, err := documentArg(args.Update)
	if err != nil {
		return toolError(err), nil
	}

	res, err := s.store.UpdateMany(ctx, args.Database, args.Collection, filter, update, args.Upsert)
	if err != nil {
		return toolError(err), nil
	}
	return serialized(bson.D{
		{Key: "matched_count", Value: res.MatchedCount},
		{Key: "modified_count", Value: res.ModifiedCount},
		{Key: "upserted_count", Value: res.UpsertedCount},
		{Key: "upserted_id", Value: res.UpsertedID},
	})
}

func (s *MongoServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		target `json:",squash"`
		Filter any `json:"filter" validate:"required"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter, err := documentArg(args.Filter)
	if err != nil {
		return toolError(err), nil
	}

	n, err := s.store.DeleteMany(ctx, args.Database, args.Collection, filter)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"deleted_count": n})
}

func (s *MongoServer) handleListIndexes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args target
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	indexes, err := s.store.ListIndexes(ctx, args.Database, args.Collection)
	if err != nil {
		return toolError(err), nil
	}
	return serialized(bson.D{{Key: "indexes", Value: indexes}})
}

func (s *MongoServer) handleCreateIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		target `json:",squash"`
		Keys   any    `json:"keys" validate:"required"`
		Name   string `json:"name"`
		Unique bool   `json:"unique"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	keys, err := documentArg(args.Keys)
	if err != nil {
		return toolError(err), nil
	}

	name, err := s.store.CreateIndex(ctx, args.Database, args.Collection, keys, args.Name, args.Unique)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"name": name})
}

func (s *MongoServer) handleCollectionStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args target
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stats, err := s.store.CollectionStats(ctx, args.Database, args.Collection)
	if err != nil {
		return toolError(err), nil
	}
	clean, err := mongojson.CleanDocument(stats)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"namespace": args.Database + "." + args.Collection,
		"stats":     clean,
	})
}

func (s *MongoServer) handleInferSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		target     `json:",squash"`
		SampleSize int64 `json:"sample_size" validate:"gte=0"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	schema, err := s.store.SampleSchema(ctx, args.Database, args.Collection, args.SampleSize)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(schema)
}
