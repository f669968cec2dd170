package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ka2n/mcp-servers/mongodb"
	"github.com/morikuni/failure/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// fakeStore records the arguments of the last call and returns canned results
type fakeStore struct {
	readOnly bool

	db, coll string
	params   mongodb.FindParams
	pipeline []bson.D
	filter   bson.D
	update   bson.D
	upsert   bool
	inserted []bson.D

	docs  []bson.D
	stats bson.D
	err   error
}

func (f *fakeStore) ReadOnly() bool { return f.readOnly }

func (f *fakeStore) ListDatabases(context.Context) ([]mongodb.Database, error) {
	return []mongodb.Database{{Name: "shop", SizeOnDisk: 8192}}, f.err
}

func (f *fakeStore) ListCollections(_ context.Context, db string) ([]string, error) {
	f.db = db
	return []string{"orders", "users"}, f.err
}

func (f *fakeStore) Find(_ context.Context, db, coll string, p mongodb.FindParams) ([]bson.D, error) {
	f.db, f.coll, f.params = db, coll, p
	return f.docs, f.err
}

func (f *fakeStore) Aggregate(_ context.Context, db, coll string, pipeline []bson.D, limit int64) ([]bson.D, error) {
	f.db, f.coll, f.pipeline = db, coll, pipeline
	return f.docs, f.err
}

func (f *fakeStore) Count(_ context.Context, db, coll string, filter bson.D) (int64, error) {
	f.db, f.coll, f.filter = db, coll, filter
	return int64(len(f.docs)), f.err
}

func (f *fakeStore) InsertOne(_ context.Context, db, coll string, doc bson.D) (mongodb.InsertResult, error) {
	f.inserted = []bson.D{doc}
	return mongodb.InsertResult{InsertedIDs: []any{"a"}}, f.err
}

func (f *fakeStore) InsertMany(_ context.Context, db, coll string, docs []bson.D) (mongodb.InsertResult, error) {
	f.inserted = docs
	ids := make([]any, len(docs))
	for i := range docs {
		ids[i] = int32(i + 1)
	}
	return mongodb.InsertResult{InsertedIDs: ids}, f.err
}

func (f *fakeStore) UpdateMany(_ context.Context, db, coll string, filter, update bson.D, upsert bool) (mongodb.UpdateResult, error) {
	f.filter, f.update, f.upsert = filter, update, upsert
	return mongodb.UpdateResult{MatchedCount: 2, ModifiedCount: 1}, f.err
}

func (f *fakeStore) DeleteMany(_ context.Context, db, coll string, filter bson.D) (int64, error) {
	f.filter = filter
	return 3, f.err
}

func (f *fakeStore) ListIndexes(context.Context, string, string) ([]bson.D, error) {
	return []bson.D{{{Key: "name", Value: "_id_"}, {Key: "key", Value: bson.D{{Key: "_id", Value: int32(1)}}}}}, f.err
}

func (f *fakeStore) CreateIndex(_ context.Context, db, coll string, keys bson.D, name string, unique bool) (string, error) {
	if name == "" {
		name = "email_1"
	}
	return name, f.err
}

func (f *fakeStore) CollectionStats(context.Context, string, string) (bson.D, error) {
	return f.stats, f.err
}

func (f *fakeStore) SampleSchema(_ context.Context, db, coll string, n int64) (mongodb.Schema, error) {
	return mongodb.Schema{SampleSize: 2, Fields: []mongodb.Field{{Path: "name", Types: []string{"string"}, Count: 2}}}, f.err
}

var mongoArgs = map[string]any{"database": "shop", "collection": "orders"}

func withArgs(extra map[string]any) map[string]any {
	args := map[string]any{}
	for k, v := range mongoArgs {
		args[k] = v
	}
	for k, v := range extra {
		args[k] = v
	}
	return args
}

func TestMongoServerTools(t *testing.T) {
	readTools := []string{"aggregate", "collection_stats", "count_documents", "find_documents", "infer_schema", "list_collections", "list_databases", "list_indexes"}
	writeTools := []string{"create_index", "delete_documents", "insert_document", "update_documents"}

	tests := []struct {
		name     string
		readOnly bool
		want     []string
	}{
		{name: "read write", readOnly: false, want: append(append([]string{}, readTools...), writeTools...)},
		{name: "read only", readOnly: true, want: readTools},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMongoServer(&fakeStore{readOnly: tt.readOnly})
			var names []string
			for name := range s.MCPServer().ListTools() {
				names = append(names, name)
			}
			if diff := cmp.Diff(tt.want, names, cmpSorted); diff != "" {
				t.Errorf("tools mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleFind(t *testing.T) {
	oid, _ := bson.ObjectIDFromHex("65a1b2c3d4e5f60718293a4b")
	store := &fakeStore{docs: []bson.D{{
		{Key: "_id", Value: oid},
		{Key: "total", Value: 12.5},
		{Key: "created", Value: bson.NewDateTimeFromTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))},
	}}}
	s := NewMongoServer(store)

	result, err := s.handleFind(context.Background(), newTestRequest(withArgs(map[string]any{
		"filter": `{"status": "open", "_id": {"$oid": "65a1b2c3d4e5f60718293a4b"}}`,
		"sort":   map[string]any{"created": -1},
		"limit":  5,
	})))
	if err != nil {
		t.Fatalf("handleFind() error = %v", err)
	}
	response := decodeResult(t, result)

	want := map[string]any{
		"count": float64(1),
		"documents": []any{map[string]any{
			"_id":     "65a1b2c3d4e5f60718293a4b",
			"total":   12.5,
			"created": "2024-01-02T03:04:05Z",
		}},
	}
	if diff := cmp.Diff(want, response); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	wantParams := mongodb.FindParams{
		Filter: bson.D{{Key: "status", Value: "open"}, {Key: "_id", Value: oid}},
		Sort:   bson.D{{Key: "created", Value: int32(-1)}},
		Limit:  5,
	}
	if diff := cmp.Diff(wantParams, store.params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if store.db != "shop" || store.coll != "orders" {
		t.Errorf("unexpected target %s.%s", store.db, store.coll)
	}
}

func TestHandleFindInvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "missing collection", args: map[string]any{"database": "shop"}},
		{name: "bad filter", args: withArgs(map[string]any{"filter": `{"status": `})},
		{name: "negative skip", args: withArgs(map[string]any{"skip": -1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			s := NewMongoServer(store)
			result, err := s.handleFind(context.Background(), newTestRequest(tt.args))
			if err != nil {
				t.Fatalf("handleFind() error = %v", err)
			}
			if !result.IsError {
				t.Errorf("expected a tool error, got %s", getResultText(result))
			}
			if store.coll != "" {
				t.Error("store should not be called")
			}
		})
	}
}

func TestHandleAggregate(t *testing.T) {
	store := &fakeStore{docs: []bson.D{{{Key: "_id", Value: "open"}, {Key: "n", Value: int64(4)}}}}
	s := NewMongoServer(store)

	result, err := s.handleAggregate(context.Background(), newTestRequest(withArgs(map[string]any{
		"pipeline": `[{"$match": {"status": "open"}}, {"$group": {"_id": "$status", "n": {"$sum": 1}}}]`,
	})))
	if err != nil {
		t.Fatalf("handleAggregate() error = %v", err)
	}
	response := decodeResult(t, result)
	if response["count"] != float64(1) {
		t.Errorf("expected count 1, got %v", response["count"])
	}
	if len(store.pipeline) != 2 {
		t.Errorf("expected 2 stages, got %d", len(store.pipeline))
	}

	result, err = s.handleAggregate(context.Background(), newTestRequest(withArgs(map[string]any{
		"pipeline": `[{"status": "open"}]`,
	})))
	if err != nil {
		t.Fatalf("handleAggregate() error = %v", err)
	}
	if !result.IsError {
		t.Errorf("expected a tool error for a stage without operator, got %s", getResultText(result))
	}
}

func TestHandleInsert(t *testing.T) {
	tests := []struct {
		name      string
		document  any
		wantCount float64
		wantDocs  int
	}{
		{name: "single", document: `{"name": "Ada"}`, wantCount: 1, wantDocs: 1},
		{name: "object", document: map[string]any{"name": "Ada"}, wantCount: 1, wantDocs: 1},
		{name: "array", document: `[{"name": "Ada"}, {"name": "Grace"}]`, wantCount: 2, wantDocs: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			s := NewMongoServer(store)
			result, err := s.handleInsert(context.Background(), newTestRequest(withArgs(map[string]any{"document": tt.document})))
			if err != nil {
				t.Fatalf("handleInsert() error = %v", err)
			}
			response := decodeResult(t, result)
			if response["inserted_count"] != tt.wantCount {
				t.Errorf("expected inserted_count %v, got %v", tt.wantCount, response["inserted_count"])
			}
			if len(store.inserted) != tt.wantDocs {
				t.Errorf("expected %d documents, got %d", tt.wantDocs, len(store.inserted))
			}
		})
	}
}

func TestHandleUpdate(t *testing.T) {
	store := &fakeStore{}
	s := NewMongoServer(store)

	result, err := s.handleUpdate(context.Background(), newTestRequest(withArgs(map[string]any{
		"filter": `{"status": "open"}`,
		"update": `{"$set": {"status": "closed"}}`,
		"upsert": true,
	})))
	if err != nil {
		t.Fatalf("handleUpdate() error = %v", err)
	}
	response := decodeResult(t, result)
	want := map[string]any{
		"matched_count":  float64(2),
		"modified_count": float64(1),
		"upserted_count": float64(0),
		"upserted_id":    nil,
	}
	if diff := cmp.Diff(want, response); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if !store.upsert {
		t.Error("expected upsert to be passed through")
	}
	wantUpdate := bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: "closed"}}}}
	if diff := cmp.Diff(wantUpdate, store.update); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleDeleteReportsStoreErrors(t *testing.T) {
	store := &fakeStore{err: failure.New(mongodb.ErrInvalidArgument, failure.Message("delete_documents requires a non-empty filter"))}
	s := NewMongoServer(store)

	result, err := s.handleDelete(context.Background(), newTestRequest(withArgs(map[string]any{"filter": "{}"})))
	if err != nil {
		t.Fatalf("handleDelete() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error")
	}
	if got := getResultText(result); got != "delete_documents requires a non-empty filter" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestHandleCollectionStats(t *testing.T) {
	store := &fakeStore{stats: bson.D{
		{Key: "ns", Value: "shop.orders"},
		{Key: "count", Value: int32(42)},
		{Key: "avgObjSize", Value: 120.5},
		{Key: "ok", Value: 1.0},
	}}
	s := NewMongoServer(store)

	result, err := s.handleCollectionStats(context.Background(), newTestRequest(withArgs(nil)))
	if err != nil {
		t.Fatalf("handleCollectionStats() error = %v", err)
	}
	response := decodeResult(t, result)
	want := map[string]any{
		"namespace": "shop.orders",
		"stats": map[string]any{
			"ns":         "shop.orders",
			"count":      float64(42),
			"avgObjSize": 120.5,
			"ok":         float64(1),
		},
	}
	if diff := cmp.Diff(want, response); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleInferSchema(t *testing.T) {
	s := NewMongoServer(&fakeStore{})

	result, err := s.handleInferSchema(context.Background(), newTestRequest(withArgs(map[string]any{"sample_size": 10})))
	if err != nil {
		t.Fatalf("handleInferSchema() error = %v", err)
	}
	response := decodeResult(t, result)
	want := map[string]any{
		"sample_size": float64(2),
		"fields": []any{map[string]any{
			"path":  "name",
			"types": []any{"string"},
			"count": float64(2),
		}},
	}
	if diff := cmp.Diff(want, response); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}
