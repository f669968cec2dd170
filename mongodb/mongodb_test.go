package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ka2n/mcp-servers/config"
	"github.com/morikuni/failure/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestParseDocument(t *testing.T) {
	oid, err := bson.ObjectIDFromHex("65a1b2c3d4e5f60718293a4b")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		input string
		want  bson.D
	}{
		{
			name:  "Empty",
			input: "  ",
			want:  bson.D{},
		},
		{
			name:  "Relaxed",
			input: `{"name": "ada", "age": {"$gt": 30}}`,
			want:  bson.D{{Key: "name", Value: "ada"}, {Key: "age", Value: bson.D{{Key: "$gt", Value: int32(30)}}}},
		},
		{
			name:  "ObjectID",
			input: `{"_id": {"$oid": "65a1b2c3d4e5f60718293a4b"}}`,
			want:  bson.D{{Key: "_id", Value: oid}},
		},
		{
			name:  "Canonical number",
			input: `{"n": {"$numberLong": "42"}}`,
			want:  bson.D{{Key: "n", Value: int64(42)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDocument(tt.input)
			if err != nil {
				t.Fatalf("ParseDocument() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseDocument() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDocumentInvalid(t *testing.T) {
	for _, input := range []string{`{"a":`, `[1, 2]`, `not json`} {
		if _, err := ParseDocument(input); !failure.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseDocument(%q) error = %v, want %v", input, err, ErrInvalidArgument)
		}
	}
}

func TestParsePipeline(t *testing.T) {
	got, err := ParsePipeline(`[{"$match": {"status": "A"}}, {"$group": {"_id": "$cust_id", "total": {"$sum": "$amount"}}}]`)
	if err != nil {
		t.Fatalf("ParsePipeline() error = %v", err)
	}
	want := []bson.D{
		{{Key: "$match", Value: bson.D{{Key: "status", Value: "A"}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$cust_id"},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$amount"}}},
		}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParsePipeline() mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePipelineInvalid(t *testing.T) {
	for _, input := range []string{
		`{"$match": {}}`,
		`[{"$match": {}, "$limit": 1}]`,
		`[{"match": {}}]`,
		`[{"$match": `,
	} {
		if _, err := ParsePipeline(input); !failure.Is(err, ErrInvalidArgument) {
			t.Errorf("ParsePipeline(%q) error = %v, want %v", input, err, ErrInvalidArgument)
		}
	}
}

func TestLimit(t *testing.T) {
	c := newClient(nil, config.DefaultMongo())

	tests := []struct {
		requested int64
		want      int64
	}{
		{0, 20},
		{-5, 20},
		{5, 5},
		{1000, 1000},
		{5000, 1000},
	}
	for _, tt := range tests {
		if got := c.Limit(tt.requested); got != tt.want {
			t.Errorf("Limit(%d) = %d, want %d", tt.requested, got, tt.want)
		}
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	cfg := config.DefaultMongo()
	cfg.ReadOnly = true
	c := newClient(nil, cfg)
	ctx := context.Background()
	doc := bson.D{{Key: "a", Value: 1}}

	checks := map[string]func() error{
		"InsertOne": func() error { _, err := c.InsertOne(ctx, "db", "c", doc); return err },
		"InsertMany": func() error {
			_, err := c.InsertMany(ctx, "db", "c", []bson.D{doc})
			return err
		},
		"UpdateMany": func() error {
			_, err := c.UpdateMany(ctx, "db", "c", doc, bson.D{{Key: "$set", Value: doc}}, false)
			return err
		},
		"DeleteMany":  func() error { _, err := c.DeleteMany(ctx, "db", "c", doc); return err },
		"CreateIndex": func() error { _, err := c.CreateIndex(ctx, "db", "c", doc, "", false); return err },
		"Aggregate $out": func() error {
			_, err := c.Aggregate(ctx, "db", "c", []bson.D{{{Key: "$out", Value: "other"}}}, 0)
			return err
		},
	}

	for name, call := range checks {
		t.Run(name, func(t *testing.T) {
			if err := call(); !failure.Is(err, ErrReadOnly) {
				t.Errorf("error = %v, want %v", err, ErrReadOnly)
			}
		})
	}
}

func TestArgumentValidation(t *testing.T) {
	c := newClient(nil, config.DefaultMongo())
	ctx := context.Background()

	checks := map[string]func() error{
		"Find without database": func() error { _, err := c.Find(ctx, "", "c", FindParams{}); return err },
		"Count without collection": func() error {
			_, err := c.Count(ctx, "db", "", nil)
			return err
		},
		"Delete with empty filter": func() error { _, err := c.DeleteMany(ctx, "db", "c", bson.D{}); return err },
		"Insert nothing": func() error {
			_, err := c.InsertMany(ctx, "db", "c", nil)
			return err
		},
		"Update without update": func() error {
			_, err := c.UpdateMany(ctx, "db", "c", nil, nil, false)
			return err
		},
		"Index without keys": func() error { _, err := c.CreateIndex(ctx, "db", "c", nil, "", false); return err },
		"Negative skip": func() error {
			_, err := c.Find(ctx, "db", "c", FindParams{Skip: -1})
			return err
		},
	}

	for name, call := range checks {
		t.Run(name, func(t *testing.T) {
			if err := call(); !failure.Is(err, ErrInvalidArgument) {
				t.Errorf("error = %v, want %v", err, ErrInvalidArgument)
			}
		})
	}
}

func TestSchemaBuilder(t *testing.T) {
	docs := []bson.D{
		{{Key: "_id", Value: bson.NewObjectID()}, {Key: "name", Value: "ada"}, {Key: "address", Value: bson.D{{Key: "city", Value: "London"}}}},
		{{Key: "_id", Value: bson.NewObjectID()}, {Key: "name", Value: int32(7)}, {Key: "tags", Value: bson.A{"x"}}},
	}

	b := newSchemaBuilder()
	for _, d := range docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			t.Fatal(err)
		}
		if err := b.add(raw); err != nil {
			t.Fatalf("add() error = %v", err)
		}
	}

	got := b.schema()
	want := Schema{
		SampleSize: 2,
		Fields: []Field{
			{Path: "_id", Types: []string{bson.TypeObjectID.String()}, Count: 2},
			{Path: "address", Types: []string{bson.TypeEmbeddedDocument.String()}, Count: 1},
			{Path: "address.city", Types: []string{bson.TypeString.String()}, Count: 1},
			{Path: "name", Types: sortedStrings(bson.TypeInt32.String(), bson.TypeString.String()), Count: 2},
			{Path: "tags", Types: []string{bson.TypeArray.String()}, Count: 1},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("schema() mismatch (-want +got):\n%s", diff)
	}
}

func sortedStrings(a, b string) []string {
	if a > b {
		return []string{b, a}
	}
	return []string{a, b}
}

// TestClientIntegration runs against a live deployment when MONGODB_TEST_URI is set
func TestClientIntegration(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI is not set")
	}

	cfg := config.DefaultMongo()
	cfg.URI = uri
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close(context.Background())

	db := "mcp_test_" + bson.NewObjectID().Hex()
	defer c.client.Database(db).Drop(context.Background())

	if _, err := c.InsertMany(ctx, db, "users", []bson.D{
		{{Key: "name", Value: "ada"}, {Key: "age", Value: int32(36)}},
		{{Key: "name", Value: "alan"}, {Key: "age", Value: int32(41)}},
	}); err != nil {
		t.Fatalf("InsertMany() error = %v", err)
	}

	n, err := c.Count(ctx, db, "users", bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 40}}}})
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v", n, err)
	}

	docs, err := c.Find(ctx, db, "users", FindParams{Sort: bson.D{{Key: "age", Value: -1}}, Projection: bson.D{{Key: "_id", Value: 0}}})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	want := []bson.D{
		{{Key: "name", Value: "alan"}, {Key: "age", Value: int32(41)}},
		{{Key: "name", Value: "ada"}, {Key: "age", Value: int32(36)}},
	}
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Errorf("Find() mismatch (-want +got):\n%s", diff)
	}

	res, err := c.UpdateMany(ctx, db, "users", bson.D{{Key: "name", Value: "ada"}}, bson.D{{Key: "$inc", Value: bson.D{{Key: "age", Value: 1}}}}, false)
	if err != nil || res.ModifiedCount != 1 {
		t.Errorf("UpdateMany() = %+v, %v", res, err)
	}

	if deleted, err := c.DeleteMany(ctx, db, "users", bson.D{{Key: "name", Value: "alan"}}); err != nil || deleted != 1 {
		t.Errorf("DeleteMany() = %d, %v", deleted, err)
	}
}
