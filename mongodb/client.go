// Package mongodb wraps the MongoDB driver with the operations exposed by mongo-mcp.
package mongodb

import (
	"context"
	"time"

	"github.com/ka2n/mcp-servers/config"
	"github.com/ka2n/mcp-servers/log"
	"github.com/morikuni/failure/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// ErrorCode defines error types for MongoDB operations
type ErrorCode string

const (
	ErrInvalidArgument ErrorCode = "InvalidArgument"
	ErrReadOnly        ErrorCode = "ReadOnly"
	ErrConnection      ErrorCode = "ConnectionError"
	ErrOperation       ErrorCode = "OperationError"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// Client is a connected MongoDB client
type Client struct {
	client       *mongo.Client
	readOnly     bool
	defaultLimit int64
	maxLimit     int64
}

// Connect opens a connection to the deployment described by cfg and verifies it with a ping
func Connect(ctx context.Context, cfg *config.Mongo) (*Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	mc, err := mongo.Connect(opts)
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrConnection),
			failure.Message("Failed to connect to MongoDB"),
		)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ServerSelectionTimeout+time.Second)
	defer cancel()
	if err := mc.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, failure.Wrap(err, failure.WithCode(ErrConnection),
			failure.Message("Failed to reach MongoDB"),
		)
	}
	log.Info("Connected to MongoDB", "app", cfg.AppName, "read_only", cfg.ReadOnly)

	return newClient(mc, cfg), nil
}

func newClient(mc *mongo.Client, cfg *config.Mongo) *Client {
	return &Client{
		client:       mc,
		readOnly:     cfg.ReadOnly,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
	}
}

// Close disconnects from the deployment
func (c *Client) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

// ReadOnly reports whether write operations are rejected
func (c *Client) ReadOnly() bool {
	return c.readOnly
}

// Limit clamps a requested result count to the configured bounds.
// Zero or negative requests get the default limit.
func (c *Client) Limit(requested int64) int64 {
	switch {
	case requested <= 0:
		return c.defaultLimit
	case c.maxLimit > 0 && requested > c.maxLimit:
		return c.maxLimit
	}
	return requested
}

func (c *Client) collection(db, coll string) (*mongo.Collection, error) {
	if db == "" {
		return nil, invalidArgument("database name is required")
	}
	if coll == "" {
		return nil, invalidArgument("collection name is required")
	}
	return c.client.Database(db).Collection(coll), nil
}

func (c *Client) checkWritable(op string) error {
	if c.readOnly {
		return failure.New(ErrReadOnly,
			failure.Message("The server is running in read-only mode; "+op+" is not allowed"),
			failure.Context{"operation": op},
		)
	}
	return nil
}

func invalidArgument(msg string) error {
	return failure.New(ErrInvalidArgument, failure.Message(msg))
}

func operationError(err error, op string) error {
	return failure.Wrap(err, failure.WithCode(ErrOperation),
		failure.Message(op+" failed: "+err.Error()),
		failure.Context{"operation": op},
	)
}

// collect drains a cursor into at most limit documents
func collect(ctx context.Context, cur *mongo.Cursor, limit int64) ([]bson.D, error) {
	defer cur.Close(ctx)

	docs := []bson.D{}
	for cur.Next(ctx) {
		if limit > 0 && int64(len(docs)) >= limit {
			break
		}
		var d bson.D
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, cur.Err()
}
