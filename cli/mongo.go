package cli

import (
	"context"
	"os"
	"time"

	"github.com/ka2n/mcp-servers/config"
	"github.com/ka2n/mcp-servers/log"
	"github.com/ka2n/mcp-servers/mcp"
	"github.com/ka2n/mcp-servers/metrics"
	"github.com/ka2n/mcp-servers/mongodb"
	"github.com/spf13/cobra"
)

// disconnectTimeout bounds closing the MongoDB connection on shutdown
const disconnectTimeout = 5 * time.Second

// mongoBuilder assembles the MongoDB MCP server, the returned func releases its resources
type mongoBuilder func(ctx context.Context, cfg *config.Mongo) (Runner, func(), error)

type mongoCommand struct {
	flags    *serveFlags
	uri      string
	readOnly bool
	build    mongoBuilder
}

// RunMongo executes the mongo-mcp command line
func RunMongo() error {
	return execute(newMongoCommand(buildMongoServer), os.Args[1:])
}

func newMongoCommand(build mongoBuilder) *cobra.Command {
	c := &mongoCommand{flags: newServeFlags(), build: build}

	root := &cobra.Command{
		Use:   "mongo-mcp",
		Short: "MCP server for querying and managing MongoDB",
		Long: `mongo-mcp exposes a MongoDB deployment to MCP clients.

Documents are exchanged as MongoDB Extended JSON. With --read-only the write
tools are not offered and aggregation stages that write are rejected.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.flags.setupLogging()
		},
		RunE: c.runServe,
	}
	c.flags.register(root)
	root.Flags().StringVar(&c.uri, "uri", "", "MongoDB connection string")
	root.Flags().BoolVar(&c.readOnly, "read-only", false, "Reject write operations")

	root.AddCommand(newVersionCommand("mongo-mcp", mcp.MongoVersion))
	return root
}

func (c *mongoCommand) loadConfig(cmd *cobra.Command) (*config.Mongo, error) {
	cfg, err := config.LoadMongo(c.flags.configPath)
	if err != nil {
		return nil, err
	}
	c.flags.apply(cmd.Flags(), &cfg.Server)
	if c.uri != "" {
		cfg.URI = c.uri
	}
	if cmd.Flags().Changed("read-only") {
		cfg.ReadOnly = c.readOnly
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *mongoCommand) runServe(cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	r, cleanup, err := c.build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return serve(cmd.Context(), r, cleanup)
}

func buildMongoServer(ctx context.Context, cfg *config.Mongo) (Runner, func(), error) {
	client, err := mongodb.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	s := mcp.NewMongoServer(client,
		mcp.WithTransport(cfg.Server),
		mcp.WithMetrics(metrics.NewCollector()),
	)
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := client.Close(ctx); err != nil {
			log.Warn("Failed to disconnect from MongoDB", "error", err)
		}
	}
	return s, cleanup, nil
}
