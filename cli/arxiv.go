package cli

import (
	"context"
	"os"

	"github.com/ka2n/mcp-servers/api"
	"github.com/ka2n/mcp-servers/api/cache"
	"github.com/ka2n/mcp-servers/config"
	"github.com/ka2n/mcp-servers/log"
	"github.com/ka2n/mcp-servers/mcp"
	"github.com/ka2n/mcp-servers/metrics"
	"github.com/ka2n/mcp-servers/storage"
	"github.com/morikuni/failure/v2"
	"github.com/spf13/cobra"
)

const redisKeyPrefix = "arxiv-mcp:"

// arxivBuilder assembles the arXiv MCP server, the returned func releases its resources
type arxivBuilder func(ctx context.Context, cfg *config.Arxiv) (Runner, func(), error)

type arxivCommand struct {
	flags       *serveFlags
	storagePath string
	build       arxivBuilder
}

// RunArxiv executes the arxiv-mcp-server command line
func RunArxiv() error {
	return execute(newArxivCommand(buildArxivServer), os.Args[1:])
}

func newArxivCommand(build arxivBuilder) *cobra.Command {
	c := &arxivCommand{flags: newServeFlags(), build: build}

	root := &cobra.Command{
		Use:   "arxiv-mcp-server",
		Short: "MCP server for searching, downloading and reading arXiv papers",
		Long: `arxiv-mcp-server serves arXiv search and a local paper library to MCP clients.

Run without a command to start the server (stdio by default). The other commands
work on the same library from the terminal.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.flags.setupLogging()
		},
		RunE: c.runServe,
	}
	c.flags.register(root)
	root.PersistentFlags().StringVar(&c.storagePath, "storage-path", "", "Directory where downloaded papers are stored")

	root.AddCommand(
		c.searchCommand(),
		c.downloadCommand(),
		c.listCommand(),
		c.readCommand(),
		c.openCommand(),
		newVersionCommand("arxiv-mcp-server", api.Version),
	)
	return root
}

func (c *arxivCommand) loadConfig(cmd *cobra.Command) (*config.Arxiv, error) {
	cfg, err := config.LoadArxiv(c.flags.configPath)
	if err != nil {
		return nil, err
	}
	c.flags.apply(cmd.Flags(), &cfg.Server)
	if c.storagePath != "" {
		cfg.StoragePath = c.storagePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *arxivCommand) runServe(cmd *cobra.Command, args []string) error {
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

// arxivComponents are shared by the server and the terminal commands
type arxivComponents struct {
	client     *api.Client
	downloader *storage.Downloader
	metrics    *metrics.Collector
	closers    []func() error
}

func newArxivComponents(ctx context.Context, cfg *config.Arxiv) (*arxivComponents, error) {
	a := &arxivComponents{metrics: metrics.NewCollector()}

	opts := []api.Option{
		api.WithHTMLURL(cfg.HTMLURL),
		api.WithRequestInterval(cfg.RequestInterval),
		api.WithMaxResults(cfg.MaxResults),
	}
	if cfg.CacheTTL > 0 {
		backend, err := a.cacheBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, api.WithCache(backend, cfg.CacheTTL))
	}
	a.client = api.NewClient(cfg.APIURL, opts...)

	lib, err := storage.Open(cfg.StoragePath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.downloader = storage.NewDownloader(lib, a.client,
		storage.WithConcurrency(cfg.DownloadConcurrency),
		storage.WithOnStored(func(rec storage.Record) {
			a.metrics.RecordPaperStored(string(rec.Source))
		}),
	)
	return a, nil
}

func (a *arxivComponents) cacheBackend(ctx context.Context, cfg *config.Arxiv) (cache.Backend, error) {
	if cfg.RedisURL != "" {
		rb, err := cache.NewRedisBackend(ctx, cfg.RedisURL, redisKeyPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rb.Close)
		return rb, nil
	}
	fb, err := cache.NewFileBackend(cfg.CacheDir)
	if err != nil {
		return nil, failure.Wrap(err, failure.Message("Failed to create cache directory"),
			failure.Context{"dir": cfg.CacheDir},
		)
	}
	return fb, nil
}

func (a *arxivComponents) library() *storage.Library {
	return a.downloader.Library()
}

func (a *arxivComponents) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			log.Warn("Failed to release resource", "error", err)
		}
	}
}

func buildArxivServer(ctx context.Context, cfg *config.Arxiv) (Runner, func(), error) {
	a, err := newArxivComponents(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	s := mcp.NewArxivServer(a.client, a.downloader,
		mcp.WithTransport(cfg.Server),
		mcp.WithMetrics(a.metrics),
	)
	return s, a.Close, nil
}

// components loads the configuration and builds what the terminal commands need
func (c *arxivCommand) components(cmd *cobra.Command) (*arxivComponents, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newArxivComponents(cmd.Context(), cfg)
}
