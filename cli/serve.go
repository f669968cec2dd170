package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ka2n/mcp-servers/api"
	"github.com/ka2n/mcp-servers/config"
	"github.com/ka2n/mcp-servers/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Runner is an MCP server ready to serve
type Runner interface {
	Run(ctx context.Context) error
}

// serveFlags holds the flags shared by both servers
type serveFlags struct {
	configPath string
	debug      bool
	transport  *enumFlag
	httpAddr   string
	metrics    bool
}

func newServeFlags() *serveFlags {
	return &serveFlags{
		transport: newEnumFlag(config.TransportStdio, config.TransportStdio, config.TransportHTTP),
	}
}

func (f *serveFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Path to a YAML configuration file")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")

	fs := cmd.Flags()
	fs.Var(f.transport, "transport", "MCP transport")
	fs.StringVar(&f.httpAddr, "http-addr", "", "Listen address of the HTTP transport")
	fs.BoolVar(&f.metrics, "metrics", false, "Serve Prometheus metrics on /metrics (HTTP transport only)")
}

// apply overrides cfg with the flags given on the command line
func (f *serveFlags) apply(fs *pflag.FlagSet, cfg *config.Server) {
	if f.transport.IsSet {
		cfg.Transport = f.transport.Value
	}
	if fs.Changed("http-addr") {
		cfg.HTTPAddr = f.httpAddr
	}
	if fs.Changed("metrics") {
		cfg.Metrics = f.metrics
	}
}

func (f *serveFlags) setupLogging() {
	if f.debug {
		log.SetDebug(true)
	}
}

// serve runs r once and releases its resources afterwards
func serve(ctx context.Context, r Runner, cleanup func()) error {
	if cleanup != nil {
		defer cleanup()
	}
	return r.Run(ctx)
}

// execute runs cmd until it finishes or the process is interrupted
func execute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newVersionCommand(name, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout(), name, version)
		},
	}
}

func printVersion(w io.Writer, name, version string) {
	fmt.Fprintf(w, "%s version %s\n", name, version)
	if api.VersionCommit != "" {
		fmt.Fprintf(w, "  commit: %s\n", api.VersionCommit)
	}
}
