package mcp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ka2n/mcp-servers/config"
	"github.com/ka2n/mcp-servers/log"
	"github.com/ka2n/mcp-servers/metrics"
	"github.com/mark3labs/mcp-go/server"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP transport
const shutdownTimeout = 5 * time.Second

// Server is an MCP server bound to a transport
type Server struct {
	server    *server.MCPServer
	name      string
	transport config.Server
	metrics   *metrics.Collector
	stdin     io.Reader
	stdout    io.Writer
}

// Option configures a Server
type Option func(*Server)

// WithTransport selects the transport settings
func WithTransport(cfg config.Server) Option {
	return func(s *Server) {
		s.transport = cfg
	}
}

// WithMetrics records tool calls into c and, over HTTP, serves them on /metrics
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithStdio replaces the standard streams used by the stdio transport
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.stdin = in
		s.stdout = out
	}
}

func newServer(name, version string, opts []Option, serverOpts ...server.ServerOption) *Server {
	s := &Server{
		name:      name,
		transport: config.Server{Transport: config.TransportStdio},
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}

	serverOpts = append(serverOpts,
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	if s.metrics != nil {
		serverOpts = append(serverOpts, server.WithToolHandlerMiddleware(s.metrics.ToolMiddleware(name)))
	}
	s.server = server.NewMCPServer(name, version, serverOpts...)
	return s
}

// MCPServer returns the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.server
}

// Run serves until ctx is done or the transport is closed
func (s *Server) Run(ctx context.Context) error {
	if s.transport.Transport == config.TransportHTTP {
		return s.serveHTTP(ctx)
	}

	log.Info("Serving MCP over stdio", "server", s.name)
	err := server.NewStdioServer(s.server).Listen(ctx, s.stdin, s.stdout)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Handler returns the HTTP handler of the streamable HTTP transport
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s.server))
	if s.metrics != nil && s.transport.Metrics {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) serveHTTP(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              s.transport.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown failed", "error", err)
		}
	}()

	log.Info("Serving MCP over HTTP", "server", s.name, "addr", s.transport.HTTPAddr, "metrics", s.metrics != nil && s.transport.Metrics)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
