// Package metrics records Prometheus metrics for the MCP servers.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcp"

// Tool call outcomes
const (
	StatusOK        = "ok"
	StatusToolError = "tool_error"
	StatusError     = "error"
)

// Collector holds the metrics of one server process
type Collector struct {
	registry *prometheus.Registry

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	papersStored     *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of MCP tool calls",
			},
			[]string{"server", "tool", "status"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "MCP tool call duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"server", "tool"},
		),
		papersStored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "arxiv_papers_stored_total",
				Help:      "Total number of arXiv papers converted and stored",
			},
			[]string{"source"},
		),
	}
}

// Handler serves the collected metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordToolCall records one tool call
func (c *Collector) RecordToolCall(serverName, tool, status string, d time.Duration) {
	c.toolCalls.WithLabelValues(serverName, tool, status).Inc()
	c.toolCallDuration.WithLabelValues(serverName, tool).Observe(d.Seconds())
}

// RecordPaperStored records a stored paper by where its text came from
func (c *Collector) RecordPaperStored(source string) {
	c.papersStored.WithLabelValues(source).Inc()
}

// ToolMiddleware records every tool call handled by the server
func (c *Collector) ToolMiddleware(serverName string) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			res, err := next(ctx, req)

			status := StatusOK
			switch {
			case err != nil:
				status = StatusError
			case res != nil && res.IsError:
				status = StatusToolError
			}
			c.RecordToolCall(serverName, req.Params.Name, status, time.Since(start))
			return res, err
		}
	}
}
