package log

import (
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/motemen/go-loghttp"
)

// Logger is the global logger instance
var Logger *slog.Logger

// InitLogger initializes the global logger.
// Output always goes to stderr because stdout carries the MCP stdio stream.
// The level is Debug if MCP_DEBUG is set
func InitLogger() {
	initLogger(os.Stderr, os.Getenv("MCP_DEBUG") != "")
}

func initLogger(w io.Writer, debug bool) {
	opts := &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelInfo,
	}

	if debug {
		opts.Level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, opts)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// SetDebug switches the global logger to debug level (used by --debug flags)
func SetDebug(debug bool) {
	initLogger(os.Stderr, debug || os.Getenv("MCP_DEBUG") != "")
}

// init initializes the logger when the package is imported
func init() {
	InitLogger()
}

// Transport wraps base with request/response debug logging.
// A nil base uses http.DefaultTransport.
func Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loghttp.Transport{
		Transport:   base,
		LogRequest:  logRequest,
		LogResponse: logResponse,
	}
}

func logRequest(req *http.Request) {
	Debug("HTTP request",
		"method", req.Method,
		"url", req.URL.String(),
	)
}

func logResponse(resp *http.Response) {
	Debug("HTTP response",
		"method", resp.Request.Method,
		"url", resp.Request.URL.String(),
		"status", resp.Status,
		"status_code", resp.StatusCode,
	)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}
