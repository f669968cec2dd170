// Package cli implements the command-line interfaces of arxiv-mcp-server and mongo-mcp.
//
// The cli package provides:
// - Serving either MCP server when run without a sub-command
// - Configuration loading with flag overrides
// - Terminal commands to search, download, list, read and open arXiv papers
// - A man-like pager with interactive search for reading papers
package cli
