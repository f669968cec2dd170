// Package api implements the arXiv client used by arxiv-mcp-server.
//
// The api package provides:
// - arXiv identifier parsing for new-style, old-style and URL forms
// - search query construction for the arXiv export API
// - Atom feed decoding into Paper values
// - rate limited, cached HTTP access to the API and to arXiv HTML renderings
// - conversion of HTML renderings into Markdown documents
package api
