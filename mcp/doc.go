// Package mcp implements the Model Context Protocol servers.
//
// The mcp package provides:
// - ArxivServer: arXiv search, paper download and reading tools, the
//   deep-paper-analysis prompt and the arxiv://{paper_id} resource template
// - MongoServer: query, aggregation, write and schema tools over a MongoDB deployment
// - Server: the transport wrapper running either server over stdio or streamable HTTP
package mcp
