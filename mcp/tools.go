package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/ka2n/mcp-servers/api"
	"github.com/ka2n/mcp-servers/storage"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

// Searcher runs arXiv searches. *api.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, q api.SearchQuery) (api.SearchResult, error)
}

// ArxivServer serves arXiv search and the local paper library over MCP
type ArxivServer struct {
	*Server
	searcher   Searcher
	downloader *storage.Downloader
}

// NewArxivServer creates the arXiv MCP server
func NewArxivServer(searcher Searcher, downloader *storage.Downloader, opts ...Option) *ArxivServer {
	s := &ArxivServer{
		Server: newServer("arxiv-mcp-server", api.Version, opts,
			server.WithPromptCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
		searcher:   searcher,
		downloader: downloader,
	}

	s.server.AddTools(s.tools()...)
	s.server.AddPrompt(deepAnalysisPrompt(), s.handleDeepAnalysis)
	s.server.AddResourceTemplate(
		mcp.NewResourceTemplate("arxiv://{paper_id}", "arXiv paper",
			mcp.WithTemplateDescription("Markdown text of a downloaded arXiv paper"),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		s.handleReadResource,
	)
	return s
}

func (s *ArxivServer) tools() []server.ServerTool {
	return []server.ServerTool{
		newServerTool(mcp.NewTool("search_papers",
			mcp.WithDescription("Search arXiv for papers. Plain words are matched against all fields; arXiv field syntax such as ti:, au: or abs: is passed through."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
			mcp.WithNumber("max_results", mcp.Description("Maximum number of results (default: 10)")),
			mcp.WithString("date_from", mcp.Description("Earliest submission date, YYYY-MM-DD")),
			mcp.WithString("date_to", mcp.Description("Latest submission date, YYYY-MM-DD")),
			mcp.WithArray("categories", mcp.WithStringItems(), mcp.Description("arXiv categories to restrict to, e.g. cs.AI")),
			mcp.WithString("sort_by", mcp.Enum("relevance", "date"), mcp.Description("Sort order (default: relevance)")),
		), s.handleSearch),
		newServerTool(mcp.NewTool("download_paper",
			mcp.WithDescription("Download a paper and convert it to Markdown so it can be read with read_paper. Conversion runs in the background."),
			mcp.WithString("paper_id", mcp.Required(), mcp.Description("arXiv identifier or URL, e.g. 2401.12345")),
			mcp.WithBoolean("check_status", mcp.Description("Only report the conversion status (default: false)")),
		), s.handleDownload),
		newServerTool(mcp.NewTool("list_papers",
			mcp.WithDescription("List papers stored in the local library"),
		), s.handleList),
		newServerTool(mcp.NewTool("read_paper",
			mcp.WithDescription("Read the Markdown text of a downloaded paper"),
			mcp.WithString("paper_id", mcp.Required(), mcp.Description("arXiv identifier")),
		), s.handleRead),
	}
}

type paperSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Authors     []string  `json:"authors"`
	Abstract    string    `json:"abstract"`
	Categories  []string  `json:"categories"`
	Published   time.Time `json:"published"`
	URL         string    `json:"url"`
	ResourceURI string    `json:"resource_uri"`
}

func summarize(p api.Paper) paperSummary {
	return paperSummary{
		ID:          p.VersionedID(),
		Title:       p.Title,
		Authors:     p.Authors,
		Abstract:    p.Abstract,
		Categories:  p.Categories,
		Published:   p.Published,
		URL:         p.PDFURL,
		ResourceURI: p.ResourceURI(),
	}
}

func (s *ArxivServer) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		Query      string   `json:"query" validate:"required"`
		MaxResults int      `json:"max_results" validate:"gte=0"`
		DateFrom   string   `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
		DateTo     string   `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
		Categories []string `json:"categories"`
		SortBy     string   `json:"sort_by" validate:"omitempty,oneof=relevance date"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.searcher.Search(ctx, api.SearchQuery{
		Query:      args.Query,
		MaxResults: args.MaxResults,
		DateFrom:   args.DateFrom,
		DateTo:     args.DateTo,
		Categories: args.Categories,
		SortBy:     api.SortBy(args.SortBy),
	})
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]any{
		"total_results": result.TotalResults,
		"papers":        lo.Map(result.Papers, func(p api.Paper, _ int) paperSummary { return summarize(p) }),
	})
}

func (s *ArxivServer) handleDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		PaperID     string `json:"paper_id" validate:"required"`
		CheckStatus bool   `json:"check_status"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := api.ParseID(args.PaperID)
	if err != nil {
		return toolError(err), nil
	}

	var st storage.Status
	if args.CheckStatus {
		st = s.downloader.Status(id)
	} else {
		st = s.downloader.Start(ctx, id)
	}

	response := map[string]any{
		"status":  st.State,
		"message": statusMessage(st, args.CheckStatus),
	}
	if st.State == storage.StateSuccess {
		response["resource_uri"] = api.ResourceURI(id.Base)
	}
	if !st.StartedAt.IsZero() {
		response["started_at"] = st.StartedAt
	}
	if st.Error != "" {
		response["error"] = st.Error
	}
	return jsonResult(response)
}

func statusMessage(st storage.Status, checking bool) string {
	switch st.State {
	case storage.StateSuccess:
		if st.Source == storage.SourceAbstract {
			return "Paper is available. No full text rendering exists on arXiv, only the abstract was stored."
		}
		return "Paper is available. Use read_paper to read it."
	case storage.StateConverting:
		if checking {
			return "Paper conversion is in progress."
		}
		return "Paper conversion started. Check again with check_status."
	case storage.StateError:
		return "Paper conversion failed: " + st.Error
	}
	return "Paper has not been downloaded."
}

func (s *ArxivServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := s.downloader.Library().List()
	if err != nil {
		return toolError(err), nil
	}

	type storedPaper struct {
		paperSummary
		Source       storage.Source `json:"source,omitempty"`
		DownloadedAt time.Time      `json:"downloaded_at"`
	}
	papers := lo.Map(records, func(r storage.Record, _ int) storedPaper {
		return storedPaper{paperSummary: summarize(r.Paper), Source: r.Source, DownloadedAt: r.DownloadedAt}
	})

	return jsonResult(map[string]any{
		"total_papers": len(papers),
		"papers":       papers,
	})
}

func (s *ArxivServer) handleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type ToolArguments struct {
		PaperID string `json:"paper_id" validate:"required"`
	}
	var args ToolArguments
	if err := decodeArgs(ctx, req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := api.ParseID(args.PaperID)
	if err != nil {
		return toolError(err), nil
	}

	content, err := s.downloader.Library().Read(id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"status":   "success",
		"paper_id": id.Base,
		"content":  content,
	})
}

func (s *ArxivServer) handleReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := api.IDFromFileName(strings.TrimPrefix(req.Params.URI, "arxiv://"))
	if err != nil {
		return nil, err
	}
	content, err := s.downloader.Library().Read(id)
	if err != nil {
		return nil, failure.Wrap(err, failure.Context{"uri": req.Params.URI})
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     content,
		},
	}, nil
}
