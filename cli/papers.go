package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/ka2n/mcp-servers/api"
	"github.com/mattn/go-isatty"
	"github.com/morikuni/failure/v2"
	"github.com/pkg/browser"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// maxListedAuthors is how many authors are printed before "et al."
const maxListedAuthors = 3

var (
	idStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	// openURL is replaced in tests
	openURL = browser.OpenURL
)

func (c *arxivCommand) searchCommand() *cobra.Command {
	var (
		maxResults int
		sortBy     = newEnumFlag(string(api.SortRelevance), string(api.SortRelevance), string(api.SortDate))
		categories []string
		from, to   string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search arXiv",
		Example: `  arxiv-mcp-server search "diffusion models" --category cs.CV --sort date
  arxiv-mcp-server search 'au:hinton AND ti:capsule'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.components(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.client.Search(cmd.Context(), api.SearchQuery{
				Query:      strings.Join(args, " "),
				MaxResults: maxResults,
				DateFrom:   from,
				DateTo:     to,
				Categories: categories,
				SortBy:     api.SortBy(sortBy.Value),
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printSearchResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.IntVarP(&maxResults, "max-results", "n", api.DefaultMaxResults, "Maximum number of results")
	fs.Var(sortBy, "sort", "Sort order")
	fs.StringSliceVarP(&categories, "category", "c", nil, "Restrict to arXiv categories, e.g. cs.AI")
	fs.StringVar(&from, "from", "", "Earliest submission date, YYYY-MM-DD")
	fs.StringVar(&to, "to", "", "Latest submission date, YYYY-MM-DD")
	fs.BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func printSearchResult(w io.Writer, result api.SearchResult) {
	for _, p := range result.Papers {
		fmt.Fprintf(w, "%s  %s\n", idStyle.Render(p.VersionedID()), p.Title)
		fmt.Fprintf(w, "    %s\n", mutedStyle.Render(byline(p)))
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d of %d results", len(result.Papers), result.TotalResults)))
}

func byline(p api.Paper) string {
	authors := strings.Join(lo.Slice(p.Authors, 0, maxListedAuthors), ", ")
	if len(p.Authors) > maxListedAuthors {
		authors += " et al."
	}
	parts := lo.Compact([]string{authors, strings.Join(p.Categories, " ")})
	if !p.Published.IsZero() {
		parts = append(parts, p.Published.Format("2006-01-02"))
	}
	return strings.Join(parts, " · ")
}

func (c *arxivCommand) downloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download <paper-id>...",
		Short: "Download papers into the local library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			a, err := c.components(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.downloader.DownloadAll(cmd.Context(), ids)
			if err != nil {
				return err
			}
			for i, rec := range records {
				path := filepath.Join(a.library().Root(), ids[i].FileName()+".md")
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s)\n", idStyle.Render(rec.Paper.VersionedID()), path, rec.Source)
			}
			return nil
		},
	}
}

func (c *arxivCommand) listCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List downloaded papers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.components(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.library().List()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			for _, rec := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
					idStyle.Render(rec.Paper.VersionedID()),
					mutedStyle.Render(rec.DownloadedAt.Local().Format("2006-01-02 15:04")),
					rec.Paper.Title,
				)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func (c *arxivCommand) readCommand() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "read <paper-id>",
		Short: "Read a paper, downloading it first if needed",
		Long: `Read a paper from the local library.

On a terminal the paper is rendered and shown in a pager: / searches, n and N
move between matches and q quits. Otherwise the rendered text is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.components(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.library().Exists(id) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Downloading %s...\n", id)
				if _, err := a.downloader.Download(cmd.Context(), id); err != nil {
					return err
				}
			}
			content, err := a.library().Read(id)
			if err != nil {
				return err
			}
			if raw {
				_, err := io.WriteString(cmd.OutOrStdout(), content)
				return err
			}

			out := cmd.OutOrStdout()
			if isTerminal(out) {
				rendered, err := render(content, glamour.WithAutoStyle())
				if err != nil {
					return err
				}
				title := id.Base
				if rec, err := a.library().Record(id); err == nil && rec.Paper.Title != "" {
					title = rec.Paper.Title
				}
				return RunPager(title, rendered)
			}

			rendered, err := render(content, glamour.WithStandardStyle("notty"))
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, rendered)
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the stored Markdown as is")
	return cmd
}

func render(markdown string, style glamour.TermRendererOption) (string, error) {
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return "", failure.Wrap(err, failure.WithCode(RenderFailed))
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", failure.Wrap(err, failure.WithCode(RenderFailed),
			failure.Message("Failed to render paper"),
		)
	}
	return out, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *arxivCommand) openCommand() *cobra.Command {
	var pdf bool
	cmd := &cobra.Command{
		Use:   "open <paper-id>",
		Short: "Open the arXiv page of a paper in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			u := "https://arxiv.org/abs/" + id.String()
			if pdf {
				u = "https://arxiv.org/pdf/" + id.String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opening %s\n", u)
			browser.Stdout = cmd.ErrOrStderr()
			return openURL(u)
		},
	}
	cmd.Flags().BoolVar(&pdf, "pdf", false, "Open the PDF instead of the abstract page")
	return cmd
}

func parseID(arg string) (api.ID, error) {
	id, err := api.ParseID(arg)
	if err != nil {
		return api.ID{}, failure.Wrap(err, failure.WithCode(InvalidArguments))
	}
	return id, nil
}

func parseIDs(args []string) ([]api.ID, error) {
	ids := make([]api.ID, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
