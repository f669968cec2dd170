package api

import (
	"bytes"
	"fmt"
	"strings"

	html2md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/mackee/go-readability"
	"github.com/morikuni/failure/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// droppedElements never contribute to the paper text
var droppedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Button:   true,
	atom.Noscript: true,
	atom.Form:     true,
}

// droppedClasses are LaTeXML page furniture around the document
var droppedClasses = []string{
	"ltx_page_header",
	"ltx_page_footer",
	"ltx_page_navbar",
	"ltx_dates",
	"ltx_authors",
	"ltx_abstract",
	"ltx_title_document",
}

// ToMarkdown converts an HTML rendering of paper into a Markdown document
// starting with the paper metadata.
func ToMarkdown(p Paper, page string) (string, error) {
	body, err := markdown(page)
	if err != nil {
		return "", failure.Wrap(err, failure.Message("Failed to convert paper to Markdown"),
			failure.Context{"id": p.ID},
		)
	}
	return Header(p) + strings.TrimSpace(body) + "\n", nil
}

// AbstractMarkdown renders the metadata and abstract only, for papers
// without an HTML rendering.
func AbstractMarkdown(p Paper) string {
	var b strings.Builder
	b.WriteString(Header(p))
	fmt.Fprintf(&b, "_The full text of this paper is not available as HTML. Read the PDF at %s_\n", p.PDFURL)
	return b.String()
}

// Header renders the metadata block placed on top of every stored paper
func Header(p Paper) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	if len(p.Authors) > 0 {
		fmt.Fprintf(&b, "**Authors:** %s\n\n", strings.Join(p.Authors, ", "))
	}
	if len(p.Categories) > 0 {
		fmt.Fprintf(&b, "**Categories:** %s\n\n", strings.Join(p.Categories, ", "))
	}
	if !p.Published.IsZero() {
		fmt.Fprintf(&b, "**Published:** %s\n\n", p.Published.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "**arXiv:** [%s](%s) | [PDF](%s)\n\n", p.VersionedID(), p.AbsURL, p.PDFURL)
	if p.DOI != "" {
		fmt.Fprintf(&b, "**DOI:** %s\n\n", p.DOI)
	}
	if p.JournalRef != "" {
		fmt.Fprintf(&b, "**Journal reference:** %s\n\n", p.JournalRef)
	}
	if p.Comment != "" {
		fmt.Fprintf(&b, "**Comments:** %s\n\n", p.Comment)
	}
	if p.Abstract != "" {
		fmt.Fprintf(&b, "## Abstract\n\n%s\n\n", p.Abstract)
	}
	b.WriteString("---\n\n")

	return b.String()
}

func markdown(page string) (string, error) {
	if article, err := extractArticle(page); err == nil && article != "" {
		converter := html2md.NewConverter("arxiv.org", true, &html2md.Options{})
		md, err := converter.ConvertString(article)
		if err == nil && strings.TrimSpace(md) != "" {
			return md, nil
		}
	}

	// Not a LaTeXML document, let readability find the content
	article, err := readability.Extract(page, readability.DefaultOptions())
	if err != nil {
		return "", err
	}
	if article.Root == nil {
		return "", failure.New(ErrHTMLUnavailable, failure.Message("No readable content found"))
	}
	return readability.ToMarkdown(article.Root), nil
}

// extractArticle returns the HTML of the <article> element of a LaTeXML
// rendering with page furniture removed.
func extractArticle(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", err
	}

	article := findElement(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Article
	})
	if article == nil {
		return "", nil
	}

	prune(article)

	var buf bytes.Buffer
	if err := html.Render(&buf, article); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && (droppedElements[c.DataAtom] || hasClass(c, droppedClasses...)) {
			n.RemoveChild(c)
		} else {
			prune(c)
		}
		c = next
	}
}

func hasClass(n *html.Node, classes ...string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, field := range strings.Fields(a.Val) {
			for _, c := range classes {
				if field == c {
					return true
				}
			}
		}
	}
	return false
}
