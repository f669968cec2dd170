package api

import (
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

type atomFeed struct {
	XMLName      xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	TotalResults int         `xml:"http://a9.com/-/spec/opensearch/1.1/ totalResults"`
	StartIndex   int         `xml:"http://a9.com/-/spec/opensearch/1.1/ startIndex"`
	Entries      []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	ID              string         `xml:"http://www.w3.org/2005/Atom id"`
	Title           string         `xml:"http://www.w3.org/2005/Atom title"`
	Summary         string         `xml:"http://www.w3.org/2005/Atom summary"`
	Published       string         `xml:"http://www.w3.org/2005/Atom published"`
	Updated         string         `xml:"http://www.w3.org/2005/Atom updated"`
	Authors         []atomAuthor   `xml:"http://www.w3.org/2005/Atom author"`
	Links           []atomLink     `xml:"http://www.w3.org/2005/Atom link"`
	Categories      []atomCategory `xml:"http://www.w3.org/2005/Atom category"`
	PrimaryCategory atomCategory   `xml:"http://arxiv.org/schemas/atom primary_category"`
	Comment         string         `xml:"http://arxiv.org/schemas/atom comment"`
	JournalRef      string         `xml:"http://arxiv.org/schemas/atom journal_ref"`
	DOI             string         `xml:"http://arxiv.org/schemas/atom doi"`
}

type atomAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

// parseFeed decodes an export API response.
// The API reports query errors as a feed with a single entry whose id
// points at /api/errors; those become ErrUpstream.
func parseFeed(r io.Reader) (SearchResult, error) {
	var feed atomFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return SearchResult{}, failure.Wrap(err, failure.WithCode(ErrUpstream),
			failure.Message("Failed to decode arXiv response"),
		)
	}

	result := SearchResult{
		TotalResults: feed.TotalResults,
		Start:        feed.StartIndex,
		Papers:       make([]Paper, 0, len(feed.Entries)),
	}

	for _, e := range feed.Entries {
		if strings.Contains(e.ID, "/api/errors") {
			return SearchResult{}, failure.New(ErrUpstream,
				failure.Message("arXiv API error: "+collapseSpace(e.Summary)),
				failure.Context{"id": e.ID},
			)
		}
		paper, err := e.toPaper()
		if err != nil {
			return SearchResult{}, err
		}
		result.Papers = append(result.Papers, paper)
	}

	return result, nil
}

func (e atomEntry) toPaper() (Paper, error) {
	id, err := ParseID(e.ID)
	if err != nil {
		return Paper{}, failure.Wrap(err, failure.WithCode(ErrUpstream),
			failure.Message("Unexpected entry id in arXiv response"),
			failure.Context{"id": e.ID},
		)
	}

	p := Paper{
		ID:              id.Base,
		Version:         id.Version,
		Title:           collapseSpace(e.Title),
		Abstract:        collapseSpace(e.Summary),
		Authors:         lo.Map(e.Authors, func(a atomAuthor, _ int) string { return strings.TrimSpace(a.Name) }),
		PrimaryCategory: e.PrimaryCategory.Term,
		Comment:         collapseSpace(e.Comment),
		JournalRef:      collapseSpace(e.JournalRef),
		DOI:             strings.TrimSpace(e.DOI),
		AbsURL:          "https://arxiv.org/abs/" + id.String(),
	}
	p.Categories = lo.Uniq(lo.FilterMap(e.Categories, func(c atomCategory, _ int) (string, bool) {
		return c.Term, c.Term != ""
	}))
	p.Published, _ = time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
	p.Updated, _ = time.Parse(time.RFC3339, strings.TrimSpace(e.Updated))

	for _, l := range e.Links {
		switch {
		case l.Title == "pdf":
			p.PDFURL = httpsURL(l.Href)
		case l.Rel == "alternate":
			p.AbsURL = httpsURL(l.Href)
		}
	}
	if p.PDFURL == "" {
		p.PDFURL = "https://arxiv.org/pdf/" + id.String()
	}

	return p, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func httpsURL(s string) string {
	return strings.Replace(s, "http://", "https://", 1)
}
