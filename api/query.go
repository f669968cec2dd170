package api

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

// SortBy selects the ordering of search results
type SortBy string

const (
	SortRelevance SortBy = "relevance"
	SortDate      SortBy = "date"
)

const (
	DefaultMaxResults = 10
	dateLayout        = "2006-01-02"
	earliestDate      = "190001010000"
)

var (
	// fieldSyntax matches queries already written in arXiv query syntax
	fieldSyntax = regexp.MustCompile(`\b(ti|au|abs|co|jr|cat|rn|id|all|submittedDate):|\s(AND|OR|ANDNOT)\s`)
	category    = regexp.MustCompile(`^[a-z\-]+(\.[A-Za-z\-]+)?$`)

	// now is replaced in tests
	now = time.Now
)

// SearchQuery describes a search against the arXiv API
type SearchQuery struct {
	Query      string
	MaxResults int
	Start      int
	// DateFrom and DateTo are YYYY-MM-DD, both inclusive
	DateFrom   string
	DateTo     string
	Categories []string
	SortBy     SortBy
}

// Values returns the URL parameters of the export API for this query
func (q SearchQuery) Values() (map[string]string, error) {
	if q.MaxResults < 0 || q.Start < 0 {
		return nil, invalidQuery("max_results and start must not be negative")
	}

	var parts []string

	if text := strings.TrimSpace(q.Query); text != "" {
		parts = append(parts, textQuery(text))
	}

	cats := lo.Uniq(lo.FilterMap(q.Categories, func(c string, _ int) (string, bool) {
		c = strings.TrimSpace(c)
		return c, c != ""
	}))
	for _, c := range cats {
		if !category.MatchString(c) {
			return nil, invalidQuery("invalid category: " + c)
		}
	}
	if len(cats) > 0 {
		parts = append(parts, "("+strings.Join(lo.Map(cats, func(c string, _ int) string {
			return "cat:" + c
		}), " OR ")+")")
	}

	if q.DateFrom != "" || q.DateTo != "" {
		dates, err := dateRange(q.DateFrom, q.DateTo)
		if err != nil {
			return nil, err
		}
		parts = append(parts, dates)
	}

	if len(parts) == 0 || (strings.TrimSpace(q.Query) == "" && len(cats) == 0) {
		return nil, invalidQuery("query or categories required")
	}

	sortBy := "relevance"
	switch q.SortBy {
	case "", SortRelevance:
	case SortDate:
		sortBy = "submittedDate"
	default:
		return nil, invalidQuery("sort_by must be relevance or date")
	}

	maxResults := q.MaxResults
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}

	searchQuery := parts[0]
	if len(parts) > 1 {
		searchQuery = strings.Join(lo.Map(parts, func(p string, _ int) string {
			if strings.HasPrefix(p, "(") {
				return p
			}
			return "(" + p + ")"
		}), " AND ")
	}

	return map[string]string{
		"search_query": searchQuery,
		"start":        strconv.Itoa(q.Start),
		"max_results":  strconv.Itoa(maxResults),
		"sortBy":       sortBy,
		"sortOrder":    "descending",
	}, nil
}

// textQuery turns free text into arXiv query syntax.
// Queries already using field prefixes or boolean operators pass through.
func textQuery(text string) string {
	if fieldSyntax.MatchString(" " + text + " ") {
		return text
	}

	terms := splitTerms(text)
	return strings.Join(lo.Map(terms, func(t string, _ int) string {
		return `all:"` + strings.Trim(t, `"`) + `"`
	}), " AND ")
}

// splitTerms splits on whitespace keeping double-quoted phrases together
func splitTerms(text string) []string {
	var terms []string
	var cur strings.Builder
	quoted := false

	flush := func() {
		if cur.Len() > 0 {
			terms = append(terms, cur.String())
			cur.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == '"':
			cur.WriteRune(r)
			if quoted {
				flush()
			}
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if quoted {
		cur.WriteRune('"')
	}
	flush()

	return lo.Filter(terms, func(t string, _ int) bool { return t != `""` })
}

func dateRange(from, to string) (string, error) {
	start := earliestDate
	end := now().UTC().Format("20060102") + "2359"

	var fromT, toT time.Time
	var err error
	if from != "" {
		if fromT, err = time.Parse(dateLayout, from); err != nil {
			return "", invalidQuery("date_from must be YYYY-MM-DD")
		}
		start = fromT.Format("20060102") + "0000"
	}
	if to != "" {
		if toT, err = time.Parse(dateLayout, to); err != nil {
			return "", invalidQuery("date_to must be YYYY-MM-DD")
		}
		end = toT.Format("20060102") + "2359"
	}
	if from != "" && to != "" && fromT.After(toT) {
		return "", invalidQuery("date_from must not be after date_to")
	}

	return "submittedDate:[" + start + " TO " + end + "]", nil
}

func invalidQuery(msg string) error {
	return failure.New(ErrInvalidQuery,
		failure.Message("Invalid search query: "+msg),
	)
}
