package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ka2n/mcp-servers/api/cache"
	"github.com/morikuni/failure/v2"
)

// readTestFile reads a test file from the testdata directory
func readTestFile(t *testing.T, filename string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join("testdata", filename))
	if err != nil {
		t.Fatalf("Failed to read test file %s: %v", filename, err)
	}
	return string(content)
}

// fakeArxiv serves testdata files for the export API and HTML renderings
type fakeArxiv struct {
	t         *testing.T
	feed      string
	html      map[string]string
	requests  atomic.Int32
	lastQuery atomic.Value
}

func (f *fakeArxiv) query() string {
	q, _ := f.lastQuery.Load().(string)
	return q
}

func (f *fakeArxiv) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "arxiv-mcp-server/") {
		f.t.Errorf("unexpected User-Agent %q", ua)
	}

	switch {
	case r.URL.Path == "/api/query":
		f.lastQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(readTestFile(f.t, f.feed)))
	case strings.HasPrefix(r.URL.Path, "/html/"):
		page, ok := f.html[strings.TrimPrefix(r.URL.Path, "/html/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	default:
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}
}

func newTestClient(t *testing.T, fake *fakeArxiv, opts ...Option) *Client {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithHTMLURL(srv.URL + "/html"),
		WithRequestInterval(0),
	}, opts...)
	return NewClient(srv.URL+"/api/query", opts...)
}

func TestClientSearch(t *testing.T) {
	fake := &fakeArxiv{feed: "search.xml"}
	client := newTestClient(t, fake)

	got, err := client.Search(context.Background(), SearchQuery{Query: "attention", MaxResults: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if got.TotalResults != 3120 {
		t.Errorf("TotalResults = %d, want 3120", got.TotalResults)
	}
	if !strings.Contains(fake.query(), "search_query=all%3A%22attention%22") || !strings.Contains(fake.query(), "max_results=2") {
		t.Errorf("unexpected query %q", fake.query())
	}

	want := []Paper{
		{
			ID:              "1706.03762",
			Version:         7,
			Title:           "Attention Is All You Need",
			Authors:         []string{"Ashish Vaswani", "Noam Shazeer"},
			Abstract:        "The dominant sequence transduction models are based on complex recurrent or convolutional neural networks.",
			Categories:      []string{"cs.CL", "cs.LG"},
			PrimaryCategory: "cs.CL",
			Published:       time.Date(2017, 6, 12, 17, 57, 34, 0, time.UTC),
			Updated:         time.Date(2023, 8, 2, 0, 41, 18, 0, time.UTC),
			AbsURL:          "https://arxiv.org/abs/1706.03762v7",
			PDFURL:          "https://arxiv.org/pdf/1706.03762v7",
			Comment:         "15 pages, 5 figures",
		},
		{
			ID:              "hep-th/9901001",
			Version:         1,
			Title:           "An Old Style Paper",
			Authors:         []string{"A. Physicist"},
			Abstract:        "Strings.",
			Categories:      []string{"hep-th"},
			PrimaryCategory: "hep-th",
			Published:       time.Date(1999, 1, 1, 10, 0, 0, 0, time.UTC),
			Updated:         time.Date(1999, 1, 1, 10, 0, 0, 0, time.UTC),
			AbsURL:          "https://arxiv.org/abs/hep-th/9901001v1",
			PDFURL:          "https://arxiv.org/pdf/hep-th/9901001v1",
			JournalRef:      "Phys. Rev. D 1 (1999)",
			DOI:             "10.1000/xyz123",
		},
	}
	if diff := cmp.Diff(want, got.Papers); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
}

func TestClientSearchMaxResultsCap(t *testing.T) {
	fake := &fakeArxiv{feed: "empty.xml"}
	client := newTestClient(t, fake, WithMaxResults(5))

	if _, err := client.Search(context.Background(), SearchQuery{Query: "x", MaxResults: 100}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !strings.Contains(fake.query(), "max_results=5") {
		t.Errorf("max_results not capped: %q", fake.query())
	}
}

func TestClientSearchCached(t *testing.T) {
	backend, err := cache.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fake := &fakeArxiv{feed: "search.xml"}
	client := newTestClient(t, fake, WithCache(backend, time.Hour))

	for i := 0; i < 3; i++ {
		if _, err := client.Search(context.Background(), SearchQuery{Query: "attention"}); err != nil {
			t.Fatalf("Search() error = %v", err)
		}
	}
	if n := fake.requests.Load(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestClientSearchUpstreamError(t *testing.T) {
	fake := &fakeArxiv{feed: "error.xml"}
	client := newTestClient(t, fake)

	_, err := client.Search(context.Background(), SearchQuery{Query: "x"})
	if !failure.Is(err, ErrUpstream) {
		t.Fatalf("Search() error = %v, want %v", err, ErrUpstream)
	}
	if msg := failure.MessageOf(err); !strings.Contains(msg.String(), "incorrect id format") {
		t.Errorf("message = %q", msg)
	}
}

func TestClientFetch(t *testing.T) {
	client := newTestClient(t, &fakeArxiv{feed: "search.xml"})

	paper, err := client.Fetch(context.Background(), ID{Base: "1706.03762"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if paper.Title != "Attention Is All You Need" {
		t.Errorf("Fetch() title = %q", paper.Title)
	}
}

func TestClientFetchNotFound(t *testing.T) {
	client := newTestClient(t, &fakeArxiv{feed: "empty.xml"})

	_, err := client.Fetch(context.Background(), ID{Base: "2401.99999"})
	if !failure.Is(err, ErrPaperNotFound) {
		t.Errorf("Fetch() error = %v, want %v", err, ErrPaperNotFound)
	}
}

func TestClientFetchHTML(t *testing.T) {
	fake := &fakeArxiv{html: map[string]string{"1706.03762v7": "<html>paper</html>"}}
	client := newTestClient(t, fake)

	page, err := client.FetchHTML(context.Background(), ID{Base: "1706.03762", Version: 7})
	if err != nil {
		t.Fatalf("FetchHTML() error = %v", err)
	}
	if page != "<html>paper</html>" {
		t.Errorf("FetchHTML() = %q", page)
	}

	_, err = client.FetchHTML(context.Background(), ID{Base: "2401.00001"})
	if !failure.Is(err, ErrHTMLUnavailable) {
		t.Errorf("FetchHTML() error = %v, want %v", err, ErrHTMLUnavailable)
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithRequestInterval(0))
	_, err := client.Search(context.Background(), SearchQuery{Query: "x"})
	if !failure.Is(err, ErrUpstream) {
		t.Errorf("Search() error = %v, want %v", err, ErrUpstream)
	}
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	client := newTestClient(t, &fakeArxiv{feed: "empty.xml"}, WithRequestInterval(time.Hour))

	if _, err := client.Search(context.Background(), SearchQuery{Query: "x"}); err != nil {
		t.Fatalf("first Search() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := client.Search(ctx, SearchQuery{Query: "y"}); err == nil {
		t.Error("second Search() succeeded inside the rate limit window")
	}
}
