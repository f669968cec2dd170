package api

import "time"

// Paper holds the metadata of one arXiv submission
type Paper struct {
	// ID is the versionless identifier
	ID              string    `json:"id"`
	Version         int       `json:"version,omitempty"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	Abstract        string    `json:"abstract"`
	Categories      []string  `json:"categories"`
	PrimaryCategory string    `json:"primary_category,omitempty"`
	Published       time.Time `json:"published"`
	Updated         time.Time `json:"updated"`
	AbsURL          string    `json:"abs_url,omitempty"`
	PDFURL          string    `json:"pdf_url,omitempty"`
	Comment         string    `json:"comment,omitempty"`
	JournalRef      string    `json:"journal_ref,omitempty"`
	DOI             string    `json:"doi,omitempty"`
}

// ResourceURI is the MCP resource URI under which the paper is exposed
func (p Paper) ResourceURI() string {
	return ResourceURI(p.ID)
}

// VersionedID returns the identifier including the version, if known
func (p Paper) VersionedID() string {
	return ID{Base: p.ID, Version: p.Version}.String()
}

// ResourceURI builds the MCP resource URI for a paper id.
// Old-style ids use their file name so the URI stays a single path segment.
func ResourceURI(id string) string {
	return "arxiv://" + ID{Base: id}.FileName()
}

// SearchResult is one page of search results
type SearchResult struct {
	TotalResults int     `json:"total_results"`
	Start        int     `json:"start"`
	Papers       []Paper `json:"papers"`
}
