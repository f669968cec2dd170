package api

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/morikuni/failure/v2"
)

var (
	// 2401.12345, 0704.0001 (four digit sequence before 2015)
	newStyleID = regexp.MustCompile(`^(\d{4}\.\d{4,5})(?:v(\d+))?$`)
	// hep-th/9901001, math.GT/0309136
	oldStyleID = regexp.MustCompile(`^([a-z\-]+(?:\.[A-Z]{2})?/\d{7})(?:v(\d+))?$`)
)

// ID is an arXiv identifier split into its base and version.
// Version is zero when the identifier refers to the latest version.
type ID struct {
	Base    string
	Version int
}

// String returns the identifier as arXiv writes it, e.g. 2401.12345v2
func (id ID) String() string {
	if id.Version > 0 {
		return id.Base + "v" + strconv.Itoa(id.Version)
	}
	return id.Base
}

// FileName returns a filesystem-safe name for the base identifier
func (id ID) FileName() string {
	return strings.ReplaceAll(id.Base, "/", "_")
}

// IDFromFileName reverses FileName
func IDFromFileName(name string) (ID, error) {
	// only old-style identifiers contain a slash
	return ParseID(strings.Replace(name, "_", "/", 1))
}

// ParseID parses the identifier forms accepted by arxiv.org:
// bare ids, "arXiv:" prefixed ids and abs/pdf/html URLs.
func ParseID(s string) (ID, error) {
	raw := s
	s = strings.TrimSpace(s)

	if i := strings.Index(s, "arxiv.org/"); i >= 0 {
		s = s[i+len("arxiv.org/"):]
		for _, prefix := range []string{"abs/", "pdf/", "html/"} {
			if strings.HasPrefix(s, prefix) {
				s = strings.TrimPrefix(s, prefix)
				break
			}
		}
		if j := strings.IndexAny(s, "?#"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSuffix(s, "/")
		s = strings.TrimSuffix(s, ".pdf")
	}
	if len(s) > 6 && strings.EqualFold(s[:6], "arxiv:") {
		s = s[6:]
	}

	for _, re := range []*regexp.Regexp{newStyleID, oldStyleID} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		id := ID{Base: m[1]}
		if m[2] != "" {
			v, err := strconv.Atoi(m[2])
			if err != nil {
				break
			}
			id.Version = v
		}
		return id, nil
	}

	return ID{}, failure.New(ErrInvalidPaperID,
		failure.Message("Invalid arXiv paper ID: "+raw),
		failure.Context{"id": raw},
	)
}
