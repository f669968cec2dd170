// Package storage keeps downloaded arXiv papers on the local filesystem.
//
// Every paper is stored as two files named after its identifier:
// <id>.md holds the Markdown text and <id>.json the Record describing it.
package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ka2n/mcp-servers/api"
	"github.com/ka2n/mcp-servers/log"
	"github.com/morikuni/failure/v2"
)

// ErrorCode defines error types for storage operations
type ErrorCode string

const (
	ErrNotDownloaded ErrorCode = "NotDownloaded"
	ErrStorage       ErrorCode = "StorageError"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// Source tells where the stored text came from
type Source string

const (
	SourceHTML     Source = "html"
	SourceAbstract Source = "abstract"
)

// Record describes a stored paper
type Record struct {
	Paper        api.Paper `json:"paper"`
	Source       Source    `json:"source"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Library is a directory of stored papers
type Library struct {
	root string
}

// Open returns the library rooted at dir, creating the directory if needed
func Open(dir string) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrStorage),
			failure.Message("Failed to create storage directory"),
			failure.Context{"path": dir},
		)
	}
	return &Library{root: dir}, nil
}

// Root returns the library directory
func (l *Library) Root() string {
	return l.root
}

func (l *Library) markdownPath(id api.ID) string {
	return filepath.Join(l.root, id.FileName()+".md")
}

func (l *Library) recordPath(id api.ID) string {
	return filepath.Join(l.root, id.FileName()+".json")
}

// Save stores the Markdown text and its record
func (l *Library) Save(rec Record, markdown string) error {
	id := api.ID{Base: rec.Paper.ID}

	meta, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return failure.Wrap(err, failure.WithCode(ErrStorage))
	}

	if err := writeFileAtomic(l.markdownPath(id), []byte(markdown)); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrStorage),
			failure.Message("Failed to write paper"),
			failure.Context{"id": id.Base},
		)
	}
	if err := writeFileAtomic(l.recordPath(id), meta); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrStorage),
			failure.Message("Failed to write paper metadata"),
			failure.Context{"id": id.Base},
		)
	}
	return nil
}

// Exists reports whether the paper text is stored
func (l *Library) Exists(id api.ID) bool {
	_, err := os.Stat(l.markdownPath(id))
	return err == nil
}

// Read returns the stored Markdown text of a paper
func (l *Library) Read(id api.ID) (string, error) {
	b, err := os.ReadFile(l.markdownPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", notDownloaded(id)
	}
	if err != nil {
		return "", failure.Wrap(err, failure.WithCode(ErrStorage))
	}
	return string(b), nil
}

// Record returns the stored record of a paper.
// Papers stored without metadata get a record carrying only the id.
func (l *Library) Record(id api.ID) (Record, error) {
	b, err := os.ReadFile(l.recordPath(id))
	if errors.Is(err, os.ErrNotExist) {
		info, statErr := os.Stat(l.markdownPath(id))
		if statErr != nil {
			return Record{}, notDownloaded(id)
		}
		return Record{Paper: api.Paper{ID: id.Base}, DownloadedAt: info.ModTime()}, nil
	}
	if err != nil {
		return Record{}, failure.Wrap(err, failure.WithCode(ErrStorage))
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, failure.Wrap(err, failure.WithCode(ErrStorage),
			failure.Message("Corrupted paper metadata"),
			failure.Context{"id": id.Base},
		)
	}
	return rec, nil
}

// List returns all stored papers, most recently downloaded first
func (l *Library) List() ([]Record, error) {
	matches, err := filepath.Glob(filepath.Join(l.root, "*.md"))
	if err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrStorage))
	}

	records := make([]Record, 0, len(matches))
	for _, m := range matches {
		id, err := api.IDFromFileName(strings.TrimSuffix(filepath.Base(m), ".md"))
		if err != nil {
			log.Debug("Skipping unknown file in storage", "file", m)
			continue
		}
		rec, err := l.Record(id)
		if err != nil {
			log.Warn("Failed to read paper metadata", "id", id.Base, "error", err)
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].DownloadedAt.Equal(records[j].DownloadedAt) {
			return records[i].DownloadedAt.After(records[j].DownloadedAt)
		}
		return records[i].Paper.ID < records[j].Paper.ID
	})
	return records, nil
}

// Delete removes a stored paper
func (l *Library) Delete(id api.ID) error {
	if !l.Exists(id) {
		return notDownloaded(id)
	}
	for _, p := range []string{l.markdownPath(id), l.recordPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return failure.Wrap(err, failure.WithCode(ErrStorage))
		}
	}
	return nil
}

func notDownloaded(id api.ID) error {
	return failure.New(ErrNotDownloaded,
		failure.Message("Paper "+id.Base+" has not been downloaded. Use download_paper first."),
		failure.Context{"id": id.Base},
	)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
