package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ka2n/mcp-servers/api"
	"github.com/ka2n/mcp-servers/log"
	"github.com/morikuni/failure/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// State is the conversion state of a paper
type State string

const (
	StateUnknown    State = "unknown"
	StateConverting State = "converting"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// DefaultConcurrency is the number of papers DownloadAll fetches at once
const DefaultConcurrency = 4

// conversionTimeout bounds a background conversion detached from its caller
const conversionTimeout = 5 * time.Minute

// Status reports the progress of a paper download
type Status struct {
	PaperID    string    `json:"paper_id"`
	State      State     `json:"status"`
	Source     Source    `json:"source,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// Fetcher retrieves paper metadata and HTML renderings.
// *api.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, id api.ID) (api.Paper, error)
	FetchHTML(ctx context.Context, id api.ID) (string, error)
}

// Downloader fetches papers, converts them to Markdown and stores them in a Library
type Downloader struct {
	lib         *Library
	fetcher     Fetcher
	concurrency int
	onStored    func(Record)
	group       singleflight.Group

	mu       sync.Mutex
	statuses map[string]*Status
	done     map[string]chan struct{}
}

// DownloaderOption configures a Downloader
type DownloaderOption func(*Downloader)

// WithConcurrency sets how many papers DownloadAll fetches at once
func WithConcurrency(n int) DownloaderOption {
	return func(d *Downloader) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithOnStored registers a function called after every paper is stored
func WithOnStored(fn func(Record)) DownloaderOption {
	return func(d *Downloader) {
		d.onStored = fn
	}
}

// NewDownloader creates a Downloader storing into lib
func NewDownloader(lib *Library, fetcher Fetcher, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		lib:         lib,
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		statuses:    make(map[string]*Status),
		done:        make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Library returns the library papers are stored in
func (d *Downloader) Library() *Library {
	return d.lib
}

// Status returns the current status of a paper.
// Stored papers are reported as successful even if this process did not download them.
func (d *Downloader) Status(id api.ID) Status {
	d.mu.Lock()
	snap, ok := d.snapshot(id)
	d.mu.Unlock()
	return d.resolve(id, snap, ok)
}

// snapshot copies the tracked status of a paper. d.mu must be held.
func (d *Downloader) snapshot(id api.ID) (Status, bool) {
	st, ok := d.statuses[id.Base]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

func (d *Downloader) resolve(id api.ID, snap Status, tracked bool) Status {
	if tracked && snap.State == StateConverting {
		return snap
	}
	if rec, err := d.lib.Record(id); err == nil {
		s := Status{PaperID: id.Base, State: StateSuccess, Source: rec.Source, FinishedAt: rec.DownloadedAt}
		if tracked {
			s.StartedAt = snap.StartedAt
		}
		return s
	}
	if tracked {
		return snap
	}
	return Status{PaperID: id.Base, State: StateUnknown}
}

// Start begins downloading a paper in the background and returns immediately.
// A paper that is already stored or being converted is not fetched again.
func (d *Downloader) Start(ctx context.Context, id api.ID) Status {
	d.mu.Lock()
	snap, ok := d.snapshot(id)
	if (ok && snap.State == StateConverting) || d.lib.Exists(id) {
		d.mu.Unlock()
		return d.resolve(id, snap, ok)
	}
	st := &Status{PaperID: id.Base, State: StateConverting, StartedAt: time.Now()}
	d.statuses[id.Base] = st
	done := make(chan struct{})
	d.done[id.Base] = done
	snapshot := *st
	d.mu.Unlock()

	go func() {
		defer close(done)
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), conversionTimeout)
		defer cancel()

		rec, err := d.Download(bg, id)

		d.mu.Lock()
		defer d.mu.Unlock()
		st.FinishedAt = time.Now()
		if err != nil {
			st.State = StateError
			st.Error = failure.MessageOf(err).String()
			if st.Error == "" {
				st.Error = err.Error()
			}
			log.Warn("Paper download failed", "id", id.Base, "error", err)
			return
		}
		st.State = StateSuccess
		st.Source = rec.Source
	}()

	return snapshot
}

// Wait blocks until the background download of a paper started with Start finishes
func (d *Downloader) Wait(ctx context.Context, id api.ID) (Status, error) {
	d.mu.Lock()
	done, ok := d.done[id.Base]
	d.mu.Unlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return d.Status(id), ctx.Err()
		}
	}
	return d.Status(id), nil
}

// Download fetches, converts and stores a paper synchronously.
// Concurrent calls for the same paper share one fetch.
func (d *Downloader) Download(ctx context.Context, id api.ID) (Record, error) {
	v, err, _ := d.group.Do(id.Base, func() (any, error) {
		return d.download(ctx, id)
	})
	if err != nil {
		return Record{}, err
	}
	return v.(Record), nil
}

// DownloadAll downloads papers concurrently and returns their records in input order
func (d *Downloader) DownloadAll(ctx context.Context, ids []api.ID) ([]Record, error) {
	records := make([]Record, len(ids))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.concurrency)
	for i, id := range ids {
		eg.Go(func() error {
			if d.lib.Exists(id) {
				rec, err := d.lib.Record(id)
				records[i] = rec
				return err
			}
			rec, err := d.Download(ctx, id)
			records[i] = rec
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Downloader) download(ctx context.Context, id api.ID) (Record, error) {
	paper, err := d.fetcher.Fetch(ctx, id)
	if err != nil {
		return Record{}, err
	}

	target := id
	if target.Version == 0 {
		target.Version = paper.Version
	}

	rec := Record{Paper: paper, Source: SourceHTML}
	var text string

	page, err := d.fetcher.FetchHTML(ctx, target)
	switch {
	case failure.Is(err, api.ErrHTMLUnavailable):
		log.Info("No HTML rendering, storing abstract", "id", target.String())
		rec.Source = SourceAbstract
		text = api.AbstractMarkdown(paper)
	case err != nil:
		return Record{}, err
	default:
		text, err = api.ToMarkdown(paper, page)
		if err != nil {
			log.Warn("HTML conversion failed, storing abstract", "id", target.String(), "error", err)
			rec.Source = SourceAbstract
			text = api.AbstractMarkdown(paper)
		}
	}

	rec.DownloadedAt = time.Now().UTC()
	if err := d.lib.Save(rec, text); err != nil {
		return Record{}, err
	}
	log.Debug("Stored paper", "id", target.String(), "source", rec.Source)
	if d.onStored != nil {
		d.onStored(rec)
	}
	return rec, nil
}
