// Package jobs implements the paged bulk jobs: exporting the media library
// and static files to the backend, importing referenced files into the
// uploads directory, and renaming old domains in post bodies.
//
// Every job takes a Page and returns a Report whose Count tells the caller
// how far to advance the offset. Jobs are safe to re-run: items already
// handled report an error-level outcome and change nothing.
package jobs

import (
	"context"
	"errors"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/metrics"
	"github.com/marmos91/dittocdn/pkg/rewrite"
	"github.com/marmos91/dittocdn/pkg/site"
)

// ErrHalted is returned by Drive when an item reports OutcomeHalt.
var ErrHalted = errors.New("job halted")

// Host is the content store the jobs read and update.
type Host interface {
	CountAttachments(ctx context.Context) (int, error)
	ListAttachments(ctx context.Context, limit, offset int) ([]*site.Attachment, error)
	CountPosts(ctx context.Context) (int, error)
	ListPosts(ctx context.Context, limit, offset int) ([]*site.Post, error)
	UpdatePostContent(ctx context.Context, id uint, content string) error
	InsertAttachment(ctx context.Context, a *site.Attachment) error
}

var _ Host = (*site.Catalog)(nil)

// Page selects a window of the job's input.
type Page struct {
	Limit  int `json:"limit" validate:"gte=0"`
	Offset int `json:"offset" validate:"gte=0"`
}

// Item is the outcome of one file or reference.
type Item struct {
	// Path is the remote path (export), the source reference (import) or
	// the old URL (rename).
	Path string `json:"path"`

	// Target is the import destination or the renamed URL.
	Target string `json:"target,omitempty"`

	Outcome cdn.Outcome `json:"outcome"`
	Message string      `json:"message"`
}

// Report is the result of one page.
type Report struct {
	Count   int    `json:"count"`
	Total   int    `json:"total"`
	Results []Item `json:"results"`
}

// Halted reports whether any item halted.
func (r *Report) Halted() bool {
	for _, it := range r.Results {
		if it.Outcome == cdn.OutcomeHalt {
			return true
		}
	}
	return false
}

// Config configures the jobs.
type Config struct {
	Import ImportConfig

	// Groups carries the masks used to discover static files.
	Groups rewrite.Config
}

// Runner runs the bulk jobs against one site and backend.
type Runner struct {
	layout     *site.Layout
	backend    cdn.Backend
	host       Host
	cfg        Config
	downloader *Downloader
	importRe   func(string) bool
	metrics    metrics.TransferMetrics
}

// NewRunner creates a Runner. m may be nil.
func NewRunner(cfg Config, layout *site.Layout, backend cdn.Backend, host Host, m metrics.TransferMetrics) (*Runner, error) {
	cfg.Import.ApplyDefaults()
	cfg.Groups.ApplyDefaults()

	re, err := rewrite.Compile(`(?i)(` + rewrite.MaskToRegexp(cfg.Import.Files) + `)$`)
	if err != nil {
		return nil, err
	}
	return &Runner{
		layout:     layout,
		backend:    backend,
		host:       host,
		cfg:        cfg,
		downloader: NewDownloader(cfg.Import),
		importRe:   re.MatchString,
		metrics:    m,
	}, nil
}

func resultItems(results []cdn.Result) []Item {
	items := make([]Item, len(results))
	for i, r := range results {
		items[i] = Item{Path: r.RemotePath, Outcome: r.Outcome, Message: r.Message}
	}
	return items
}

// Drive runs step page by page from offset 0, handing every report to
// onPage (which may be nil). It stops when the input is exhausted, returns
// ErrHalted as soon as a page carries a halted item, and checks ctx
// between pages.
func Drive(ctx context.Context, step func(context.Context, Page) (*Report, error), limit int, onPage func(Page, *Report)) error {
	page := Page{Limit: limit}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		report, err := step(ctx, page)
		if err != nil {
			return err
		}
		if onPage != nil {
			onPage(page, report)
		}
		if report.Halted() {
			return ErrHalted
		}
		page.Offset += report.Count
		if report.Count == 0 || page.Offset >= report.Total {
			return nil
		}
	}
}
