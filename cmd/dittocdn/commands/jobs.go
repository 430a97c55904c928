package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/marmos91/dittocdn/pkg/jobs"
	"github.com/marmos91/dittocdn/pkg/runtime"
	"github.com/spf13/cobra"
)

const defaultPageLimit = 50

var (
	jobLimit        int
	exportGroup     string
	importRedirects bool
)

// jobSummary is the structured output of a paged job.
type jobSummary struct {
	Total     int         `json:"total" yaml:"total"`
	Processed int         `json:"processed" yaml:"processed"`
	Halted    bool        `json:"halted" yaml:"halted"`
	Results   []jobs.Item `json:"results" yaml:"results"`
	Redirects []string    `json:"redirects,omitempty" yaml:"redirects,omitempty"`
}

// driveJob pages step to the end, streaming items in table mode and
// collecting them for structured output.
func driveJob(ctx context.Context, p *output.Printer, step func(context.Context, jobs.Page) (*jobs.Report, error)) (*jobSummary, error) {
	summary := &jobSummary{Results: []jobs.Item{}}
	err := jobs.Drive(ctx, step, jobLimit, func(page jobs.Page, report *jobs.Report) {
		summary.Total = report.Total
		summary.Processed += report.Count
		summary.Results = append(summary.Results, report.Results...)
		if p.Structured() {
			return
		}
		for _, it := range report.Results {
			p.Item(it.Outcome.String(), it.Path, it.Target, it.Message)
		}
		p.Printf("-- %s of %s\n", humanize.Comma(int64(summary.Processed)), humanize.Comma(int64(summary.Total)))
	})
	if errors.Is(err, jobs.ErrHalted) {
		summary.Halted = true
	} else if err != nil {
		return nil, err
	}
	return summary, nil
}

func finishJob(p *output.Printer, name string, summary *jobSummary) error {
	if p.Structured() {
		if err := p.Print(summary); err != nil {
			return err
		}
	} else if !summary.Halted {
		p.Success(fmt.Sprintf("%s finished: %s items", name, humanize.Comma(int64(summary.Processed))))
	}
	if summary.Halted {
		return fmt.Errorf("%s halted: the backend is unreachable, fix it and run again", name)
	}
	return nil
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload the media library or a static file group to the CDN",
	Long: `Upload every attachment of the media library, with its sizes, to the
CDN backend. With --group the static files of that group found under the
site root are uploaded instead.

Examples:
  dittocdn export
  dittocdn export --group css --limit 100`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withRuntime(ctx, func(rt *runtime.Runtime, p *output.Printer) error {
			step := rt.Jobs().Export
			if exportGroup != "" {
				files, err := rt.Jobs().Discover(ctx, exportGroup)
				if err != nil {
					return err
				}
				step = func(ctx context.Context, page jobs.Page) (*jobs.Report, error) {
					return rt.Jobs().ExportFiles(ctx, files, page)
				}
			}
			summary, err := driveJob(ctx, p, step)
			if err != nil {
				return err
			}
			return finishJob(p, "Export", summary)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy files referenced by posts into the uploads directory",
	Long: `Scan post bodies for references to files hosted elsewhere, copy them
into the uploads directory, register them as attachments and point the
posts at the local copies.

With --redirects, Apache redirect rules from the old URLs to the CDN are
printed at the end.

Examples:
  dittocdn import
  dittocdn import --redirects > redirects.conf`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withRuntime(ctx, func(rt *runtime.Runtime, p *output.Printer) error {
			summary, err := driveJob(ctx, p, rt.Jobs().Import)
			if err != nil {
				return err
			}
			if importRedirects {
				var host string
				if domains := rt.Backend().Domains(); len(domains) > 0 {
					host = domains[0]
				}
				summary.Redirects = jobs.RedirectRules(summary.Results, host, true)
				if !p.Structured() {
					for _, rule := range summary.Redirects {
						p.Println(rule)
					}
				}
			}
			return finishJob(p, "Import", summary)
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <domain>...",
	Short: "Point post references at old domains to the current CDN",
	Long: `Rewrite references to the given old domains in post bodies so they use
the current backend URLs. Domains may use * to match one or more
characters.

Examples:
  dittocdn rename old-cdn.example.com
  dittocdn rename "*.cloudfront.net" static.example.org`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withRuntime(ctx, func(rt *runtime.Runtime, p *output.Printer) error {
			summary, err := driveJob(ctx, p, func(ctx context.Context, page jobs.Page) (*jobs.Report, error) {
				return rt.Jobs().Rename(ctx, args, page)
			})
			if err != nil {
				return err
			}
			return finishJob(p, "Rename", summary)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{exportCmd, importCmd, renameCmd} {
		c.Flags().IntVar(&jobLimit, "limit", defaultPageLimit, "Items per page")
	}
	exportCmd.Flags().StringVar(&exportGroup, "group", "", "Export a static file group instead of the media library (includes|theme|minify|custom)")
	importCmd.Flags().BoolVar(&importRedirects, "redirects", false, "Print Apache redirect rules for the imported files")
}
