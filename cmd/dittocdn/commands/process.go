package commands

import (
	"fmt"

	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/marmos91/dittocdn/pkg/runtime"
	"github.com/spf13/cobra"
)

var processLimit int

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process the transfer queue once",
	Long: `Deliver queued uploads and deletes to the CDN backend, oldest first.

Delivered and permanently failed entries leave the queue. When the backend
cannot be reached the affected group halts and its entries stay queued.

Examples:
  dittocdn process
  dittocdn process --limit 500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime.Runtime, p *output.Printer) error {
			report, err := rt.Processor().Process(cmd.Context(), processLimit)
			if err != nil {
				return err
			}
			if p.Structured() {
				return p.Print(report)
			}

			for _, r := range report.Results {
				p.Item(r.Outcome.String(), r.RemotePath, "", r.Message)
			}
			for _, h := range report.Halts {
				p.Warning(fmt.Sprintf("%s halted with %d entries kept: %s", h.Command, h.Items, h.Message))
			}
			p.Printf("Processed %d: %d delivered, %d failed\n", report.Processed, report.Succeeded, report.Failed)
			return nil
		})
	},
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "Maximum entries to process (default: queue.process_limit)")
}
