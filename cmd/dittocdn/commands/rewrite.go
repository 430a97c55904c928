package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/marmos91/dittocdn/pkg/runtime"
	"github.com/spf13/cobra"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [file]",
	Short: "Rewrite asset references in a page to CDN URLs",
	Long: `Read an HTML page from file, or stdin when no file is given, and print
it with its asset references pointed at the CDN backend.

With -o json the rewritten body is printed with the list of matches.

Examples:
  curl -s https://example.com/ | dittocdn rewrite
  dittocdn rewrite index.html -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			in = f
		}
		body, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		return withRuntime(cmd.Context(), func(rt *runtime.Runtime, p *output.Printer) error {
			out, err := rt.Rewriter().Rewrite(cmd.Context(), string(body))
			if err != nil {
				return err
			}
			if p.Structured() {
				return p.Print(out)
			}
			_, err = io.WriteString(p.Writer(), out.Body)
			return err
		})
	},
}
