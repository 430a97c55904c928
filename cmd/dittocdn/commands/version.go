package commands

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPrinter()
		if err != nil {
			return err
		}
		info := map[string]string{
			"version": Version,
			"commit":  Commit,
			"date":    Date,
			"go":      goruntime.Version(),
		}
		if p.Structured() {
			return p.Print(info)
		}
		p.Println(fmt.Sprintf("dittocdn %s (commit: %s, built: %s, %s)", Version, Commit, Date, goruntime.Version()))
		return nil
	},
}
