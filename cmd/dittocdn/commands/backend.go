package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/runtime"
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that the configured CDN backend accepts transfers",
	Long: `Upload, verify and delete a probe file on the configured backend.

Examples:
  dittocdn test
  DITTOCDN_CDN_ENGINE=s3 dittocdn test`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime.Runtime, p *output.Printer) error {
			b := rt.Backend()
			testErr := b.Test(cmd.Context())

			result := map[string]any{
				"engine":  cdn.EngineName(b),
				"via":     b.Via(),
				"domains": b.Domains(),
				"ok":      testErr == nil,
			}
			if testErr != nil {
				result["error"] = testErr.Error()
			}
			if p.Structured() {
				if err := p.Print(result); err != nil {
					return err
				}
				return testErr
			}

			_ = output.KeyValues(p.Writer(), [][2]string{
				{"Engine", cdn.EngineName(b)},
				{"Via", b.Via()},
				{"Domains", strings.Join(b.Domains(), ", ")},
			})
			if testErr != nil {
				return fmt.Errorf("test failed: %w", testErr)
			}
			p.Success("Test passed")
			return nil
		})
	},
}

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Manage the backend container",
}

var containerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the configured bucket or container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime.Runtime, p *output.Printer) error {
			cc, ok := rt.Backend().(cdn.ContainerCreator)
			if !ok {
				return fmt.Errorf("engine %s does not support container creation", cdn.EngineName(rt.Backend()))
			}
			if err := cc.CreateContainer(cmd.Context()); err != nil {
				var verr *cdn.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("invalid configuration: %w", err)
				}
				return err
			}
			p.Success("Created successfully")
			return nil
		})
	},
}

func init() {
	containerCmd.AddCommand(containerCreateCmd)
}
