package commands

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/marmos91/dittocdn/internal/cli/prompt"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/queue"
	"github.com/marmos91/dittocdn/pkg/runtime"
	"github.com/spf13/cobra"
)

var (
	queueListLimit int
	queueEmptyYes  bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the transfer queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued transfers, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime.Runtime, p *output.Printer) error {
			groups, err := rt.Queue().Get(cmd.Context(), queueListLimit)
			if err != nil {
				return err
			}
			entries := groups.All()
			queue.SortEntries(entries)
			if entries == nil {
				entries = []*queue.Entry{}
			}
			if p.Structured() {
				return p.Print(entries)
			}
			if len(entries) == 0 {
				p.Println("Queue is empty")
				return nil
			}
			return p.Print(queueTable(entries))
		})
	},
}

var queueDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Drop one queued transfer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid queue entry id: %s", args[0])
		}
		return withRuntime(cmd.Context(), func(rt *runtime.Runtime, p *output.Printer) error {
			if err := rt.Queue().Delete(cmd.Context(), id); err != nil {
				return err
			}
			p.Success(fmt.Sprintf("Queue entry %d removed", id))
			return nil
		})
	},
}

var queueEmptyCmd = &cobra.Command{
	Use:       "empty <upload|delete>",
	Short:     "Drop every queued transfer of one command",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{cdn.CommandUpload.String(), cdn.CommandDelete.String()},
	RunE: func(cmd *cobra.Command, args []string) error {
		command, err := cdn.ParseCommand(args[0])
		if err != nil {
			return err
		}
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Drop all queued %s transfers", command), queueEmptyYes)
		if err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}
		return withRuntime(cmd.Context(), func(rt *runtime.Runtime, p *output.Printer) error {
			n, err := rt.Queue().Empty(cmd.Context(), command)
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("Removed %s queued %s transfers", humanize.Comma(int64(n)), command))
			return nil
		})
	},
}

func init() {
	queueListCmd.Flags().IntVar(&queueListLimit, "limit", 0, "Maximum entries to list (0 for all)")
	queueEmptyCmd.Flags().BoolVarP(&queueEmptyYes, "force", "y", false, "Skip the confirmation prompt")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDeleteCmd)
	queueCmd.AddCommand(queueEmptyCmd)
}

func queueTable(entries []*queue.Entry) *output.TableData {
	t := output.NewTableData("ID", "COMMAND", "REMOTE", "LOCAL", "QUEUED")
	for _, e := range entries {
		t.AddRow(strconv.FormatInt(e.ID, 10), e.Command.String(), e.RemotePath, e.LocalPath, humanize.Time(e.Date))
	}
	return t
}
