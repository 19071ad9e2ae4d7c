package cmd

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/uploader"
)

var (
	transfersSession string
	transfersLimit   int
)

var transfersCmd = &cobra.Command{
	Use:   "transfers",
	Short: "inspect and manage transfers",
}

var transfersListCmd = &cobra.Command{
	Use:   "list",
	Short: "list recent transfers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, _ := connect(cmd)

		list, err := client.ListTransfers(ctx, transfersSession, transfersLimit)
		if err != nil {
			return err
		}

		table := newTable("ID", "Type", "Status", "From", "Summary", "Created")
		for _, t := range list.Transfers {
			table.Append([]string{
				t.ID.String(),
				string(t.Kind),
				string(t.Status),
				t.SenderID,
				summary(t),
				t.CreatedAt.Local().Format(timeLayout),
			})
		}
		table.Render()
		return nil
	},
}

var transfersStatusCmd = &cobra.Command{
	Use:   "status transfer-id completed|failed",
	Short: "mark a pending transfer completed or failed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, _ := connect(cmd)

		status := models.TransferStatus(args[1])
		if status != models.StatusCompleted && status != models.StatusFailed {
			return fmt.Errorf("status must be completed or failed")
		}

		t, err := client.UpdateTransferStatus(ctx, args[0], status)
		if err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", t.ID, t.Status)
		return nil
	},
}

var transfersDeleteCmd = &cobra.Command{
	Use:   "delete transfer-id",
	Short: "retract a transfer you sent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, _ := connect(cmd)

		if err := client.DeleteTransfer(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

// summary renders the content preview or the artifact name and size
func summary(t *models.Transfer) string {
	if t.Kind.Inline() {
		text := strings.Join(strings.Fields(lo.FromPtr(t.Content)), " ")
		if len(text) > 48 {
			text = text[:45] + "..."
		}
		return text
	}
	return fmt.Sprintf("%s (%s)", lo.FromPtr(t.FileName), uploader.FormatSize(lo.FromPtr(t.FileSize)))
}

func init() {
	transfersListCmd.Flags().StringVar(&transfersSession, "session", "", "list a pairing session instead of your own transfers")
	transfersListCmd.Flags().IntVar(&transfersLimit, "limit", 0, "maximum number of transfers (default: server limit)")

	transfersCmd.AddCommand(transfersListCmd)
	transfersCmd.AddCommand(transfersStatusCmd)
	transfersCmd.AddCommand(transfersDeleteCmd)
}
