package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lyzr/connected/common/models"
)

var (
	sendKind     string
	sendSession  string
	sendReceiver string
)

var sendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "send text or code",
	Long:  `send text or code as a transfer; reads stdin when no text is given. Without --kind the server classifies the content.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, _ := connect(cmd)

		content := ""
		if len(args) == 1 {
			content = args[0]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			content = strings.TrimRight(string(data), "\n")
		}
		if content == "" {
			return fmt.Errorf("nothing to send")
		}

		kind := models.TransferKind(sendKind)
		if kind != "" && !kind.Inline() {
			return fmt.Errorf("--kind must be text or code")
		}

		t, err := client.CreateTransfer(ctx, &models.CreateTransferRequest{
			Type:       kind,
			Content:    content,
			SessionKey: sendSession,
			ReceiverID: sendReceiver,
		})
		if err != nil {
			return err
		}

		fmt.Printf("sent %s as %s", t.ID, t.Kind)
		if lang, ok := t.Metadata["language"]; ok {
			fmt.Printf(" (%v)", lang)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendKind, "kind", "", "text or code (default: detect)")
	sendCmd.Flags().StringVar(&sendSession, "session", "", "publish to a pairing session")
	sendCmd.Flags().StringVar(&sendReceiver, "to", "", "receiver user id")
}
