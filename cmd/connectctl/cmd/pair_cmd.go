package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/lyzr/connected/common/device"
)

var pairName string

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "create a pairing session",
	Long:  `create a pairing session for this device and print the key other devices join with`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, _ := connect(cmd)

		info := device.Capture()
		if pairName != "" {
			info.Name = pairName
		}

		session, err := client.CreateSession(ctx, info.Descriptor())
		if err != nil {
			return err
		}

		fmt.Printf("session key: %s\n", session.SessionKey)
		fmt.Printf("expires:     %s\n", session.ExpiresAt.Local().Format("2006-01-02 15:04"))
		fmt.Printf("link:        %s/pair?key=%s\n", client.BaseURL(), url.QueryEscape(session.SessionKey))
		return nil
	},
}

func init() {
	pairCmd.Flags().StringVar(&pairName, "name", "", "device name (default: hostname)")
}
