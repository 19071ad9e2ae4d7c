package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "manage pairing sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "list your live sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, _ := connect(cmd)

		list, err := client.ListSessions(ctx)
		if err != nil {
			return err
		}

		table := newTable("Key", "Device", "Last Active", "Expires")
		for _, s := range list.Sessions {
			name, _ := s.DeviceInfo["name"].(string)
			table.Append([]string{
				s.SessionKey,
				name,
				s.LastActive.Local().Format(timeLayout),
				s.ExpiresAt.Local().Format(timeLayout),
			})
		}
		table.Render()
		return nil
	},
}

var sessionsValidateCmd = &cobra.Command{
	Use:   "validate session-key",
	Short: "check whether a session key is usable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, _ := connect(cmd)

		v, err := client.ValidateSession(ctx, args[0])
		if err != nil {
			return err
		}
		if !v.Valid {
			return fmt.Errorf("session %s is invalid or expired", args[0])
		}

		fmt.Printf("valid, owned by %s", v.UserID)
		if v.ExpiresAt != nil {
			fmt.Printf(", expires %s", v.ExpiresAt.Local().Format(timeLayout))
		}
		fmt.Println()
		return nil
	},
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "delete your expired sessions and transfers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, _ := connect(cmd)

		res, err := client.Cleanup(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d sessions and %d transfers\n", res.DeletedSessions, res.DeletedTransfers)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsValidateCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
}
