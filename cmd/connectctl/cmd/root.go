package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lyzr/connected/common/clients"
	"github.com/lyzr/connected/common/logger"
)

var (
	flagURL      string
	flagUser     string
	flagToken    string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:          "connectctl",
	Short:        "share text, code and files between paired devices",
	Long:         `connectctl talks to a connected server: upload files, send snippets, pair devices and watch transfers as they arrive`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "server base URL (default $CONNECTED_URL)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "user id sent as X-User-ID (default $CONNECTED_USER)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token (default $CONNECTED_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "client log level")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(transfersCmd)
	rootCmd.AddCommand(watchCmd)
}

// clientConfig merges flags over the environment
func clientConfig() *clients.ClientConfig {
	cfg := clients.LoadClientConfig()
	if flagURL != "" {
		cfg.BaseURL = strings.TrimRight(flagURL, "/")
	}
	if flagUser != "" {
		cfg.UserID = flagUser
	}
	if flagToken != "" {
		cfg.Token = flagToken
	}
	return cfg
}

// connect builds an API client and a context carrying the caller identity
func connect(cmd *cobra.Command) (*clients.ConnectedClient, context.Context, *logger.Logger) {
	cfg := clientConfig()
	log := logger.New(flagLogLevel, "text")
	client := clients.NewConnectedClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout}, log)
	return client, cfg.Context(cmd.Context()), log
}
