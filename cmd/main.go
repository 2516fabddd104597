package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "chatterbox",
		Short:         "Realtime presence, unread and connection gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(buildServeCmd(), buildTokenCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Long: `Start the WebSocket gateway, the presence sweeper and the event stream worker.

Configuration comes from the environment (and a .env file when present).
Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func buildTokenCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Example: `  # Token for identity "alice"
  chatterbox token --sub alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, subject)
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "Identity id to put in the token subject")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
