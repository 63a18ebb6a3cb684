package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	serverrun "github.com/Austin-rgb/messages/internal/cmd/server"
)

func main() {
	// a local .env is a development convenience; absence is not an error
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "messages",
		Short: "Messaging server CLI",
		Long:  "messages is a real-time messaging backend: durable event log, fan-out delivery, and SQLite persistence in one binary.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the messaging server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := serverrun.Options{}
			opts.ConfigPath, _ = cmd.Flags().GetString("config")
			opts.DataDir, _ = cmd.Flags().GetString("data-dir")
			opts.HTTPAddr, _ = cmd.Flags().GetString("http")
			opts.Fsync, _ = cmd.Flags().GetString("fsync")
			opts.LogLevel, _ = cmd.Flags().GetString("log-level")
			return serverrun.Run(context.Background(), opts)
		},
	}
	serverStartCmd.Flags().String("config", "", "path to config file")
	serverStartCmd.Flags().String("data-dir", "", "data directory (default ~/.messages)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("fsync", "", "event log fsync mode: always|interval|never")
	serverStartCmd.Flags().String("log-level", "", "log level: debug|info|warn|error")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
