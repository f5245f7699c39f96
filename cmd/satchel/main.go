// Package main provides the satchel CLI for inspecting and maintaining
// inventories stored in DynamoDB.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jacentio/satchel/internal/config"
	"github.com/jacentio/satchel/store"
)

var (
	// Global flag values.
	flagConfigFile string
	flagEnvFile    string

	// Set by PersistentPreRunE.
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "satchel",
	Short:         "Satchel manages per-user inventories in DynamoDB",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := config.Options{File: flagConfigFile}
		if flagEnvFile != "" {
			opts.EnvFiles = []string{flagEnvFile}
		}

		c, err := config.Load(opts)
		if err != nil {
			return err
		}
		l, err := c.Logger(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		cfg, logger = c, l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default: ./satchel.{yaml,toml,json})")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "dotenv file (default: ./.env)")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(skeletonCmd)
	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(configCmd)
}

// openStore connects to DynamoDB using the loaded configuration.
func openStore(ctx context.Context) (*store.Store, error) {
	client, err := store.NewClient(ctx, cfg.Endpoint())
	if err != nil {
		return nil, err
	}
	return store.NewWithLogger(client, cfg.StoreConfig(), logger), nil
}
