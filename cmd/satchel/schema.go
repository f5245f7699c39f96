package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/satchel/schema"
	"github.com/jacentio/satchel/store"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the inventory tables",
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create any missing inventory tables",
	Long: `Apply creates the skeleton, folder_contents and folder_version tables
under their configured names. Tables that already exist are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runSchemaApply,
}

func init() {
	schemaCmd.AddCommand(schemaApplyCmd)
}

func runSchemaApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tables, err := schema.Default()
	if err != nil {
		return err
	}
	client, err := store.NewClient(ctx, cfg.Endpoint())
	if err != nil {
		return err
	}

	names := cfg.StoreConfig().Tables()
	if err := schema.Ensure(ctx, client, tables, names, logger); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, t := range tables {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Name, names[t.Name])
	}
	return nil
}
