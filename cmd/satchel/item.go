package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var flagItemFolder string

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Read items",
}

var itemGetCmd = &cobra.Command{
	Use:   "get <user-id> <item-id>",
	Short: "Print an item as JSON",
	Long: `Get looks the item up in --folder first when given, and otherwise
searches every folder of the user.`,
	Args: cobra.ExactArgs(2),
	RunE: runItemGet,
}

func init() {
	itemGetCmd.Flags().StringVar(&flagItemFolder, "folder", "", "folder expected to hold the item")
	itemCmd.AddCommand(itemGetCmd)
}

func runItemGet(cmd *cobra.Command, args []string) error {
	userID, err := parseID("user-id", args[0])
	if err != nil {
		return err
	}
	itemID, err := parseID("item-id", args[1])
	if err != nil {
		return err
	}
	var hint uuid.UUID
	if flagItemFolder != "" {
		if hint, err = parseID("folder", flagItemFolder); err != nil {
			return err
		}
	}

	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	item, err := s.GetItem(cmd.Context(), userID, itemID, hint)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %s not found", itemID)
	}
	return printJSON(cmd.OutOrStdout(), item)
}
