package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jacentio/satchel/inventory"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Read and modify folders",
}

var (
	flagFolderAttributesOnly bool

	flagCreateOwner  string
	flagCreateParent string
	flagCreateName   string
	flagCreateType   int
	flagCreateLevel  string

	flagPurgeContents bool
)

var folderGetCmd = &cobra.Command{
	Use:   "get <folder-id>",
	Short: "Print a folder and its items as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runFolderGet,
}

var folderCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a folder",
	Long: `Create writes a new folder and prints its id.

Example:
  satchel folder create --owner <user-id> --name "My Inventory" --type 8 --level root
  satchel folder create --owner <user-id> --parent <folder-id> --name Objects --type 6`,
	Args: cobra.NoArgs,
	RunE: runFolderCreate,
}

var folderPurgeCmd = &cobra.Command{
	Use:   "purge <owner-id> <folder-id>",
	Short: "Delete a folder with everything below it",
	Long: `Purge deletes the folder, its items and every descendant folder.
With --contents the folder itself is kept and only emptied.`,
	Args: cobra.ExactArgs(2),
	RunE: runFolderPurge,
}

func init() {
	folderGetCmd.Flags().BoolVar(&flagFolderAttributesOnly, "attributes", false, "read only the folder's attributes")

	folderCreateCmd.Flags().StringVar(&flagCreateOwner, "owner", "", "owner user id (required)")
	folderCreateCmd.Flags().StringVar(&flagCreateParent, "parent", "", "parent folder id")
	folderCreateCmd.Flags().StringVar(&flagCreateName, "name", "", "folder name (required)")
	folderCreateCmd.Flags().IntVar(&flagCreateType, "type", -1, "folder content type")
	folderCreateCmd.Flags().StringVar(&flagCreateLevel, "level", "", "root, top-level or leaf (default: top-level under a root parent)")
	_ = folderCreateCmd.MarkFlagRequired("owner")
	_ = folderCreateCmd.MarkFlagRequired("name")

	folderPurgeCmd.Flags().BoolVar(&flagPurgeContents, "contents", false, "empty the folder but keep it")

	folderCmd.AddCommand(folderGetCmd)
	folderCmd.AddCommand(folderCreateCmd)
	folderCmd.AddCommand(folderPurgeCmd)
}

func runFolderGet(cmd *cobra.Command, args []string) error {
	folderID, err := parseID("folder-id", args[0])
	if err != nil {
		return err
	}

	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}

	var folder *inventory.Folder
	if flagFolderAttributesOnly {
		folder, err = s.GetFolderAttributes(cmd.Context(), folderID)
	} else {
		folder, err = s.GetFolder(cmd.Context(), folderID)
	}
	if err != nil {
		return err
	}
	if folder == nil {
		return fmt.Errorf("folder %s not found", folderID)
	}
	return printJSON(cmd.OutOrStdout(), folder)
}

func runFolderCreate(cmd *cobra.Command, args []string) error {
	ownerID, err := parseID("owner", flagCreateOwner)
	if err != nil {
		return err
	}
	var parentID uuid.UUID
	if flagCreateParent != "" {
		if parentID, err = parseID("parent", flagCreateParent); err != nil {
			return err
		}
	}

	level, err := resolveLevel(flagCreateLevel, parentID)
	if err != nil {
		return err
	}

	folder := inventory.Folder{
		FolderID:     uuid.New(),
		OwnerID:      ownerID,
		ParentID:     parentID,
		Name:         flagCreateName,
		Type:         flagCreateType,
		Level:        level,
		CreationDate: time.Now().Unix(),
	}

	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	if err := s.CreateFolder(cmd.Context(), folder); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), folder.FolderID)
	return nil
}

func runFolderPurge(cmd *cobra.Command, args []string) error {
	ownerID, err := parseID("owner-id", args[0])
	if err != nil {
		return err
	}
	folderID, err := parseID("folder-id", args[1])
	if err != nil {
		return err
	}

	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}

	folder := inventory.Folder{FolderID: folderID, OwnerID: ownerID}
	if flagPurgeContents {
		return s.PurgeFolderContents(cmd.Context(), folder)
	}
	return s.PurgeFolder(cmd.Context(), folder)
}
