package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/satchel/inventory"
)

var flagSkeletonFlat bool

var skeletonCmd = &cobra.Command{
	Use:   "skeleton <user-id>",
	Short: "Print a user's folder tree",
	Long: `Skeleton reads every skeleton entry of a user, with versions, and prints
the folder tree reachable from the root. Use --flat for the raw entries as
JSON, including folders the tree leaves out.`,
	Args: cobra.ExactArgs(1),
	RunE: runSkeleton,
}

func init() {
	skeletonCmd.Flags().BoolVar(&flagSkeletonFlat, "flat", false, "print entries as JSON instead of a tree")
}

func runSkeleton(cmd *cobra.Command, args []string) error {
	userID, err := parseID("user-id", args[0])
	if err != nil {
		return err
	}

	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	entries, err := s.GetSkeleton(cmd.Context(), userID)
	if err != nil {
		return err
	}
	if flagSkeletonFlat {
		return printJSON(cmd.OutOrStdout(), entries)
	}

	tree, err := inventory.BuildSkeletonTree(entries)
	if err != nil {
		return err
	}
	printTree(cmd.OutOrStdout(), tree)
	if n := len(entries) - tree.Len(); n > 0 {
		logger.Warn("skeleton has folders unreachable from the root", "userID", userID, "count", n)
	}
	return nil
}

func printTree(w io.Writer, tree *inventory.SkeletonTree) {
	tree.Root.Walk(func(n *inventory.SkeletonNode) bool {
		e := n.Entry
		fmt.Fprintf(w, "%s%s  [%s type=%d v%d]\n",
			strings.Repeat("  ", n.Depth()), e.Name, e.FolderID, e.Type, e.Version)
		return true
	})
}
