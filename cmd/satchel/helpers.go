package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/jacentio/satchel/inventory"
)

func parseID(name, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return id, nil
}

// resolveLevel maps a --level value to a FolderLevel. Without a value, a
// folder with no parent is a root and any other folder is top-level.
func resolveLevel(s string, parentID uuid.UUID) (inventory.FolderLevel, error) {
	switch strings.ToLower(s) {
	case "":
		if parentID == uuid.Nil {
			return inventory.Root, nil
		}
		return inventory.TopLevel, nil
	case "root":
		return inventory.Root, nil
	case "top-level", "toplevel":
		return inventory.TopLevel, nil
	case "leaf":
		return inventory.Leaf, nil
	default:
		return 0, fmt.Errorf("unknown level %q (valid: root, top-level, leaf)", s)
	}
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
