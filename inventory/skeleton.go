package inventory

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// SkeletonNode is one folder in a tree built from a skeleton.
type SkeletonNode struct {
	Entry SkeletonEntry

	// Parent is nil for the root.
	Parent *SkeletonNode

	// Children is ordered by name, then folder ID.
	Children []*SkeletonNode
}

// IsRoot reports whether n is the top of its tree.
func (n *SkeletonNode) IsRoot() bool {
	return n.Parent == nil
}

// Depth returns the number of ancestors of n.
func (n *SkeletonNode) Depth() int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning false from fn skips the visited node's children.
func (n *SkeletonNode) Walk(fn func(*SkeletonNode) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// SkeletonTree is the hierarchy reachable from a user's root folder.
type SkeletonTree struct {
	Root  *SkeletonNode
	index map[uuid.UUID]*SkeletonNode
}

// Lookup returns the node for folderID if it is connected to the root.
func (t *SkeletonTree) Lookup(folderID uuid.UUID) (*SkeletonNode, bool) {
	n, ok := t.index[folderID]
	return n, ok
}

// Len returns the number of nodes connected to the root.
func (t *SkeletonTree) Len() int {
	return len(t.index)
}

// BuildSkeletonTree assembles entries into a tree rooted at the single entry
// with Level Root. Entries whose parent chain never reaches the root
// (orphans and cycles) are left out, so the tree may hold fewer nodes than
// entries were given.
func BuildSkeletonTree(entries []SkeletonEntry) (*SkeletonTree, error) {
	var root *SkeletonEntry
	for i := range entries {
		if entries[i].Level != Root {
			continue
		}
		if root != nil {
			return nil, &StructureError{Op: "build skeleton", Err: ErrMultipleRoots}
		}
		root = &entries[i]
	}
	if root == nil {
		return nil, &StructureError{Op: "build skeleton", Err: ErrNoRoot}
	}

	byParent := ChildIndex(entries)
	tree := &SkeletonTree{
		Root:  &SkeletonNode{Entry: *root},
		index: make(map[uuid.UUID]*SkeletonNode, len(entries)),
	}
	tree.index[root.FolderID] = tree.Root

	// Breadth-first from the root; a folder already indexed is never
	// attached twice, which also breaks any cycle through the root.
	queue := []*SkeletonNode{tree.Root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, child := range byParent[node.Entry.FolderID] {
			if _, seen := tree.index[child.FolderID]; seen {
				continue
			}
			n := &SkeletonNode{Entry: child, Parent: node}
			tree.index[child.FolderID] = n
			node.Children = append(node.Children, n)
			queue = append(queue, n)
		}
	}

	return tree, nil
}

// ChildIndex groups entries by their parent folder, each group ordered by
// name, then folder ID.
func ChildIndex(entries []SkeletonEntry) map[uuid.UUID][]SkeletonEntry {
	byParent := make(map[uuid.UUID][]SkeletonEntry)
	for _, e := range entries {
		byParent[e.ParentID] = append(byParent[e.ParentID], e)
	}
	for _, children := range byParent {
		sort.Slice(children, func(i, j int) bool {
			if children[i].Name != children[j].Name {
				return children[i].Name < children[j].Name
			}
			return bytes.Compare(children[i].FolderID[:], children[j].FolderID[:]) < 0
		})
	}
	return byParent
}

// Descendants returns every folder below folderID in byParent, deepest
// first, so the result can be removed in order without ever leaving a
// child whose parent is already gone. folderID itself is not included.
func Descendants(byParent map[uuid.UUID][]SkeletonEntry, folderID uuid.UUID) []SkeletonEntry {
	seen := map[uuid.UUID]bool{folderID: true}
	var out []SkeletonEntry

	var visit func(id uuid.UUID)
	visit = func(id uuid.UUID) {
		for _, child := range byParent[id] {
			if seen[child.FolderID] {
				continue
			}
			seen[child.FolderID] = true
			visit(child.FolderID)
			out = append(out, child)
		}
	}
	visit(folderID)

	return out
}

// IsDescendant reports whether folderID lies strictly below ancestorID.
func IsDescendant(byParent map[uuid.UUID][]SkeletonEntry, ancestorID, folderID uuid.UUID) bool {
	for _, d := range Descendants(byParent, ancestorID) {
		if d.FolderID == folderID {
			return true
		}
	}
	return false
}
