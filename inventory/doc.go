// Package inventory defines the domain types of a per-user hierarchical
// inventory: folders, the items they hold, and the flat skeleton index that
// links folders to their parents.
//
// # Hierarchy
//
// Every user owns exactly one [Root] folder. [TopLevel] folders sit directly
// under the root and carry a content-type hint ([Folder.Type]) used to pick a
// default destination for new items. Everything else is a [Leaf].
//
// The parent/child relation lives only in [SkeletonEntry.ParentID]. Use
// [BuildSkeletonTree] to turn a user's skeleton into a navigable tree.
//
// # Errors
//
// Inconsistent hierarchies and invalid inputs are reported as
// [*StructureError]; match the cause with errors.Is against the sentinels:
//
//   - [ErrNoRoot], [ErrMultipleRoots] - skeleton has no or several roots
//   - [ErrRootExists] - owner already has a root folder
//   - [ErrParentNotFound] - referenced parent folder does not exist
//   - [ErrFolderNotFound], [ErrItemNotFound] - mutation target is missing
//   - [ErrAlreadyExists] - identifier already in use
//   - [ErrCycle] - move would place a folder under itself
//   - [ErrInvalid] - input failed validation
package inventory
