// Package store persists per-user inventories in DynamoDB.
//
// An inventory is split across three tables so that the common reads are a
// single partition query each:
//
//   - skeleton (user_id, folder_id): one row per folder holding its name,
//     type, level and parent. The only record of the hierarchy.
//   - folder_contents (folder_id, item_id): one partition per folder holding
//     its items plus an attribute row, keyed by [AttributeRowID], with the
//     folder's own name, type, owner and creation date.
//   - folder_version (user_id, folder_id): a change counter per folder.
//
// # Consistency
//
// The two rows that must agree on whether a folder exists, its skeleton
// entry and its attribute row, are always written in one transaction.
// Version counters are bumped afterwards with an atomic ADD that is never
// retried, so a counter may lag a write that already landed but is never
// decremented. Readers should treat versions as a change hint.
//
// All reads are strongly consistent.
//
// # Configuration
//
// Use [DefaultConfig] for the standard table names:
//
//	client, err := store.NewClient(ctx, store.Endpoint{Region: "eu-west-1"})
//	s := store.New(client, store.DefaultConfig())
//
// # Errors
//
// Lookups of missing folders and items return nil with a nil error.
// Rejected mutations return an [*inventory.StructureError]. Failures of the
// store itself are wrapped with:
//
//   - [ErrConnectivity] - the store could not be reached or timed out
//   - [ErrConsistency] - the store could not apply the request consistently
package store
