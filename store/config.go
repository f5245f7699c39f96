package store

import "time"

// Logical table names used by the schema definition.
const (
	SkeletonTableKey = "skeleton"
	ContentTableKey  = "folder_contents"
	VersionTableKey  = "folder_version"
)

// Config holds configuration for the Store.
type Config struct {
	// SkeletonTable holds one row per (user_id, folder_id).
	// Default: "inventory_skeleton"
	SkeletonTable string

	// ContentTable holds folder partitions keyed by (folder_id, item_id).
	// Default: "inventory_folder_contents"
	ContentTable string

	// VersionTable holds folder change counters keyed by (user_id, folder_id).
	// Default: "inventory_folder_version"
	VersionTable string

	// ScatterWidth bounds the number of concurrent point reads issued when
	// GetItem has to search every folder of a user.
	// Default: 8
	// Max: 64
	ScatterWidth int

	// BatchAttempts is how many times a batch of deletes is submitted while
	// the store keeps reporting unprocessed requests.
	// Default: 3
	// Max: 10
	BatchAttempts int

	// BatchBackoff caps the jittered exponential delay before a batch with
	// unprocessed requests is resubmitted.
	// Default: 2s
	// Max: 20s
	BatchBackoff time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SkeletonTable: "inventory_skeleton",
		ContentTable:  "inventory_folder_contents",
		VersionTable:  "inventory_folder_version",
		ScatterWidth:  8,
		BatchAttempts: 3,
		BatchBackoff:  2 * time.Second,
	}
}

// Tables maps logical table names to the configured physical names.
func (c Config) Tables() map[string]string {
	return map[string]string{
		SkeletonTableKey: c.SkeletonTable,
		ContentTableKey:  c.ContentTable,
		VersionTableKey:  c.VersionTable,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	d := DefaultConfig()
	if c.SkeletonTable == "" {
		c.SkeletonTable = d.SkeletonTable
	}
	if c.ContentTable == "" {
		c.ContentTable = d.ContentTable
	}
	if c.VersionTable == "" {
		c.VersionTable = d.VersionTable
	}
	if c.ScatterWidth < 1 {
		c.ScatterWidth = d.ScatterWidth
	}
	if c.ScatterWidth > 64 {
		c.ScatterWidth = 64
	}
	if c.BatchAttempts < 1 {
		c.BatchAttempts = d.BatchAttempts
	}
	if c.BatchAttempts > 10 {
		c.BatchAttempts = 10
	}
	if c.BatchBackoff <= 0 {
		c.BatchBackoff = d.BatchBackoff
	}
	if c.BatchBackoff > 20*time.Second {
		c.BatchBackoff = 20 * time.Second
	}
}
