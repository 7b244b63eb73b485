package pcat

import (
	"time"

	"pcat-go/internal/model"
)

// Store is the persistence boundary the CatalogCache writes through.
// Records are opaque encoded rows; typing happens on the caller's side.
type Store interface {
	// ReadRecords returns the rows of a table. A missing table yields no rows.
	// A table whose header does not parse yields ErrCorruptTable.
	ReadRecords(table string) ([][]byte, error)

	// RecoverRecords returns the rows of a table as held by the latest snapshot.
	RecoverRecords(table string) ([][]byte, error)

	// WriteRecords atomically replaces the rows of a table.
	WriteRecords(table string, records [][]byte) error

	// ReadBlob returns the entries of a named blob. A missing blob yields an
	// empty map; an undecodable one yields ErrCorruptBlob.
	ReadBlob(name string) (map[string][]byte, error)

	// WriteBlob atomically replaces a named blob.
	WriteBlob(name string, entries map[string][]byte) error

	// DeleteBlob removes a named blob if present.
	DeleteBlob(name string) error

	// MarkDirty registers write as the pending persistence action for key.
	// A later mark for the same key replaces the earlier one.
	MarkDirty(key string, write func() error)

	// HasChanges reports whether any key is dirty.
	HasChanges() bool

	// FlushKey runs and clears the pending action for key, if any.
	FlushKey(key string) error

	// Flush runs every pending action and then gives the backup engine a
	// chance to snapshot. With nothing dirty it does no I/O.
	Flush() error

	// BackupHistory lists the most recent snapshots, newest first.
	BackupHistory(limit int) ([]*model.BackupRecord, error)
}

// BackupEngine snapshots the store directory into a vault and restores it.
type BackupEngine interface {
	// Snapshot archives sourceRoot and returns the new snapshot's ID.
	Snapshot(sourceRoot string) (string, error)

	// RestoreLatest extracts the newest snapshot into destinationRoot.
	// It returns false when no snapshot exists.
	RestoreLatest(destinationRoot string) (bool, error)

	// ShouldSnapshot reports whether enough time has passed since the last snapshot.
	ShouldSnapshot(now time.Time) (bool, error)

	// History lists the most recent snapshots, newest first. limit <= 0 lists all.
	History(limit int) ([]*model.BackupRecord, error)
}

// BackupLedger records which snapshots exist in the vault.
type BackupLedger interface {
	RecordBackup(rec *model.BackupRecord) error
	ListBackups(limit int) ([]*model.BackupRecord, error)
	DeleteBackup(id string) error
	Close() error
}
