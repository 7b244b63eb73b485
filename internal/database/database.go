package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"pcat-go/internal/model"
	"pcat-go/internal/pcat"
)

// Database coordinates the record tables, the thumbnail blobs and the
// backup engine under one Layout. It tracks which keys are dirty and
// writes only those on Flush.
//
// Write callbacks registered with MarkDirty run on the goroutine calling
// Flush or FlushKey; the caller is responsible for any locking they need.
type Database struct {
	layout Layout
	backup pcat.BackupEngine
	logger pcat.Logger
	clock  pcat.Clock

	mu    sync.Mutex
	dirty map[string]dirtyEntry
	gen   uint64
}

type dirtyEntry struct {
	write func() error
	gen   uint64
}

// Open prepares the store directories and returns a Database. When no
// table exists yet and a backup engine is configured, the latest snapshot
// is restored first. backup may be nil.
func Open(layout Layout, backup pcat.BackupEngine, logger pcat.Logger, clock pcat.Clock) (*Database, error) {
	if layout.Root == "" || layout.Version == "" {
		return nil, fmt.Errorf("store root and version required: %w", pcat.ErrInvalidArgument)
	}
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	db := &Database{
		layout: layout,
		backup: backup,
		logger: logger,
		clock:  clock,
		dirty:  make(map[string]dirtyEntry),
	}

	if backup != nil {
		present, err := layout.hasTables()
		if err != nil {
			return nil, fmt.Errorf("checking tables: %w", err)
		}
		if !present {
			restored, err := backup.RestoreLatest(layout.Dir())
			if err != nil {
				return nil, fmt.Errorf("restoring from backup: %w", err)
			}
			if restored {
				logger.Info("restored store from latest backup", "dir", layout.Dir())
			}
		}
	}
	return db, nil
}

// Layout returns the on-disk layout.
func (db *Database) Layout() Layout { return db.layout }

// ReadRecords implements pcat.Store.
func (db *Database) ReadRecords(table string) ([][]byte, error) {
	return readRecordFile(db.layout.TablePath(table), table)
}

// WriteRecords implements pcat.Store.
func (db *Database) WriteRecords(table string, records [][]byte) error {
	for i, rec := range records {
		if slices.Contains(rec, '\n') {
			return fmt.Errorf("table %s record %d contains a newline", table, i)
		}
	}
	hdr := tableHeader{Table: table, Version: db.layout.Version, Count: len(records)}
	if err := writeRecordFile(db.layout.TablePath(table), hdr, records); err != nil {
		return fmt.Errorf("writing table %s: %w", table, err)
	}
	return nil
}

// RecoverRecords implements pcat.Store. It restores the latest snapshot
// into a scratch directory and reads the table from there.
func (db *Database) RecoverRecords(table string) ([][]byte, error) {
	if db.backup == nil {
		return nil, pcat.ErrNoBackup
	}
	scratch, err := os.MkdirTemp("", "pcat-recover-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	restored, err := db.backup.RestoreLatest(scratch)
	if err != nil {
		return nil, fmt.Errorf("restoring snapshot: %w", err)
	}
	if !restored {
		return nil, pcat.ErrNoBackup
	}
	path := filepath.Join(scratch, "Tables", table+".db")
	raw, err := readRecordFile(path, table)
	if err != nil {
		return nil, fmt.Errorf("reading recovered table %s: %w", table, err)
	}
	db.logger.Warn("recovered table from backup", "table", table, "records", len(raw))
	return raw, nil
}

// blobPath returns the file for blob name, refusing names that would
// resolve outside the Blobs directory.
func (db *Database) blobPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("blob name %q: %w", name, pcat.ErrInvalidArgument)
	}
	return db.layout.BlobPath(name), nil
}

// ReadBlob implements pcat.Store.
func (db *Database) ReadBlob(name string) (map[string][]byte, error) {
	path, err := db.blobPath(name)
	if err != nil {
		return nil, err
	}
	return readBlobFile(path)
}

// WriteBlob implements pcat.Store.
func (db *Database) WriteBlob(name string, entries map[string][]byte) error {
	path, err := db.blobPath(name)
	if err != nil {
		return err
	}
	if err := writeBlobFile(path, entries); err != nil {
		return fmt.Errorf("writing blob %s: %w", name, err)
	}
	return nil
}

// DeleteBlob implements pcat.Store.
func (db *Database) DeleteBlob(name string) error {
	path, err := db.blobPath(name)
	if err != nil {
		return err
	}
	return deleteBlobFile(path)
}

// MarkDirty implements pcat.Store.
func (db *Database) MarkDirty(key string, write func() error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.gen++
	db.dirty[key] = dirtyEntry{write: write, gen: db.gen}
}

// HasChanges implements pcat.Store.
func (db *Database) HasChanges() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.dirty) > 0
}

// FlushKey implements pcat.Store.
func (db *Database) FlushKey(key string) error {
	db.mu.Lock()
	e, ok := db.dirty[key]
	db.mu.Unlock()
	if !ok {
		return nil
	}
	if err := e.write(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	db.clear(key, e.gen)
	return nil
}

// Flush implements pcat.Store. Keys are written in sorted order; a key
// whose write fails stays dirty and the errors are joined. A snapshot is
// considered only when every write succeeded.
func (db *Database) Flush() error {
	db.mu.Lock()
	if len(db.dirty) == 0 {
		db.mu.Unlock()
		return nil
	}
	keys := make([]string, 0, len(db.dirty))
	for k := range db.dirty {
		keys = append(keys, k)
	}
	pending := make(map[string]dirtyEntry, len(keys))
	for _, k := range keys {
		pending[k] = db.dirty[k]
	}
	db.mu.Unlock()
	slices.Sort(keys)

	var errs []error
	written := 0
	for _, k := range keys {
		e := pending[k]
		if err := e.write(); err != nil {
			errs = append(errs, fmt.Errorf("writing %s: %w", k, err))
			continue
		}
		db.clear(k, e.gen)
		written++
	}
	db.logger.Debug("flushed store", "written", written, "failed", len(errs))
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return db.snapshot()
}

// clear drops key unless it was marked again after gen.
func (db *Database) clear(key string, gen uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if cur, ok := db.dirty[key]; ok && cur.gen == gen {
		delete(db.dirty, key)
	}
}

func (db *Database) snapshot() error {
	if db.backup == nil {
		return nil
	}
	due, err := db.backup.ShouldSnapshot(db.clock.Now())
	if err != nil {
		return fmt.Errorf("checking backup schedule: %w", err)
	}
	if !due {
		return nil
	}
	id, err := db.backup.Snapshot(db.layout.Dir())
	if err != nil {
		return fmt.Errorf("backing up store: %w", err)
	}
	db.logger.Info("store snapshot created", "id", id)
	return nil
}

// Close flushes anything still dirty.
func (db *Database) Close() error {
	return db.Flush()
}

// BackupHistory implements pcat.Store.
func (db *Database) BackupHistory(limit int) ([]*model.BackupRecord, error) {
	if db.backup == nil {
		return nil, nil
	}
	return db.backup.History(limit)
}

var _ pcat.Store = (*Database)(nil)
