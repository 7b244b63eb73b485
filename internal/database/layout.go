package database

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout locates the store on disk:
//
//	<root>/<version>/
//	  Tables/<name>.db    record tables
//	  Blobs/<id>.bin      thumbnail blobs, one per folder
//	  Backup/             snapshot vault and ledger
type Layout struct {
	Root    string
	Version string
}

// NewLayout returns the layout rooted at root for storage format version.
func NewLayout(root, version string) Layout {
	return Layout{Root: root, Version: version}
}

// Dir is the versioned directory holding Tables and Blobs.
func (l Layout) Dir() string { return filepath.Join(l.Root, l.Version) }

func (l Layout) TablesDir() string { return filepath.Join(l.Dir(), "Tables") }
func (l Layout) BlobsDir() string  { return filepath.Join(l.Dir(), "Blobs") }
func (l Layout) BackupDir() string { return filepath.Join(l.Dir(), "Backup") }

// TablePath returns the file holding table name.
func (l Layout) TablePath(name string) string {
	return filepath.Join(l.TablesDir(), name+".db")
}

// BlobPath returns the file holding blob name.
func (l Layout) BlobPath(name string) string {
	return filepath.Join(l.BlobsDir(), name)
}

// Ensure creates the Tables, Blobs and Backup directories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.TablesDir(), l.BlobsDir(), l.BackupDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// hasTables reports whether any table file exists.
func (l Layout) hasTables() (bool, error) {
	matches, err := filepath.Glob(filepath.Join(l.TablesDir(), "*.db"))
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}
