package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pcat-go/internal/ledger/migrations"
	"pcat-go/internal/model"
	"pcat-go/internal/pcat"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteLedger records backup snapshots in a SQLite database.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

// NewSQLiteLedger opens the ledger at path, migrating it to the latest schema.
// path can be a file path or ":memory:" for an in-memory ledger.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}
	return &SQLiteLedger{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every pooled connection to ":memory:" would see its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// RecordBackup inserts a snapshot record.
func (l *SQLiteLedger) RecordBackup(rec *model.BackupRecord) error {
	_, err := l.db.ExecContext(context.Background(),
		`INSERT INTO backups (id, object, created_at, files, size, checksum, encrypted, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Object, rec.CreatedAt.UTC(), rec.Files, rec.Size, rec.Checksum, rec.Encrypted, rec.Reason)
	if err != nil {
		return fmt.Errorf("recording backup %s: %w", rec.ID, err)
	}
	return nil
}

// ListBackups returns snapshot records newest first. limit <= 0 returns all.
func (l *SQLiteLedger) ListBackups(limit int) ([]*model.BackupRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(context.Background(),
		`SELECT id, object, created_at, files, size, checksum, encrypted, reason
		 FROM backups ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	defer rows.Close()

	var out []*model.BackupRecord
	for rows.Next() {
		var rec model.BackupRecord
		var created time.Time
		if err := rows.Scan(&rec.ID, &rec.Object, &created, &rec.Files, &rec.Size, &rec.Checksum, &rec.Encrypted, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scanning backup: %w", err)
		}
		rec.CreatedAt = created.UTC()
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	return out, nil
}

// FindBackup returns the record with id, or nil if none exists.
func (l *SQLiteLedger) FindBackup(id string) (*model.BackupRecord, error) {
	var rec model.BackupRecord
	var created time.Time
	err := l.db.QueryRowContext(context.Background(),
		`SELECT id, object, created_at, files, size, checksum, encrypted, reason
		 FROM backups WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Object, &created, &rec.Files, &rec.Size, &rec.Checksum, &rec.Encrypted, &rec.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding backup %s: %w", id, err)
	}
	rec.CreatedAt = created.UTC()
	return &rec, nil
}

// DeleteBackup removes a snapshot record. Deleting a missing record is not an error.
func (l *SQLiteLedger) DeleteBackup(id string) error {
	if _, err := l.db.ExecContext(context.Background(), `DELETE FROM backups WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting backup %s: %w", id, err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory ledgers).
func (l *SQLiteLedger) Path() string {
	return l.path
}

// CheckMigrations verifies the ledger schema is up-to-date.
func (l *SQLiteLedger) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(l.db)
}

// BackupTo creates a complete copy of the ledger at destPath using VACUUM INTO.
func (l *SQLiteLedger) BackupTo(destPath string) error {
	if _, err := l.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up ledger: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

var _ pcat.BackupLedger = (*SQLiteLedger)(nil)
