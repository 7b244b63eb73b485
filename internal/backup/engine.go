package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"pcat-go/internal/model"
	"pcat-go/internal/pcat"
)

const (
	archiveSuffix   = ".tar.zst"
	encryptedSuffix = ".age"

	defaultGenerations = 2
)

// Options controls snapshot policy.
type Options struct {
	Generations int           // snapshots kept; <= 0 means the default of 2
	MinInterval time.Duration // minimum age of the newest snapshot before another is taken
	Encrypt     bool          // seal archives with the Encryptor
	Reason      string        // recorded with each snapshot, usually the CLI operation
}

// Engine snapshots the store into the primary vault, copies each snapshot
// to any mirror vaults, and keeps the ledger in step with the primary.
type Engine struct {
	vaults    []pcat.Vault
	ledger    pcat.BackupLedger
	encryptor pcat.Encryptor
	logger    pcat.Logger
	clock     pcat.Clock
	idgen     pcat.IDGenerator
	opts      Options

	mu        sync.Mutex
	decryptor pcat.DecryptionContext
}

var _ pcat.BackupEngine = (*Engine)(nil)

// NewEngine creates an Engine. vaults[0] is the primary; it must not be empty.
// encryptor may be nil when opts.Encrypt is false.
func NewEngine(vaults []pcat.Vault, ledger pcat.BackupLedger, encryptor pcat.Encryptor, logger pcat.Logger, clock pcat.Clock, idgen pcat.IDGenerator, opts Options) (*Engine, error) {
	if len(vaults) == 0 {
		return nil, fmt.Errorf("backup engine needs a vault: %w", pcat.ErrInvalidArgument)
	}
	if ledger == nil {
		return nil, fmt.Errorf("backup engine needs a ledger: %w", pcat.ErrInvalidArgument)
	}
	if opts.Encrypt && encryptor == nil {
		return nil, fmt.Errorf("encrypted backups need an encryptor: %w", pcat.ErrInvalidArgument)
	}
	if opts.Generations <= 0 {
		opts.Generations = defaultGenerations
	}
	return &Engine{
		vaults:    vaults,
		ledger:    ledger,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		opts:      opts,
	}, nil
}

// SetReason changes the reason recorded with later snapshots.
func (e *Engine) SetReason(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts.Reason = reason
}

// Unlock opens the private key so encrypted snapshots can be restored.
func (e *Engine) Unlock(passphrase string) error {
	if e.encryptor == nil {
		return fmt.Errorf("no encryptor configured")
	}
	ctx, err := e.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking backups: %w", err)
	}
	e.mu.Lock()
	e.decryptor = ctx
	e.mu.Unlock()
	return nil
}

// ShouldSnapshot reports whether the newest snapshot is at least MinInterval old.
func (e *Engine) ShouldSnapshot(now time.Time) (bool, error) {
	if e.opts.MinInterval <= 0 {
		return true, nil
	}
	latest, err := e.ledger.ListBackups(1)
	if err != nil {
		return false, err
	}
	if len(latest) == 0 {
		return true, nil
	}
	return now.Sub(latest[0].CreatedAt) >= e.opts.MinInterval, nil
}

// Snapshot archives sourceRoot, stores it in every vault, records it and
// rotates old generations.
func (e *Engine) Snapshot(sourceRoot string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().UTC()
	id := now.Format("20060102T150405Z") + "-" + e.idgen.New()
	object := id + archiveSuffix
	if e.opts.Encrypt {
		object += encryptedSuffix
	}

	tmp, files, err := e.buildArchive(sourceRoot)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	checksum, size, err := hashFile(tmp)
	if err != nil {
		return "", err
	}

	for i, v := range e.vaults {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("rewinding archive: %w", err)
		}
		if err := v.Put(object, tmp, size); err != nil {
			if i == 0 {
				return "", fmt.Errorf("storing snapshot in %s: %w", v.Name(), err)
			}
			e.logger.Warn("mirror vault failed", "vault", v.Name(), "object", object, "error", err)
			continue
		}
	}

	rec := &model.BackupRecord{
		ID:        id,
		Object:    object,
		CreatedAt: now,
		Files:     files,
		Size:      size,
		Checksum:  checksum,
		Encrypted: e.opts.Encrypt,
		Reason:    e.opts.Reason,
	}
	if err := e.ledger.RecordBackup(rec); err != nil {
		return "", err
	}
	e.logger.Info("backup created", "id", id, "files", files, "size", size)

	if err := e.rotate(); err != nil {
		return id, fmt.Errorf("rotating backups: %w", err)
	}
	return id, nil
}

// buildArchive writes the (optionally sealed) archive of root to a temp file.
func (e *Engine) buildArchive(root string) (*os.File, int, error) {
	plain, err := os.CreateTemp("", "pcat-snapshot-*")
	if err != nil {
		return nil, 0, fmt.Errorf("creating temp archive: %w", err)
	}
	files, err := writeArchive(plain, root)
	if err != nil {
		plain.Close()
		os.Remove(plain.Name())
		return nil, 0, err
	}
	if !e.opts.Encrypt {
		return plain, files, nil
	}
	defer os.Remove(plain.Name())
	defer plain.Close()

	if _, err := plain.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("rewinding archive: %w", err)
	}
	sealed, err := os.CreateTemp("", "pcat-snapshot-*.age")
	if err != nil {
		return nil, 0, fmt.Errorf("creating temp archive: %w", err)
	}
	if err := e.encryptor.Encrypt(plain, sealed); err != nil {
		sealed.Close()
		os.Remove(sealed.Name())
		return nil, 0, fmt.Errorf("encrypting archive: %w", err)
	}
	return sealed, files, nil
}

// Rotate deletes snapshots beyond the configured number of generations.
func (e *Engine) Rotate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotate()
}

func (e *Engine) rotate() error {
	recs, err := e.ledger.ListBackups(0)
	if err != nil {
		return err
	}
	if len(recs) <= e.opts.Generations {
		return nil
	}
	for _, rec := range recs[e.opts.Generations:] {
		if err := e.vaults[0].Delete(rec.Object); err != nil {
			return fmt.Errorf("deleting %s: %w", rec.Object, err)
		}
		for _, v := range e.vaults[1:] {
			if err := v.Delete(rec.Object); err != nil {
				e.logger.Warn("mirror vault delete failed", "vault", v.Name(), "object", rec.Object, "error", err)
			}
		}
		if err := e.ledger.DeleteBackup(rec.ID); err != nil {
			return err
		}
		e.logger.Info("backup rotated out", "id", rec.ID)
	}
	return nil
}

// History lists snapshots newest first. limit <= 0 lists all.
func (e *Engine) History(limit int) ([]*model.BackupRecord, error) {
	return e.ledger.ListBackups(limit)
}

// RestoreLatest extracts the newest snapshot into destinationRoot. When
// the ledger is empty the primary vault's listing is used instead, in
// which case the checksum cannot be verified.
func (e *Engine) RestoreLatest(destinationRoot string) (bool, error) {
	recs, err := e.ledger.ListBackups(1)
	if err != nil {
		return false, err
	}
	var rec *model.BackupRecord
	if len(recs) > 0 {
		rec = recs[0]
	} else {
		rec, err = e.latestFromVault()
		if err != nil {
			return false, err
		}
	}
	if rec == nil {
		return false, nil
	}
	if err := e.restore(rec, destinationRoot); err != nil {
		return false, err
	}
	return true, nil
}

// Restore extracts the snapshot with the given ID into destinationRoot.
func (e *Engine) Restore(id, destinationRoot string) error {
	recs, err := e.ledger.ListBackups(0)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.ID == id {
			return e.restore(rec, destinationRoot)
		}
	}
	return fmt.Errorf("backup %s: %w", id, pcat.ErrNoBackup)
}

func (e *Engine) latestFromVault() (*model.BackupRecord, error) {
	names, err := e.vaults[0].List()
	if err != nil {
		return nil, fmt.Errorf("listing vault: %w", err)
	}
	// IDs begin with a UTC timestamp, so lexical order is chronological.
	names = slices.DeleteFunc(names, func(n string) bool { return !isArchiveName(n) })
	if len(names) == 0 {
		return nil, nil
	}
	object := names[len(names)-1]
	return &model.BackupRecord{
		ID:        strings.TrimSuffix(strings.TrimSuffix(object, encryptedSuffix), archiveSuffix),
		Object:    object,
		Encrypted: strings.HasSuffix(object, encryptedSuffix),
	}, nil
}

func (e *Engine) restore(rec *model.BackupRecord, dest string) error {
	tmp, err := os.CreateTemp("", "pcat-restore-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := e.vaults[0].Get(rec.Object, tmp); err != nil {
		return fmt.Errorf("fetching %s: %w", rec.Object, err)
	}
	if rec.Checksum != "" {
		got, _, err := hashFile(tmp)
		if err != nil {
			return err
		}
		if got != rec.Checksum {
			return fmt.Errorf("backup %s checksum mismatch: got %s, want %s", rec.ID, got, rec.Checksum)
		}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding archive: %w", err)
	}

	var r io.Reader = tmp
	if rec.Encrypted {
		e.mu.Lock()
		dec := e.decryptor
		e.mu.Unlock()
		if dec == nil {
			return fmt.Errorf("backup %s: %w", rec.ID, pcat.ErrLocked)
		}
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(dec.Decrypt(tmp, pw))
		}()
		defer pr.Close()
		r = pr
	}

	files, err := extractArchive(r, dest)
	if err != nil {
		return fmt.Errorf("restoring backup %s: %w", rec.ID, err)
	}
	e.logger.Info("backup restored", "id", rec.ID, "files", files, "dest", dest)
	return nil
}

func isArchiveName(name string) bool {
	return strings.HasSuffix(name, archiveSuffix) || strings.HasSuffix(name, archiveSuffix+encryptedSuffix)
}

// hashFile returns the SHA-256 and size of f's contents, reading from the start.
func hashFile(f *os.File) (string, int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", 0, fmt.Errorf("rewinding archive: %w", err)
	}
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing archive: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
