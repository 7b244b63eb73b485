package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pcat-go/internal/backup"
	"pcat-go/internal/config"
	"pcat-go/internal/database"
	"pcat-go/internal/encryption"
	"pcat-go/internal/fs"
	"pcat-go/internal/importer"
	"pcat-go/internal/ledger"
	"pcat-go/internal/model"
	"pcat-go/internal/pcat"
	"pcat-go/internal/thumbnail"
)

// Unlocker returns the passphrase of the backup private key. It is asked
// for only when an encrypted snapshot has to be restored.
type Unlocker func() (string, error)

// PCatApp is the application layer between the CLI and the catalog.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and flushes and closes everything on Close.
type PCatApp struct {
	cfg       *config.Config
	layout    database.Layout
	db        *database.Database
	engine    *backup.Engine
	ledger    *ledger.SQLiteLedger
	encryptor pcat.Encryptor
	catalog   *pcat.CatalogCache
	finder    *fs.Finder
	importer  *importer.Importer
	logger    pcat.Logger
	op        *Operation
	logFile   *os.File
	unlock    Unlocker
	unlocked  bool
}

// NewPCatApp creates a fully wired PCatApp from the given config and loads
// the catalog. When the store is empty the latest backup is restored
// first; unlock may be nil if no encrypted backup needs restoring.
// The caller must call Close when done.
func NewPCatApp(cfg *config.Config, op *Operation, unlock Unlocker) (*PCatApp, error) {
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	sl, logFile, err := newLogger(cfg.LogDir, op.ID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	a := &PCatApp{
		cfg:     cfg,
		layout:  database.NewLayout(cfg.DataRoot, cfg.Catalog.FormatVersion),
		finder:  fs.NewFinder(cfg.Filesystem.Ignore, cfg.DataRoot, cfg.LogDir),
		logger:  logger,
		op:      op,
		logFile: logFile,
		unlock:  unlock,
	}
	if err := a.open(); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *PCatApp) open() error {
	if err := a.layout.Ensure(); err != nil {
		return err
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	clock, idgen := pcat.RealClock{}, pcat.UUIDGenerator{}
	a.engine, a.ledger, err = backup.NewEngineFromConfig(a.cfg, a.layout.BackupDir(), enc, a.logger, clock, idgen)
	if err != nil {
		return fmt.Errorf("creating backup engine: %w", err)
	}
	a.engine.SetReason(a.op.Reason())

	a.db, err = database.Open(a.layout, a.engine, a.logger, clock)
	if errors.Is(err, pcat.ErrLocked) && a.unlock != nil {
		if err = a.unlockBackups(); err == nil {
			a.db, err = database.Open(a.layout, a.engine, a.logger, clock)
		}
	}
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	a.catalog, err = pcat.New(a.db, pcat.Options{
		BatchSize:              a.cfg.Catalog.BatchSize,
		ThumbnailCacheCapacity: a.cfg.Catalog.ThumbnailCacheCapacity,
		Decoder:                thumbnail.Decoder{},
		Logger:                 a.logger,
		IDGenerator:            idgen,
	})
	if err != nil {
		return fmt.Errorf("creating catalog: %w", err)
	}
	if err := a.catalog.Load(); err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	generator := thumbnail.NewGenerator(a.cfg.Catalog.ThumbnailMaxWidth, a.cfg.Catalog.ThumbnailMaxHeight)
	a.importer = importer.New(a.catalog, a.finder, generator, a.logger, clock, 0)
	return nil
}

func (a *PCatApp) unlockBackups() error {
	if a.unlocked {
		return nil
	}
	if a.unlock == nil {
		return fmt.Errorf("backup is encrypted: %w", pcat.ErrLocked)
	}
	pass, err := a.unlock()
	if err != nil {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	if err := a.engine.Unlock(pass); err != nil {
		return err
	}
	a.unlocked = true
	return nil
}

// Catalog returns the loaded catalog.
func (a *PCatApp) Catalog() *pcat.CatalogCache { return a.catalog }

// Layout returns the on-disk layout of the store.
func (a *PCatApp) Layout() database.Layout { return a.layout }

// AddFolder resolves the given path and registers it in the catalog.
func (a *PCatApp) AddFolder(rawPath string) (*model.Folder, error) {
	p, err := fs.ResolveDir(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.catalog.AddFolder(p)
}

// Folders returns the catalogued folders ordered by path.
func (a *PCatApp) Folders() []*model.Folder {
	return a.catalog.GetFolders()
}

// DeleteFolder removes a folder, its assets and its thumbnails. The path
// need not exist on disk.
func (a *PCatApp) DeleteFolder(rawPath string) (bool, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}
	return a.catalog.DeleteFolder(p)
}

// Assets returns the assets of one folder, or of the whole catalog when
// rawPath is empty.
func (a *PCatApp) Assets(rawPath string) ([]*model.Asset, error) {
	if rawPath == "" {
		return a.catalog.GetAssets(), nil
	}
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.catalog.GetAssetsByPath(p), nil
}

// DeleteAsset removes the asset at rawPath from the catalog. The file
// itself is left alone.
func (a *PCatApp) DeleteAsset(rawPath string) (bool, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}
	return a.catalog.DeleteAsset(filepath.Dir(p), filepath.Base(p))
}

// Import catalogs the images under rawPath.
func (a *PCatApp) Import(ctx context.Context, rawPath string, recursive bool) (*importer.Report, error) {
	return a.importer.ImportFolder(ctx, rawPath, recursive)
}

// MissingThumbnails returns the assets of a folder (or of every folder
// when rawPath is empty) that have no stored thumbnail.
func (a *PCatApp) MissingThumbnails(rawPath string) ([]*model.Asset, error) {
	assets, err := a.Assets(rawPath)
	if err != nil {
		return nil, err
	}
	var missing []*model.Asset
	for _, asset := range assets {
		if !a.catalog.ContainsThumbnail(asset.Folder.Path, asset.FileName) {
			missing = append(missing, asset)
		}
	}
	return missing, nil
}

// SyncConfiguration returns the stored sync definitions.
func (a *PCatApp) SyncConfiguration() model.SyncAssetsConfiguration {
	return a.catalog.GetSyncAssetsConfiguration()
}

// AddSyncDefinition appends a definition to the sync configuration.
func (a *PCatApp) AddSyncDefinition(def model.SyncAssetsDirectoriesDefinition) error {
	cfg := a.catalog.GetSyncAssetsConfiguration()
	cfg.Definitions = append(cfg.Definitions, def)
	return a.catalog.SaveSyncAssetsConfiguration(cfg)
}

// ClearSyncDefinitions removes every sync definition.
func (a *PCatApp) ClearSyncDefinitions() error {
	return a.catalog.SaveSyncAssetsConfiguration(model.SyncAssetsConfiguration{})
}

// RecentTargetPaths returns the recent target paths, most recent first.
func (a *PCatApp) RecentTargetPaths() []string {
	return a.catalog.GetRecentTargetPaths()
}

// AddRecentTargetPath records rawPath as the most recent target.
func (a *PCatApp) AddRecentTargetPath(rawPath string) error {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	return a.catalog.AddRecentTargetPath(p)
}

// Duplicates returns groups of assets sharing a content hash.
func (a *PCatApp) Duplicates() [][]*model.Asset {
	return a.catalog.FindDuplicates()
}

// Flush persists every pending change.
func (a *PCatApp) Flush() error {
	return a.catalog.Save()
}

// CreateBackup flushes pending changes and takes a snapshot regardless of
// the minimum interval.
func (a *PCatApp) CreateBackup() (string, error) {
	if err := a.catalog.Save(); err != nil {
		return "", err
	}
	return a.engine.Snapshot(a.layout.Dir())
}

// Backups returns up to limit snapshots, newest first. limit <= 0 means all.
func (a *PCatApp) Backups(limit int) ([]*model.BackupRecord, error) {
	return a.catalog.BackupHistory(limit)
}

// RestoreBackup replaces the store's tables and blobs with the snapshot
// id and reloads the catalog. Pending changes are saved first so the
// state being replaced is itself backed up.
func (a *PCatApp) RestoreBackup(id string) error {
	if err := a.catalog.Save(); err != nil {
		return err
	}
	recs, err := a.engine.History(0)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.ID == id && rec.Encrypted {
			if err := a.unlockBackups(); err != nil {
				return err
			}
		}
	}

	staging, err := os.MkdirTemp(a.layout.Root, ".restore-")
	if err != nil {
		return fmt.Errorf("creating restore directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := a.engine.Restore(id, staging); err != nil {
		return err
	}
	if err := replaceDir(filepath.Join(staging, "Tables"), a.layout.TablesDir()); err != nil {
		return err
	}
	if err := replaceDir(filepath.Join(staging, "Blobs"), a.layout.BlobsDir()); err != nil {
		return err
	}
	if err := a.catalog.Load(); err != nil {
		return fmt.Errorf("reloading catalog: %w", err)
	}
	a.logger.Info("catalog restored", "id", id)
	return nil
}

// replaceDir moves src over dst. A missing src leaves an empty dst.
func replaceDir(src, dst string) error {
	old := dst + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("clearing %s: %w", old, err)
	}
	if err := os.Rename(dst, old); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("moving %s aside: %w", dst, err)
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		if err := os.MkdirAll(dst, 0755); err != nil {
			return err
		}
	} else if err := os.Rename(src, dst); err != nil {
		os.Rename(old, dst)
		return fmt.Errorf("installing %s: %w", dst, err)
	}
	return os.RemoveAll(old)
}

// Close saves the catalog and closes all resources.
func (a *PCatApp) Close() error {
	var errs []error
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing catalog: %w", err))
		}
	}
	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

func (a *PCatApp) closeResources() error {
	var err error
	if a.ledger != nil {
		if cerr := a.ledger.Close(); cerr != nil {
			err = fmt.Errorf("closing ledger: %w", cerr)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}
