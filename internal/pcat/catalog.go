package pcat

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/text/cases"

	"pcat-go/internal/model"
)

const (
	foldersKey = "table:" + model.FoldersTable
	assetsKey  = "table:" + model.AssetsTable
)

// Options configures a CatalogCache.
type Options struct {
	// BatchSize is how many added assets accumulate before an automatic
	// flush. Zero disables automatic flushing.
	BatchSize int

	// ThumbnailCacheCapacity is how many folders' thumbnail mappings stay
	// in memory. Zero disables the cache: thumbnails are written through
	// to their blob immediately and never become resident.
	ThumbnailCacheCapacity int

	Decoder     ImageDecoder
	Logger      Logger
	IDGenerator IDGenerator
}

// CatalogCache is the in-memory catalog of folders, assets, sync settings
// and recent target paths, backed by a Store. Every mutation marks the
// affected tables and blobs dirty; Save persists them.
//
// A CatalogCache is safe for concurrent use. Change notifications are
// published while the mutation still holds the lock, so subscribers see
// them in the order the mutations were applied.
type CatalogCache struct {
	store     Store
	decoder   ImageDecoder
	logger    Logger
	idgen     IDGenerator
	batchSize int
	capacity  int
	notifier  *Broadcaster

	mu            sync.RWMutex
	foldersByPath map[string]*model.Folder
	foldersByID   map[string]*model.Folder
	assets        map[string][]assetEntry // keyed by folder ID, sorted
	syncConfig    model.SyncAssetsConfiguration
	recentPaths   []string
	thumbs        *simplelru.LRU[string, *folderThumbnails] // nil when capacity is 0
	deletedBlobs  map[string]bool                           // blob deletions not yet flushed
	pending       int
}

type assetEntry struct {
	key   string // case-folded file name
	asset *model.Asset
}

func compareEntries(a, b assetEntry) int {
	return cmp.Or(strings.Compare(a.key, b.key), strings.Compare(a.asset.FileName, b.asset.FileName))
}

// sortKey folds name for case-insensitive ordering. A Caser keeps state,
// so each call gets its own.
func sortKey(name string) string {
	return cases.Fold().String(name)
}

// New creates an empty CatalogCache over store. Call Load to read the
// persisted catalog.
func New(store Store, opts Options) (*CatalogCache, error) {
	if store == nil {
		return nil, fmt.Errorf("catalog needs a store: %w", ErrInvalidArgument)
	}
	if opts.BatchSize < 0 || opts.ThumbnailCacheCapacity < 0 {
		return nil, fmt.Errorf("batch size and cache capacity must not be negative: %w", ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = NewNopLogger()
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = UUIDGenerator{}
	}

	c := &CatalogCache{
		store:     store,
		decoder:   opts.Decoder,
		logger:    opts.Logger,
		idgen:     opts.IDGenerator,
		batchSize: opts.BatchSize,
		capacity:  opts.ThumbnailCacheCapacity,
		notifier:  NewBroadcaster(),
	}
	c.reset()
	if c.capacity > 0 {
		lru, err := simplelru.NewLRU[string, *folderThumbnails](c.capacity, nil)
		if err != nil {
			return nil, fmt.Errorf("creating thumbnail cache: %w", err)
		}
		c.thumbs = lru
	}
	return c, nil
}

func (c *CatalogCache) reset() {
	c.foldersByPath = make(map[string]*model.Folder)
	c.foldersByID = make(map[string]*model.Folder)
	c.assets = make(map[string][]assetEntry)
	c.syncConfig = model.SyncAssetsConfiguration{}
	c.recentPaths = nil
	c.deletedBlobs = make(map[string]bool)
	c.pending = 0
	if c.thumbs != nil {
		c.thumbs.Purge()
	}
}

// Load replaces the in-memory state with the persisted catalog. A table
// that fails to decode is recovered from the latest snapshot and marked
// dirty so the next Save rewrites it. Assets whose folder is unknown are
// dropped.
func (c *CatalogCache) Load() error {
	folders, recFolders, err := LoadTable(c.store, c.logger, model.FoldersTable, model.DecodeFolder)
	if err != nil {
		return err
	}
	assets, recAssets, err := LoadTable(c.store, c.logger, model.AssetsTable, model.DecodeAsset)
	if err != nil {
		return err
	}
	defs, recDefs, err := LoadTable(c.store, c.logger, model.SyncDefinitionsTable, model.DecodeSyncDefinition)
	if err != nil {
		return err
	}
	recent, recRecent, err := LoadTable(c.store, c.logger, model.RecentTargetPathsTable, model.DecodeRecentPath)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()

	for _, f := range folders {
		_, dupPath := c.foldersByPath[f.Path]
		_, dupID := c.foldersByID[f.ID]
		if dupPath || dupID {
			c.logger.Warn("duplicate folder in catalog", "path", f.Path, "id", f.ID)
			recFolders = true
			continue
		}
		c.foldersByPath[f.Path] = f
		c.foldersByID[f.ID] = f
	}
	dropped := 0
	for _, a := range assets {
		f, ok := c.foldersByID[a.FolderID]
		if !ok {
			dropped++
			continue
		}
		a.Folder = f
		c.putAsset(f, a)
	}
	if dropped > 0 {
		c.logger.Warn("dropped assets with unknown folder", "count", dropped)
		recAssets = true
	}
	c.syncConfig = model.SyncAssetsConfiguration{Definitions: defs}
	c.recentPaths = recent

	if recFolders {
		c.markFolders()
	}
	if recAssets {
		c.markAssets()
	}
	if recDefs {
		c.store.MarkDirty("table:"+model.SyncDefinitionsTable, c.writeSyncDefinitions)
	}
	if recRecent {
		c.store.MarkDirty("table:"+model.RecentTargetPathsTable, c.writeRecentPaths)
	}

	c.logger.Info("catalog loaded", "folders", len(c.foldersByID), "assets", c.countAssets())
	return nil
}

// AddFolder registers path and returns its folder. An already registered
// path returns the existing folder unchanged.
func (c *CatalogCache) AddFolder(path string) (*model.Folder, error) {
	if path == "" {
		return nil, fmt.Errorf("folder path required: %w", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.foldersByPath[path]; ok {
		return f, nil
	}
	f := c.newFolder(path, "")
	c.insertFolder(f)
	c.notifier.Publish()
	return f, nil
}

// newFolder builds a folder for path without registering it. A supplied
// id is kept only when it is a free UUID; otherwise a new one is generated.
func (c *CatalogCache) newFolder(path, id string) *model.Folder {
	if parsed, err := uuid.Parse(id); err == nil {
		id = parsed.String()
	} else {
		id = ""
	}
	if _, taken := c.foldersByID[id]; id == "" || taken {
		id = c.idgen.New()
	}
	return &model.Folder{ID: id, Path: path}
}

func (c *CatalogCache) insertFolder(f *model.Folder) {
	c.foldersByPath[f.Path] = f
	c.foldersByID[f.ID] = f
	c.markFolders()
}

// FolderExists reports whether path is registered.
func (c *CatalogCache) FolderExists(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.foldersByPath[path]
	return ok
}

// GetFolder returns the folder registered at path, or nil.
func (c *CatalogCache) GetFolder(path string) *model.Folder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.foldersByPath[path]
}

// GetFolderByID returns the folder with the given ID, or nil.
func (c *CatalogCache) GetFolderByID(id string) *model.Folder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.foldersByID[id]
}

// GetFolders returns every folder ordered by path.
func (c *CatalogCache) GetFolders() []*model.Folder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedFolders()
}

func (c *CatalogCache) sortedFolders() []*model.Folder {
	out := make([]*model.Folder, 0, len(c.foldersByID))
	for _, f := range c.foldersByID {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b *model.Folder) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// DeleteFolder removes the folder at path with its assets and thumbnail
// blob. It reports whether the folder existed.
func (c *CatalogCache) DeleteFolder(path string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.foldersByPath[path]
	if !ok {
		return false, nil
	}
	blob := f.ThumbnailsFilename()
	if c.thumbs == nil {
		if err := c.store.DeleteBlob(blob); err != nil {
			return false, fmt.Errorf("deleting thumbnails of %s: %w", path, err)
		}
	} else {
		c.thumbs.Remove(path)
		c.deletedBlobs[blob] = true
		c.store.MarkDirty(blobKey(f), func() error {
			if err := c.store.DeleteBlob(blob); err != nil {
				return err
			}
			delete(c.deletedBlobs, blob)
			return nil
		})
	}

	delete(c.foldersByPath, path)
	delete(c.foldersByID, f.ID)
	delete(c.assets, f.ID)
	c.markFolders()
	c.markAssets()
	c.notifier.Publish()
	return true, nil
}

// AddAsset inserts asset, replacing any asset with the same folder path
// and file name, and stores thumbnail in its folder's mapping. The
// asset's folder is registered when unknown. A nil thumbnail leaves the
// mapping untouched; an empty one is stored as an empty entry.
//
// Every BatchSize additions the catalog is saved; an error from that save
// is returned after the asset has been added.
func (c *CatalogCache) AddAsset(asset *model.Asset, thumbnail []byte) error {
	if asset == nil || asset.FileName == "" || asset.Folder == nil || asset.Folder.Path == "" {
		return fmt.Errorf("asset needs a file name and folder path: %w", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, known := c.foldersByPath[asset.Folder.Path]
	if !known {
		f = c.newFolder(asset.Folder.Path, asset.Folder.ID)
	}
	if thumbnail != nil {
		if err := c.putThumbnail(f, asset.FileName, thumbnail); err != nil {
			return err
		}
	}
	if !known {
		c.insertFolder(f)
	}

	a := asset.Clone()
	a.Folder = f
	a.FolderID = f.ID
	c.putAsset(f, a)
	c.markAssets()
	c.pending++
	c.notifier.Publish()

	if c.batchSize > 0 && c.pending >= c.batchSize {
		if err := c.save(); err != nil {
			return fmt.Errorf("automatic save: %w", err)
		}
	}
	return nil
}

func (c *CatalogCache) putAsset(f *model.Folder, a *model.Asset) {
	e := assetEntry{key: sortKey(a.FileName), asset: a}
	list := c.assets[f.ID]
	if i := indexOf(list, a.FileName); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	i, _ := slices.BinarySearchFunc(list, e, compareEntries)
	c.assets[f.ID] = slices.Insert(list, i, e)
}

func indexOf(list []assetEntry, name string) int {
	return slices.IndexFunc(list, func(e assetEntry) bool { return e.asset.FileName == name })
}

// UpdateAsset replaces the metadata of an existing asset without touching
// its thumbnail. It reports whether the asset was found.
func (c *CatalogCache) UpdateAsset(asset *model.Asset) (bool, error) {
	if asset == nil || asset.FileName == "" || asset.Folder == nil || asset.Folder.Path == "" {
		return false, fmt.Errorf("asset needs a file name and folder path: %w", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.foldersByPath[asset.Folder.Path]
	if !ok || indexOf(c.assets[f.ID], asset.FileName) < 0 {
		return false, nil
	}
	a := asset.Clone()
	a.Folder = f
	a.FolderID = f.ID
	c.putAsset(f, a)
	c.markAssets()
	c.notifier.Publish()
	return true, nil
}

// DeleteAsset removes an asset and its thumbnail. Deleting an absent asset
// is a no-op and reports false.
func (c *CatalogCache) DeleteAsset(folderPath, fileName string) (bool, error) {
	if folderPath == "" || fileName == "" {
		return false, fmt.Errorf("folder path and file name required: %w", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.foldersByPath[folderPath]
	if !ok {
		return false, nil
	}
	i := indexOf(c.assets[f.ID], fileName)
	if i < 0 {
		return false, nil
	}
	if _, err := c.removeThumbnail(f, fileName); err != nil {
		return false, err
	}
	c.assets[f.ID] = slices.Delete(c.assets[f.ID], i, i+1)
	if len(c.assets[f.ID]) == 0 {
		delete(c.assets, f.ID)
	}
	c.markAssets()
	c.notifier.Publish()
	return true, nil
}

// GetAsset returns a copy of the asset, or nil.
func (c *CatalogCache) GetAsset(folderPath, fileName string) *model.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.foldersByPath[folderPath]
	if !ok {
		return nil
	}
	list := c.assets[f.ID]
	if i := indexOf(list, fileName); i >= 0 {
		return list[i].asset.Clone()
	}
	return nil
}

// GetAssetsByPath returns copies of the folder's assets in case-insensitive
// file name order.
func (c *CatalogCache) GetAssetsByPath(folderPath string) []*model.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.foldersByPath[folderPath]
	if !ok {
		return nil
	}
	return cloneEntries(nil, c.assets[f.ID])
}

// GetAssets returns copies of every asset ordered by folder path, then by
// case-insensitive file name.
func (c *CatalogCache) GetAssets() []*model.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.allAssets()
}

func (c *CatalogCache) allAssets() []*model.Asset {
	out := make([]*model.Asset, 0, c.countAssets())
	for _, f := range c.sortedFolders() {
		out = cloneEntries(out, c.assets[f.ID])
	}
	return out
}

func cloneEntries(dst []*model.Asset, list []assetEntry) []*model.Asset {
	for _, e := range list {
		dst = append(dst, e.asset.Clone())
	}
	return dst
}

// GetAssetsCount returns the number of catalogued assets.
func (c *CatalogCache) GetAssetsCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.countAssets()
}

func (c *CatalogCache) countAssets() int {
	n := 0
	for _, list := range c.assets {
		n += len(list)
	}
	return n
}

// FindDuplicates groups catalogued assets sharing a content hash.
func (c *CatalogCache) FindDuplicates() [][]*model.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return GroupDuplicates(c.allAssets())
}

// Save writes every dirty table and blob through the store.
func (c *CatalogCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save()
}

// Flush is an alias for Save.
func (c *CatalogCache) Flush() error { return c.Save() }

func (c *CatalogCache) save() error {
	c.pending = 0
	return c.store.Flush()
}

// HasChanges reports whether anything is waiting to be saved.
func (c *CatalogCache) HasChanges() bool {
	return c.store.HasChanges()
}

// BackupHistory lists the most recent snapshots, newest first.
func (c *CatalogCache) BackupHistory(limit int) ([]*model.BackupRecord, error) {
	return c.store.BackupHistory(limit)
}

// Subscribe returns a subscription receiving one Change per mutation.
func (c *CatalogCache) Subscribe() *Subscription {
	return c.notifier.Subscribe()
}

// SubscribeFunc calls fn for every Change on its own goroutine until the
// returned function is called.
func (c *CatalogCache) SubscribeFunc(fn func(Change)) (unsubscribe func()) {
	sub := c.notifier.Subscribe()
	go func() {
		for ch := range sub.C {
			fn(ch)
		}
	}()
	return sub.Close
}

// Close saves pending changes and closes every subscription.
func (c *CatalogCache) Close() error {
	err := c.Save()
	c.notifier.Close()
	return err
}

// The write callbacks below run from store.Flush or store.FlushKey, which
// the cache only calls with c.mu held.

func (c *CatalogCache) markFolders() {
	c.store.MarkDirty(foldersKey, func() error {
		return StoreTable(c.store, model.FoldersTable, c.sortedFolders(), model.EncodeFolder)
	})
}

func (c *CatalogCache) markAssets() {
	c.store.MarkDirty(assetsKey, func() error {
		var all []*model.Asset
		for _, f := range c.sortedFolders() {
			for _, e := range c.assets[f.ID] {
				all = append(all, e.asset)
			}
		}
		return StoreTable(c.store, model.AssetsTable, all, model.EncodeAsset)
	})
}
