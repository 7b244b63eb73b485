package pcat

import (
	"errors"
	"fmt"
	"image"
	"maps"
	"slices"

	"pcat-go/internal/model"
)

// folderThumbnails is the resident thumbnail mapping of one folder.
type folderThumbnails struct {
	folder  *model.Folder
	entries map[string][]byte
	dirty   bool
}

func blobKey(f *model.Folder) string {
	return "blob:" + f.ThumbnailsFilename()
}

// readBlob loads a folder's thumbnails from the store. A corrupt blob is
// logged and treated as empty.
func (c *CatalogCache) readBlob(f *model.Folder) (map[string][]byte, error) {
	entries, err := c.store.ReadBlob(f.ThumbnailsFilename())
	if errors.Is(err, ErrCorruptBlob) {
		c.logger.Warn("thumbnail blob unreadable, treating as empty", "folder", f.Path, "blob", f.ThumbnailsFilename(), "error", err)
		return make(map[string][]byte), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading thumbnails of %s: %w", f.Path, err)
	}
	return entries, nil
}

// writeBlob replaces a folder's blob, removing it when entries is empty.
func (c *CatalogCache) writeBlob(f *model.Folder, entries map[string][]byte) error {
	if len(entries) == 0 {
		return c.store.DeleteBlob(f.ThumbnailsFilename())
	}
	return c.store.WriteBlob(f.ThumbnailsFilename(), entries)
}

// resident returns the cached mapping for f, loading it from the store and
// evicting the least recently used folder when needed. A blob whose
// deletion is still pending starts empty. Requires c.thumbs.
func (c *CatalogCache) resident(f *model.Folder) (*folderThumbnails, error) {
	if ft, ok := c.thumbs.Get(f.Path); ok {
		return ft, nil
	}
	entries := make(map[string][]byte)
	if !c.deletedBlobs[f.ThumbnailsFilename()] {
		var err error
		if entries, err = c.readBlob(f); err != nil {
			return nil, err
		}
	}
	if err := c.makeRoom(); err != nil {
		return nil, err
	}
	ft := &folderThumbnails{folder: f, entries: entries}
	c.thumbs.Add(f.Path, ft)
	return ft, nil
}

// makeRoom evicts the least recently used mapping when the cache is full.
// A dirty mapping is written back first and stays resident if that fails.
func (c *CatalogCache) makeRoom() error {
	if c.thumbs.Len() < c.capacity {
		return nil
	}
	path, ft, ok := c.thumbs.GetOldest()
	if !ok {
		return nil
	}
	if ft.dirty {
		if err := c.store.FlushKey(blobKey(ft.folder)); err != nil {
			return fmt.Errorf("writing back thumbnails of %s: %w", path, err)
		}
	}
	c.thumbs.RemoveOldest()
	c.logger.Debug("evicted thumbnails", "folder", path)
	return nil
}

func (c *CatalogCache) markBlob(ft *folderThumbnails) {
	ft.dirty = true
	c.store.MarkDirty(blobKey(ft.folder), func() error {
		if err := c.writeBlob(ft.folder, ft.entries); err != nil {
			return err
		}
		ft.dirty = false
		delete(c.deletedBlobs, ft.folder.ThumbnailsFilename())
		return nil
	})
}

func (c *CatalogCache) putThumbnail(f *model.Folder, name string, data []byte) error {
	data = slices.Clone(data)
	if data == nil {
		data = []byte{}
	}
	if c.thumbs == nil {
		entries, err := c.readBlob(f)
		if err != nil {
			return err
		}
		entries[name] = data
		if err := c.writeBlob(f, entries); err != nil {
			return fmt.Errorf("writing thumbnails of %s: %w", f.Path, err)
		}
		return nil
	}
	ft, err := c.resident(f)
	if err != nil {
		return err
	}
	ft.entries[name] = data
	c.markBlob(ft)
	return nil
}

// removeThumbnail drops name from f's mapping and reports whether it was there.
func (c *CatalogCache) removeThumbnail(f *model.Folder, name string) (bool, error) {
	if c.thumbs == nil {
		entries, err := c.readBlob(f)
		if err != nil {
			return false, err
		}
		if _, ok := entries[name]; !ok {
			return false, nil
		}
		delete(entries, name)
		if err := c.writeBlob(f, entries); err != nil {
			return false, fmt.Errorf("writing thumbnails of %s: %w", f.Path, err)
		}
		return true, nil
	}
	ft, err := c.resident(f)
	if err != nil {
		return false, err
	}
	if _, ok := ft.entries[name]; !ok {
		return false, nil
	}
	delete(ft.entries, name)
	c.markBlob(ft)
	return true, nil
}

// DeleteThumbnail removes the stored thumbnail of an asset and keeps the
// asset. It reports whether a thumbnail was removed.
func (c *CatalogCache) DeleteThumbnail(folderPath, fileName string) (bool, error) {
	if folderPath == "" || fileName == "" {
		return false, fmt.Errorf("folder path and file name required: %w", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.foldersByPath[folderPath]
	if !ok {
		return false, nil
	}
	removed, err := c.removeThumbnail(f, fileName)
	if err != nil || !removed {
		return false, err
	}
	c.notifier.Publish()
	return true, nil
}

// lookupThumbnail returns the stored bytes for an asset's thumbnail. With
// the cache disabled nothing is resident and nothing is read.
func (c *CatalogCache) lookupThumbnail(folderPath, fileName string) ([]byte, bool, error) {
	if c.thumbs == nil {
		return nil, false, nil
	}
	f, ok := c.foldersByPath[folderPath]
	if !ok {
		return nil, false, nil
	}
	ft, err := c.resident(f)
	if err != nil {
		return nil, false, err
	}
	data, ok := ft.entries[fileName]
	return data, ok, nil
}

// ContainsThumbnail reports whether a thumbnail is stored for the asset,
// loading the folder's mapping if needed. Read errors are logged and
// reported as absent.
func (c *CatalogCache) ContainsThumbnail(folderPath, fileName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok, err := c.lookupThumbnail(folderPath, fileName)
	if err != nil {
		c.logger.Warn("thumbnail lookup failed", "folder", folderPath, "file", fileName, "error", err)
		return false
	}
	return ok
}

// LoadThumbnail decodes the asset's thumbnail to fit width x height. It
// returns nil when the thumbnail is absent or cannot be decoded; a failure
// for one asset never affects others.
func (c *CatalogCache) LoadThumbnail(folderPath, fileName string, width, height int) image.Image {
	c.mu.Lock()
	data, ok, err := c.lookupThumbnail(folderPath, fileName)
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("thumbnail lookup failed", "folder", folderPath, "file", fileName, "error", err)
		return nil
	}
	if !ok || c.decoder == nil {
		return nil
	}
	return c.decode(folderPath, fileName, data, width, height)
}

func (c *CatalogCache) decode(folderPath, fileName string, data []byte, width, height int) (img image.Image) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("thumbnail decoder panicked", "folder", folderPath, "file", fileName, "panic", r)
			img = nil
		}
	}()
	img, err := c.decoder.Decode(data, width, height)
	if err != nil {
		c.logger.Debug("thumbnail decode failed", "folder", folderPath, "file", fileName, "error", err)
		return nil
	}
	return img
}

// Thumbnails returns a live view of the resident thumbnail mappings.
func (c *CatalogCache) Thumbnails() *ThumbnailView {
	return &ThumbnailView{c: c}
}

// ThumbnailView reads the resident thumbnail cache without loading from the
// store or changing recency. It reflects later mutations of the catalog.
type ThumbnailView struct {
	c *CatalogCache
}

// Folders returns the paths of resident folders, least recently used first.
func (v *ThumbnailView) Folders() []string {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	if v.c.thumbs == nil {
		return nil
	}
	return v.c.thumbs.Keys()
}

// Len returns the number of resident folders.
func (v *ThumbnailView) Len() int {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	if v.c.thumbs == nil {
		return 0
	}
	return v.c.thumbs.Len()
}

// Folder returns a copy of a resident folder's mapping, or nil.
func (v *ThumbnailView) Folder(folderPath string) map[string][]byte {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	if v.c.thumbs == nil {
		return nil
	}
	ft, ok := v.c.thumbs.Peek(folderPath)
	if !ok {
		return nil
	}
	out := make(map[string][]byte, len(ft.entries))
	for name, data := range ft.entries {
		out[name] = slices.Clone(data)
	}
	return out
}

// Get returns a copy of a resident thumbnail.
func (v *ThumbnailView) Get(folderPath, fileName string) ([]byte, bool) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	if v.c.thumbs == nil {
		return nil, false
	}
	ft, ok := v.c.thumbs.Peek(folderPath)
	if !ok {
		return nil, false
	}
	data, ok := ft.entries[fileName]
	return slices.Clone(data), ok
}

// Contains reports whether fileName is resident for folderPath.
func (v *ThumbnailView) Contains(folderPath, fileName string) bool {
	_, ok := v.Get(folderPath, fileName)
	return ok
}

// Names returns the sorted file names resident for folderPath.
func (v *ThumbnailView) Names(folderPath string) []string {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	if v.c.thumbs == nil {
		return nil
	}
	ft, ok := v.c.thumbs.Peek(folderPath)
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(ft.entries))
}
