// Package importer catalogs the images of a directory tree.
package importer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"pcat-go/internal/fs"
	"pcat-go/internal/model"
	"pcat-go/internal/pcat"
	"pcat-go/internal/thumbnail"
)

// Report counts what an import did.
type Report struct {
	Folders int
	Added   int
	Updated int
	Skipped int // unchanged since the last import
	Removed int // catalogued but no longer on disk
	Corrupt int // added without a thumbnail
}

// Importer walks directories and feeds their images into a CatalogCache.
type Importer struct {
	catalog   *pcat.CatalogCache
	finder    *fs.Finder
	generator *thumbnail.Generator
	logger    pcat.Logger
	clock     pcat.Clock
	workers   int
}

// New creates an Importer. workers <= 0 uses one worker per CPU.
func New(catalog *pcat.CatalogCache, finder *fs.Finder, generator *thumbnail.Generator, logger pcat.Logger, clock pcat.Clock, workers int) *Importer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Importer{
		catalog:   catalog,
		finder:    finder,
		generator: generator,
		logger:    logger,
		clock:     clock,
		workers:   workers,
	}
}

// ImportFolder catalogs every image under dir. Files whose size and
// modification time match the catalog are skipped; catalogued files that
// have disappeared are deleted. Cancelling ctx stops the import between
// files; assets added so far stay in the catalog.
func (im *Importer) ImportFolder(ctx context.Context, dir string, recursive bool) (*Report, error) {
	images, err := im.finder.FindImages(dir, recursive)
	if err != nil {
		return nil, err
	}
	root, err := fs.ResolveDir(dir)
	if err != nil {
		return nil, err
	}

	byDir := map[string]map[string]bool{root: {}}
	for _, img := range images {
		if byDir[img.Dir] == nil {
			byDir[img.Dir] = make(map[string]bool)
		}
		byDir[img.Dir][img.Name] = true
	}
	for d := range byDir {
		if _, err := im.catalog.AddFolder(d); err != nil {
			return nil, err
		}
	}

	var added, updated, skipped, corrupt atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, img := range images {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			existing := im.catalog.GetAsset(img.Dir, img.Name)
			if existing != nil && existing.FileSize == img.Size && existing.FileModificationDateTime.Equal(img.Modified) {
				skipped.Add(1)
				return nil
			}
			broken, err := im.importImage(img)
			if err != nil {
				return err
			}
			if broken {
				corrupt.Add(1)
			}
			if existing != nil {
				updated.Add(1)
			} else {
				added.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	removed := 0
	for d, names := range byDir {
		for _, a := range im.catalog.GetAssetsByPath(d) {
			if names[a.FileName] {
				continue
			}
			if _, err := im.catalog.DeleteAsset(d, a.FileName); err != nil {
				return nil, err
			}
			removed++
		}
	}

	if err := im.catalog.Save(); err != nil {
		return nil, fmt.Errorf("saving catalog: %w", err)
	}

	report := &Report{
		Folders: len(byDir),
		Added:   int(added.Load()),
		Updated: int(updated.Load()),
		Skipped: int(skipped.Load()),
		Removed: removed,
		Corrupt: int(corrupt.Load()),
	}
	im.logger.Info("import complete", "dir", root, "added", report.Added, "updated", report.Updated,
		"skipped", report.Skipped, "removed", report.Removed, "corrupt", report.Corrupt)
	return report, nil
}

// importImage hashes and thumbnails one file and adds it to the catalog.
// An image that cannot be decoded is still added, flagged as corrupted and
// without a thumbnail.
func (im *Importer) importImage(img fs.ImageFile) (broken bool, err error) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", img.Path, err)
	}
	sum := sha256.Sum256(data)

	asset := &model.Asset{
		Folder:                   &model.Folder{Path: img.Dir},
		FileName:                 img.Name,
		FileSize:                 img.Size,
		FileCreationDateTime:     img.Created,
		FileModificationDateTime: img.Modified,
		Hash:                     hex.EncodeToString(sum[:]),
	}

	var thumb []byte
	res, err := im.generator.Generate(bytes.NewReader(data))
	if err != nil {
		im.logger.Warn("image unreadable", "path", img.Path, "error", err)
		asset.Metadata.Corrupted = model.Diagnostic{IsTrue: true, Message: err.Error()}
		broken = true
	} else {
		thumb = res.Data
		asset.Pixel = res.Pixel
		asset.ThumbnailCreationDateTime = im.clock.Now()
	}

	if err := im.catalog.AddAsset(asset, thumb); err != nil {
		return broken, fmt.Errorf("adding %s: %w", img.Path, err)
	}
	if broken {
		// A thumbnail of the file's previous content must not outlive it.
		if _, err := im.catalog.DeleteThumbnail(img.Dir, img.Name); err != nil {
			return broken, fmt.Errorf("dropping thumbnail of %s: %w", img.Path, err)
		}
	}
	return broken, nil
}
