package testutil

import (
	"testing"

	"pcat-go/internal/model"
	"pcat-go/internal/pcat"
)

// NewTestCatalog creates a loaded CatalogCache over a fresh TestStore with
// the given thumbnail cache capacity. Automatic flushing is off.
func NewTestCatalog(t *testing.T, capacity int) (*pcat.CatalogCache, *TestStore) {
	t.Helper()

	store := NewTestStore(t)
	return OpenTestCatalog(t, store, capacity), store
}

// OpenTestCatalog creates and loads a CatalogCache over store.
func OpenTestCatalog(t *testing.T, store *TestStore, capacity int) *pcat.CatalogCache {
	t.Helper()

	c, err := pcat.New(store.DB, pcat.Options{
		ThumbnailCacheCapacity: capacity,
		Decoder:                &StubDecoder{},
		IDGenerator:            NewStubIDGenerator(),
	})
	if err != nil {
		t.Fatalf("pcat.New() error = %v", err)
	}
	if err := c.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return c
}

// NewAsset returns an asset named fileName in folderPath with the given hash.
func NewAsset(folderPath, fileName, hash string) *model.Asset {
	return &model.Asset{
		Folder:   &model.Folder{Path: folderPath},
		FileName: fileName,
		Hash:     hash,
		FileSize: 1024,
		Pixel: model.Pixels{
			Asset:     model.PixelSize{Width: 4000, Height: 3000},
			Thumbnail: model.PixelSize{Width: 200, Height: 150},
		},
	}
}
