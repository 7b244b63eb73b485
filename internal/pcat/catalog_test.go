package pcat_test

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"pcat-go/internal/model"
	"pcat-go/internal/pcat"
	"pcat-go/internal/testutil"
)

func fileNames(assets []*model.Asset) []string {
	names := make([]string, len(assets))
	for i, a := range assets {
		names[i] = a.FileName
	}
	return names
}

func addAsset(t *testing.T, c *pcat.CatalogCache, folder, name, hash string, thumb []byte) {
	t.Helper()
	if err := c.AddAsset(testutil.NewAsset(folder, name, hash), thumb); err != nil {
		t.Fatalf("AddAsset(%s, %s) error = %v", folder, name, err)
	}
}

// receive reads n changes from sub or fails after a timeout.
func receive(t *testing.T, sub *pcat.Subscription, n int) []pcat.Change {
	t.Helper()
	var got []pcat.Change
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case ch, ok := <-sub.C:
			if !ok {
				t.Fatalf("subscription closed after %d changes, want %d", len(got), n)
			}
			got = append(got, ch)
		case <-timeout:
			t.Fatalf("received %d changes, want %d", len(got), n)
		}
	}
	return got
}

func assertNoChange(t *testing.T, sub *pcat.Subscription) {
	t.Helper()
	select {
	case ch := <-sub.C:
		t.Errorf("unexpected change %+v", ch)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCatalogCache_AddFolder(t *testing.T) {
	t.Run("stable identifier", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		first, err := c.AddFolder("/photos/2024")
		if err != nil {
			t.Fatalf("AddFolder() error = %v", err)
		}
		second, err := c.AddFolder("/photos/2024")
		if err != nil {
			t.Fatalf("AddFolder() error = %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("AddFolder() IDs differ: %q then %q", first.ID, second.ID)
		}
		got := c.GetFolder("/photos/2024")
		if got == nil || got.ID != first.ID || got.Path != "/photos/2024" {
			t.Errorf("GetFolder() = %+v, want ID %q", got, first.ID)
		}
		if !c.FolderExists("/photos/2024") {
			t.Error("FolderExists() = false, want true")
		}
		if c.GetFolderByID(first.ID) != got {
			t.Error("GetFolderByID() returned a different folder")
		}
		if len(c.GetFolders()) != 1 {
			t.Errorf("len(GetFolders()) = %d, want 1", len(c.GetFolders()))
		}
	})

	t.Run("notifies only on change", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)
		sub := c.Subscribe()
		defer sub.Close()

		c.AddFolder("/photos")
		c.AddFolder("/photos")

		receive(t, sub, 1)
		assertNoChange(t, sub)
	})

	t.Run("empty path", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		if _, err := c.AddFolder(""); !errors.Is(err, pcat.ErrInvalidArgument) {
			t.Errorf("AddFolder(\"\") error = %v, want ErrInvalidArgument", err)
		}
		if c.HasChanges() {
			t.Error("HasChanges() = true after rejected AddFolder")
		}
	})

	t.Run("unknown folder", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		if c.FolderExists("/nowhere") {
			t.Error("FolderExists() = true, want false")
		}
		if c.GetFolder("/nowhere") != nil {
			t.Error("GetFolder() != nil for unknown path")
		}
	})
}

func TestCatalogCache_AddAsset(t *testing.T) {
	t.Run("invalid arguments", func(t *testing.T) {
		tests := []struct {
			name  string
			asset *model.Asset
		}{
			{name: "nil asset", asset: nil},
			{name: "empty file name", asset: testutil.NewAsset("/photos", "", "h")},
			{name: "nil folder", asset: &model.Asset{FileName: "a.jpg"}},
			{name: "empty folder path", asset: testutil.NewAsset("", "a.jpg", "h")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c, _ := testutil.NewTestCatalog(t, 2)
				sub := c.Subscribe()
				defer sub.Close()

				err := c.AddAsset(tt.asset, []byte("thumb"))
				if !errors.Is(err, pcat.ErrInvalidArgument) {
					t.Errorf("AddAsset() error = %v, want ErrInvalidArgument", err)
				}
				if c.GetAssetsCount() != 0 {
					t.Errorf("GetAssetsCount() = %d, want 0", c.GetAssetsCount())
				}
				if c.HasChanges() {
					t.Error("HasChanges() = true after rejected AddAsset")
				}
				assertNoChange(t, sub)
			})
		}
	})

	t.Run("registers folder", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		addAsset(t, c, "/photos", "a.jpg", "h1", []byte("thumb"))

		f := c.GetFolder("/photos")
		if f == nil {
			t.Fatal("GetFolder() = nil after AddAsset")
		}
		a := c.GetAsset("/photos", "a.jpg")
		if a == nil {
			t.Fatal("GetAsset() = nil")
		}
		if a.FolderID != f.ID || a.Folder.ID != f.ID {
			t.Errorf("asset folder = %q/%q, want %q", a.FolderID, a.Folder.ID, f.ID)
		}
		if !c.HasChanges() {
			t.Error("HasChanges() = false after AddAsset")
		}
	})

	t.Run("replaces same file name", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		addAsset(t, c, "/photos", "a.jpg", "old", []byte("one"))
		updated := testutil.NewAsset("/photos", "a.jpg", "new")
		updated.FileSize = 2048
		if err := c.AddAsset(updated, []byte("two")); err != nil {
			t.Fatalf("AddAsset() error = %v", err)
		}

		if c.GetAssetsCount() != 1 {
			t.Fatalf("GetAssetsCount() = %d, want 1", c.GetAssetsCount())
		}
		got := c.GetAsset("/photos", "a.jpg")
		if got.Hash != "new" || got.FileSize != 2048 {
			t.Errorf("GetAsset() = hash %q size %d, want new/2048", got.Hash, got.FileSize)
		}
		thumb, ok := c.Thumbnails().Get("/photos", "a.jpg")
		if !ok || string(thumb) != "two" {
			t.Errorf("thumbnail = %q, %v; want \"two\"", thumb, ok)
		}
	})

	t.Run("stores a copy", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		a := testutil.NewAsset("/photos", "a.jpg", "h1")
		if err := c.AddAsset(a, nil); err != nil {
			t.Fatalf("AddAsset() error = %v", err)
		}
		a.Hash = "mutated"

		if got := c.GetAsset("/photos", "a.jpg"); got.Hash != "h1" {
			t.Errorf("Hash = %q, want h1", got.Hash)
		}
	})

	t.Run("nil thumbnail keeps existing", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		addAsset(t, c, "/photos", "a.jpg", "h1", []byte("thumb"))
		addAsset(t, c, "/photos", "a.jpg", "h2", nil)

		if !c.ContainsThumbnail("/photos", "a.jpg") {
			t.Error("ContainsThumbnail() = false, want true")
		}
	})

	t.Run("zero-length thumbnail", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		addAsset(t, c, "/photos", "a.jpg", "h1", []byte{})

		if !c.ContainsThumbnail("/photos", "a.jpg") {
			t.Error("ContainsThumbnail() = false, want true")
		}
	})
}

func TestCatalogCache_AutomaticSave(t *testing.T) {
	store := testutil.NewTestStore(t)
	c, err := pcat.New(store.DB, pcat.Options{
		BatchSize:              2,
		ThumbnailCacheCapacity: 2,
		IDGenerator:            testutil.NewStubIDGenerator(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	addAsset(t, c, "/photos", "a.jpg", "h1", []byte("a"))
	if !c.HasChanges() {
		t.Fatal("HasChanges() = false after first asset")
	}
	addAsset(t, c, "/photos", "b.jpg", "h2", []byte("b"))
	if c.HasChanges() {
		t.Error("HasChanges() = true after reaching batch size")
	}

	raw, err := store.DB.ReadRecords(model.AssetsTable)
	if err != nil {
		t.Fatalf("ReadRecords() error = %v", err)
	}
	if len(raw) != 2 {
		t.Errorf("persisted %d assets, want 2", len(raw))
	}
}

func TestCatalogCache_UpdateAsset(t *testing.T) {
	c, _ := testutil.NewTestCatalog(t, 2)
	addAsset(t, c, "/photos", "a.jpg", "h1", []byte("thumb"))

	t.Run("existing asset", func(t *testing.T) {
		a := testutil.NewAsset("/photos", "a.jpg", "h1")
		a.ImageRotation = model.Rotate90
		ok, err := c.UpdateAsset(a)
		if err != nil {
			t.Fatalf("UpdateAsset() error = %v", err)
		}
		if !ok {
			t.Fatal("UpdateAsset() = false, want true")
		}
		if got := c.GetAsset("/photos", "a.jpg"); got.ImageRotation != model.Rotate90 {
			t.Errorf("ImageRotation = %v, want Rotate90", got.ImageRotation)
		}
		if thumb, _ := c.Thumbnails().Get("/photos", "a.jpg"); string(thumb) != "thumb" {
			t.Errorf("thumbnail = %q, want unchanged", thumb)
		}
	})

	t.Run("absent asset", func(t *testing.T) {
		ok, err := c.UpdateAsset(testutil.NewAsset("/photos", "missing.jpg", "h"))
		if err != nil {
			t.Fatalf("UpdateAsset() error = %v", err)
		}
		if ok {
			t.Error("UpdateAsset() = true for absent asset")
		}
		if c.GetAssetsCount() != 1 {
			t.Errorf("GetAssetsCount() = %d, want 1", c.GetAssetsCount())
		}
	})
}

func TestCatalogCache_DeleteAsset(t *testing.T) {
	t.Run("absent asset is a no-op", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)
		sub := c.Subscribe()
		defer sub.Close()

		ok, err := c.DeleteAsset("/photos", "missing.jpg")
		if err != nil {
			t.Fatalf("DeleteAsset() error = %v", err)
		}
		if ok {
			t.Error("DeleteAsset() = true for absent asset")
		}
		if c.HasChanges() {
			t.Error("HasChanges() = true after deleting absent asset")
		}
		assertNoChange(t, sub)
	})

	t.Run("removes asset and thumbnail", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)
		addAsset(t, c, "/photos", "a.jpg", "h1", []byte("a"))
		addAsset(t, c, "/photos", "b.jpg", "h2", []byte("b"))

		ok, err := c.DeleteAsset("/photos", "a.jpg")
		if err != nil {
			t.Fatalf("DeleteAsset() error = %v", err)
		}
		if !ok {
			t.Fatal("DeleteAsset() = false, want true")
		}
		if got := fileNames(c.GetAssetsByPath("/photos")); !slices.Equal(got, []string{"b.jpg"}) {
			t.Errorf("GetAssetsByPath() = %v, want [b.jpg]", got)
		}
		if c.ContainsThumbnail("/photos", "a.jpg") {
			t.Error("ContainsThumbnail() = true after delete")
		}
	})

	t.Run("empty arguments", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		if _, err := c.DeleteAsset("", "a.jpg"); !errors.Is(err, pcat.ErrInvalidArgument) {
			t.Errorf("DeleteAsset() error = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestCatalogCache_DeleteFolder(t *testing.T) {
	for _, capacity := range []int{0, 2} {
		t.Run(fmt.Sprintf("capacity %d", capacity), func(t *testing.T) {
			c, store := testutil.NewTestCatalog(t, capacity)
			addAsset(t, c, "/photos", "a.jpg", "h1", []byte("a"))
			addAsset(t, c, "/other", "b.jpg", "h2", []byte("b"))
			blob := c.GetFolder("/photos").ThumbnailsFilename()
			if err := c.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			ok, err := c.DeleteFolder("/photos")
			if err != nil {
				t.Fatalf("DeleteFolder() error = %v", err)
			}
			if !ok {
				t.Fatal("DeleteFolder() = false, want true")
			}
			if err := c.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			if c.FolderExists("/photos") {
				t.Error("FolderExists() = true after DeleteFolder")
			}
			if got := fileNames(c.GetAssets()); !slices.Equal(got, []string{"b.jpg"}) {
				t.Errorf("GetAssets() = %v, want [b.jpg]", got)
			}
			if _, err := os.Stat(store.Layout.BlobPath(blob)); !os.IsNotExist(err) {
				t.Errorf("blob %s still on disk: %v", blob, err)
			}
		})
	}
}

func TestCatalogCache_DeleteFolder_ReusedID(t *testing.T) {
	c, store := testutil.NewTestCatalog(t, 2)
	addAsset(t, c, "/photos", "old.jpg", "h1", []byte("old"))
	if err := c.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	id := c.GetFolder("/photos").ID

	if _, err := c.DeleteFolder("/photos"); err != nil {
		t.Fatalf("DeleteFolder() error = %v", err)
	}

	asset := testutil.NewAsset("/photos", "new.jpg", "h2")
	asset.Folder.ID = id
	if err := c.AddAsset(asset, []byte("new")); err != nil {
		t.Fatalf("AddAsset() error = %v", err)
	}
	if got := c.GetFolder("/photos").ID; got != id {
		t.Fatalf("folder ID = %q, want reused %q", got, id)
	}
	if c.ContainsThumbnail("/photos", "old.jpg") {
		t.Error("ContainsThumbnail(old.jpg) = true after its folder was deleted")
	}
	if !c.ContainsThumbnail("/photos", "new.jpg") {
		t.Error("ContainsThumbnail(new.jpg) = false")
	}

	if err := c.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	entries, err := store.DB.ReadBlob(c.GetFolder("/photos").ThumbnailsFilename())
	if err != nil {
		t.Fatalf("ReadBlob() error = %v", err)
	}
	if _, ok := entries["old.jpg"]; ok || len(entries) != 1 {
		t.Errorf("blob entries = %v, want only new.jpg", slices.Sorted(maps.Keys(entries)))
	}
}

func TestCatalogCache_AddAsset_FolderID(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		keepID bool
	}{
		{"uuid is kept", "7d444840-9dc0-11d1-b245-5ffdce74fad2", true},
		{"path traversal is replaced", "../../../escaped", false},
		{"separator is replaced", "a/b", false},
		{"non uuid is replaced", "folder-1", false},
	}
	for _, tt := range tests {
		for _, capacity := range []int{0, 2} {
			t.Run(fmt.Sprintf("%s capacity %d", tt.name, capacity), func(t *testing.T) {
				c, store := testutil.NewTestCatalog(t, capacity)
				asset := testutil.NewAsset("/photos", "a.jpg", "h1")
				asset.Folder.ID = tt.id
				if err := c.AddAsset(asset, []byte("thumb")); err != nil {
					t.Fatalf("AddAsset() error = %v", err)
				}
				if err := c.Save(); err != nil {
					t.Fatalf("Save() error = %v", err)
				}

				f := c.GetFolder("/photos")
				if got := f.ID == tt.id; got != tt.keepID {
					t.Errorf("folder ID = %q, kept supplied %q = %v, want %v", f.ID, tt.id, got, tt.keepID)
				}
				if !model.ValidFolderID(f.ID) {
					t.Errorf("folder ID %q is not a valid blob name", f.ID)
				}
				if _, err := os.Stat(store.Layout.BlobPath(f.ThumbnailsFilename())); err != nil {
					t.Errorf("blob not in Blobs directory: %v", err)
				}
				if _, err := os.Stat(filepath.Join(filepath.Dir(store.Layout.Root), "escaped.bin")); !os.IsNotExist(err) {
					t.Errorf("blob written outside the store: %v", err)
				}
			})
		}
	}
}

func TestCatalogCache_DeleteThumbnail(t *testing.T) {
	for _, capacity := range []int{0, 2} {
		t.Run(fmt.Sprintf("capacity %d", capacity), func(t *testing.T) {
			c, store := testutil.NewTestCatalog(t, capacity)
			addAsset(t, c, "/photos", "a.jpg", "h1", []byte("a"))
			addAsset(t, c, "/photos", "b.jpg", "h2", []byte("b"))

			removed, err := c.DeleteThumbnail("/photos", "a.jpg")
			if err != nil {
				t.Fatalf("DeleteThumbnail() error = %v", err)
			}
			if !removed {
				t.Error("DeleteThumbnail() = false, want true")
			}
			if c.GetAsset("/photos", "a.jpg") == nil {
				t.Error("asset removed along with its thumbnail")
			}
			if removed, _ := c.DeleteThumbnail("/photos", "a.jpg"); removed {
				t.Error("second DeleteThumbnail() = true, want false")
			}
			if removed, _ := c.DeleteThumbnail("/unknown", "a.jpg"); removed {
				t.Error("DeleteThumbnail(unknown folder) = true, want false")
			}
			if _, err := c.DeleteThumbnail("", "a.jpg"); !errors.Is(err, pcat.ErrInvalidArgument) {
				t.Errorf("DeleteThumbnail(\"\") error = %v, want ErrInvalidArgument", err)
			}

			if err := c.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			entries, err := store.DB.ReadBlob(c.GetFolder("/photos").ThumbnailsFilename())
			if err != nil {
				t.Fatalf("ReadBlob() error = %v", err)
			}
			if _, ok := entries["a.jpg"]; ok {
				t.Error("a.jpg still in blob")
			}
			if string(entries["b.jpg"]) != "b" {
				t.Errorf("b.jpg entry = %q, want b", entries["b.jpg"])
			}
		})
	}
}

func TestCatalogCache_GetAssetsByPath_Order(t *testing.T) {
	c, _ := testutil.NewTestCatalog(t, 2)
	for _, name := range []string{"b.jpg", "C.jpg", "a2.jpg", "A.jpg", "Ä.jpg", "c.JPG"} {
		addAsset(t, c, "/photos", name, "", nil)
	}

	got := fileNames(c.GetAssetsByPath("/photos"))
	want := []string{"A.jpg", "a2.jpg", "b.jpg", "C.jpg", "c.JPG", "Ä.jpg"}
	if !slices.Equal(got, want) {
		t.Errorf("GetAssetsByPath() = %v, want %v", got, want)
	}
	if c.GetAssetsByPath("/unknown") != nil {
		t.Error("GetAssetsByPath() != nil for unknown folder")
	}
}

func TestCatalogCache_GetAssets(t *testing.T) {
	c, _ := testutil.NewTestCatalog(t, 2)
	addAsset(t, c, "/b", "x.jpg", "", nil)
	addAsset(t, c, "/a", "z.jpg", "", nil)
	addAsset(t, c, "/a", "Y.jpg", "", nil)

	got := c.GetAssets()
	var paths []string
	for _, a := range got {
		paths = append(paths, a.FullPath())
	}
	want := []string{"/a/Y.jpg", "/a/z.jpg", "/b/x.jpg"}
	if !slices.Equal(paths, want) {
		t.Errorf("GetAssets() = %v, want %v", paths, want)
	}
	if c.GetAssetsCount() != 3 {
		t.Errorf("GetAssetsCount() = %d, want 3", c.GetAssetsCount())
	}
}

func TestCatalogCache_Eviction(t *testing.T) {
	c, store := testutil.NewTestCatalog(t, 1)

	addAsset(t, c, "/a", "one.jpg", "h1", []byte("thumb-a"))
	addAsset(t, c, "/b", "two.jpg", "h2", []byte("thumb-b"))

	view := c.Thumbnails()
	if got := view.Folders(); !slices.Equal(got, []string{"/b"}) {
		t.Errorf("resident folders = %v, want [/b]", got)
	}

	// Folder A was written back before it left memory.
	entries, err := store.DB.ReadBlob(c.GetFolder("/a").ThumbnailsFilename())
	if err != nil {
		t.Fatalf("ReadBlob() error = %v", err)
	}
	if string(entries["one.jpg"]) != "thumb-a" {
		t.Errorf("blob entry = %q, want thumb-a", entries["one.jpg"])
	}

	if img := c.LoadThumbnail("/a", "one.jpg", 200, 150); img == nil {
		t.Error("LoadThumbnail() = nil after eviction")
	}
	if got := view.Folders(); !slices.Equal(got, []string{"/a"}) {
		t.Errorf("resident folders = %v, want [/a]", got)
	}
	if c.LoadThumbnail("/b", "two.jpg", 200, 150) == nil {
		t.Error("LoadThumbnail() = nil for /b after it was evicted")
	}
}

func TestCatalogCache_CapacityZero(t *testing.T) {
	c, store := testutil.NewTestCatalog(t, 0)

	addAsset(t, c, "/photos", "a.jpg", "h1", []byte("thumb"))

	if img := c.LoadThumbnail("/photos", "a.jpg", 200, 150); img != nil {
		t.Errorf("LoadThumbnail() = %v, want nil", img)
	}
	if n := c.Thumbnails().Len(); n != 0 {
		t.Errorf("Thumbnails().Len() = %d, want 0", n)
	}
	if c.Thumbnails().Folder("/photos") != nil {
		t.Error("Thumbnails().Folder() != nil with capacity 0")
	}

	// The thumbnail went straight to its blob.
	entries, err := store.DB.ReadBlob(c.GetFolder("/photos").ThumbnailsFilename())
	if err != nil {
		t.Fatalf("ReadBlob() error = %v", err)
	}
	if string(entries["a.jpg"]) != "thumb" {
		t.Errorf("blob entry = %q, want thumb", entries["a.jpg"])
	}

	if _, err := c.DeleteAsset("/photos", "a.jpg"); err != nil {
		t.Fatalf("DeleteAsset() error = %v", err)
	}
	if _, err := os.Stat(store.Layout.BlobPath(c.GetFolder("/photos").ThumbnailsFilename())); !os.IsNotExist(err) {
		t.Errorf("empty blob still on disk: %v", err)
	}
}

func TestCatalogCache_LoadThumbnail(t *testing.T) {
	c, _ := testutil.NewTestCatalog(t, 2)
	addAsset(t, c, "/photos", "good.jpg", "", []byte("abc"))
	addAsset(t, c, "/photos", "bad.jpg", "", []byte("corrupt data"))
	addAsset(t, c, "/photos", "boom.jpg", "", []byte("panic now"))

	tests := []struct {
		name    string
		file    string
		wantNil bool
	}{
		{name: "decodes", file: "good.jpg"},
		{name: "decode error", file: "bad.jpg", wantNil: true},
		{name: "decoder panic", file: "boom.jpg", wantNil: true},
		{name: "missing thumbnail", file: "none.jpg", wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := c.LoadThumbnail("/photos", tt.file, 200, 150)
			if (img == nil) != tt.wantNil {
				t.Errorf("LoadThumbnail() = %v, wantNil %v", img, tt.wantNil)
			}
		})
	}

	if img := c.LoadThumbnail("/photos", "good.jpg", 200, 150); img.Bounds().Dy() != 3 {
		t.Errorf("decoded height = %d, want 3", img.Bounds().Dy())
	}
}

func TestCatalogCache_ThumbnailsViewIsLive(t *testing.T) {
	c, _ := testutil.NewTestCatalog(t, 2)
	view := c.Thumbnails()

	if view.Contains("/photos", "a.jpg") {
		t.Fatal("Contains() = true before AddAsset")
	}
	addAsset(t, c, "/photos", "a.jpg", "", []byte("a"))
	addAsset(t, c, "/photos", "b.jpg", "", []byte("b"))

	if got := view.Names("/photos"); !slices.Equal(got, []string{"a.jpg", "b.jpg"}) {
		t.Errorf("Names() = %v, want [a.jpg b.jpg]", got)
	}
	if m := view.Folder("/photos"); len(m) != 2 {
		t.Errorf("len(Folder()) = %d, want 2", len(m))
	}
}

func TestCatalogCache_ConcurrentAddAsset(t *testing.T) {
	const n = 64
	c, _ := testutil.NewTestCatalog(t, 4)
	sub := c.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			folder := fmt.Sprintf("/photos/%d", i%8)
			errs <- c.AddAsset(testutil.NewAsset(folder, fmt.Sprintf("img-%03d.jpg", i), ""), []byte{byte(i)})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AddAsset() error = %v", err)
		}
	}

	if got := c.GetAssetsCount(); got != n {
		t.Errorf("GetAssetsCount() = %d, want %d", got, n)
	}
	changes := receive(t, sub, n)
	for i, ch := range changes {
		if ch.Seq != uint64(i+1) {
			t.Fatalf("change %d has Seq %d, want %d", i, ch.Seq, i+1)
		}
	}
	assertNoChange(t, sub)

	seen := make(map[string]bool)
	for _, a := range c.GetAssets() {
		if seen[a.FullPath()] {
			t.Errorf("duplicate asset %s", a.FullPath())
		}
		seen[a.FullPath()] = true
	}
}

func TestCatalogCache_SubscribeFunc(t *testing.T) {
	c, _ := testutil.NewTestCatalog(t, 2)

	got := make(chan pcat.Change, 4)
	unsubscribe := c.SubscribeFunc(func(ch pcat.Change) { got <- ch })
	c.AddFolder("/photos")

	select {
	case ch := <-got:
		if ch.Seq != 1 {
			t.Errorf("Seq = %d, want 1", ch.Seq)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback not called")
	}
	unsubscribe()
	unsubscribe()
}

func TestCatalogCache_FindDuplicates(t *testing.T) {
	c, _ := testutil.NewTestCatalog(t, 2)
	if _, err := c.AddFolder("/F"); err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}
	addAsset(t, c, "/F", "a1.jpg", "H1", nil)
	addAsset(t, c, "/F", "a2.jpg", "H1", nil)
	addAsset(t, c, "/F", "a3.jpg", "H2", nil)

	if got := fileNames(c.GetAssetsByPath("/F")); !slices.Equal(got, []string{"a1.jpg", "a2.jpg", "a3.jpg"}) {
		t.Errorf("GetAssetsByPath() = %v", got)
	}
	groups := c.FindDuplicates()
	if len(groups) != 1 {
		t.Fatalf("FindDuplicates() returned %d groups, want 1", len(groups))
	}
	if got := fileNames(groups[0]); !slices.Equal(got, []string{"a1.jpg", "a2.jpg"}) {
		t.Errorf("group = %v, want [a1.jpg a2.jpg]", got)
	}
}

func TestCatalogCache_SaveAndReload(t *testing.T) {
	c, store := testutil.NewTestCatalog(t, 1)
	addAsset(t, c, "/a", "one.jpg", "h1", []byte("thumb-a"))
	addAsset(t, c, "/b", "two.jpg", "h2", []byte("thumb-b"))
	folderA := c.GetFolder("/a")

	if err := c.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if c.HasChanges() {
		t.Error("HasChanges() = true after Save")
	}
	history, err := c.BackupHistory(0)
	if err != nil {
		t.Fatalf("BackupHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(BackupHistory()) = %d, want 1", len(history))
	}

	t.Run("save with nothing dirty", func(t *testing.T) {
		if err := c.Save(); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		history, _ := c.BackupHistory(0)
		if len(history) != 1 {
			t.Errorf("len(BackupHistory()) = %d after idle Save, want 1", len(history))
		}
	})

	t.Run("reload", func(t *testing.T) {
		reopened := testutil.OpenTestCatalog(t, store, 1)

		if got := reopened.GetFolder("/a"); got == nil || got.ID != folderA.ID {
			t.Errorf("GetFolder(/a) = %+v, want ID %q", got, folderA.ID)
		}
		if reopened.GetAssetsCount() != 2 {
			t.Errorf("GetAssetsCount() = %d, want 2", reopened.GetAssetsCount())
		}
		if reopened.LoadThumbnail("/a", "one.jpg", 200, 150) == nil {
			t.Error("LoadThumbnail(/a) = nil after reload")
		}
		if reopened.LoadThumbnail("/b", "two.jpg", 200, 150) == nil {
			t.Error("LoadThumbnail(/b) = nil after reload")
		}
		if reopened.HasChanges() {
			t.Error("HasChanges() = true after clean reload")
		}
	})
}

func TestCatalogCache_LoadRecoversCorruptTable(t *testing.T) {
	c, store := testutil.NewTestCatalog(t, 2)
	addAsset(t, c, "/photos", "a.jpg", "h1", nil)
	addAsset(t, c, "/photos", "b.jpg", "h2", nil)
	if err := c.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := os.WriteFile(store.Layout.TablePath(model.AssetsTable), []byte("not a header\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reopened := testutil.OpenTestCatalog(t, store, 2)
	if reopened.GetAssetsCount() != 2 {
		t.Errorf("GetAssetsCount() = %d, want 2", reopened.GetAssetsCount())
	}
	if !reopened.HasChanges() {
		t.Error("HasChanges() = false, want recovered table marked dirty")
	}
	if err := reopened.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	raw, err := store.DB.ReadRecords(model.AssetsTable)
	if err != nil {
		t.Fatalf("ReadRecords() error = %v", err)
	}
	if len(raw) != 2 {
		t.Errorf("rewritten table has %d records, want 2", len(raw))
	}
}

func TestCatalogCache_SyncAssetsConfiguration(t *testing.T) {
	c, store := testutil.NewTestCatalog(t, 2)

	valid := model.SyncAssetsConfiguration{Definitions: []model.SyncAssetsDirectoriesDefinition{
		{SourceDirectory: "/photos//in/", DestinationDirectory: "/backup/out", IncludeSubFolders: true},
		{SourceDirectory: "relative", DestinationDirectory: "/backup/x"},
	}}
	if err := c.SaveSyncAssetsConfiguration(valid); err != nil {
		t.Fatalf("SaveSyncAssetsConfiguration() error = %v", err)
	}

	got := c.GetSyncAssetsConfiguration()
	if len(got.Definitions) != 1 || got.Definitions[0].SourceDirectory != "/photos/in" {
		t.Fatalf("GetSyncAssetsConfiguration() = %+v", got)
	}
	if c.HasChanges() {
		t.Error("HasChanges() = true; sync configuration is written immediately")
	}

	t.Run("missing source aborts the save", func(t *testing.T) {
		bad := model.SyncAssetsConfiguration{Definitions: []model.SyncAssetsDirectoriesDefinition{
			{SourceDirectory: "/ok", DestinationDirectory: "/ok2"},
			{SourceDirectory: "", DestinationDirectory: "/dest"},
		}}
		err := c.SaveSyncAssetsConfiguration(bad)
		if !errors.Is(err, model.ErrMissingDirectory) {
			t.Fatalf("SaveSyncAssetsConfiguration() error = %v, want ErrMissingDirectory", err)
		}

		persisted, _, err := pcat.LoadTable(store.DB, pcat.NewNopLogger(), model.SyncDefinitionsTable, model.DecodeSyncDefinition)
		if err != nil {
			t.Fatalf("LoadTable() error = %v", err)
		}
		if len(persisted) != 1 || persisted[0].SourceDirectory != "/photos/in" {
			t.Errorf("persisted definitions = %+v, want unchanged", persisted)
		}
		if got := c.GetSyncAssetsConfiguration(); len(got.Definitions) != 1 {
			t.Errorf("in-memory definitions = %+v, want unchanged", got)
		}
	})

	t.Run("survives reload", func(t *testing.T) {
		reopened := testutil.OpenTestCatalog(t, store, 2)
		if got := reopened.GetSyncAssetsConfiguration(); len(got.Definitions) != 1 || !got.Definitions[0].IncludeSubFolders {
			t.Errorf("reloaded definitions = %+v", got)
		}
	})
}

func TestCatalogCache_RecentTargetPaths(t *testing.T) {
	t.Run("dedupe and order", func(t *testing.T) {
		c, _ := testutil.NewTestCatalog(t, 2)

		if err := c.SaveRecentTargetPaths([]string{"/b", "/a", "/b", "", "/c"}); err != nil {
			t.Fatalf("SaveRecentTargetPaths() error = %v", err)
		}
		if got := c.GetRecentTargetPaths(); !slices.Equal(got, []string{"/b", "/a", "/c"}) {
			t.Errorf("GetRecentTargetPaths() = %v, want [/b /a /c]", got)
		}

		if err := c.AddRecentTargetPath("/c"); err != nil {
			t.Fatalf("AddRecentTargetPath() error = %v", err)
		}
		if got := c.GetRecentTargetPaths(); !slices.Equal(got, []string{"/c", "/b", "/a"}) {
			t.Errorf("GetRecentTargetPaths() = %v, want [/c /b /a]", got)
		}
	})

	t.Run("capped", func(t *testing.T) {
		c, store := testutil.NewTestCatalog(t, 2)

		var paths []string
		for i := range pcat.MaxRecentTargetPaths + 5 {
			paths = append(paths, fmt.Sprintf("/target/%d", i))
		}
		if err := c.SaveRecentTargetPaths(paths); err != nil {
			t.Fatalf("SaveRecentTargetPaths() error = %v", err)
		}
		if got := len(c.GetRecentTargetPaths()); got != pcat.MaxRecentTargetPaths {
			t.Errorf("len(GetRecentTargetPaths()) = %d, want %d", got, pcat.MaxRecentTargetPaths)
		}

		raw, err := store.DB.ReadRecords(model.RecentTargetPathsTable)
		if err != nil {
			t.Fatalf("ReadRecords() error = %v", err)
		}
		if len(raw) != pcat.MaxRecentTargetPaths {
			t.Errorf("persisted %d paths, want %d", len(raw), pcat.MaxRecentTargetPaths)
		}
	})
}

func TestCatalogCache_Close(t *testing.T) {
	c, store := testutil.NewTestCatalog(t, 2)
	sub := c.Subscribe()
	addAsset(t, c, "/photos", "a.jpg", "", []byte("a"))
	receive(t, sub, 1)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-sub.C; ok {
		t.Error("subscription still open after Close")
	}
	raw, err := store.DB.ReadRecords(model.AssetsTable)
	if err != nil {
		t.Fatalf("ReadRecords() error = %v", err)
	}
	if len(raw) != 1 {
		t.Errorf("persisted %d assets, want 1", len(raw))
	}
}

func TestNew(t *testing.T) {
	store := testutil.NewTestStore(t)

	if _, err := pcat.New(nil, pcat.Options{}); !errors.Is(err, pcat.ErrInvalidArgument) {
		t.Errorf("New(nil) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := pcat.New(store.DB, pcat.Options{ThumbnailCacheCapacity: -1}); !errors.Is(err, pcat.ErrInvalidArgument) {
		t.Errorf("New(capacity -1) error = %v, want ErrInvalidArgument", err)
	}
}
