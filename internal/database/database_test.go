package database_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"pcat-go/internal/database"
	"pcat-go/internal/model"
	"pcat-go/internal/pcat"
	"pcat-go/internal/testutil"
)

func TestOpen(t *testing.T) {
	t.Run("creates layout", func(t *testing.T) {
		store := testutil.NewTestStore(t)

		for _, dir := range []string{store.Layout.TablesDir(), store.Layout.BlobsDir(), store.Layout.BackupDir()} {
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				t.Errorf("%s not created: %v", dir, err)
			}
		}
		if !strings.HasSuffix(store.Layout.Dir(), "v1.0") {
			t.Errorf("Dir() = %q, want version suffix", store.Layout.Dir())
		}
	})

	t.Run("requires root and version", func(t *testing.T) {
		_, err := database.Open(database.NewLayout("", "v1.0"), nil, pcat.NewNopLogger(), testutil.FixedClock())
		if !errors.Is(err, pcat.ErrInvalidArgument) {
			t.Errorf("Open() error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("restores latest snapshot into empty store", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		if err := pcat.StoreTable(store.DB, model.FoldersTable, []*model.Folder{{ID: "f1", Path: "/a"}}, model.EncodeFolder); err != nil {
			t.Fatalf("StoreTable() error = %v", err)
		}
		if err := store.DB.WriteBlob("f1.bin", map[string][]byte{"x.jpg": []byte("thumb")}); err != nil {
			t.Fatalf("WriteBlob() error = %v", err)
		}
		if _, err := store.Engine.Snapshot(store.Layout.Dir()); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}

		fresh := database.NewLayout(t.TempDir(), "v1.0")
		restored := testutil.OpenTestStore(t, fresh, store.Vault, store.Ledger)

		folders, _, err := pcat.LoadTable(restored.DB, pcat.NewNopLogger(), model.FoldersTable, model.DecodeFolder)
		if err != nil {
			t.Fatalf("LoadTable() error = %v", err)
		}
		if len(folders) != 1 || folders[0].Path != "/a" {
			t.Errorf("restored folders = %+v", folders)
		}
		blob, err := restored.DB.ReadBlob("f1.bin")
		if err != nil {
			t.Fatalf("ReadBlob() error = %v", err)
		}
		if string(blob["x.jpg"]) != "thumb" {
			t.Errorf("restored blob = %v", blob)
		}
	})
}

func TestDatabase_Flush(t *testing.T) {
	t.Run("nothing dirty does nothing", func(t *testing.T) {
		store := testutil.NewTestStore(t)

		if err := store.DB.Flush(); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
		history, _ := store.DB.BackupHistory(0)
		if len(history) != 0 {
			t.Errorf("Flush() with nothing dirty took %d snapshots", len(history))
		}
	})

	t.Run("writes in key order and snapshots", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		var order []string
		for _, key := range []string{"table:b", "blob:a", "table:a"} {
			store.DB.MarkDirty(key, func() error {
				order = append(order, key)
				return nil
			})
		}
		if !store.DB.HasChanges() {
			t.Fatal("HasChanges() = false after MarkDirty")
		}

		if err := store.DB.Flush(); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
		if want := []string{"blob:a", "table:a", "table:b"}; !slices.Equal(order, want) {
			t.Errorf("write order = %v, want %v", order, want)
		}
		if store.DB.HasChanges() {
			t.Error("HasChanges() = true after Flush")
		}
		history, _ := store.DB.BackupHistory(0)
		if len(history) != 1 {
			t.Errorf("len(BackupHistory()) = %d, want 1", len(history))
		}
	})

	t.Run("later mark replaces earlier", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		var got string
		store.DB.MarkDirty("k", func() error { got = "first"; return nil })
		store.DB.MarkDirty("k", func() error { got = "second"; return nil })

		if err := store.DB.Flush(); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
		if got != "second" {
			t.Errorf("ran %q write, want second", got)
		}
	})

	t.Run("failed writes stay dirty and are joined", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		errA := errors.New("disk full")
		errB := errors.New("permission denied")
		wrote := false
		store.DB.MarkDirty("a", func() error { return errA })
		store.DB.MarkDirty("b", func() error { return errB })
		store.DB.MarkDirty("c", func() error { wrote = true; return nil })

		err := store.DB.Flush()
		if !errors.Is(err, errA) || !errors.Is(err, errB) {
			t.Fatalf("Flush() error = %v, want both write errors", err)
		}
		if !wrote {
			t.Error("healthy key was not written")
		}
		if !store.DB.HasChanges() {
			t.Error("HasChanges() = false, want failed keys still dirty")
		}
		history, _ := store.DB.BackupHistory(0)
		if len(history) != 0 {
			t.Errorf("snapshot taken after failed flush")
		}
	})

	t.Run("mark during flush survives", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		remark := func() error {
			store.DB.MarkDirty("k", func() error { return nil })
			return nil
		}
		store.DB.MarkDirty("k", remark)

		if err := store.DB.Flush(); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
		if !store.DB.HasChanges() {
			t.Error("HasChanges() = false, want the newer mark kept")
		}
	})
}

func TestDatabase_FlushKey(t *testing.T) {
	store := testutil.NewTestStore(t)
	var ran []string
	store.DB.MarkDirty("a", func() error { ran = append(ran, "a"); return nil })
	store.DB.MarkDirty("b", func() error { ran = append(ran, "b"); return nil })

	if err := store.DB.FlushKey("a"); err != nil {
		t.Fatalf("FlushKey() error = %v", err)
	}
	if err := store.DB.FlushKey("missing"); err != nil {
		t.Fatalf("FlushKey(missing) error = %v", err)
	}
	if !slices.Equal(ran, []string{"a"}) {
		t.Errorf("ran %v, want [a]", ran)
	}
	if !store.DB.HasChanges() {
		t.Error("HasChanges() = false, want b still dirty")
	}
	history, _ := store.DB.BackupHistory(0)
	if len(history) != 0 {
		t.Error("FlushKey() took a snapshot")
	}
}

func TestDatabase_TableRecovery(t *testing.T) {
	t.Run("recovers corrupt table from snapshot", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		paths := []string{"/x", "/y"}
		if err := pcat.StoreTable(store.DB, model.RecentTargetPathsTable, paths, model.EncodeRecentPath); err != nil {
			t.Fatalf("StoreTable() error = %v", err)
		}
		if _, err := store.Engine.Snapshot(store.Layout.Dir()); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		tablePath := store.Layout.TablePath(model.RecentTargetPathsTable)
		os.WriteFile(tablePath, []byte("{broken\n"), 0644)

		got, recovered, err := pcat.LoadTable(store.DB, pcat.NewNopLogger(), model.RecentTargetPathsTable, model.DecodeRecentPath)
		if err != nil {
			t.Fatalf("LoadTable() error = %v", err)
		}
		if !recovered {
			t.Error("LoadTable() recovered = false, want true")
		}
		if !slices.Equal(got, paths) {
			t.Errorf("LoadTable() = %v, want %v", got, paths)
		}
	})

	t.Run("no snapshot", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		os.WriteFile(store.Layout.TablePath(model.FoldersTable), []byte("{broken\n"), 0644)

		_, _, err := pcat.LoadTable(store.DB, pcat.NewNopLogger(), model.FoldersTable, model.DecodeFolder)
		if !errors.Is(err, pcat.ErrCorruptTable) || !errors.Is(err, pcat.ErrNoBackup) {
			t.Errorf("LoadTable() error = %v, want ErrCorruptTable and ErrNoBackup", err)
		}
	})

	t.Run("without backup engine", func(t *testing.T) {
		layout := database.NewLayout(t.TempDir(), "v1.0")
		db, err := database.Open(layout, nil, pcat.NewNopLogger(), testutil.FixedClock())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if _, err := db.RecoverRecords(model.AssetsTable); !errors.Is(err, pcat.ErrNoBackup) {
			t.Errorf("RecoverRecords() error = %v, want ErrNoBackup", err)
		}
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
}

func TestDatabase_Blobs(t *testing.T) {
	store := testutil.NewTestStore(t)

	got, err := store.DB.ReadBlob("missing.bin")
	if err != nil {
		t.Fatalf("ReadBlob() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadBlob(missing) = %v, want empty", got)
	}

	if err := store.DB.WriteBlob("f.bin", map[string][]byte{"a": {}}); err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Layout.BlobsDir(), "f.bin")); err != nil {
		t.Errorf("blob file missing: %v", err)
	}

	os.WriteFile(store.Layout.BlobPath("bad.bin"), []byte("junk"), 0644)
	if _, err := store.DB.ReadBlob("bad.bin"); !errors.Is(err, pcat.ErrCorruptBlob) {
		t.Errorf("ReadBlob(bad) error = %v, want ErrCorruptBlob", err)
	}

	if err := store.DB.DeleteBlob("f.bin"); err != nil {
		t.Fatalf("DeleteBlob() error = %v", err)
	}
	if _, err := os.Stat(store.Layout.BlobPath("f.bin")); !os.IsNotExist(err) {
		t.Errorf("blob still present after DeleteBlob: %v", err)
	}
}

func TestDatabase_BlobNameOutsideBlobsDir(t *testing.T) {
	store := testutil.NewTestStore(t)

	for _, name := range []string{"../escaped.bin", "../../escaped.bin", "sub/x.bin", ".."} {
		t.Run(name, func(t *testing.T) {
			if err := store.DB.WriteBlob(name, map[string][]byte{"a": []byte("x")}); !errors.Is(err, pcat.ErrInvalidArgument) {
				t.Errorf("WriteBlob(%q) error = %v, want ErrInvalidArgument", name, err)
			}
			if _, err := store.DB.ReadBlob(name); !errors.Is(err, pcat.ErrInvalidArgument) {
				t.Errorf("ReadBlob(%q) error = %v, want ErrInvalidArgument", name, err)
			}
			if err := store.DB.DeleteBlob(name); !errors.Is(err, pcat.ErrInvalidArgument) {
				t.Errorf("DeleteBlob(%q) error = %v, want ErrInvalidArgument", name, err)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(store.Layout.Dir(), "escaped.bin")); !os.IsNotExist(err) {
		t.Errorf("blob written outside Blobs: %v", err)
	}
}
