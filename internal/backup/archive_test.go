package backup

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

// rawArchive builds a zstd tar stream holding the given entries verbatim.
func rawArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(zw)
	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		tw.Write([]byte(content))
	}
	tw.Close()
	zw.Close()
	return buf.Bytes()
}

func TestArchive_RoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"Tables/assets.db":  "a",
		"Tables/folders.db": "f",
		"Blobs/id-1.bin":    "",
	}
	for name, content := range files {
		path := filepath.Join(src, filepath.FromSlash(name))
		os.MkdirAll(filepath.Dir(path), 0755)
		os.WriteFile(path, []byte(content), 0644)
	}
	os.WriteFile(filepath.Join(src, "Tables", ".tmp-999"), []byte("partial"), 0644)
	os.MkdirAll(filepath.Join(src, "Backup"), 0755)
	os.WriteFile(filepath.Join(src, "Backup", "ledger.db"), []byte("ledger"), 0644)

	var buf bytes.Buffer
	n, err := writeArchive(&buf, src)
	if err != nil {
		t.Fatalf("writeArchive() error = %v", err)
	}
	if n != len(files) {
		t.Errorf("writeArchive() archived %d files, want %d", n, len(files))
	}

	dest := t.TempDir()
	got, err := extractArchive(&buf, dest)
	if err != nil {
		t.Fatalf("extractArchive() error = %v", err)
	}
	if got != len(files) {
		t.Errorf("extractArchive() extracted %d files, want %d", got, len(files))
	}
	for name, content := range files {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		if err != nil {
			t.Errorf("%s not extracted: %v", name, err)
			continue
		}
		if string(data) != content {
			t.Errorf("%s = %q, want %q", name, data, content)
		}
	}
	if _, err := os.Stat(filepath.Join(dest, "Backup")); !os.IsNotExist(err) {
		t.Error("Backup directory was archived")
	}
}

func TestArchive_MissingDirectories(t *testing.T) {
	var buf bytes.Buffer
	n, err := writeArchive(&buf, t.TempDir())
	if err != nil {
		t.Fatalf("writeArchive() error = %v", err)
	}
	if n != 0 {
		t.Errorf("writeArchive() archived %d files, want 0", n)
	}
}

func TestExtractArchive_RejectsUnsafeEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{name: "parent traversal", entry: "../evil"},
		{name: "nested traversal", entry: "Tables/../../evil"},
		{name: "absolute path", entry: "/etc/passwd"},
		{name: "outside store dirs", entry: "Backup/ledger.db"},
		{name: "nested directory", entry: "Tables/sub/x.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			data := rawArchive(t, map[string]string{tt.entry: "x"})

			_, err := extractArchive(bytes.NewReader(data), dest)
			if err == nil {
				t.Fatal("extractArchive() error = nil, want rejection")
			}
			if !strings.Contains(err.Error(), tt.entry) {
				t.Errorf("error %q does not name entry %q", err, tt.entry)
			}
		})
	}
}
