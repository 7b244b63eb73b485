package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// archivedDirs are the store directories captured in a snapshot.
var archivedDirs = []string{"Tables", "Blobs"}

// writeArchive writes the Tables and Blobs directories under root as a
// zstd-compressed tar stream. In-flight temp files are skipped. It returns
// the number of files archived.
func writeArchive(w io.Writer, root string) (int, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("creating zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	files := 0
	for _, dir := range archivedDirs {
		n, err := addDir(tw, root, dir)
		if err != nil {
			zw.Close()
			return 0, err
		}
		files += n
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return 0, fmt.Errorf("closing tar stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("closing zstd stream: %w", err)
	}
	return files, nil
}

func addDir(tw *tar.Writer, root, dir string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(root, dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".tmp-") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		if err := addFile(tw, filepath.Join(root, dir, name), path.Join(dir, name)); err != nil {
			return 0, err
		}
	}
	return len(names), nil
}

func addFile(tw *tar.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", name, err)
	}
	if _, err := io.CopyN(tw, f, info.Size()); err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}
	return nil
}

// extractArchive unpacks a stream produced by writeArchive into dest.
// Entries outside Tables/ and Blobs/, absolute paths and ".." components
// are rejected. Each file is written to a temp name and renamed.
func extractArchive(r io.Reader, dest string) (int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	files := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		target, err := safeTarget(dest, hdr.Name)
		if err != nil {
			return files, err
		}
		if err := extractFile(tr, target); err != nil {
			return files, err
		}
		files++
	}
}

func safeTarget(dest, name string) (string, error) {
	clean := path.Clean(name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	dir, file := path.Split(clean)
	if file == "" || !slices.Contains(archivedDirs, strings.TrimSuffix(dir, "/")) {
		return "", fmt.Errorf("unexpected archive entry %q", name)
	}
	return filepath.Join(dest, filepath.FromSlash(clean)), nil
}

func extractFile(r io.Reader, target string) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("extracting %s: %w", filepath.Base(target), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s: %w", filepath.Base(target), err)
	}
	return nil
}
