package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ImageFile is an image discovered on disk.
type ImageFile struct {
	Path     string // absolute path
	Dir      string // absolute directory holding the file
	Name     string
	Size     int64
	Created  time.Time
	Modified time.Time
}

// Finder discovers image files under a directory, skipping ignored paths.
type Finder struct {
	patterns []string
	excluded []string
}

// NewFinder creates a Finder applying patterns in addition to the
// defaults and each directory's .pcatignore. Directories in excluded are
// never scanned.
func NewFinder(patterns []string, excluded ...string) *Finder {
	return &Finder{patterns: patterns, excluded: excluded}
}

// ResolveDir returns the absolute form of rawPath after checking that it
// is a real directory.
func ResolveDir(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Lstat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("symlinks not supported: %s", absPath)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", absPath)
	}
	return absPath, nil
}

// FindImages lists the image files in dir, descending into
// subdirectories when recursive is set. Results are ordered by path.
func (f *Finder) FindImages(dir string, recursive bool) ([]ImageFile, error) {
	root, err := ResolveDir(dir)
	if err != nil {
		return nil, err
	}
	filter := NewScanFilter(f.patterns, f.excluded...)

	var images []ImageFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if p == root {
				rel = ""
			} else if !recursive {
				return filepath.SkipDir
			}
			if filter.SkipDir(rel, p) {
				return filepath.SkipDir
			}
			return filter.Enter(rel, p)
		}
		if !d.Type().IsRegular() || !filter.Include(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		images = append(images, ImageFile{
			Path:     p,
			Dir:      filepath.Dir(p),
			Name:     d.Name(),
			Size:     info.Size(),
			Created:  creationTime(info),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return images, nil
}
