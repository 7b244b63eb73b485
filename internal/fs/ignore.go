package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// IgnoreFileName is the per-directory file listing extra ignore patterns.
// Its patterns apply to the directory holding it and everything below.
const IgnoreFileName = ".pcatignore"

// imageExtensions are the file types the thumbnail generator can decode.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff"}

// defaultIgnorePatterns cover what cameras, photo managers and NAS boxes
// leave next to the originals.
var defaultIgnorePatterns = []string{
	"._*",              // AppleDouble forks, which keep the image's extension
	"@eaDir/",          // Synology thumbnail cache
	".thumbnails/",     // freedesktop thumbnail cache
	".Trashes/",        // removable media trash
	"*.photoslibrary/", // Apple Photos library bundle
}

// storeDirs are the subdirectories of a catalog store version directory.
var storeDirs = []string{"Tables", "Blobs"}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

// rule is one parsed ignore pattern.
type rule struct {
	glob     string
	anchored bool // contains '/', matched against the path below the rule's directory
	dirOnly  bool // trailing '/', matches directories only
	negate   bool // leading '!', re-includes what an earlier rule excluded
}

func parseRules(raw []string) []rule {
	var rules []rule
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var r rule
		if rest, ok := strings.CutPrefix(line, "!"); ok {
			r.negate = true
			line = rest
		}
		if rest, ok := strings.CutSuffix(line, "/"); ok {
			r.dirOnly = true
			line = rest
		}
		line = strings.TrimPrefix(line, "/")
		if line == "" {
			continue
		}
		r.glob = line
		r.anchored = strings.Contains(line, "/")
		rules = append(rules, r)
	}
	return rules
}

func (r rule) match(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	subject := rel
	if !r.anchored {
		subject = path.Base(rel)
	}
	ok, err := path.Match(r.glob, subject)
	return err == nil && ok
}

// ScanFilter decides which entries of a photo tree get catalogued. It
// keeps image files only, applies the default, configured and
// per-directory .pcatignore rules, and never enters excluded directories
// or a catalog store found inside the tree.
//
// Relative paths passed to a ScanFilter are slash-separated and relative
// to the scan root; the root itself is "".
type ScanFilter struct {
	excluded []string
	rules    map[string][]rule // keyed by the directory the rules came from
}

// NewScanFilter creates a filter with patterns applied at the scan root.
// excluded lists absolute directories that are skipped with their
// contents, such as the catalog's own data and log directories.
func NewScanFilter(patterns []string, excluded ...string) *ScanFilter {
	f := &ScanFilter{rules: map[string][]rule{
		"": parseRules(slices.Concat(defaultIgnorePatterns, patterns)),
	}}
	for _, dir := range excluded {
		if dir == "" {
			continue
		}
		f.excluded = append(f.excluded, canonical(dir))
	}
	return f
}

// canonical makes dir absolute and resolves symlinks when it exists.
func canonical(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	return filepath.Clean(dir)
}

// Enter reads the .pcatignore of the directory at absDir, reached as rel.
// Call it for every directory before matching its entries.
func (f *ScanFilter) Enter(rel, absDir string) error {
	raw, err := ParseIgnoreFile(filepath.Join(absDir, IgnoreFileName))
	if err != nil {
		return err
	}
	if rules := parseRules(raw); len(rules) > 0 {
		f.rules[rel] = append(f.rules[rel], rules...)
	}
	return nil
}

// SkipDir reports whether the directory at absDir, reached as rel, must
// not be scanned.
func (f *ScanFilter) SkipDir(rel, absDir string) bool {
	if f.isExcluded(absDir) || isStoreVersionDir(absDir) {
		return true
	}
	return rel != "" && f.ignored(rel, true)
}

// Include reports whether the file reached as rel is a catalogued image.
func (f *ScanFilter) Include(rel string) bool {
	return IsImage(path.Base(rel)) && !f.ignored(rel, false)
}

// ignored applies rule sets from the root down to rel's parent. Within
// and across sets the last matching rule wins.
func (f *ScanFilter) ignored(rel string, isDir bool) bool {
	ignored := false
	for _, base := range ancestors(rel) {
		sub := rel
		if base != "" {
			sub = strings.TrimPrefix(rel, base+"/")
		}
		for _, r := range f.rules[base] {
			if r.match(sub, isDir) {
				ignored = !r.negate
			}
		}
	}
	return ignored
}

// ancestors returns "", "a", "a/b" for "a/b/c".
func ancestors(rel string) []string {
	out := []string{""}
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

func (f *ScanFilter) isExcluded(absDir string) bool {
	dir := canonical(absDir)
	for _, ex := range f.excluded {
		if dir == ex || strings.HasPrefix(dir, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// isStoreVersionDir reports whether dir looks like a catalog store
// version directory, which holds both Tables and Blobs.
func isStoreVersionDir(dir string) bool {
	for _, name := range storeDirs {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// ParseIgnoreFile reads a .pcatignore file and returns its raw lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
