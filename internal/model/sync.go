package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMissingDirectory is returned when a sync definition lacks a source or destination.
var ErrMissingDirectory = errors.New("sync definition is missing a directory")

var (
	windowsDrivePath = regexp.MustCompile(`^[A-Za-z]:\\`)
	uncPath          = regexp.MustCompile(`^\\\\[^\\/]+\\[^\\/]+`)
	repeatedSlashes  = regexp.MustCompile(`/{2,}`)
	repeatedBacks    = regexp.MustCompile(`\\{2,}`)
)

// SyncAssetsDirectoriesDefinition pairs a source directory with the
// destination its assets are synchronised into.
type SyncAssetsDirectoriesDefinition struct {
	SourceDirectory         string `json:"source"`
	DestinationDirectory    string `json:"destination"`
	IncludeSubFolders       bool   `json:"include_sub_folders"`
	DeleteAssetsNotInSource bool   `json:"delete_assets_not_in_source"`
}

// Normalize collapses repeated path separators in both directories and
// strips trailing separators. UNC prefixes are kept.
func (d *SyncAssetsDirectoriesDefinition) Normalize() {
	d.SourceDirectory = normalizeDirectory(d.SourceDirectory)
	d.DestinationDirectory = normalizeDirectory(d.DestinationDirectory)
}

// IsValid reports whether both directories are absolute local, drive or UNC paths.
func (d *SyncAssetsDirectoriesDefinition) IsValid() bool {
	return isValidDirectory(d.SourceDirectory) && isValidDirectory(d.DestinationDirectory)
}

func normalizeDirectory(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	prefix := ""
	if strings.HasPrefix(p, `\\`) {
		prefix, p = `\\`, strings.TrimLeft(p, `\`)
	}
	p = repeatedBacks.ReplaceAllString(p, `\`)
	p = repeatedSlashes.ReplaceAllString(p, "/")
	for len(p) > 1 && (strings.HasSuffix(p, "/") || strings.HasSuffix(p, `\`)) {
		if windowsDrivePath.MatchString(p) && len(p) == 3 {
			break
		}
		p = p[:len(p)-1]
	}
	return prefix + p
}

func isValidDirectory(p string) bool {
	switch {
	case strings.HasPrefix(p, `\\`):
		return uncPath.MatchString(p)
	case strings.HasPrefix(p, "/"):
		return true
	default:
		return windowsDrivePath.MatchString(p)
	}
}

// SyncAssetsConfiguration is the ordered list of sync definitions.
type SyncAssetsConfiguration struct {
	Definitions []SyncAssetsDirectoriesDefinition
}

// Validate normalizes every definition and drops those with malformed paths.
// A definition with an empty source or destination fails the whole
// configuration with ErrMissingDirectory and leaves c untouched.
func (c *SyncAssetsConfiguration) Validate() error {
	for i, d := range c.Definitions {
		if strings.TrimSpace(d.SourceDirectory) == "" || strings.TrimSpace(d.DestinationDirectory) == "" {
			return fmt.Errorf("definition %d: %w", i, ErrMissingDirectory)
		}
	}
	kept := make([]SyncAssetsDirectoriesDefinition, 0, len(c.Definitions))
	for _, d := range c.Definitions {
		d.Normalize()
		if d.IsValid() {
			kept = append(kept, d)
		}
	}
	c.Definitions = kept
	return nil
}

// Clone returns a deep copy of the configuration.
func (c SyncAssetsConfiguration) Clone() SyncAssetsConfiguration {
	return SyncAssetsConfiguration{Definitions: append([]SyncAssetsDirectoriesDefinition(nil), c.Definitions...)}
}
