package pcat

import (
	"fmt"
	"slices"

	"pcat-go/internal/model"
)

// MaxRecentTargetPaths bounds the recent target path list.
const MaxRecentTargetPaths = 20

// SaveSyncAssetsConfiguration validates cfg and writes it to its table
// immediately. Definitions with malformed paths are dropped. A definition
// without a source or destination fails the whole save and nothing is
// written.
func (c *CatalogCache) SaveSyncAssetsConfiguration(cfg model.SyncAssetsConfiguration) error {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := StoreTable(c.store, model.SyncDefinitionsTable, cfg.Definitions, model.EncodeSyncDefinition); err != nil {
		return fmt.Errorf("saving sync configuration: %w", err)
	}
	c.syncConfig = cfg
	c.notifier.Publish()
	return nil
}

// GetSyncAssetsConfiguration returns a copy of the sync configuration.
func (c *CatalogCache) GetSyncAssetsConfiguration() model.SyncAssetsConfiguration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncConfig.Clone()
}

// SaveRecentTargetPaths replaces the recent target paths, most recent
// first, and writes them immediately. Empty and repeated paths are
// dropped, the first occurrence winning, and the list is capped at
// MaxRecentTargetPaths.
func (c *CatalogCache) SaveRecentTargetPaths(paths []string) error {
	clean := dedupePaths(paths)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setRecentPaths(clean)
}

// AddRecentTargetPath moves path to the front of the recent target paths.
func (c *CatalogCache) AddRecentTargetPath(path string) error {
	if path == "" {
		return fmt.Errorf("target path required: %w", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setRecentPaths(dedupePaths(append([]string{path}, c.recentPaths...)))
}

func (c *CatalogCache) setRecentPaths(paths []string) error {
	if err := StoreTable(c.store, model.RecentTargetPathsTable, paths, model.EncodeRecentPath); err != nil {
		return fmt.Errorf("saving recent target paths: %w", err)
	}
	c.recentPaths = paths
	c.notifier.Publish()
	return nil
}

// GetRecentTargetPaths returns the recent target paths, most recent first.
func (c *CatalogCache) GetRecentTargetPaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.recentPaths)
}

func dedupePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, min(len(paths), MaxRecentTargetPaths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
		if len(out) == MaxRecentTargetPaths {
			break
		}
	}
	return out
}

func (c *CatalogCache) writeSyncDefinitions() error {
	return StoreTable(c.store, model.SyncDefinitionsTable, c.syncConfig.Definitions, model.EncodeSyncDefinition)
}

func (c *CatalogCache) writeRecentPaths() error {
	return StoreTable(c.store, model.RecentTargetPathsTable, c.recentPaths, model.EncodeRecentPath)
}
