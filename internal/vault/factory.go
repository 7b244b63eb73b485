package vault

import (
	"context"
	"fmt"

	"pcat-go/internal/config"
	"pcat-go/internal/pcat"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
// defaultRoot is used by filesystem vaults that leave fs_vault_root empty.
func NewVaultFromConfig(cfg config.VaultConfig, defaultRoot string) (pcat.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3Vault(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem", "":
		root := cfg.FSVaultRoot
		if root == "" {
			root = defaultRoot
		}
		if root == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, root)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}

// NewVaultsFromConfig builds every configured vault in order. The first is
// the primary; the rest are mirrors. With none configured a single
// filesystem vault at defaultRoot is returned.
func NewVaultsFromConfig(cfgs []config.VaultConfig, defaultRoot string) ([]pcat.Vault, error) {
	if len(cfgs) == 0 {
		cfgs = []config.VaultConfig{{Type: "filesystem", Name: "local"}}
	}
	vaults := make([]pcat.Vault, 0, len(cfgs))
	for i, c := range cfgs {
		v, err := NewVaultFromConfig(c, defaultRoot)
		if err != nil {
			return nil, fmt.Errorf("vault %d (%s): %w", i, c.Name, err)
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}
