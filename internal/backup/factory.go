package backup

import (
	"fmt"

	"pcat-go/internal/config"
	"pcat-go/internal/ledger"
	"pcat-go/internal/pcat"
	"pcat-go/internal/vault"
)

// NewEngineFromConfig builds the vaults, ledger and Engine described by cfg.
// backupDir is the store's Backup directory, used by filesystem vaults
// without a root of their own and by the sqlite ledger. The caller closes
// the returned ledger.
func NewEngineFromConfig(cfg *config.Config, backupDir string, enc pcat.Encryptor, logger pcat.Logger, clock pcat.Clock, idgen pcat.IDGenerator) (*Engine, *ledger.SQLiteLedger, error) {
	vaults, err := vault.NewVaultsFromConfig(cfg.Vaults, backupDir)
	if err != nil {
		return nil, nil, fmt.Errorf("creating vaults: %w", err)
	}
	for _, v := range vaults {
		if err := v.ValidateSetup(); err != nil {
			return nil, nil, fmt.Errorf("vault %s: %w", v.Name(), err)
		}
	}

	l, err := ledger.NewLedgerFromConfig(cfg.Ledger, backupDir)
	if err != nil {
		return nil, nil, fmt.Errorf("creating ledger: %w", err)
	}

	eng, err := NewEngine(vaults, l, enc, logger, clock, idgen, Options{
		Generations: cfg.Backup.Generations,
		MinInterval: cfg.Backup.MinInterval.Duration,
		Encrypt:     cfg.Backup.Encrypt,
	})
	if err != nil {
		l.Close()
		return nil, nil, err
	}
	return eng, l, nil
}
