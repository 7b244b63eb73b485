package ledger

import (
	"fmt"
	"path/filepath"

	"pcat-go/internal/config"
)

// NewLedgerFromConfig creates the backup ledger described by cfg.
// backupDir is where a "sqlite" ledger keeps its file.
func NewLedgerFromConfig(cfg config.LedgerConfig, backupDir string) (*SQLiteLedger, error) {
	switch cfg.Type {
	case "sqlite", "":
		if backupDir == "" {
			return nil, fmt.Errorf("backup directory required for sqlite ledger")
		}
		return NewSQLiteLedger(filepath.Join(backupDir, "ledger.db"))
	case "memory":
		return NewSQLiteLedger(":memory:")
	default:
		return nil, fmt.Errorf("unknown ledger type: %s", cfg.Type)
	}
}
