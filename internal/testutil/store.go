package testutil

import (
	"testing"

	"pcat-go/internal/backup"
	"pcat-go/internal/database"
	"pcat-go/internal/ledger"
	"pcat-go/internal/pcat"
	"pcat-go/internal/vault"
)

// TestStore is a Database in a temp directory backed up into an
// in-memory vault with an in-memory ledger.
type TestStore struct {
	Layout database.Layout
	Vault  *vault.MemoryVault
	Ledger *ledger.SQLiteLedger
	Engine *backup.Engine
	Clock  *StubClock
	DB     *database.Database
}

// NewTestStore creates a TestStore rooted in t.TempDir().
func NewTestStore(t *testing.T) *TestStore {
	t.Helper()
	return OpenTestStore(t, database.NewLayout(t.TempDir(), "v1.0"), NewTestVault(), NewTestLedger(t))
}

// OpenTestStore opens a Database over layout backed up into v and l.
// Reopening with the same arguments simulates a restart.
func OpenTestStore(t *testing.T, layout database.Layout, v *vault.MemoryVault, l *ledger.SQLiteLedger) *TestStore {
	t.Helper()

	clock := FixedClock()
	logger := pcat.NewNopLogger()
	eng, err := backup.NewEngine([]pcat.Vault{v}, l, nil, logger, clock, NewStubIDGenerator(), backup.Options{})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	db, err := database.Open(layout, eng, logger, clock)
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	return &TestStore{
		Layout: layout,
		Vault:  v,
		Ledger: l,
		Engine: eng,
		Clock:  clock,
		DB:     db,
	}
}
