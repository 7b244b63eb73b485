package testutil

import (
	"testing"

	"pcat-go/internal/ledger"
)

// NewTestLedger creates an in-memory SQLite ledger closed at test cleanup.
func NewTestLedger(t *testing.T) *ledger.SQLiteLedger {
	t.Helper()

	l, err := ledger.NewSQLiteLedger(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteLedger() error = %v", err)
	}
	t.Cleanup(func() {
		l.Close()
	})
	return l
}
