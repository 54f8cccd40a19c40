package testutil

import (
	"path/filepath"
	"testing"

	"nowa-go/internal/vault"
)

// NewTestVault creates an archive vault in a temp directory.
func NewTestVault(t *testing.T) *vault.ArchiveVault {
	t.Helper()

	v, err := vault.NewArchiveVault(filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	return v
}
