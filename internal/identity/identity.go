// Package identity resolves the active user id. When no id is configured it
// mints an anonymous one and persists it next to the data files, so restarts
// keep the same ledger.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const anonFile = "identity"

// Resolve returns the configured id when set, otherwise loads or creates a
// persisted anonymous id under stateDir.
func Resolve(configured, stateDir string) (string, error) {
	if id := strings.TrimSpace(configured); id != "" {
		return id, nil
	}
	return loadOrCreate(stateDir)
}

func loadOrCreate(stateDir string) (string, error) {
	path := filepath.Join(stateDir, anonFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read identity file: %w", err)
	}

	id := "anon-" + uuid.NewString()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist identity: %w", err)
	}
	return id, nil
}
