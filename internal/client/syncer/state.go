package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const stateFilename = "syncstate.json"

// persistedState is the plaintext sync bookkeeping kept next to the sealed
// vault. Nothing in it is secret: a revision counter, a dirty marker, and
// the last account name used to pre-fill the login prompt after a forced
// logout.
type persistedState struct {
	LastSyncedRevision int64  `json:"lastSyncedRevision"`
	Dirty              bool   `json:"dirty"`
	LastUsername       string `json:"lastUsername,omitempty"`
}

func loadState(path string) (persistedState, error) {
	var st persistedState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read sync state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse sync state: %w", err)
	}
	return st, nil
}

func saveState(path string, st persistedState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	return os.Rename(tmp, path)
}

func statePath(dir string) string {
	return filepath.Join(dir, stateFilename)
}
