package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/passkeyvault/internal/cryptox"
)

const (
	headerFilename = "header.json"
	blobFilename   = "vault.blob"
	liveFilename   = "vault.live.db"

	headerVersion = 1
)

// Header is the plaintext metadata persisted next to the sealed blob. It
// contains nothing secret: the salt and KDF parameters are needed before the
// password is known, and the verifier is a one-way check value.
type Header struct {
	Version   int                  `json:"version"`
	Salt      []byte               `json:"salt"`
	KDF       cryptox.Argon2Params `json:"kdf"`
	Verifier  []byte               `json:"verifier"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

func (s *Store) headerPath() string { return filepath.Join(s.dir, headerFilename) }
func (s *Store) blobPath() string   { return filepath.Join(s.dir, blobFilename) }
func (s *Store) livePath() string   { return filepath.Join(s.dir, liveFilename) }

func loadHeader(path string) (Header, error) {
	var hdr Header

	data, err := os.ReadFile(path)
	if err != nil {
		return hdr, err
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return hdr, fmt.Errorf("decode header: %w", err)
	}
	if hdr.Version != headerVersion {
		return hdr, fmt.Errorf("unsupported header version %d", hdr.Version)
	}
	return hdr, nil
}

func saveHeader(path string, hdr Header) error {
	data, err := json.MarshalIndent(hdr, "", "  ")
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic replaces path via temp file + rename so a crash mid-write
// never leaves a truncated file behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
