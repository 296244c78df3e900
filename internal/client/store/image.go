package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
)

// Image is the transferable form of the whole vault: the plaintext header
// plus the sealed blob. This is what sync uploads and downloads; the server
// never sees anything it could decrypt.
type Image struct {
	Header Header `json:"header"`
	Blob   []byte `json:"blob"`
}

// ExportImage snapshots the persisted vault for upload. Taken under the read
// lock so it never observes a half-written reseal.
func (s *Store) ExportImage() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hdr, err := loadHeader(s.headerPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNotInitialized
		}
		return nil, err
	}

	blob, err := os.ReadFile(s.blobPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNotInitialized
		}
		return nil, fmt.Errorf("read vault blob: %w", err)
	}

	return json.Marshal(Image{Header: hdr, Blob: blob})
}

// ImportImage replaces the local vault files with a downloaded image. The
// store must be locked: replacing the blob under a live connection would
// desynchronize the working copy.
func (s *Store) ImportImage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return errors.New("cannot import into an unlocked vault")
	}

	var img Image
	if err := json.Unmarshal(data, &img); err != nil {
		return fmt.Errorf("decode vault image: %w", err)
	}
	if img.Header.Version != headerVersion {
		return fmt.Errorf("unsupported vault image version %d", img.Header.Version)
	}
	if len(img.Blob) == 0 {
		return errors.New("vault image has no blob")
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}
	if err := writeFileAtomic(s.blobPath(), img.Blob); err != nil {
		return err
	}
	return saveHeader(s.headerPath(), img.Header)
}
