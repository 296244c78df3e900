// Package identity implements the credential identity cache: a plaintext
// index of passkey metadata kept outside the sealed vault, so the platform
// credential picker can list credentials while the vault is locked. It holds
// only what WebAuthn discovery already exposes to the relying party.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/passkeyvault/internal/client/models"
	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/logging"
)

const cacheFilename = "identities.json"

// CredentialIdentity is one cache entry. Binary fields are base64url without
// padding. No private key, PRF secret, or other vault material ever lands
// here.
type CredentialIdentity struct {
	PasskeyID    string  `json:"passkeyId"`
	RpID         string  `json:"rpId"`
	UserName     string  `json:"userName"`
	DisplayName  string  `json:"displayName"`
	CredentialID string  `json:"credentialId"`
	UserHandle   *string `json:"userHandle,omitempty"`
}

// Cache persists the identity list as a single JSON file and serves lookups
// from memory. Safe for concurrent use.
type Cache struct {
	path string
	log  logging.Logger

	mu      sync.RWMutex
	entries []CredentialIdentity
	loaded  bool
}

// NewCache returns a Cache stored under dir. The file is read lazily on
// first lookup.
func NewCache(dir string, log logging.Logger) *Cache {
	if log == nil {
		log = logging.Discard()
	}
	return &Cache{path: filepath.Join(dir, cacheFilename), log: log.With("component", "identity")}
}

// Rebuild replaces the whole cache from the joined passkey rows. Partial
// updates are never performed; a failed rebuild leaves the previous file
// intact.
func (c *Cache) Rebuild(passkeys []models.PasskeyWithItem) error {
	entries := make([]CredentialIdentity, 0, len(passkeys))
	for i := range passkeys {
		e, err := entryFromPasskey(&passkeys[i])
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal identity cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := writeFileAtomic(c.path, data); err != nil {
		return fmt.Errorf("persist identity cache: %w", err)
	}
	c.entries = entries
	c.loaded = true

	c.log.Debug(context.Background(), "identity cache rebuilt", "entries", len(entries))
	return nil
}

// AllForRpID returns the cached identities whose rp id matches
// case-insensitively.
func (c *Cache) AllForRpID(rpID string) ([]CredentialIdentity, error) {
	entries, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	var result []CredentialIdentity
	for _, e := range entries {
		if strings.EqualFold(e.RpID, rpID) {
			result = append(result, e)
		}
	}
	return result, nil
}

// ByID returns the cached identity for a passkey id, or common.ErrorNotFound.
func (c *Cache) ByID(passkeyID string) (*CredentialIdentity, error) {
	entries, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].PasskeyID == passkeyID {
			e := entries[i]
			return &e, nil
		}
	}
	return nil, common.ErrorNotFound
}

// Clear removes the cache file. Used on full logout.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	c.loaded = true
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear identity cache: %w", err)
	}
	return nil
}

func (c *Cache) snapshot() ([]CredentialIdentity, error) {
	c.mu.RLock()
	if c.loaded {
		entries := c.entries
		c.mu.RUnlock()
		return entries, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.entries, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.entries = nil
			c.loaded = true
			return nil, nil
		}
		return nil, fmt.Errorf("read identity cache: %w", err)
	}

	var entries []CredentialIdentity
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse identity cache: %w", err)
	}
	c.entries = entries
	c.loaded = true
	return entries, nil
}

func entryFromPasskey(pw *models.PasskeyWithItem) (CredentialIdentity, error) {
	credID, err := pw.CredentialID()
	if err != nil {
		return CredentialIdentity{}, err
	}

	e := CredentialIdentity{
		PasskeyID:    pw.ID,
		RpID:         pw.RpID,
		UserName:     pw.UserName,
		DisplayName:  pw.DisplayName,
		CredentialID: common.B64URLEncode(credID),
	}
	if pw.UserHandle != nil {
		h := common.B64URLEncode(pw.UserHandle)
		e.UserHandle = &h
	}
	return e, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
