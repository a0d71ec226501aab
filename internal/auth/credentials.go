// Package auth resolves credentials for MCP servers and runs the OAuth
// authorization flow when a server demands one.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Credential is stored OAuth or API key material for an MCP server. Configs
// reference credentials only by ID; the raw tokens never appear in a config
// document.
type Credential struct {
	ID            string    `json:"id"`
	ServerName    string    `json:"server_name"`
	ServerURL     string    `json:"server_url,omitempty"`
	ClientID      string    `json:"client_id,omitempty"`
	ClientSecret  string    `json:"client_secret,omitempty"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	TokenType     string    `json:"token_type,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	Scope         string    `json:"scope,omitempty"`
	TokenEndpoint string    `json:"token_endpoint,omitempty"`
}

// IsExpired checks if the credential is expired (with 5 minute buffer).
func (c *Credential) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(5 * time.Minute).After(c.ExpiresAt)
}

// NewCredentialID mints a storage key. The key is a timestamp plus random
// suffix, generated independently of any token material.
func NewCredentialID() string {
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("mcp_oauth_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(suffix))
}

// CredentialStore persists credentials keyed by credential ID.
type CredentialStore interface {
	// Get returns the credential with the given ID, or nil when absent.
	Get(id string) (*Credential, error)
	// Set stores cred under cred.ID, replacing any previous value.
	Set(cred *Credential) error
	// Remove deletes a credential. Removing an absent ID is a no-op.
	Remove(id string) error
	// List returns all stored credentials.
	List() ([]*Credential, error)
	// FindByServer returns the newest credential for a server name, or nil.
	// Discovered servers resolve this way since their configs cannot carry a
	// credential ID.
	FindByServer(server string) (*Credential, error)
}

// credentialFile is the on-disk document.
type credentialFile struct {
	Version     int                    `json:"version"`
	Credentials map[string]*Credential `json:"credentials"`
}

// FileStore keeps credentials in a JSON file with restricted permissions.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a store at the default path,
// ~/.config/mcpm/credentials.json on Linux.
func NewFileStore() *FileStore {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.Getenv("HOME")
	}
	return &FileStore{
		path: filepath.Join(configDir, "mcpm", "credentials.json"),
	}
}

// NewFileStoreWithPath creates a store with a custom path.
func NewFileStoreWithPath(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the credential file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (*credentialFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &credentialFile{Version: 1, Credentials: make(map[string]*Credential)}, nil
	}
	if err != nil {
		return nil, err
	}

	var cf credentialFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	if cf.Credentials == nil {
		cf.Credentials = make(map[string]*Credential)
	}
	return &cf, nil
}

func (s *FileStore) save(cf *credentialFile) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename so a crash never leaves a torn credential file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *FileStore) Get(id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cf, err := s.load()
	if err != nil {
		return nil, err
	}
	return cf.Credentials[id], nil
}

func (s *FileStore) Set(cred *Credential) error {
	if cred.ID == "" {
		return fmt.Errorf("credential has no ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return err
	}
	cf.Credentials[cred.ID] = cred
	return s.save(cf)
}

func (s *FileStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return err
	}
	delete(cf.Credentials, id)
	return s.save(cf)
}

func (s *FileStore) List() ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cf, err := s.load()
	if err != nil {
		return nil, err
	}
	creds := make([]*Credential, 0, len(cf.Credentials))
	for _, c := range cf.Credentials {
		creds = append(creds, c)
	}
	return creds, nil
}

func (s *FileStore) FindByServer(server string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cf, err := s.load()
	if err != nil {
		return nil, err
	}

	var newest *Credential
	for _, c := range cf.Credentials {
		if c.ServerName != server {
			continue
		}
		// IDs start with a millisecond timestamp, so the lexicographically
		// greatest ID is the newest credential.
		if newest == nil || c.ID > newest.ID {
			newest = c
		}
	}
	return newest, nil
}

// HasAuth reports whether any credential is stored for the server.
func (s *FileStore) HasAuth(server string) bool {
	cred, err := s.FindByServer(server)
	return err == nil && cred != nil
}
