// Package cache persists tool listings between runs so commands can show a
// server's tools without dialing it first.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/standardbeagle/mcpm/internal/config"
)

// SchemaVersion is the cache file schema version. A mismatch discards the
// whole file.
const SchemaVersion = 1

// CachedTool is a stored tool listing entry.
type CachedTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Server      string         `json:"server"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Entry holds the cached tool metadata for one MCP server.
type Entry struct {
	// ConfigHash fingerprints the identity fields of the config the tools
	// came from. A changed config invalidates the entry.
	ConfigHash    string       `json:"config_hash"`
	ServerName    string       `json:"server_name"`
	ServerVersion string       `json:"server_version"`
	Tools         []CachedTool `json:"tools"`
	CachedAt      time.Time    `json:"cached_at"`
}

// File is the on-disk document, keyed by server name.
type File struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Store is thread-safe access to the tool cache file.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a Store at the default location,
// ~/.config/mcpm/cache/tools.json on Linux.
func NewStore() *Store {
	return &Store{path: defaultCachePath()}
}

// NewStoreWithPath creates a Store at the given path.
func NewStoreWithPath(path string) *Store {
	return &Store{path: path}
}

func defaultCachePath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "mcpm", "cache", "tools.json")
}

// ConfigHash fingerprints the fields that decide which server a config
// dials: Type, Command, Args, URL, Headers, Env. Tuning fields like Timeout
// or MaxRetries do not invalidate cached tools.
func ConfigHash(cfg config.ServerConfig) string {
	h := sha256.New()

	write := func(label, value string) {
		h.Write([]byte(label))
		h.Write([]byte(":"))
		h.Write([]byte(value))
		h.Write([]byte("\n"))
	}

	write("type", cfg.Type)
	write("command", cfg.Command)
	write("args", strings.Join(cfg.Args, "\x00"))
	write("url", cfg.URL)
	write("headers", sortedMapString(cfg.Headers))
	write("env", sortedMapString(cfg.Env))

	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// sortedMapString renders a map deterministically for hashing.
func sortedMapString(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
		b.WriteByte('\x00')
	}
	return b.String()
}

// Load reads the cache file. A missing, corrupt, or outdated file loads as
// empty; the cache is advisory and never blocks a connection.
func (s *Store) Load() (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadLocked()
}

func (s *Store) loadLocked() (*File, error) {
	if s.path == "" {
		return emptyFile(), nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return emptyFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return emptyFile(), nil
	}
	if f.Version != SchemaVersion {
		return emptyFile(), nil
	}
	if f.Entries == nil {
		f.Entries = make(map[string]*Entry)
	}
	return &f, nil
}

// Save writes the cache file atomically.
func (s *Store) Save(f *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(f)
}

func (s *Store) saveLocked(f *File) error {
	if s.path == "" {
		return fmt.Errorf("cache path not configured")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// GetEntry returns the entry for a server, or nil when absent.
func (s *Store) GetEntry(name string) (*Entry, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	return f.Entries[name], nil
}

// SetEntry stores an entry under the server name.
func (s *Store) SetEntry(name string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadLocked()
	if err != nil {
		return err
	}
	f.Entries[name] = entry
	return s.saveLocked(f)
}

// RemoveEntry drops a server's entry. Removing an absent name is a no-op.
func (s *Store) RemoveEntry(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.loadLocked()
	if err != nil {
		return err
	}
	delete(f.Entries, name)
	return s.saveLocked(f)
}

// IsValid reports whether a cached entry exists for name and still matches
// the config it was recorded under.
func (s *Store) IsValid(name string, cfg config.ServerConfig) bool {
	entry, err := s.GetEntry(name)
	if err != nil || entry == nil {
		return false
	}
	return entry.ConfigHash == ConfigHash(cfg)
}

func emptyFile() *File {
	return &File{
		Version: SchemaVersion,
		Entries: make(map[string]*Entry),
	}
}
