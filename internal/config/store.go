package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/standardbeagle/mcpm/internal/logging"
)

// Store reads and writes the scope documents and scans discovery providers.
//
// Reads never fail on a missing or corrupt document: config absence is
// normal, so both cases yield an empty document. Writes are read-modify-write
// cycles serialized by a mutex and committed atomically (temp file + rename),
// so a concurrent reader observes either the old or the new document, never a
// partially written one.
type Store struct {
	userPath    string
	projectPath string
	providers   []Provider
	mu          sync.Mutex
	logger      logging.Logger
}

// NewStore creates a Store over the default document paths for projectDir,
// with the default discovery providers.
func NewStore(projectDir string) *Store {
	return &Store{
		userPath:    UserConfigPath(),
		projectPath: ProjectConfigPath(projectDir),
		providers:   DefaultProviders(projectDir),
		logger:      logging.Default(),
	}
}

// NewStoreWithPaths creates a Store over explicit document paths (for
// testing). Only the given providers are scanned.
func NewStoreWithPaths(userPath, projectPath string, providers ...Provider) *Store {
	return &Store{
		userPath:    userPath,
		projectPath: projectPath,
		providers:   providers,
		logger:      logging.Nop(),
	}
}

func (s *Store) pathFor(scope Scope) string {
	if scope == ScopeUser {
		return s.userPath
	}
	return s.projectPath
}

// Read returns the document for a scope. A missing or unparseable file
// returns an empty document, not an error.
func (s *Store) Read(scope Scope) (*Document, error) {
	path := s.pathFor(scope)
	if path == "" {
		return NewDocument(), nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s config: %w", scope, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("ignoring corrupt config document", "scope", scope.String(), "path", path, "error", err)
		return NewDocument(), nil
	}
	if doc.MCPServers == nil {
		doc.MCPServers = make(map[string]ServerConfig)
	}
	return &doc, nil
}

// write commits a document atomically: marshal, write a temp file in the same
// directory, rename over the target.
func (s *Store) write(scope Scope, doc *Document) error {
	path := s.pathFor(scope)
	if path == "" {
		return fmt.Errorf("no path configured for %s scope", scope)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s config: %w", scope, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename config file: %w", err)
	}
	return nil
}

// Add inserts a new server into a scope document. A name may live in at most
// one scope, so adding a name owned anywhere fails with DuplicateServerError.
func (s *Store) Add(scope Scope, name string, cfg ServerConfig) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sc := range Scopes() {
		doc, err := s.Read(sc)
		if err != nil {
			return err
		}
		if _, exists := doc.MCPServers[name]; exists {
			return &DuplicateServerError{Name: name, Scope: sc}
		}
	}

	doc, err := s.Read(scope)
	if err != nil {
		return err
	}
	doc.MCPServers[name] = cfg
	return s.write(scope, doc)
}

// Update replaces an existing server entry in the given scope.
func (s *Store) Update(scope Scope, name string, cfg ServerConfig) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Read(scope)
	if err != nil {
		return err
	}
	if _, exists := doc.MCPServers[name]; !exists {
		return &ServerNotFoundError{Name: name}
	}
	doc.MCPServers[name] = cfg
	return s.write(scope, doc)
}

// Remove deletes a server entry from the given scope.
func (s *Store) Remove(scope Scope, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Read(scope)
	if err != nil {
		return err
	}
	if _, exists := doc.MCPServers[name]; !exists {
		return &ServerNotFoundError{Name: name}
	}
	delete(doc.MCPServers, name)
	return s.write(scope, doc)
}

// Find looks a name up across scopes in precedence order (user first). The
// returned scope is the document that owns the name and is the target for
// subsequent writes.
func (s *Store) Find(name string) (ServerConfig, Scope, error) {
	for _, scope := range Scopes() {
		doc, err := s.Read(scope)
		if err != nil {
			return ServerConfig{}, scope, err
		}
		if cfg, ok := doc.MCPServers[name]; ok {
			return cfg, scope, nil
		}
	}
	return ServerConfig{}, ScopeUser, &ServerNotFoundError{Name: name}
}

// SetDisabled flips a name on the disabled side-list. The list suppresses
// discovered servers only and lives in the user document, so any other scope
// is rejected.
func (s *Store) SetDisabled(scope Scope, name string, disabled bool) error {
	if scope != ScopeUser {
		return fmt.Errorf("disabled server list is kept in the user document, not %s", scope)
	}
	if err := ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Read(ScopeUser)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(doc.DisabledServers)+1)
	found := false
	for _, n := range doc.DisabledServers {
		if n == name {
			found = true
			if !disabled {
				continue // drop it
			}
		}
		names = append(names, n)
	}
	if disabled && !found {
		names = append(names, name)
	}
	doc.DisabledServers = names

	return s.write(ScopeUser, doc)
}

// DisabledNames returns the disabled side-list of a scope as a set.
func (s *Store) DisabledNames(scope Scope) (map[string]bool, error) {
	doc, err := s.Read(scope)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(doc.DisabledServers))
	for _, n := range doc.DisabledServers {
		set[n] = true
	}
	return set, nil
}

// DesiredSet computes the full set of servers that should be connected:
// enabled owned entries (user scope shadowing project) plus discovered
// servers not suppressed by the disabled side-list. Owned names shadow
// discovered ones.
func (s *Store) DesiredSet() (map[string]Entry, error) {
	entries := make(map[string]Entry)

	for _, scope := range Scopes() {
		doc, err := s.Read(scope)
		if err != nil {
			return nil, err
		}
		path := s.pathFor(scope)
		for name, cfg := range doc.MCPServers {
			if _, exists := entries[name]; exists {
				continue // user scope wins
			}
			if !cfg.IsEnabled() {
				continue
			}
			entries[name] = Entry{
				Name:   name,
				Config: cfg,
				Origin: Origin{Scope: scope, Path: path},
			}
		}
	}

	disabled, err := s.DisabledNames(ScopeUser)
	if err != nil {
		return nil, err
	}
	for _, ds := range s.Discovered() {
		if _, exists := entries[ds.Name]; exists {
			continue
		}
		if disabled[ds.Name] {
			continue
		}
		if !ds.Config.IsEnabled() {
			continue
		}
		entries[ds.Name] = Entry{Name: ds.Name, Config: ds.Config, Origin: ds.Source}
	}

	return entries, nil
}
