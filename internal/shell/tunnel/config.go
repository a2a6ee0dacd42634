// Package tunnel manages the outbound tunnel daemon: its shared
// ingress configuration file and its process lifecycle. This is part
// of the Imperative Shell.
//
// The config file is shared, mutable state that other tooling may
// touch concurrently; every mutation goes read-merge-write through
// the core ingress package rather than trusting an in-memory view.
package tunnel

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stackhost/stackhost/internal/core/ingress"
)

// =============================================================================
// Config File
// =============================================================================

// DefaultConfigPath is where the daemon reads its configuration
// unless the deployment overrides it.
const DefaultConfigPath = "/etc/cloudflared/config.yml"

// ConfigFile wraps the on-disk ingress configuration document.
type ConfigFile struct {
	path   string
	logger *slog.Logger
}

// NewConfigFile creates a handle on the ingress configuration file.
// An empty path selects the daemon's default location.
func NewConfigFile(path string, logger *slog.Logger) *ConfigFile {
	if path == "" {
		path = DefaultConfigPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigFile{path: path, logger: logger}
}

// Path returns the file location.
func (f *ConfigFile) Path() string {
	return f.path
}

// Load reads and parses the current document. A missing file is a
// valid empty starting state, not an error.
func (f *ConfigFile) Load() (*ingress.Document, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &ingress.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ingress config %s: %w", f.path, err)
	}
	doc, err := ingress.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ingress config %s: %w", f.path, err)
	}
	return doc, nil
}

// Save serializes and persists the document, creating the parent
// directory if needed.
func (f *ConfigFile) Save(doc *ingress.Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize ingress config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ingress config %s: %w", f.path, err)
	}
	f.logger.Debug("wrote ingress config", "path", f.path, "rules", len(doc.Ingress))
	return nil
}
