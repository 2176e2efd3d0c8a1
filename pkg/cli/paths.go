package cli

import (
	"os"
	"path/filepath"
)

// Paths resolves the per-app directory layout under ~/.giztoy/<app>.
type Paths struct {
	AppName string
	HomeDir string
}

// NewPaths creates a new Paths instance for the given app
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{
		AppName: appName,
		HomeDir: home,
	}, nil
}

// BaseDir returns the base directory (~/.giztoy)
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// AppDir returns the app-specific directory (~/.giztoy/<app>)
func (p *Paths) AppDir() string {
	return filepath.Join(p.BaseDir(), p.AppName)
}

// ConfigFile returns the config file path (~/.giztoy/<app>/config.yaml)
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// CacheDir returns the cache directory (~/.giztoy/<app>/cache)
func (p *Paths) CacheDir() string {
	return filepath.Join(p.AppDir(), "cache")
}

// ContextCacheDir returns the cache directory of one context. Each
// context gets its own store so keys of different accounts never mix.
func (p *Paths) ContextCacheDir(context string) string {
	return filepath.Join(p.CacheDir(), context)
}

// ArchiveDir returns the default local archive (~/.giztoy/<app>/archive)
func (p *Paths) ArchiveDir() string {
	return filepath.Join(p.AppDir(), "archive")
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
