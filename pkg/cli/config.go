package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".giztoy"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"

	// APIKeyEnv is consulted when no context is selected or configured.
	APIKeyEnv = "DEEPGRAM_API_KEY"
)

// Config represents the main configuration structure for a CLI app
type Config struct {
	// AppName is the application name (e.g., "deepgram")
	AppName string `yaml:"-"`

	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context is one named API configuration.
type Context struct {
	Name string `yaml:"name"`

	// APIKey is the Deepgram API key.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the REST endpoint (https://api.deepgram.com/v1).
	BaseURL string `yaml:"base_url,omitempty"`

	// WebSocketURL overrides the streaming endpoint (wss://api.deepgram.com/v1).
	WebSocketURL string `yaml:"websocket_url,omitempty"`

	// AgentURL overrides the voice agent endpoint.
	AgentURL string `yaml:"agent_url,omitempty"`

	// Timeout is the one-shot request timeout in seconds.
	Timeout int `yaml:"timeout,omitempty"`

	// ListenModel and SpeakModel replace the library default models.
	ListenModel string `yaml:"listen_model,omitempty"`
	SpeakModel  string `yaml:"speak_model,omitempty"`

	Cache   *CacheConfig   `yaml:"cache,omitempty"`
	Archive *ArchiveConfig `yaml:"archive,omitempty"`

	// Extra stores free-form settings.
	Extra map[string]string `yaml:"extra,omitempty"`
}

// CacheConfig configures the synthesis cache.
type CacheConfig struct {
	// Disabled turns the cache off.
	Disabled bool `yaml:"disabled,omitempty"`

	// Dir defaults to ~/.giztoy/<app>/cache/<context>.
	Dir string `yaml:"dir,omitempty"`

	// TTL is a Go duration string such as "168h". Empty keeps entries
	// forever.
	TTL string `yaml:"ttl,omitempty"`
}

// ArchiveConfig selects where transcripts and audio are archived. S3 wins
// over Dir when both are set.
type ArchiveConfig struct {
	Dir string    `yaml:"dir,omitempty"`
	S3  *S3Config `yaml:"s3,omitempty"`
}

// S3Config describes an S3-compatible bucket. Empty credentials fall back
// to AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`

	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// LoadConfig loads or creates configuration for the specified app
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		if ctx == nil {
			delete(cfg.Contexts, name)
			continue
		}
		ctx.Name = name
	}

	cfg.AppName = appName
	cfg.configPath = configPath
	return cfg, nil
}

// Save saves the configuration to disk. The file holds API keys and is
// written with mode 0600.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// AddContext adds or replaces a context
func (c *Config) AddContext(name string, ctx *Context) error {
	if name == "" {
		return fmt.Errorf("context name is required")
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// GetCurrentContext returns the current context
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}
	return c.GetContext(c.CurrentContext)
}

// ResolveContext returns the named context, or the current one when name
// is empty. With neither, a context built from APIKeyEnv is returned if
// the variable is set.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext != "" {
		return c.GetCurrentContext()
	}
	if key := os.Getenv(APIKeyEnv); key != "" {
		return &Context{Name: "env", APIKey: key}, nil
	}
	return nil, fmt.Errorf("no current context set")
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RequestTimeout returns Timeout as a duration, zero when unset.
func (ctx *Context) RequestTimeout() time.Duration {
	if ctx.Timeout <= 0 {
		return 0
	}
	return time.Duration(ctx.Timeout) * time.Second
}

// CacheTTL parses Cache.TTL. Zero means no expiry.
func (ctx *Context) CacheTTL() (time.Duration, error) {
	if ctx.Cache == nil || ctx.Cache.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(ctx.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("context %q: invalid cache ttl: %w", ctx.Name, err)
	}
	return d, nil
}

// CacheEnabled reports whether the synthesis cache should be used.
func (ctx *Context) CacheEnabled() bool {
	return ctx.Cache == nil || !ctx.Cache.Disabled
}

// GetExtra returns an extra value for the context
func (ctx *Context) GetExtra(key string) string {
	if ctx.Extra == nil {
		return ""
	}
	return ctx.Extra[key]
}

// SetExtra sets an extra value for the context
func (ctx *Context) SetExtra(key, value string) {
	if ctx.Extra == nil {
		ctx.Extra = make(map[string]string)
	}
	ctx.Extra[key] = value
}

// MaskAPIKey masks the API key for display
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
