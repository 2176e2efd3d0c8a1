package deepgram

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the REST endpoint.
	DefaultBaseURL = "https://api.deepgram.com/v1"

	// DefaultWebSocketURL is the streaming endpoint for listen v1 and speak.
	DefaultWebSocketURL = "wss://api.deepgram.com/v1"

	// DefaultV2WebSocketURL is the streaming endpoint for turn-based listen.
	DefaultV2WebSocketURL = "wss://api.deepgram.com/v2"

	// DefaultAgentURL is the voice agent endpoint.
	DefaultAgentURL = "wss://agent.deepgram.com/v1/agent/converse"

	// DefaultTimeout bounds one-shot requests and websocket handshakes.
	DefaultTimeout = 30 * time.Second
)

// Client holds the credential and endpoints shared by all facades.
//
// A Client is immutable after construction and safe for concurrent use.
type Client struct {
	config *clientConfig
}

type clientConfig struct {
	apiKey     string
	baseURL    string
	wsURL      string
	wsV2URL    string
	agentURL   string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures the Client.
type Option func(*clientConfig)

// WithBaseURL sets the REST base URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithWebSocketURL sets the v1 streaming base URL.
func WithWebSocketURL(url string) Option {
	return func(c *clientConfig) {
		c.wsURL = url
	}
}

// WithV2WebSocketURL sets the v2 streaming base URL.
func WithV2WebSocketURL(url string) Option {
	return func(c *clientConfig) {
		c.wsV2URL = url
	}
}

// WithAgentURL sets the full voice agent endpoint.
func WithAgentURL(url string) Option {
	return func(c *clientConfig) {
		c.agentURL = url
	}
}

// WithHTTPClient sets a custom HTTP client for one-shot requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the request and handshake timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *clientConfig) {
		c.metrics = m
	}
}

// NewClient creates a client for the given API key.
//
// An empty key is accepted; every operation then fails with
// ErrCredentialMissing through its error callback.
//
// Example:
//
//	client := deepgram.NewClient(os.Getenv("DEEPGRAM_API_KEY"))
//	listener := deepgram.NewListener(client, deepgram.ListenerConfig{...})
func NewClient(apiKey string, opts ...Option) *Client {
	cfg := &clientConfig{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		wsURL:    DefaultWebSocketURL,
		wsV2URL:  DefaultV2WebSocketURL,
		agentURL: DefaultAgentURL,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Client{config: cfg}
}

// APIKey returns the configured API key.
func (c *Client) APIKey() string {
	return c.config.apiKey
}

// BaseURL returns the REST base URL.
func (c *Client) BaseURL() string {
	return c.config.baseURL
}

func (c *Client) logger() *slog.Logger {
	return c.config.logger
}

func (c *Client) metrics() *Metrics {
	return c.config.metrics
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Token "+c.config.apiKey)
	return h
}

func (c *Client) checkCredential() error {
	if c.config.apiKey == "" {
		return ErrCredentialMissing
	}
	return nil
}
