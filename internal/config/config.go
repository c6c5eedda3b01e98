// ABOUTME: Configuration loading and parsing for deckbot
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names recognized by the content and image sections.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"

	ProviderUnsplash = "unsplash"
	ProviderPexels   = "pexels"
	ProviderPixabay  = "pixabay"
)

// DefaultPalette is the gradient palette used when images.palette is not configured.
var DefaultPalette = [][]string{
	{"#667eea", "#764ba2"},
	{"#f093fb", "#f5576c"},
	{"#4facfe", "#00f2fe"},
	{"#43e97b", "#38f9d7"},
	{"#fa709a", "#fee140"},
	{"#30cfd0", "#330867"},
	{"#a8edea", "#fed6e3"},
	{"#ff9a9e", "#fecfef"},
}

// Config represents the complete deckbot configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
	Content   ContentConfig   `yaml:"content"`
	Images    ImagesConfig    `yaml:"images"`
	Output    OutputConfig    `yaml:"output"`
	Queue     QueueConfig     `yaml:"queue"`
	Frontends FrontendsConfig `yaml:"frontends"`
	Messages  MessagesConfig  `yaml:"messages"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds tsnet configuration. Funnel exposes the webhook publicly over HTTPS.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	Funnel    bool   `yaml:"funnel"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds the secret used to sign status API tokens. Empty disables the API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DialogueConfig controls the conversation flow
type DialogueConfig struct {
	MinPages   int `yaml:"min_pages"`
	MaxPages   int `yaml:"max_pages"`
	DedupeSize int `yaml:"dedupe_size"`

	Timeout       time.Duration `yaml:"-"`
	DedupeTTL     time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw       string `yaml:"timeout"`
	DedupeTTLRaw     string `yaml:"dedupe_ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// ContentConfig selects and configures the text generation backend
type ContentConfig struct {
	Provider  string          `yaml:"provider"`
	Language  string          `yaml:"language"`
	MaxTokens int             `yaml:"max_tokens"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Ollama    OllamaConfig    `yaml:"ollama"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// AnthropicConfig holds Anthropic credentials
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OpenAIConfig holds OpenAI credentials. BaseURL allows compatible endpoints.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini credentials
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OllamaConfig points at a local Ollama server
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// ImagesConfig selects and configures the image search backend
type ImagesConfig struct {
	Provider string         `yaml:"provider"`
	MaxBytes int64          `yaml:"max_bytes"`
	Dir      string         `yaml:"dir"`
	Palette  [][]string     `yaml:"palette"`
	Unsplash ImageKeyConfig `yaml:"unsplash"`
	Pexels   ImageKeyConfig `yaml:"pexels"`
	Pixabay  ImageKeyConfig `yaml:"pixabay"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// ImageKeyConfig holds the credential for one image backend
type ImageKeyConfig struct {
	APIKey string `yaml:"api_key"`
}

// OutputConfig controls where rendered documents are written.
// PDFFont is an optional TrueType font for PDFs with non-Latin-1 text.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	PDFFont string `yaml:"pdf_font"`
}

// QueueConfig controls the background generation workers
type QueueConfig struct {
	Workers     int `yaml:"workers"`
	MaxAttempts int `yaml:"max_attempts"`

	RetryBackoff time.Duration `yaml:"-"`
	PollInterval time.Duration `yaml:"-"`

	RetryBackoffRaw string `yaml:"retry_backoff"`
	PollIntervalRaw string `yaml:"poll_interval"`
}

// FrontendsConfig holds configuration for all chat frontends
type FrontendsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Matrix   MatrixConfig   `yaml:"matrix"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BotToken    string `yaml:"bot_token"`
	WebhookPath string `yaml:"webhook_path"`
	SecretToken string `yaml:"secret_token"`
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Homeserver   string   `yaml:"homeserver"`
	UserID       string   `yaml:"user_id"`
	AccessToken  string   `yaml:"access_token"`
	AllowedRooms []string `yaml:"allowed_rooms"`
}

// MessagesConfig points at an optional TOML catalog overriding the built-in texts
type MessagesConfig struct {
	Catalog string `yaml:"catalog"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and unset fields receive defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Dialogue.Timeout == 0 {
		c.Dialogue.Timeout = 15 * time.Minute
	}
	if c.Dialogue.MinPages == 0 {
		c.Dialogue.MinPages = 3
	}
	if c.Dialogue.MaxPages == 0 {
		c.Dialogue.MaxPages = 50
	}
	if c.Dialogue.DedupeTTL == 0 {
		c.Dialogue.DedupeTTL = 10 * time.Minute
	}
	if c.Dialogue.DedupeSize == 0 {
		c.Dialogue.DedupeSize = 10000
	}

	if c.Content.Provider == "" {
		c.Content.Provider = ProviderNone
	}
	if c.Content.Language == "" {
		c.Content.Language = "uzbek"
	}
	if c.Content.MaxTokens == 0 {
		c.Content.MaxTokens = 4096
	}
	if c.Content.Timeout == 0 {
		c.Content.Timeout = 60 * time.Second
	}
	if c.Content.Anthropic.Model == "" {
		c.Content.Anthropic.Model = "claude-sonnet-4-5-20250929"
	}
	if c.Content.OpenAI.Model == "" {
		c.Content.OpenAI.Model = "gpt-4"
	}
	if c.Content.Gemini.Model == "" {
		c.Content.Gemini.Model = "gemini-2.5-flash"
	}
	if c.Content.Ollama.Host == "" {
		c.Content.Ollama.Host = "http://localhost:11434"
	}
	if c.Content.Ollama.Model == "" {
		c.Content.Ollama.Model = "llama3.1"
	}

	if c.Images.Provider == "" {
		c.Images.Provider = ProviderNone
	}
	if c.Images.Timeout == 0 {
		c.Images.Timeout = 30 * time.Second
	}
	if c.Images.MaxBytes == 0 {
		c.Images.MaxBytes = 5 * 1024 * 1024
	}
	if len(c.Images.Palette) == 0 {
		c.Images.Palette = DefaultPalette
	}

	if c.Queue.Workers == 0 {
		c.Queue.Workers = 1
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.RetryBackoff == 0 {
		c.Queue.RetryBackoff = 30 * time.Second
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = 2 * time.Second
	}

	if c.Frontends.Telegram.WebhookPath == "" {
		c.Frontends.Telegram.WebhookPath = "/telegram/webhook"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	dataDir := "data"
	if c.Database.Path != "" {
		dataDir = filepath.Dir(c.Database.Path)
	}
	if c.Images.Dir == "" {
		c.Images.Dir = filepath.Join(dataDir, "images")
	}
	if c.Output.Dir == "" {
		c.Output.Dir = filepath.Join(dataDir, "presentations")
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Dialogue.MinPages < 1 {
		return fmt.Errorf("dialogue.min_pages must be at least 1")
	}
	if c.Dialogue.MaxPages < c.Dialogue.MinPages {
		return fmt.Errorf("dialogue.max_pages (%d) must not be less than dialogue.min_pages (%d)", c.Dialogue.MaxPages, c.Dialogue.MinPages)
	}

	switch c.Content.Provider {
	case ProviderNone, ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("content.provider %q is not supported", c.Content.Provider)
	}

	switch c.Images.Provider {
	case ProviderNone, ProviderUnsplash, ProviderPexels, ProviderPixabay:
	default:
		return fmt.Errorf("images.provider %q is not supported", c.Images.Provider)
	}

	for i, pair := range c.Images.Palette {
		if len(pair) != 2 {
			return fmt.Errorf("images.palette[%d] must have exactly two colors", i)
		}
	}

	if c.Frontends.Telegram.Enabled && c.Frontends.Telegram.BotToken == "" {
		return fmt.Errorf("frontends.telegram.bot_token is required when telegram is enabled")
	}
	if c.Frontends.Matrix.Enabled {
		if c.Frontends.Matrix.Homeserver == "" {
			return fmt.Errorf("frontends.matrix.homeserver is required when matrix is enabled")
		}
		if c.Frontends.Matrix.UserID == "" || c.Frontends.Matrix.AccessToken == "" {
			return fmt.Errorf("frontends.matrix.user_id and access_token are required when matrix is enabled")
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"dialogue.timeout", cfg.Dialogue.TimeoutRaw, &cfg.Dialogue.Timeout},
		{"dialogue.dedupe_ttl", cfg.Dialogue.DedupeTTLRaw, &cfg.Dialogue.DedupeTTL},
		{"dialogue.sweep_interval", cfg.Dialogue.SweepIntervalRaw, &cfg.Dialogue.SweepInterval},
		{"content.timeout", cfg.Content.TimeoutRaw, &cfg.Content.Timeout},
		{"images.timeout", cfg.Images.TimeoutRaw, &cfg.Images.Timeout},
		{"queue.retry_backoff", cfg.Queue.RetryBackoffRaw, &cfg.Queue.RetryBackoff},
		{"queue.poll_interval", cfg.Queue.PollIntervalRaw, &cfg.Queue.PollInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
