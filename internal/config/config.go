package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/zslzxy/toolmesh/internal/mcp"
)

// Config root configuration
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent" json:"agent"`
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`
	MCP       MCPConfig       `mapstructure:"mcp" json:"mcp"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics"`
}

// AgentConfig model and turn loop parameters
type AgentConfig struct {
	Model       string  `mapstructure:"model" json:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	// MaxTurns bounds model turns per query; 0 means unbounded.
	MaxTurns int `mapstructure:"max_turns" json:"max_turns"`
}

// ProvidersConfig LLM provider settings
type ProvidersConfig struct {
	OpenRouter ProviderConfig `mapstructure:"openrouter" json:"openrouter"`
	Claude     ProviderConfig `mapstructure:"claude" json:"claude"`
	OpenAI     ProviderConfig `mapstructure:"openai" json:"openai"`
	DeepSeek   ProviderConfig `mapstructure:"deepseek" json:"deepseek"`
	Ollama     ProviderConfig `mapstructure:"ollama" json:"ollama"`
}

// ProviderConfig single provider settings
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key,omitempty"`
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
}

// MCPConfig tool server settings
type MCPConfig struct {
	// ServersFile is the persisted server list; relative paths resolve
	// against the config directory.
	ServersFile string        `mapstructure:"servers_file" json:"servers_file"`
	CallTimeout int           `mapstructure:"call_timeout" json:"call_timeout"` // seconds
	Runtime     RuntimeConfig `mapstructure:"runtime" json:"runtime"`
}

// RuntimeConfig bundled runtime used for npx-launched servers
type RuntimeConfig struct {
	BunPath     string `mapstructure:"bun_path" json:"bun_path,omitempty"`
	NPMRegistry string `mapstructure:"npm_registry" json:"npm_registry,omitempty"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level     string `mapstructure:"level" json:"level"`
	File      string `mapstructure:"file" json:"file"`
	// Format is "text" (default) or "json".
	Format string `mapstructure:"format" json:"format,omitempty"`
	// AuditFile receives one JSON line per executed tool call; empty disables it.
	AuditFile string `mapstructure:"audit_file" json:"audit_file,omitempty"`
}

// MetricsConfig prometheus exposition settings
type MetricsConfig struct {
	// Listen is the address serving /metrics; empty disables the endpoint.
	Listen string `mapstructure:"listen" json:"listen"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   8192,
			Temperature: 0.7,
		},
		Providers: ProvidersConfig{},
		MCP: MCPConfig{
			ServersFile: "mcp_servers.json",
			CallTimeout: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the toolmesh config directory
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".toolmesh")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load reads config from ConfigPath, creating a default file on first run.
func Load() (*Config, error) {
	return LoadFile(ConfigPath())
}

// LoadFile reads config from configPath, creating a default file when it
// does not exist.
func LoadFile(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveFile(configPath, cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("TOOLMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save writes config to ConfigPath.
func Save(cfg *Config) error {
	return SaveFile(ConfigPath(), cfg)
}

// SaveFile writes config to configPath.
func SaveFile(configPath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks config values and fills defaults.
func (c *Config) Validate() error {
	a := &c.Agent

	if a.MaxTurns < 0 {
		return fmt.Errorf("agent.max_turns must not be negative, got %d", a.MaxTurns)
	}
	if a.Temperature < 0 || a.Temperature > 2.0 {
		return fmt.Errorf("agent.temperature must be between 0 and 2.0, got %f", a.Temperature)
	}
	if a.MaxTokens <= 0 {
		return fmt.Errorf("agent.max_tokens must be > 0, got %d", a.MaxTokens)
	}
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("agent.model must be non-empty")
	}

	if c.MCP.CallTimeout < 0 {
		return fmt.Errorf("mcp.call_timeout must not be negative, got %d", c.MCP.CallTimeout)
	}
	if c.MCP.CallTimeout == 0 {
		c.MCP.CallTimeout = 30
	}
	if strings.TrimSpace(c.MCP.ServersFile) == "" {
		c.MCP.ServersFile = "mcp_servers.json"
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	switch format := strings.ToLower(strings.TrimSpace(c.Log.Format)); format {
	case "":
		c.Log.Format = "text"
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("log.format must be text or json; got %q", c.Log.Format)
	}

	return nil
}

// ServersFilePath resolves mcp.servers_file against the config directory.
func (c *Config) ServersFilePath() string {
	return resolvePath(c.MCP.ServersFile)
}

// AuditFilePath resolves log.audit_file against the config directory.
func (c *Config) AuditFilePath() string {
	return resolvePath(c.Log.AuditFile)
}

func resolvePath(raw string) string {
	path := strings.TrimSpace(raw)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~"+string(filepath.Separator)) || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Join(ConfigDir(), path)
}

// RuntimeOptions maps the mcp section onto transport options.
func (c *Config) RuntimeOptions() mcp.RuntimeOptions {
	return mcp.RuntimeOptions{
		BunPath:     strings.TrimSpace(c.MCP.Runtime.BunPath),
		NPMRegistry: strings.TrimSpace(c.MCP.Runtime.NPMRegistry),
		CallTimeout: time.Duration(c.MCP.CallTimeout) * time.Second,
	}
}
