package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration, shared by the agent
// and the tool server binaries.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Agent    AgentConfig    `yaml:"agent"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Authz    AuthzConfig    `yaml:"authz"`
	Approval ApprovalConfig `yaml:"approval"`
	Notify   NotifyConfig   `yaml:"notify"`
	Audit    AuditConfig    `yaml:"audit"`
	Logger   LoggerConfig   `yaml:"logging"`
	Tracer   TracerConfig   `yaml:"tracing"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	Provider       string               `yaml:"provider"` // "anthropic" or "bedrock"
	Model          string               `yaml:"model"`
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	MaxTokens      int                  `yaml:"max_tokens"`
	Region         string               `yaml:"region,omitempty"` // bedrock only
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the LLM provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for the LLM provider.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// AgentConfig holds agent behavior settings.
type AgentConfig struct {
	MaxIterations  int                `yaml:"max_iterations"`
	SystemPrompt   string             `yaml:"system_prompt"`
	DataDir        string             `yaml:"data_dir"`
	RenderMarkdown bool               `yaml:"render_markdown"`
	Compression    CompressionConfig  `yaml:"compression"`
	ContextGuard   ContextGuardConfig `yaml:"context_guard"`
	SessionReap    SessionReapConfig  `yaml:"session_reap"`
}

// CompressionConfig controls conversation history compression.
type CompressionConfig struct {
	Enabled    bool `yaml:"enabled"`
	Threshold  int  `yaml:"threshold"`
	KeepRecent int  `yaml:"keep_recent"`
}

// ContextGuardConfig controls proactive context window overflow prevention.
type ContextGuardConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MaxTokens     int     `yaml:"max_tokens"`     // default: 128000
	ReserveTokens int     `yaml:"reserve_tokens"` // default: 1000
	SafetyMargin  float64 `yaml:"safety_margin"`  // default: 0.15
}

// SessionReapConfig controls deletion of stale persisted sessions.
type SessionReapConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	MaxAge   string `yaml:"max_age"`  // duration string, e.g. "720h" (30 days)
}

// CatalogConfig holds restaurant catalog store settings.
type CatalogConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// AuthzConfig holds authorization gateway settings. The gateway talks to a
// Permit.io-compatible REST API and PDP.
type AuthzConfig struct {
	APIURL           string        `yaml:"api_url"`
	PDPURL           string        `yaml:"pdp_url"`
	APIKey           string        `yaml:"api_key"`
	ProjectID        string        `yaml:"project_id"`
	EnvID            string        `yaml:"env_id"`
	ElementsConfigID string        `yaml:"elements_config_id"` // access request element
	ApprovalConfigID string        `yaml:"approval_config_id"` // operation approval element
	Tenant           string        `yaml:"tenant"`
	OperateRole      string        `yaml:"operate_role"`
	Normalize        string        `yaml:"normalize"` // "slugify", "lowercase", "identity"
	RateLimitRPS     float64       `yaml:"rate_limit_rps"`
	Timeout          time.Duration `yaml:"timeout"`
}

// ApprovalConfig holds the human approval workflow settings.
type ApprovalConfig struct {
	MaxAllowedDishPrice float64       `yaml:"max_allowed_dish_price"`
	RevokeAfterOrder    bool          `yaml:"revoke_after_order"`
	RequestLimit        int           `yaml:"request_limit"`
	RequestWindow       time.Duration `yaml:"request_window"`
}

// NotifyConfig holds approval request notification settings.
type NotifyConfig struct {
	Kind    string              `yaml:"kind"` // "none", "slack", "discord"
	Slack   SlackNotifyConfig   `yaml:"slack"`
	Discord DiscordNotifyConfig `yaml:"discord"`
}

// SlackNotifyConfig holds Slack notifier settings.
type SlackNotifyConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// DiscordNotifyConfig holds Discord notifier settings.
type DiscordNotifyConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// AuditConfig holds audit logging settings.
type AuditConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Path      string          `yaml:"path"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig holds audit log retention policy settings.
type RetentionConfig struct {
	MaxAge   string `yaml:"max_age"`  // duration string, e.g. "2160h" (90 days)
	MaxSize  string `yaml:"max_size"` // e.g. "100MB"
	Schedule string `yaml:"schedule"` // cron expression or duration string
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under $HOME/.foodcourt.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".foodcourt")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-3-5-sonnet-20241022",
			BaseURL:     "https://api.anthropic.com",
			MaxTokens:   1000,
			ConnTimeout: 10 * time.Second,
			RespTimeout: 120 * time.Second,
			Pool: PoolConfig{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Agent: AgentConfig{
			MaxIterations:  10,
			SystemPrompt:   defaultSystemPrompt,
			DataDir:        dataDir,
			RenderMarkdown: true,
			Compression: CompressionConfig{
				Enabled:    false,
				Threshold:  30,
				KeepRecent: 10,
			},
			ContextGuard: ContextGuardConfig{
				Enabled:       false,
				MaxTokens:     128000,
				ReserveTokens: 1000,
				SafetyMargin:  0.15,
			},
			SessionReap: SessionReapConfig{
				Enabled:  true,
				Schedule: "1h",
				MaxAge:   "720h",
			},
		},
		Catalog: CatalogConfig{
			Path: "food_ordering.db",
		},
		Authz: AuthzConfig{
			APIURL:       "https://api.permit.io",
			PDPURL:       "https://cloudpdp.api.permit.io",
			Tenant:       "default",
			OperateRole:  "operate-approved",
			Normalize:    "slugify",
			RateLimitRPS: 10,
			Timeout:      30 * time.Second,
		},
		Approval: ApprovalConfig{
			MaxAllowedDishPrice: 10.00,
			RevokeAfterOrder:    true,
			RequestLimit:        5,
			RequestWindow:       time.Minute,
		},
		Notify: NotifyConfig{
			Kind: "none",
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "audit.jsonl"),
			Retention: RetentionConfig{
				MaxAge:   "2160h",
				MaxSize:  "100MB",
				Schedule: "24h",
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

const defaultSystemPrompt = "You are a helpful assistant for a family food " +
	"ordering system. Use the available tools to look up restaurants and " +
	"dishes, place orders, and manage access and approval requests. Always " +
	"pass the user's username to tools that require one."

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("FOODCOURT_MASTER_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps FOODCOURT_* env vars to config fields. The
// vendor-conventional ANTHROPIC_API_KEY and PERMIT_API_KEY are honored as
// fallbacks for the two credentials.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FOODCOURT_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("FOODCOURT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("FOODCOURT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("FOODCOURT_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("FOODCOURT_LLM_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLM.MaxTokens = n
		}
	}
	if v := os.Getenv("FOODCOURT_LLM_REGION"); v != "" {
		cfg.LLM.Region = v
	}

	if v := os.Getenv("FOODCOURT_AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("FOODCOURT_AGENT_DATA_DIR"); v != "" {
		cfg.Agent.DataDir = v
	}
	if v := os.Getenv("FOODCOURT_AGENT_RENDER_MARKDOWN"); v == "false" {
		cfg.Agent.RenderMarkdown = false
	}

	if v := os.Getenv("FOODCOURT_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	if v := os.Getenv("FOODCOURT_AUTHZ_API_URL"); v != "" {
		cfg.Authz.APIURL = v
	}
	if v := os.Getenv("FOODCOURT_AUTHZ_PDP_URL"); v != "" {
		cfg.Authz.PDPURL = v
	}
	if v := os.Getenv("FOODCOURT_AUTHZ_API_KEY"); v != "" {
		cfg.Authz.APIKey = v
	} else if v := os.Getenv("PERMIT_API_KEY"); v != "" && cfg.Authz.APIKey == "" {
		cfg.Authz.APIKey = v
	}
	if v := os.Getenv("FOODCOURT_AUTHZ_PROJECT_ID"); v != "" {
		cfg.Authz.ProjectID = v
	}
	if v := os.Getenv("FOODCOURT_AUTHZ_ENV_ID"); v != "" {
		cfg.Authz.EnvID = v
	}
	if v := os.Getenv("FOODCOURT_AUTHZ_ELEMENTS_CONFIG_ID"); v != "" {
		cfg.Authz.ElementsConfigID = v
	}
	if v := os.Getenv("FOODCOURT_AUTHZ_APPROVAL_CONFIG_ID"); v != "" {
		cfg.Authz.ApprovalConfigID = v
	}
	if v := os.Getenv("FOODCOURT_AUTHZ_TENANT"); v != "" {
		cfg.Authz.Tenant = v
	}

	if v := os.Getenv("FOODCOURT_APPROVAL_MAX_DISH_PRICE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Approval.MaxAllowedDishPrice = f
		}
	}
	if v := os.Getenv("FOODCOURT_APPROVAL_REVOKE_AFTER_ORDER"); v == "false" {
		cfg.Approval.RevokeAfterOrder = false
	}

	if v := os.Getenv("FOODCOURT_NOTIFY_KIND"); v != "" {
		cfg.Notify.Kind = v
	}
	if v := os.Getenv("FOODCOURT_NOTIFY_SLACK_TOKEN"); v != "" {
		cfg.Notify.Slack.Token = v
	}
	if v := os.Getenv("FOODCOURT_NOTIFY_SLACK_CHANNEL"); v != "" {
		cfg.Notify.Slack.Channel = v
	}
	if v := os.Getenv("FOODCOURT_NOTIFY_DISCORD_TOKEN"); v != "" {
		cfg.Notify.Discord.Token = v
	}
	if v := os.Getenv("FOODCOURT_NOTIFY_DISCORD_CHANNEL_ID"); v != "" {
		cfg.Notify.Discord.ChannelID = v
	}

	if v := os.Getenv("FOODCOURT_AUDIT_ENABLED"); v == "true" {
		cfg.Audit.Enabled = true
	} else if v == "false" {
		cfg.Audit.Enabled = false
	}
	if v := os.Getenv("FOODCOURT_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}

	if v := os.Getenv("FOODCOURT_LOGGING_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("FOODCOURT_LOGGING_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("FOODCOURT_LOGGING_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}

	if v := os.Getenv("FOODCOURT_TRACING_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("FOODCOURT_TRACING_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// decryptSecrets finds "enc:..." values in credential fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	secrets := []struct {
		name  string
		field *string
	}{
		{"llm.api_key", &cfg.LLM.APIKey},
		{"authz.api_key", &cfg.Authz.APIKey},
		{"notify.slack.token", &cfg.Notify.Slack.Token},
		{"notify.discord.token", &cfg.Notify.Discord.Token},
	}
	for _, s := range secrets {
		if !strings.HasPrefix(*s.field, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*s.field, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		*s.field = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
