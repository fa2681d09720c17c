package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateAgent(cfg, ve)
	validateCatalog(cfg, ve)
	validateAuthz(cfg, ve)
	validateApproval(cfg, ve)
	validateNotify(cfg, ve)
	validateAudit(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"anthropic": true,
	"bedrock":   true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if !validProviderTypes[cfg.LLM.Provider] {
		ve.Add("llm.provider %q is invalid (want: anthropic, bedrock)", cfg.LLM.Provider)
	}
	if cfg.LLM.Model == "" {
		ve.Add("llm.model must not be empty")
	}
	if cfg.LLM.MaxTokens <= 0 {
		ve.Add("llm.max_tokens must be > 0")
	}
	if cfg.LLM.Provider == "bedrock" && cfg.LLM.Region == "" {
		ve.Add("llm.region is required when provider is bedrock")
	}
	if cfg.LLM.CircuitBreaker.Enabled {
		if cfg.LLM.CircuitBreaker.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cfg.LLM.CircuitBreaker.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.MaxIterations <= 0 {
		ve.Add("agent.max_iterations must be > 0")
	}
	if cfg.Agent.SystemPrompt == "" {
		ve.Add("agent.system_prompt must not be empty")
	}
	if cfg.Agent.Compression.Enabled {
		if cfg.Agent.Compression.Threshold <= 0 {
			ve.Add("agent.compression.threshold must be > 0 when compression is enabled")
		}
		if cfg.Agent.Compression.KeepRecent <= 0 {
			ve.Add("agent.compression.keep_recent must be > 0 when compression is enabled")
		}
	}
	if cfg.Agent.ContextGuard.Enabled && cfg.Agent.ContextGuard.MaxTokens <= 0 {
		ve.Add("agent.context_guard.max_tokens must be > 0 when the guard is enabled")
	}
	if cfg.Agent.SessionReap.Enabled {
		if _, err := time.ParseDuration(cfg.Agent.SessionReap.MaxAge); err != nil {
			ve.Add("agent.session_reap.max_age %q is not a valid duration", cfg.Agent.SessionReap.MaxAge)
		}
	}
}

func validateCatalog(cfg *Config, ve *ValidationError) {
	if cfg.Catalog.Path == "" {
		ve.Add("catalog.path must not be empty")
	}
}

var validNormalizeStrategies = map[string]bool{
	"slugify":   true,
	"lowercase": true,
	"identity":  true,
}

func validateAuthz(cfg *Config, ve *ValidationError) {
	if cfg.Authz.APIURL == "" {
		ve.Add("authz.api_url must not be empty")
	}
	if cfg.Authz.PDPURL == "" {
		ve.Add("authz.pdp_url must not be empty")
	}
	if !validNormalizeStrategies[cfg.Authz.Normalize] {
		ve.Add("authz.normalize %q is invalid (want: slugify, lowercase, identity)", cfg.Authz.Normalize)
	}
	if cfg.Authz.RateLimitRPS <= 0 {
		ve.Add("authz.rate_limit_rps must be > 0")
	}
	if cfg.Authz.Timeout <= 0 {
		ve.Add("authz.timeout must be > 0")
	}
	// Credentials are optional at load time so the tool server can start in
	// offline development, but when a key is present the IDs must be too.
	if cfg.Authz.APIKey != "" {
		if cfg.Authz.ProjectID == "" {
			ve.Add("authz.project_id is required when authz.api_key is set")
		}
		if cfg.Authz.EnvID == "" {
			ve.Add("authz.env_id is required when authz.api_key is set")
		}
	}
}

func validateApproval(cfg *Config, ve *ValidationError) {
	if cfg.Approval.MaxAllowedDishPrice < 0 {
		ve.Add("approval.max_allowed_dish_price must be >= 0")
	}
	if cfg.Approval.RequestLimit <= 0 {
		ve.Add("approval.request_limit must be > 0")
	}
	if cfg.Approval.RequestWindow <= 0 {
		ve.Add("approval.request_window must be > 0")
	}
}

var validNotifyKinds = map[string]bool{
	"none":    true,
	"slack":   true,
	"discord": true,
}

func validateNotify(cfg *Config, ve *ValidationError) {
	if !validNotifyKinds[cfg.Notify.Kind] {
		ve.Add("notify.kind %q is invalid (want: none, slack, discord)", cfg.Notify.Kind)
		return
	}
	switch cfg.Notify.Kind {
	case "slack":
		if cfg.Notify.Slack.Token == "" {
			ve.Add("notify.slack.token is required when kind is slack")
		}
		if cfg.Notify.Slack.Channel == "" {
			ve.Add("notify.slack.channel is required when kind is slack")
		}
	case "discord":
		if cfg.Notify.Discord.Token == "" {
			ve.Add("notify.discord.token is required when kind is discord")
		}
		if cfg.Notify.Discord.ChannelID == "" {
			ve.Add("notify.discord.channel_id is required when kind is discord")
		}
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if !cfg.Audit.Enabled {
		return
	}
	if cfg.Audit.Path == "" {
		ve.Add("audit.path must not be empty when audit is enabled")
	}
	if cfg.Audit.Retention.MaxAge != "" {
		if _, err := time.ParseDuration(cfg.Audit.Retention.MaxAge); err != nil {
			ve.Add("audit.retention.max_age %q is not a valid duration", cfg.Audit.Retention.MaxAge)
		}
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[cfg.Logger.Level] {
		ve.Add("logging.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if cfg.Logger.Format != "text" && cfg.Logger.Format != "json" {
		ve.Add("logging.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validTracerExporters = map[string]bool{
	"noop":   true,
	"stdout": true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validTracerExporters[cfg.Tracer.Exporter] {
		ve.Add("tracing.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
