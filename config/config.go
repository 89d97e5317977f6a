// Package config loads gabriel settings from an optional yaml file, the
// environment and defaults.
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/littlegabriel/gabriel"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Env        string           `mapstructure:"env"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Bible      BibleConfig      `mapstructure:"bible"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Gatekeeper GatekeeperConfig `mapstructure:"gatekeeper"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// WebRoot holds the built web app. Pages are served from it behind the
	// gatekeeper, empty disables page serving.
	WebRoot         string        `mapstructure:"web_root"`
}

// Addr is the listen address for the HTTP server
func (s ServerConfig) Addr() string {
	if strings.Contains(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// Enabled is false when no redis url is set, revocation then stays in
// process memory
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

// AuthConfig implements gabriel.Config
type AuthConfig struct {
	SigningKey           string   `mapstructure:"signing_key"`
	SigningMethod        string   `mapstructure:"signing_method"`
	ContextKey           string   `mapstructure:"context_key"`
	TokenExpiration      int      `mapstructure:"token_expiration"`
	TokenLookup          string   `mapstructure:"token_lookup"`
	AuthScheme           string   `mapstructure:"auth_scheme"`
	URL                  string   `mapstructure:"url"`
	Issuer               string   `mapstructure:"issuer"`
	Audience             []string `mapstructure:"audience"`
	RejectedRouteKey     string   `mapstructure:"rejected_route_key"`
	RejectedRouteDefault string   `mapstructure:"rejected_route_default"`
	SecureCookies        bool     `mapstructure:"secure_cookies"`
	SitePassword         string   `mapstructure:"site_password"`
	SitePasswordHash     string   `mapstructure:"site_password_hash"`
	UseHashid            bool     `mapstructure:"use_hashid"`
	PasswordCost         int      `mapstructure:"password_cost"`
}

var _ gabriel.Config = AuthConfig{}

func (a AuthConfig) GetSigningKey() string    { return a.SigningKey }
func (a AuthConfig) GetSigningMethod() string { return a.SigningMethod }
func (a AuthConfig) GetContextKey() string    { return a.ContextKey }
func (a AuthConfig) GetTokenExpiration() int  { return a.TokenExpiration }
func (a AuthConfig) GetTokenLookup() string   { return a.TokenLookup }
func (a AuthConfig) GetAuthScheme() string    { return a.AuthScheme }

// GetIssuer falls back to the public site url
func (a AuthConfig) GetIssuer() string {
	if a.Issuer != "" {
		return a.Issuer
	}
	if a.URL != "" {
		return a.URL
	}
	return "gabriel"
}

func (a AuthConfig) GetAudience() []string {
	if len(a.Audience) > 0 {
		return a.Audience
	}
	return []string{a.GetIssuer()}
}

func (a AuthConfig) GetRejectedRouteKey() string     { return a.RejectedRouteKey }
func (a AuthConfig) GetRejectedRouteDefault() string { return a.RejectedRouteDefault }
func (a AuthConfig) GetSecureCookies() bool          { return a.SecureCookies }

type BibleConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	AssistantID    string        `mapstructure:"assistant_id"`
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	ForceAssistant bool          `mapstructure:"force_assistant"`
	ForceFallback  bool          `mapstructure:"force_fallback"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PollAttempts   int           `mapstructure:"poll_attempts"`
}

type GatekeeperConfig struct {
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings maps config keys to the environment names used in deployment
var envBindings = map[string]string{
	"env":                     "APP_ENV",
	"server.port":             "PORT",
	"server.metrics_addr":     "METRICS_ADDR",
	"server.web_root":         "WEB_ROOT",
	"database.url":            "DATABASE_URL",
	"redis.url":               "REDIS_URL",
	"auth.signing_key":        "NEXTAUTH_SECRET",
	"auth.url":                "NEXTAUTH_URL",
	"auth.site_password":      "SITE_PASSWORD",
	"auth.site_password_hash": "SITE_PASSWORD_HASH",
	"auth.secure_cookies":     "SECURE_COOKIES",
	"auth.password_cost":      "BCRYPT_COST",
	"bible.api_key":           "BIBLE_API_KEY",
	"bible.base_url":          "BIBLE_API_URL",
	"openai.api_key":          "OPENAI_API_KEY",
	"openai.assistant_id":     "OPENAI_ASSISTANT_ID",
	"openai.model":            "OPENAI_MODEL",
	"openai.base_url":         "OPENAI_BASE_URL",
	"openai.force_assistant":  "FORCE_OPENAI_ASSISTANT",
	"openai.force_fallback":   "FORCE_OPENAI_FALLBACK",
	"gatekeeper.mode":         "GATEKEEPER_MODE",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",
}

// Option customizes Load
type Option func(*viper.Viper)

// WithConfigFile reads an explicit file instead of searching
func WithConfigFile(path string) Option {
	return func(v *viper.Viper) {
		if path != "" {
			v.SetConfigFile(path)
		}
	}
}

// WithOverride sets a value with the highest precedence, used by CLI flags
func WithOverride(key string, value any) Option {
	return func(v *viper.Viper) {
		v.Set(key, value)
	}
}

// Load reads gabriel.yaml from ., ./config or /etc/gabriel when present,
// then applies the environment
func Load(opts ...Option) (*Config, error) {
	v := viper.New()

	v.SetConfigName("gabriel")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/gabriel")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file").WithTextCode(gabriel.TextCodeConfigInvalid)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unmarshal config").WithTextCode(gabriel.TextCodeConfigInvalid)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", "3000")
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.web_root", "")

	v.SetDefault("database.url", "file:gabriel.db?cache=shared&_fk=1")
	v.SetDefault("redis.url", "")

	v.SetDefault("auth.signing_method", "HS256")
	v.SetDefault("auth.context_key", gabriel.DefaultContextKey)
	v.SetDefault("auth.token_expiration", 720)
	v.SetDefault("auth.token_lookup", gabriel.DefaultTokenLookup)
	v.SetDefault("auth.auth_scheme", "Bearer")
	v.SetDefault("auth.url", "http://localhost:3000")
	v.SetDefault("auth.rejected_route_key", "gabriel-rejected-route")
	v.SetDefault("auth.rejected_route_default", "/")
	v.SetDefault("auth.secure_cookies", false)
	v.SetDefault("auth.password_cost", 0)

	v.SetDefault("bible.base_url", "https://api.scripture.api.bible/v1")
	v.SetDefault("bible.timeout", "15s")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.max_retries", 2)
	v.SetDefault("openai.timeout", "60s")
	v.SetDefault("openai.poll_interval", "1s")
	v.SetDefault("openai.poll_attempts", 30)

	v.SetDefault("gatekeeper.mode", "observe")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "pretty")
}

// Validate reports the settings the service cannot start without
func (c *Config) Validate() error {
	missing := []string{}
	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		missing = append(missing, "NEXTAUTH_SECRET")
	}
	if c.Auth.TokenExpiration <= 0 {
		missing = append(missing, "auth.token_expiration")
	}

	if len(missing) > 0 {
		return goerrors.New("missing required configuration", goerrors.CategoryInternal).WithTextCode(gabriel.TextCodeConfigInvalid).
			WithMetadata(map[string]any{"missing": missing})
	}

	if c.Auth.URL != "" {
		if _, err := url.ParseRequestURI(c.Auth.URL); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "NEXTAUTH_URL is not a valid url").WithTextCode(gabriel.TextCodeConfigInvalid)
		}
	}

	switch c.Gatekeeper.Mode {
	case "", "observe", "enforce":
	default:
		return goerrors.New("GATEKEEPER_MODE must be observe or enforce", goerrors.CategoryInternal).WithTextCode(gabriel.TextCodeConfigInvalid).
			WithMetadata(map[string]any{"mode": c.Gatekeeper.Mode})
	}

	return nil
}

// Presence reports whether each known environment variable is set and its
// length, never the value
func Presence(lookup func(string) (string, bool)) map[string]int {
	out := make(map[string]int, len(envBindings))
	for _, env := range envBindings {
		val, ok := lookup(env)
		if !ok {
			out[env] = -1
			continue
		}
		out[env] = len(val)
	}
	return out
}

// EnvNames lists the bound environment variables
func EnvNames() []string {
	out := make([]string, 0, len(envBindings))
	for _, env := range envBindings {
		out = append(out, env)
	}
	return out
}
