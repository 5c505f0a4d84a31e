package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "NOTESAI"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = "sqlite"
	defaultDatabaseDSN    = "notesai.db"
	defaultLogLevel       = "info"
	defaultCookieName     = "app_session"
	defaultSessionIssuer  = "tauth"
	defaultAllowedOrigin  = "http://localhost:3000"
	defaultAIBaseURL      = "http://127.0.0.1:11434/v1/"
	defaultAIModel        = "llama3.2"
	defaultAITimeout      = 15 * time.Second
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	DatabaseDriver    string
	DatabaseDSN       string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	AllowedOrigins    []string
	AIBaseURL         string
	AIAPIKey          string
	AIModel           string
	AITimeout         time.Duration
	LogLevel          string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.issuer", defaultSessionIssuer)
	configViper.SetDefault("cors.allowed_origins", []string{defaultAllowedOrigin})
	configViper.SetDefault("ai.base_url", defaultAIBaseURL)
	configViper.SetDefault("ai.model", defaultAIModel)
	configViper.SetDefault("ai.timeout", defaultAITimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:       configViper.GetString("database.dsn"),
		SessionSigningKey: configViper.GetString("auth.signing_secret"),
		SessionIssuer:     configViper.GetString("auth.issuer"),
		SessionCookieName: configViper.GetString("auth.cookie_name"),
		AllowedOrigins:    splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		AIBaseURL:         configViper.GetString("ai.base_url"),
		AIAPIKey:          configViper.GetString("ai.api_key"),
		AIModel:           configViper.GetString("ai.model"),
		AITimeout:         configViper.GetDuration("ai.timeout"),
		LogLevel:          configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.AIModel) == "" {
		return fmt.Errorf("ai.model is required")
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("ai.timeout must be positive")
	}
	return nil
}

// splitOrigins accepts both list values and comma separated env values.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
