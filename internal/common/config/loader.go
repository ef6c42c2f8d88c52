// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_POSTGRES_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or the project root,
// so binaries and tests behave the same regardless of invocation path.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from cwd looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from plain environment variables when the
// yaml left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Integrations.OpenAI.APIKey == "" {
		if val := os.Getenv("OPENAI_API_KEY"); val != "" {
			cfg.Integrations.OpenAI.APIKey = val
		}
	}
	if cfg.Integrations.DocRender.APIKey == "" {
		if val := os.Getenv("DOCRENDER_API_KEY"); val != "" {
			cfg.Integrations.DocRender.APIKey = val
		}
	}
	if cfg.Integrations.CRM.AuthToken == "" {
		if val := os.Getenv("CRM_AUTH_TOKEN"); val != "" {
			cfg.Integrations.CRM.AuthToken = val
		}
	}
	if cfg.Integrations.CRM.WebhookSecret == "" {
		if val := os.Getenv("CRM_WEBHOOK_SECRET"); val != "" {
			cfg.Integrations.CRM.WebhookSecret = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("POSTGRES_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "objection-engine"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}

	if cfg.Integrations.OpenAI.Model == "" {
		cfg.Integrations.OpenAI.Model = "gpt-4o"
	}
	if cfg.Integrations.OpenAI.MaxTokens == 0 {
		cfg.Integrations.OpenAI.MaxTokens = 4000
	}
	if cfg.Integrations.OpenAI.Timeout == 0 {
		cfg.Integrations.OpenAI.Timeout = 90 * time.Second
	}
	if cfg.Integrations.DocRender.Timeout == 0 {
		cfg.Integrations.DocRender.Timeout = 60 * time.Second
	}
	if cfg.Integrations.CRM.Timeout == 0 {
		cfg.Integrations.CRM.Timeout = 30 * time.Second
	}
	if cfg.Integrations.AWS.Region == "" {
		cfg.Integrations.AWS.Region = "ap-southeast-2"
	}

	if cfg.Retry.BaseBackoff == 0 {
		cfg.Retry.BaseBackoff = 30 * time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = time.Hour
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.PollInterval == 0 {
		cfg.Retry.PollInterval = 30 * time.Second
	}
	if cfg.Retry.BatchSize == 0 {
		cfg.Retry.BatchSize = 20
	}

	if cfg.Health.ProbeInterval == 0 {
		cfg.Health.ProbeInterval = time.Minute
	}
	if cfg.Health.ProbeTimeout == 0 {
		cfg.Health.ProbeTimeout = 5 * time.Second
	}
	if cfg.Health.DegradedLatency == 0 {
		cfg.Health.DegradedLatency = 2 * time.Second
	}
	if cfg.Health.FailureThreshold == 0 {
		cfg.Health.FailureThreshold = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	if cfg.Retry.BaseBackoff <= 0 || cfg.Retry.MaxBackoff < cfg.Retry.BaseBackoff {
		return fmt.Errorf("retry backoff window is invalid")
	}
	if cfg.Delivery.CouncilEmail == "" && cfg.App.Environment == "production" {
		return fmt.Errorf("delivery.council_email is required in production")
	}
	if cfg.Integrations.OpenAI.Enabled && cfg.Integrations.OpenAI.APIKey == "" {
		return fmt.Errorf("integrations.openai.api_key is required when the provider is enabled")
	}
	if cfg.App.Environment == "production" && !cfg.Integrations.OpenAI.Enabled {
		return fmt.Errorf("the mock text provider cannot be used in production")
	}
	return nil
}
