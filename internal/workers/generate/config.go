package generate

import (
	"fmt"
	"time"
)

// PromptVersion is recorded on every draft so regenerated output can be
// traced back to the prompt that produced it.
const PromptVersion = "grounds-v3"

type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Environment string        `mapstructure:"environment"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Timeout:     90 * time.Second,
		Temperature: 0.4,
		MaxTokens:   4000,
		Environment: "development",
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}
