package finalize

import "fmt"

// Config holds the outbound mail identity for finalization.
type Config struct {
	FromAddress string
	ReplyTo     string
	InfoPackURL string
	Environment string
}

func (c *Config) Validate() error {
	if c.FromAddress == "" {
		return fmt.Errorf("finalize: from address is required")
	}
	return nil
}
