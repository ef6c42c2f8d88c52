// Package ai wraps the text providers that draft objection grounds. The
// OpenAI provider is the production path; the deterministic mock serves
// development and last-resort degraded mode.
package ai

import "context"

// TokenUsage reports token consumption for one generation call.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Request is one drafting request. Concerns and facts arrive
// pre-ordered; AllowedLinks is the hyperlink allow-list extracted from
// them.
type Request struct {
	SystemPrompt  string
	Concerns      []string
	Facts         []string
	StyleSample   string
	CustomGrounds string
	AllowedLinks  []string
	Temperature   float32
	MaxTokens     int
}

// Result is the drafted text plus provenance.
type Result struct {
	Text     string
	Provider string
	Model    string
	Usage    TokenUsage
}

// Provider drafts grounds text from a request.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Result, error)
	// Healthy performs a lightweight liveness call for the monitor.
	Healthy(ctx context.Context) error
}
