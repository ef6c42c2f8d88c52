package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"objection-engine/internal/common/errors"
	"objection-engine/internal/common/logger"
)

const openAIServiceName = "openai"

// OpenAIProvider calls the OpenAI chat completion API. Transport errors
// and 429/5xx responses get a short in-call retry before the failure is
// handed back for durable scheduling.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger logger.Logger

	// maxElapsed bounds the in-call retry loop so a flapping provider
	// is handed to the durable retry engine quickly.
	maxElapsed time.Duration
}

func NewOpenAIProvider(apiKey, model string, log logger.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		client:     openai.NewClient(apiKey),
		model:      model,
		logger:     log.WithFields(map[string]interface{}{"provider": openAIServiceName}),
		maxElapsed: 20 * time.Second,
	}
}

func (p *OpenAIProvider) Name() string { return openAIServiceName }

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Result, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)},
		},
	}

	var resp openai.ChatCompletionResponse

	operation := func() error {
		var err error
		resp, err = p.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			return nil
		}
		if classified := classifyOpenAIError(err); !classified.Retryable {
			return backoff.Permanent(classified)
		}
		p.logger.Warn("provider call failed, retrying in-call", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxElapsedTime = p.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, errors.Normalize(openAIServiceName, err)
	}

	if len(resp.Choices) == 0 {
		return nil, emptyOutputError()
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, emptyOutputError()
	}

	return &Result{
		Text:     text,
		Provider: openAIServiceName,
		Model:    resp.Model,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Healthy lists models as a cheap liveness probe.
func (p *OpenAIProvider) Healthy(ctx context.Context) error {
	_, err := p.client.ListModels(ctx)
	if err != nil {
		return errors.Normalize(openAIServiceName, err)
	}
	return nil
}

func buildUserPrompt(req *Request) string {
	var b strings.Builder

	if len(req.Facts) > 0 {
		b.WriteString("Approved background facts:\n")
		for _, fact := range req.Facts {
			b.WriteString("- ")
			b.WriteString(fact)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Concerns to address, in order:\n")
	for i, concern := range req.Concerns {
		fmt.Fprintf(&b, "%d. %s\n", i+1, concern)
	}

	if req.CustomGrounds != "" {
		b.WriteString("\nAdditional grounds supplied by the objector:\n")
		b.WriteString(req.CustomGrounds)
		b.WriteString("\n")
	}

	if req.StyleSample != "" {
		b.WriteString("\nMatch the tone of this writing sample:\n")
		b.WriteString(req.StyleSample)
		b.WriteString("\n")
	}

	if len(req.AllowedLinks) > 0 {
		b.WriteString("\nOnly these hyperlinks may appear in the output:\n")
		for _, link := range req.AllowedLinks {
			b.WriteString(link)
			b.WriteString("\n")
		}
	}

	return b.String()
}

func classifyOpenAIError(err error) *errors.StandardError {
	if apiErr, ok := err.(*openai.APIError); ok {
		return errors.FromHTTPStatus(openAIServiceName, apiErr.HTTPStatusCode, apiErr.Message)
	}
	return errors.NewTransientError(openAIServiceName, err)
}

// emptyOutputError marks malformed provider output: non-retriable, the
// caller must surface it instead of scheduling a retry.
func emptyOutputError() *errors.StandardError {
	return errors.NewValidationError("provider returned empty output", []errors.Issue{
		{Field: "output", Message: "generated text is empty", Code: "EMPTY_OUTPUT"},
	})
}
