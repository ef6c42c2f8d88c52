// Package crm is the outbound client for the CRM: person upsert and
// submission status sync. Inbound CRM events arrive through the webhook
// package, not here.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"objection-engine/internal/common/errors"
)

const serviceName = "crm"

type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

type Person struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	Source    string `json:"source,omitempty"`
}

type SubmissionSync struct {
	SubmissionID      string `json:"submissionId"`
	ApplicationNumber string `json:"applicationNumber"`
	Status            string `json:"status"`
	SiteAddress       string `json:"siteAddress"`
}

func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// UpsertPerson creates or updates the CRM person keyed by email and
// returns the CRM id.
func (c *Client) UpsertPerson(ctx context.Context, person *Person) (string, error) {
	body, err := c.doJSON(ctx, http.MethodPost, "/people/upsert", person)
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errors.NewTerminalError(serviceName, fmt.Sprintf("unparseable response: %v", err))
	}
	if result.ID == "" {
		return "", errors.NewTerminalError(serviceName, "response missing person id")
	}
	return result.ID, nil
}

// PushSubmission mirrors the submission state into the CRM. Idempotent
// on the CRM side, keyed by submission id.
func (c *Client) PushSubmission(ctx context.Context, sync *SubmissionSync) error {
	_, err := c.doJSON(ctx, http.MethodPut, "/submissions/"+sync.SubmissionID, sync)
	return err
}

// Healthy pings the CRM.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewTransientError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.FromHTTPStatus(serviceName, resp.StatusCode, "")
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransientError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransientError(serviceName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.FromHTTPStatus(serviceName, resp.StatusCode, string(body))
	}
	return body, nil
}
