// Package docrender is the HTTP client for the document render backend:
// template id plus merge fields in, rendered document id and URLs out.
package docrender

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

const serviceName = "doc_render"

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// RenderedDocument is the backend's handle for a created document.
type RenderedDocument struct {
	ID        string `json:"id"`
	ViewerURL string `json:"viewerUrl"`
	PDFURL    string `json:"pdfUrl"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateDocument renders a template with merge fields and returns the
// backend reference. The call itself is the only side effect; assembly
// upstream is pure, so the retry engine may re-invoke this safely.
func (c *Client) CreateDocument(ctx context.Context, templateID string, mergeFields map[string]string) (*RenderedDocument, error) {
	payload := map[string]interface{}{
		"templateId":  templateID,
		"mergeFields": mergeFields,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransientError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransientError(serviceName, err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, errors.FromHTTPStatus(serviceName, resp.StatusCode, string(body))
	}

	var doc RenderedDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.NewTerminalError(serviceName, fmt.Sprintf("unparseable response: %v", err))
	}
	if doc.ID == "" {
		return nil, errors.NewTerminalError(serviceName, "response missing document id")
	}

	return &doc, nil
}

// FetchPDF downloads the final PDF bytes for a rendered document.
func (c *Client) FetchPDF(ctx context.Context, documentID string) ([]byte, error) {
	url := fmt.Sprintf("%s/documents/%s/pdf", c.baseURL, documentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransientError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.FromHTTPStatus(serviceName, resp.StatusCode, string(body))
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransientError(serviceName, err)
	}
	if len(pdf) == 0 {
		return nil, errors.NewTerminalError(serviceName, "empty PDF body")
	}
	return pdf, nil
}

// Healthy probes the backend's health endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
