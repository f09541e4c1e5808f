package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client. A nil httpClient gets a default with
// the given timeout, since the settlement pipeline has no other guard
// against a hung gateway call.
func NewClient(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Transfer submits a fund movement and returns the external transaction id.
func (c *Client) Transfer(ctx context.Context, treq TransferRequest) (string, error) {
	jsonBody, err := json.Marshal(treq)
	if err != nil {
		return "", fmt.Errorf("marshaling transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting transfer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return "", fmt.Errorf("transfer rejected: %s (status %d)", apiErr.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("transfer rejected: unexpected status %d", resp.StatusCode)
	}

	var result struct {
		TransferID string `json:"transfer_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transfer response: %w", err)
	}
	if result.TransferID == "" {
		return "", fmt.Errorf("transfer response missing transfer_id")
	}
	return result.TransferID, nil
}
