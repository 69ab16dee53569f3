package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"codebridge/pkg/contracts/domain"
)

// API is the slice of the license server the session needs. Implemented
// by APIClient; tests substitute fakes.
type API interface {
	VerifyLicense(ctx context.Context, key, fingerprint string) (*domain.VerifyResponse, error)
	CheckUsage(ctx context.Context, req domain.UsageCheckRequest) (*domain.UsageCheckResponse, error)
}

// APIClient talks to the license server over HTTP.
//
// The error contract matters: a non-nil error means the answer is
// MISSING (network trouble, 5xx), never that the answer is negative.
// Authoritative negatives come back as ordinary responses with
// valid=false or canUse=false.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client for the server at baseURL.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// VerifyLicense asks the server whether key is valid.
func (c *APIClient) VerifyLicense(ctx context.Context, key, fingerprint string) (*domain.VerifyResponse, error) {
	var resp domain.VerifyResponse
	err := c.post(ctx, "/api/license/verify", domain.VerifyRequest{
		LicenseKey:  key,
		Fingerprint: fingerprint,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckUsage asks the server's limiter for permission to perform one
// metered action.
func (c *APIClient) CheckUsage(ctx context.Context, req domain.UsageCheckRequest) (*domain.UsageCheckResponse, error) {
	var resp domain.UsageCheckResponse
	if err := c.post(ctx, "/api/usage/check", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: server answered %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
