package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
)

// CredentialingClient is an HTTP client for the credentialing (onboarding)
// service. Calls are issued after the local transaction has committed, so a
// failure here is recoverable: the caller logs it and moves on.
type CredentialingClient struct {
	baseURL string
	http    *http.Client
}

// NewCredentialingClient creates a client. A zero timeout defaults to 30s.
func NewCredentialingClient(baseURL string, timeout time.Duration) *CredentialingClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CredentialingClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// PushWorkflowUpdate notifies credentialing that an offer's workflow was
// created or changed.
func (c *CredentialingClient) PushWorkflowUpdate(ctx context.Context, payload map[string]interface{}) error {
	return c.post(ctx, "/api/v1/onboarding/workflows", payload)
}

// PushWorkflowUpdateAndAppendSteps pushes a completed workflow together
// with its resolved approval steps.
func (c *CredentialingClient) PushWorkflowUpdateAndAppendSteps(ctx context.Context, payload map[string]interface{}) error {
	return c.post(ctx, "/api/v1/onboarding/workflows/steps", payload)
}

// TerminateOnboarding stops the onboarding flow for a rejected or withdrawn
// offer.
func (c *CredentialingClient) TerminateOnboarding(ctx context.Context, workflowID, tenantID, authToken string) error {
	path := fmt.Sprintf("/api/v1/onboarding/workflows/%s/terminate", workflowID)
	req, err := c.newRequest(ctx, path, map[string]interface{}{"tenant_id": tenantID})
	if err != nil {
		return err
	}
	if authToken != "" {
		req.Header.Set("Authorization", authToken)
	}
	return c.do(req)
}

func (c *CredentialingClient) post(ctx context.Context, path string, payload map[string]interface{}) error {
	req, err := c.newRequest(ctx, path, payload)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *CredentialingClient) newRequest(ctx context.Context, path string, payload map[string]interface{}) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal credentialing payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build credentialing request")
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *CredentialingClient) do(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeExternalFailure, "credentialing request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return apperrors.Newf(apperrors.CodeExternalFailure,
			"credentialing returned %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}
