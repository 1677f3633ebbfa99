// Package license implements the license-manager client:
// pre-authorize a licensed job before submission and best-effort report
// its final status back. A small authenticated HTTP client with typed
// request/response structs, authenticated with OAuth2
// client-credentials since the license manager is a separate trust
// domain.
package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Client talks to the external license manager.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config wires the client-credentials token source; TokenURL/ClientID/
// ClientSecret are operator-supplied.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func NewClient(ctx context.Context, cfg Config) *Client {
	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: oauth2.NewClient(ctx, ccCfg.TokenSource(ctx)),
	}
}

// PostJobRequest is the pre-authorization request body.
type PostJobRequest struct {
	JobID      string            `json:"job_id"`
	Customer   string            `json:"customer"`
	Tenant     string            `json:"tenant"`
	RulesetMap map[string]string `json:"ruleset_map"` // ruleset id -> tenant license key
}

// PostJobResponse carries the S3 URLs of the licensed rule-set bundles
// the caller is now authorized to load.
type PostJobResponse struct {
	Allowed         bool              `json:"allowed"`
	RulesetContent  map[string]string `json:"ruleset_content"` // ruleset id -> s3 url
}

// ErrDenied is returned when the license manager rejects pre-auth; the
// executor maps this to exit code 2 (apierr.LMDenied).
type ErrDenied struct{ Reason string }

func (e *ErrDenied) Error() string { return fmt.Sprintf("license manager denied job: %s", e.Reason) }

// IsAllowedToLicenseAJob asks the license manager to pre-authorize a
// job against the given tenant license keys, and if allowed, returns the
// map of ruleset id -> bundle URL to load.
func (c *Client) IsAllowedToLicenseAJob(ctx context.Context, jobID, customer, tenant string, rulesetMap map[string]string) (map[string]string, error) {
	req := PostJobRequest{JobID: jobID, Customer: customer, Tenant: tenant, RulesetMap: rulesetMap}
	var resp PostJobResponse
	if err := c.doJSON(ctx, http.MethodPost, "/jobs", req, &resp); err != nil {
		return nil, fmt.Errorf("license manager post_job: %w", err)
	}
	if !resp.Allowed {
		return nil, &ErrDenied{Reason: "tenant license keys not authorized"}
	}
	return resp.RulesetContent, nil
}

// UpdateJobRequest reports a job's final status.
type UpdateJobRequest struct {
	JobID     string     `json:"job_id"`
	Customer  string     `json:"customer"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Status    string     `json:"status"`
}

// UpdateJob is best-effort: callers should log and continue on error,
// never fail the worker over it.
func (c *Client) UpdateJob(ctx context.Context, req UpdateJobRequest) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.doJSON(ctx, http.MethodPatch, "/jobs/"+req.JobID, req, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("license manager returned %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
