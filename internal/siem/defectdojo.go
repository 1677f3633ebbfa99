package siem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/riftscan/sentinel/internal/shards"
)

// DojoClient is a DefectTrackerClient implementation against a
// DefectDojo-style import_scan REST endpoint.
type DojoClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func (c *DojoClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *DojoClient) ImportScan(ctx context.Context, product, engagement, test string, tags []string, payload any) error {
	body, err := json.Marshal(struct {
		Product     string   `json:"product_name"`
		Engagement  string   `json:"engagement_name"`
		Test        string   `json:"test_title"`
		Tags        []string `json:"tags"`
		ScanResults any      `json:"scan_results"`
	}{product, engagement, test, tags, payload})
	if err != nil {
		return fmt.Errorf("siem: encode import_scan payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v2/import-scan/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.APIKey)

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("siem: import_scan request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("siem: import_scan returned status %d", resp.StatusCode)
	}
	return nil
}

// ScanResultsConverter is the default DefectTrackerConverter: it
// flattens a shard collection's findings into the minimal
// finding-per-line shape most scan importers accept.
type ScanResultsConverter struct{}

type dojoFinding struct {
	Title      string `json:"title"`
	ResourceID string `json:"resource_id"`
	Region     string `json:"region"`
}

func (ScanResultsConverter) Convert(c *shards.Collection) (any, error) {
	var out []dojoFinding
	for _, idx := range c.ShardIndexes() {
		for _, f := range c.Shard(idx) {
			out = append(out, dojoFinding{Title: f.Rule, ResourceID: f.ResourceID, Region: f.Region})
		}
	}
	return out, nil
}
